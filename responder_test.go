package memcached

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_typedResponder_Complete_ok(t *testing.T) {
	future, waiter := newTypedFuture(parseVersion, zeroVersion, nil)

	done := waiter.Complete(uint16(StatusOK), 42, nil, nil, nil)
	assert.True(t, done)

	v, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version(42), v)
}

func Test_typedResponder_Complete_statusError(t *testing.T) {
	future, waiter := newTypedFuture(parseVersion, zeroVersion, nil)

	waiter.Complete(uint16(StatusKeyNotFound), 0, nil, nil, []byte("not found"))

	_, err := future.Await(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerStatus)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StatusKeyNotFound, statusErr.Status)
}

func Test_typedResponder_Complete_keyNotFoundWithMissOK(t *testing.T) {
	future, waiter := newTypedFuture(parseGetValue, none[Value], none[Value])

	done := waiter.Complete(uint16(StatusKeyNotFound), 0, nil, nil, []byte("not found"))
	assert.True(t, done)

	v, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Found)
}

func Test_typedResponder_CompleteQuietSuccess(t *testing.T) {
	future, waiter := newTypedFuture(parseGetValue, none[Value], nil)

	waiter.CompleteQuietSuccess()

	v, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Found)
}

func Test_typedResponder_Fail(t *testing.T) {
	future, waiter := newTypedFuture(parseUnit, unitQuietOK, nil)

	waiter.Fail(ErrClosed)

	_, err := future.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func Test_decodeValue_badExtrasLength(t *testing.T) {
	_, err := decodeValue(0, []byte{1, 2, 3}, nil, nil)
	assert.ErrorIs(t, err, ErrProtocol)
}

func Test_parseCounter(t *testing.T) {
	c, err := parseCounter(7, nil, nil, []byte{0, 0, 0, 0, 0, 0, 0, 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c.Value)
	assert.Equal(t, Version(7), c.CAS)
}

func Test_parseCounter_badLength(t *testing.T) {
	_, err := parseCounter(0, nil, nil, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrProtocol)
}

func Test_statResponder_streamsUntilTerminator(t *testing.T) {
	future, waiter := newStatFuture()

	done := waiter.Complete(uint16(StatusOK), 0, nil, []byte("pid"), []byte("123"))
	assert.False(t, done)
	done = waiter.Complete(uint16(StatusOK), 0, nil, []byte("uptime"), []byte("456"))
	assert.False(t, done)
	done = waiter.Complete(uint16(StatusOK), 0, nil, nil, nil)
	assert.True(t, done)

	stats, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pid": "123", "uptime": "456"}, stats)
}

func Test_statResponder_emptyStream(t *testing.T) {
	future, waiter := newStatFuture()

	done := waiter.Complete(uint16(StatusOK), 0, nil, nil, nil)
	assert.True(t, done)

	stats, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}
