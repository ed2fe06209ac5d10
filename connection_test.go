package memcached

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer reads one request frame at a time off the client's wire
// and hands it to the test for a scripted reply, standing in for a
// real memcached instance the way net.Pipe stands in for a socket.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	return &fakeServer{t: t, conn: conn}
}

func (s *fakeServer) readRequest() (opcode Opcode, opaque uint32, cas Version, key, value []byte) {
	hdr := make([]byte, headerLen)
	_, err := readFull(s.conn, hdr)
	require.NoError(s.t, err)

	opcode = Opcode(hdr[1])
	keyLen := binary.BigEndian.Uint16(hdr[2:4])
	extrasLen := hdr[4]
	bodyLen := binary.BigEndian.Uint32(hdr[8:12])
	opaque = binary.BigEndian.Uint32(hdr[12:16])
	cas = Version(binary.BigEndian.Uint64(hdr[16:24]))

	body := make([]byte, bodyLen)
	_, err = readFull(s.conn, body)
	require.NoError(s.t, err)

	key = body[extrasLen : uint32(extrasLen)+uint32(keyLen)]
	value = body[uint32(extrasLen)+uint32(keyLen):]
	return
}

func (s *fakeServer) reply(opcode Opcode, opaque uint32, status Status, cas Version, extras, key, value []byte) {
	body := append(append(append([]byte{}, extras...), key...), value...)
	hdr := make([]byte, headerLen)
	hdr[0] = 0x81
	hdr[1] = byte(opcode)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(key)))
	hdr[4] = byte(len(extras))
	binary.BigEndian.PutUint16(hdr[6:8], uint16(status))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[12:16], opaque)
	binary.BigEndian.PutUint64(hdr[16:24], uint64(cas))

	_, err := s.conn.Write(append(hdr, body...))
	require.NoError(s.t, err)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func newTestConnection(t *testing.T) (*Connection, *fakeServer) {
	client, server := net.Pipe()
	conn := wrapConn(client)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, newFakeServer(t, server)
}

func TestConnection_Get_hit(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, opaque, _, _, _ := server.readRequest()
		extras := make([]byte, 4)
		binary.BigEndian.PutUint32(extras, 7)
		server.reply(OpGet, opaque, StatusOK, 99, extras, nil, []byte("hello"))
	}()

	future := conn.Get([]byte("key"))
	v, err := future.Await(context.Background())
	require.NoError(t, err)
	require.True(t, v.Found)
	assert.Equal(t, []byte("hello"), v.Value.Value)
	assert.Equal(t, uint32(7), v.Value.Flags)
	assert.Equal(t, Version(99), v.Value.CAS)
}

func TestConnection_Get_miss(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, opaque, _, _, _ := server.readRequest()
		server.reply(OpGet, opaque, StatusKeyNotFound, 0, nil, nil, []byte("not found"))
	}()

	future := conn.Get([]byte("missing"))
	v, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Found)
}

func TestConnection_Delete_missIsStatusError(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, opaque, _, _, _ := server.readRequest()
		server.reply(OpDelete, opaque, StatusKeyNotFound, 0, nil, nil, []byte("not found"))
	}()

	future := conn.Delete([]byte("missing"), NoVersion)
	_, err := future.Await(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerStatus)
}

func TestConnection_Set_resolvesWithCAS(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, opaque, _, _, _ := server.readRequest()
		server.reply(OpSet, opaque, StatusOK, 5, nil, nil, nil)
	}()

	future := conn.Set([]byte("key"), []byte("value"), 0, 0, NoVersion)
	version, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version(5), version)
}

func TestConnection_QuietFence_resolvesOnNextResponse(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, setqOpaque, _, _, _ := server.readRequest()
		_, noopOpaque, _, _, _ := server.readRequest()
		// setq succeeded implicitly: no reply for it, only for noop.
		server.reply(OpNoop, noopOpaque, StatusOK, 0, nil, nil, nil)
		_ = setqOpaque
	}()

	setFuture := conn.SetQ([]byte("key"), []byte("value"), 0, 0, NoVersion)
	noopFuture := conn.Noop()

	_, err := noopFuture.Await(context.Background())
	require.NoError(t, err)

	version, err := setFuture.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoVersion, version)
}

func TestConnection_Stat_accumulatesUntilTerminator(t *testing.T) {
	conn, server := newTestConnection(t)

	go func() {
		_, opaque, _, _, _ := server.readRequest()
		server.reply(OpStat, opaque, StatusOK, 0, nil, []byte("pid"), []byte("123"))
		server.reply(OpStat, opaque, StatusOK, 0, nil, []byte("version"), []byte("1.6.0"))
		server.reply(OpStat, opaque, StatusOK, 0, nil, nil, nil)
	}()

	future := conn.Stat(nil)
	stats, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"pid": "123", "version": "1.6.0"}, stats)
}

func TestConnection_Timeout_doesNotFailConnection(t *testing.T) {
	conn, server := newTestConnection(t)
	_ = server

	future := conn.Get([]byte("key"), 20*time.Millisecond)
	_, err := future.Await(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NoError(t, conn.Err())
}

func TestConnection_Close_failsInFlightCommands(t *testing.T) {
	conn, server := newTestConnection(t)
	_ = server

	future := conn.Get([]byte("key"))
	require.NoError(t, conn.Close())

	_, err := future.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnection_SubmitAfterClose_failsImmediately(t *testing.T) {
	conn, server := newTestConnection(t)
	_ = server
	require.NoError(t, conn.Close())

	future := conn.Get([]byte("key"))
	_, err := future.Await(context.Background())
	assert.Error(t, err)
}

// TestConnection_ServerClosesIdle_laterSubmitFailsImmediately checks
// that the server closing an idle connection (no command ever
// submitted) moves it to the terminal state from readLoop, and that a
// command submitted afterwards fails right away instead of hanging
// until the caller's deadline.
func TestConnection_ServerClosesIdle_laterSubmitFailsImmediately(t *testing.T) {
	conn, server := newTestConnection(t)
	require.NoError(t, server.conn.Close())

	require.Eventually(t, func() bool {
		return conn.Err() != nil
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	future := conn.Get([]byte("key"))
	_, err := future.Await(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}
