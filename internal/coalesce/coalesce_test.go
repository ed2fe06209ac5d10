package coalesce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWaiter struct {
	completed    bool
	quietSuccess bool
	failed       error
}

func (w *fakeWaiter) Complete(status uint16, cas uint64, extras, key, value []byte) bool {
	w.completed = true
	return true
}

func (w *fakeWaiter) CompleteQuietSuccess() { w.quietSuccess = true }

func (w *fakeWaiter) Fail(err error) { w.failed = err }

func TestTable_InsertLookupRemove(t *testing.T) {
	table := New()
	w := &fakeWaiter{}

	seq := table.Insert(1, false, w)
	assert.Equal(t, uint64(0), seq)

	got, gotSeq, quiet, ok := table.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, w, got)
	assert.Equal(t, uint64(0), gotSeq)
	assert.False(t, quiet)

	removed, ok := table.Remove(1)
	require.True(t, ok)
	assert.Equal(t, w, removed)

	_, _, _, ok = table.Lookup(1)
	assert.False(t, ok)
}

func TestTable_DrainBefore_fencesQuietEntries(t *testing.T) {
	table := New()
	w1, w2, w3 := &fakeWaiter{}, &fakeWaiter{}, &fakeWaiter{}

	table.Insert(1, true, w1)
	table.Insert(2, true, w2)
	arrivingSeq := table.Insert(3, false, w3)

	table.DrainBefore(arrivingSeq)

	assert.True(t, w1.quietSuccess)
	assert.True(t, w2.quietSuccess)
	assert.False(t, w3.quietSuccess)

	_, _, _, ok := table.Lookup(1)
	assert.False(t, ok)
	_, _, _, ok = table.Lookup(2)
	assert.False(t, ok)
	_, _, _, ok = table.Lookup(3)
	assert.True(t, ok)
}

func TestTable_DrainBefore_leavesLaterQuietEntriesPending(t *testing.T) {
	table := New()
	w1, w2 := &fakeWaiter{}, &fakeWaiter{}

	table.Insert(1, true, w1)
	seq2 := table.Insert(2, true, w2)

	table.DrainBefore(seq2)

	assert.True(t, w1.quietSuccess)
	assert.False(t, w2.quietSuccess)
	assert.Equal(t, 1, table.Len())
}

func TestTable_DrainAll(t *testing.T) {
	table := New()
	w1, w2 := &fakeWaiter{}, &fakeWaiter{}
	table.Insert(1, false, w1)
	table.Insert(2, true, w2)

	waiters := table.DrainAll()
	assert.Len(t, waiters, 2)
	assert.Equal(t, 0, table.Len())
}

func TestTable_MarkTimeout(t *testing.T) {
	table := New()
	assert.False(t, table.SawTimeout())
	table.MarkTimeout()
	assert.True(t, table.SawTimeout())
}

func TestTable_Remove_alreadyGone(t *testing.T) {
	table := New()
	_, ok := table.Remove(99)
	assert.False(t, ok)
}
