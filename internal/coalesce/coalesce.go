// Package coalesce holds the two pieces of shared, mutable state a
// Connection's submission path and read loop both touch: the opaque to
// responder in-flight map, and the FIFO quiet buffer used to fence
// quiet-opcode completion. It is split out of the connection so the
// bookkeeping can be unit-tested without a real socket, mirroring how
// the teacher keeps connPool's accounting separate from conn's byte
// plumbing.
package coalesce

import "sync"

// Waiter is anything that can be told how its command resolved. The
// Connection's per-opcode responders implement it; coalesce never
// looks inside a Waiter.
type Waiter interface {
	// Complete handles a response that physically arrived for this
	// opaque — success or server status error. It returns true if the
	// command is now fully resolved (always true except a stat command
	// mid-stream).
	Complete(status uint16, cas uint64, extras, key, value []byte) bool
	// CompleteQuietSuccess resolves a quiet command that never received
	// an explicit response, triggered by a later fence.
	CompleteQuietSuccess()
	// Fail resolves the command with a terminal or timeout error.
	Fail(err error)
}

type entry struct {
	opaque uint32
	seq    uint64
	quiet  bool
	waiter Waiter
}

// Table is the per-connection bookkeeping described by spec.md §3's
// Connection invariants: every in-flight opaque maps to exactly one
// responder, and the quiet buffer holds only quiet entries whose
// command has been fully written, in submission order.
type Table struct {
	mu        sync.Mutex
	byOpaque  map[uint32]*entry
	quietFIFO []*entry
	nextSeq   uint64
	sawTimeout bool
}

// New creates an empty Table.
func New() *Table {
	return &Table{byOpaque: make(map[uint32]*entry)}
}

// Insert records a newly submitted command. It must be called before
// the command's bytes are written to the wire, per spec.md §3:
// "Insertion into the in-flight map strictly precedes byte emission."
// It returns the submission sequence assigned to the entry, the order
// DrainBefore fences by.
func (t *Table) Insert(opaque uint32, quiet bool, w Waiter) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq := t.nextSeq
	t.nextSeq++

	e := &entry{opaque: opaque, seq: seq, quiet: quiet, waiter: w}
	t.byOpaque[opaque] = e
	if quiet {
		t.quietFIFO = append(t.quietFIFO, e)
	}
	return seq
}

// Lookup returns the waiter and submission sequence for opaque without
// removing it.
func (t *Table) Lookup(opaque uint32) (w Waiter, seq uint64, quiet, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, found := t.byOpaque[opaque]
	if !found {
		return nil, 0, false, false
	}
	return e.waiter, e.seq, e.quiet, true
}

// Remove drops opaque from the in-flight map and, if present, the quiet
// buffer. ok is false if opaque was already gone (already completed,
// timed out, or never inserted).
func (t *Table) Remove(opaque uint32) (w Waiter, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(opaque)
}

func (t *Table) removeLocked(opaque uint32) (Waiter, bool) {
	e, found := t.byOpaque[opaque]
	if !found {
		return nil, false
	}
	delete(t.byOpaque, opaque)
	if e.quiet {
		t.removeFromQuietFIFOLocked(e)
	}
	return e.waiter, true
}

func (t *Table) removeFromQuietFIFOLocked(target *entry) {
	for i, e := range t.quietFIFO {
		if e == target {
			t.quietFIFO = append(t.quietFIFO[:i], t.quietFIFO[i+1:]...)
			return
		}
	}
}

// DrainBefore pops and removes every quiet entry whose submission
// sequence is strictly less than before — the fence semantics of
// spec.md §4.4 — and completes each with an implicit success. Fencing
// uses submission order rather than the wire opaque so that it
// survives 32-bit opaque wraparound, per spec.md §9.
func (t *Table) DrainBefore(before uint64) {
	t.mu.Lock()
	var drained []*entry
	i := 0
	for ; i < len(t.quietFIFO); i++ {
		e := t.quietFIFO[i]
		if e.seq >= before {
			break
		}
		drained = append(drained, e)
		delete(t.byOpaque, e.opaque)
	}
	t.quietFIFO = t.quietFIFO[i:]
	t.mu.Unlock()

	for _, e := range drained {
		e.waiter.CompleteQuietSuccess()
	}
}

// MarkTimeout records that at least one command has timed out on this
// connection, so the read loop can treat a subsequent unknown-opaque
// response as a benign late arrival rather than a protocol violation
// (spec.md §5's cancellation note).
func (t *Table) MarkTimeout() {
	t.mu.Lock()
	t.sawTimeout = true
	t.mu.Unlock()
}

// SawTimeout reports whether MarkTimeout has ever been called.
func (t *Table) SawTimeout() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sawTimeout
}

// Len reports the number of in-flight entries, mostly for tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byOpaque)
}

// DrainAll empties the table and returns every waiter still
// outstanding, for the terminal-failure path of spec.md §4.6: "Completes
// every responder in the in-flight map and quiet buffer with that
// error." After DrainAll, the invariant "terminal slot set => map
// empty" holds.
func (t *Table) DrainAll() []Waiter {
	t.mu.Lock()
	waiters := make([]Waiter, 0, len(t.byOpaque))
	for _, e := range t.byOpaque {
		waiters = append(waiters, e.waiter)
	}
	t.byOpaque = make(map[uint32]*entry)
	t.quietFIFO = nil
	t.mu.Unlock()
	return waiters
}
