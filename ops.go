package memcached

import "time"

// This file holds the thin fluent builders described by spec.md §6:
// each just accumulates the options for one opcode family and, on its
// terminal method, calls the matching Connection method. None of them
// carry state machine logic — that lives entirely in Command,
// responder.go and connection.go.

// GetOp builds a get/getq/getk/getkq.
type GetOp struct {
	key          []byte
	withKey      bool
	quiet        bool
	timeout      time.Duration
}

// Get starts a GetOp for key.
func Get(key []byte) *GetOp { return &GetOp{key: key} }

// WithKey makes the response echo the key (getk/getkq).
func (o *GetOp) WithKey() *GetOp { o.withKey = true; return o }

// Quiet suppresses the response on a miss (getq/getkq).
func (o *GetOp) Quiet() *GetOp { o.quiet = true; return o }

func (o *GetOp) Timeout(d time.Duration) *GetOp { o.timeout = d; return o }

// Do submits the built command on conn.
func (o *GetOp) Do(conn *Connection) *Future[Option[Value]] {
	switch {
	case o.withKey && o.quiet:
		return conn.GetKQ(o.key, o.timeout)
	case o.withKey:
		return conn.GetK(o.key, o.timeout)
	case o.quiet:
		return conn.GetQ(o.key, o.timeout)
	default:
		return conn.Get(o.key, o.timeout)
	}
}

// StorageOp builds a set/add/replace/setq/addq/replaceq.
type StorageOp struct {
	mode    Opcode
	key     []byte
	value   []byte
	flags   uint32
	expires uint32
	cas     Version
	quiet   bool
	timeout time.Duration
}

// Set starts a StorageOp for an unconditional store.
func Set(key, value []byte) *StorageOp { return &StorageOp{mode: OpSet, key: key, value: value} }

// Add starts a StorageOp that only succeeds if key does not exist.
func Add(key, value []byte) *StorageOp { return &StorageOp{mode: OpAdd, key: key, value: value} }

// Replace starts a StorageOp that only succeeds if key already exists.
func Replace(key, value []byte) *StorageOp {
	return &StorageOp{mode: OpReplace, key: key, value: value}
}

func (o *StorageOp) Flags(f uint32) *StorageOp       { o.flags = f; return o }
func (o *StorageOp) Expires(e uint32) *StorageOp     { o.expires = e; return o }
func (o *StorageOp) Cas(v Version) *StorageOp        { o.cas = v; return o }
func (o *StorageOp) Quiet() *StorageOp               { o.quiet = true; return o }
func (o *StorageOp) Timeout(d time.Duration) *StorageOp { o.timeout = d; return o }

// Do submits the built command on conn.
func (o *StorageOp) Do(conn *Connection) *Future[Version] {
	switch o.mode {
	case OpAdd:
		if o.quiet {
			return conn.AddQ(o.key, o.value, o.flags, o.expires, o.timeout)
		}
		return conn.Add(o.key, o.value, o.flags, o.expires, o.timeout)
	case OpReplace:
		if o.quiet {
			return conn.ReplaceQ(o.key, o.value, o.flags, o.expires, o.cas, o.timeout)
		}
		return conn.Replace(o.key, o.value, o.flags, o.expires, o.cas, o.timeout)
	default:
		if o.quiet {
			return conn.SetQ(o.key, o.value, o.flags, o.expires, o.cas, o.timeout)
		}
		return conn.Set(o.key, o.value, o.flags, o.expires, o.cas, o.timeout)
	}
}

// ConcatOp builds an append/prepend/appendq/prependq.
type ConcatOp struct {
	mode    Opcode
	key     []byte
	value   []byte
	cas     Version
	quiet   bool
	timeout time.Duration
}

// Append starts a ConcatOp that appends value to the stored item.
func Append(key, value []byte) *ConcatOp { return &ConcatOp{mode: OpAppend, key: key, value: value} }

// Prepend starts a ConcatOp that prepends value to the stored item.
func Prepend(key, value []byte) *ConcatOp {
	return &ConcatOp{mode: OpPrepend, key: key, value: value}
}

func (o *ConcatOp) Cas(v Version) *ConcatOp           { o.cas = v; return o }
func (o *ConcatOp) Quiet() *ConcatOp                   { o.quiet = true; return o }
func (o *ConcatOp) Timeout(d time.Duration) *ConcatOp { o.timeout = d; return o }

func (o *ConcatOp) Do(conn *Connection) *Future[Version] {
	if o.mode == OpPrepend {
		if o.quiet {
			return conn.PrependQ(o.key, o.value, o.cas, o.timeout)
		}
		return conn.Prepend(o.key, o.value, o.cas, o.timeout)
	}
	if o.quiet {
		return conn.AppendQ(o.key, o.value, o.cas, o.timeout)
	}
	return conn.Append(o.key, o.value, o.cas, o.timeout)
}

// DeleteOp builds a delete/deleteq.
type DeleteOp struct {
	key     []byte
	cas     Version
	quiet   bool
	timeout time.Duration
}

// Delete starts a DeleteOp for key.
func Delete(key []byte) *DeleteOp { return &DeleteOp{key: key} }

func (o *DeleteOp) Cas(v Version) *DeleteOp           { o.cas = v; return o }
func (o *DeleteOp) Quiet() *DeleteOp                   { o.quiet = true; return o }
func (o *DeleteOp) Timeout(d time.Duration) *DeleteOp { o.timeout = d; return o }

func (o *DeleteOp) Do(conn *Connection) *Future[struct{}] {
	if o.quiet {
		return conn.DeleteQ(o.key, o.cas, o.timeout)
	}
	return conn.Delete(o.key, o.cas, o.timeout)
}

// ArithmeticOp builds an increment/decrement/incrementq/decrementq.
// Per spec.md §4.2, expires defaults to the 0xFFFFFFFF sentinel ("fail
// on miss") rather than 0 ("seed with initial on miss") — matching
// the wire default of increment/decrement with no initial value
// configured, per spec.md §8 Scenario 5.
type ArithmeticOp struct {
	mode       Opcode
	key        []byte
	delta      uint64
	initial    uint64
	expires    uint32
	expiresSet bool
	cas        Version
	quiet      bool
	timeout    time.Duration
}

// Increment starts an ArithmeticOp adding delta to the stored counter.
func Increment(key []byte, delta uint64) *ArithmeticOp {
	return &ArithmeticOp{mode: OpIncrement, key: key, delta: delta, expires: 0xFFFFFFFF}
}

// Decrement starts an ArithmeticOp subtracting delta, floored at zero.
func Decrement(key []byte, delta uint64) *ArithmeticOp {
	return &ArithmeticOp{mode: OpDecrement, key: key, delta: delta, expires: 0xFFFFFFFF}
}

// InitialValue sets the counter's seed value on a miss. Unless Expires
// or FailOnMiss was already called explicitly, this also switches
// expires from the fail-on-miss sentinel to 0 ("seed, don't fail") —
// callers who only set an initial value expect it to be used.
func (o *ArithmeticOp) InitialValue(v uint64) *ArithmeticOp {
	o.initial = v
	if !o.expiresSet {
		o.expires = 0
	}
	return o
}

// FailOnMiss makes the command fail instead of seeding on a miss,
// per spec.md §4.2's expires=0xFFFFFFFF sentinel. This is also the
// default, so FailOnMiss only matters together with InitialValue: called
// after it, it restores the sentinel; called before it, it stops
// InitialValue from switching expires to 0.
func (o *ArithmeticOp) FailOnMiss() *ArithmeticOp {
	o.expires = 0xFFFFFFFF
	o.expiresSet = true
	return o
}

func (o *ArithmeticOp) Expires(e uint32) *ArithmeticOp {
	o.expires = e
	o.expiresSet = true
	return o
}
func (o *ArithmeticOp) Cas(v Version) *ArithmeticOp          { o.cas = v; return o }
func (o *ArithmeticOp) Quiet() *ArithmeticOp                 { o.quiet = true; return o }
func (o *ArithmeticOp) Timeout(d time.Duration) *ArithmeticOp { o.timeout = d; return o }

func (o *ArithmeticOp) Do(conn *Connection) *Future[Counter] {
	if o.mode == OpDecrement {
		if o.quiet {
			return conn.DecrementQ(o.key, o.delta, o.initial, o.expires, o.cas, o.timeout)
		}
		return conn.Decrement(o.key, o.delta, o.initial, o.expires, o.cas, o.timeout)
	}
	if o.quiet {
		return conn.IncrementQ(o.key, o.delta, o.initial, o.expires, o.cas, o.timeout)
	}
	return conn.Increment(o.key, o.delta, o.initial, o.expires, o.cas, o.timeout)
}

// FlushOp builds a flush/flushq.
type FlushOp struct {
	expires uint32
	quiet   bool
	timeout time.Duration
}

// Flush starts a FlushOp. expires of 0 empties the cache immediately.
func Flush(expires uint32) *FlushOp { return &FlushOp{expires: expires} }

func (o *FlushOp) Quiet() *FlushOp                   { o.quiet = true; return o }
func (o *FlushOp) Timeout(d time.Duration) *FlushOp { o.timeout = d; return o }

func (o *FlushOp) Do(conn *Connection) *Future[struct{}] {
	if o.quiet {
		return conn.FlushQ(o.expires, o.timeout)
	}
	return conn.Flush(o.expires, o.timeout)
}

// NoopOp builds a noop.
type NoopOp struct{ timeout time.Duration }

// Noop starts a NoopOp.
func Noop() *NoopOp { return &NoopOp{} }

func (o *NoopOp) Timeout(d time.Duration) *NoopOp { o.timeout = d; return o }
func (o *NoopOp) Do(conn *Connection) *Future[struct{}] { return conn.Noop(o.timeout) }

// VersionOp builds a version.
type VersionOp struct{ timeout time.Duration }

// VersionQuery starts a VersionOp (named to avoid colliding with the
// Version CAS type).
func VersionQuery() *VersionOp { return &VersionOp{} }

func (o *VersionOp) Timeout(d time.Duration) *VersionOp { o.timeout = d; return o }
func (o *VersionOp) Do(conn *Connection) *Future[string] { return conn.Version(o.timeout) }

// StatOp builds a stat, optionally scoped to a stat group.
type StatOp struct {
	key     []byte
	timeout time.Duration
}

// Stat starts a StatOp. An empty group fetches the default stats.
func Stat(group []byte) *StatOp { return &StatOp{key: group} }

func (o *StatOp) Timeout(d time.Duration) *StatOp { o.timeout = d; return o }
func (o *StatOp) Do(conn *Connection) *Future[map[string]string] { return conn.Stat(o.key, o.timeout) }
