package memcached

import "time"

// This file is connection.go's sibling: one typed method per opcode
// family, each just gluing a command.go constructor to submitTyped or
// submitStat. Grounded on client_commands.go's one-method-per-opcode
// surface, generalized from a synchronous *client to an async
// *Connection returning a Future per spec.md §6.

// Get issues get: returns Option[Value], resolving successfully with
// Found=false on a miss rather than failing the Future.
func (c *Connection) Get(key []byte, timeout ...CommandTimeout) *Future[Option[Value]] {
	cmd := newGetCommand(OpGet, key, timeoutOf(timeout))
	return submitTyped(c, cmd, parseGetValue, none[Value], none[Value])
}

// GetQ issues getq: a miss resolves silently (no wire response), so it
// completes with none[Value] on the quiet fence rather than failing.
func (c *Connection) GetQ(key []byte, timeout ...CommandTimeout) *Future[Option[Value]] {
	cmd := newGetCommand(OpGetQ, key, timeoutOf(timeout))
	return submitTyped(c, cmd, parseGetValue, none[Value])
}

// GetK issues getk: like Get but the response echoes the key, useful
// for matching replies when pipelining many different keys. A miss
// resolves successfully with Found=false, same as Get.
func (c *Connection) GetK(key []byte, timeout ...CommandTimeout) *Future[Option[Value]] {
	cmd := newGetCommand(OpGetK, key, timeoutOf(timeout))
	return submitTyped(c, cmd, parseGetKValue, none[Value], none[Value])
}

// GetKQ issues getkq, the quiet sibling of GetK.
func (c *Connection) GetKQ(key []byte, timeout ...CommandTimeout) *Future[Option[Value]] {
	cmd := newGetCommand(OpGetKQ, key, timeoutOf(timeout))
	return submitTyped(c, cmd, parseGetKValue, none[Value])
}

// Set issues set: unconditional store, replacing any existing value.
func (c *Connection) Set(key, value []byte, flags, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newStorageCommand(OpSet, key, value, flags, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// SetQ is set's quiet sibling: resolves with an implicit Version(0) on
// the fence, since no CAS travels on an implicit success.
func (c *Connection) SetQ(key, value []byte, flags, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newStorageCommand(OpSetQ, key, value, flags, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// Add issues add: stores only if the key does not already exist.
func (c *Connection) Add(key, value []byte, flags, expires uint32, timeout ...CommandTimeout) *Future[Version] {
	cmd := newStorageCommand(OpAdd, key, value, flags, expires, NoVersion, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// AddQ is add's quiet sibling.
func (c *Connection) AddQ(key, value []byte, flags, expires uint32, timeout ...CommandTimeout) *Future[Version] {
	cmd := newStorageCommand(OpAddQ, key, value, flags, expires, NoVersion, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// Replace issues replace: stores only if the key already exists.
func (c *Connection) Replace(key, value []byte, flags, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newStorageCommand(OpReplace, key, value, flags, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// ReplaceQ is replace's quiet sibling.
func (c *Connection) ReplaceQ(key, value []byte, flags, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newStorageCommand(OpReplaceQ, key, value, flags, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// Append issues append: appends value to the existing item's value.
func (c *Connection) Append(key, value []byte, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newAppendCommand(OpAppend, key, value, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// AppendQ is append's quiet sibling.
func (c *Connection) AppendQ(key, value []byte, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newAppendCommand(OpAppendQ, key, value, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// Prepend issues prepend: prepends value to the existing item's value.
func (c *Connection) Prepend(key, value []byte, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newAppendCommand(OpPrepend, key, value, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// PrependQ is prepend's quiet sibling.
func (c *Connection) PrependQ(key, value []byte, cas Version, timeout ...CommandTimeout) *Future[Version] {
	cmd := newAppendCommand(OpPrependQ, key, value, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseVersion, zeroVersion)
}

// Delete issues delete: removes the key. A miss is a StatusError, not
// an empty success.
func (c *Connection) Delete(key []byte, cas Version, timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newDeleteCommand(OpDelete, key, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// DeleteQ is delete's quiet sibling.
func (c *Connection) DeleteQ(key []byte, cas Version, timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newDeleteCommand(OpDeleteQ, key, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// Increment issues increment: delta adds to the stored 64-bit counter;
// if the key is missing, initial seeds it unless expires is
// 0xFFFFFFFF, which instead fails the command on a miss.
func (c *Connection) Increment(key []byte, delta, initial uint64, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Counter] {
	cmd := newArithmeticCommand(OpIncrement, key, delta, initial, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseCounter, zeroCounter)
}

// IncrementQ is increment's quiet sibling.
func (c *Connection) IncrementQ(key []byte, delta, initial uint64, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Counter] {
	cmd := newArithmeticCommand(OpIncrementQ, key, delta, initial, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseCounter, zeroCounter)
}

// Decrement issues decrement, floored at zero rather than wrapping.
func (c *Connection) Decrement(key []byte, delta, initial uint64, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Counter] {
	cmd := newArithmeticCommand(OpDecrement, key, delta, initial, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseCounter, zeroCounter)
}

// DecrementQ is decrement's quiet sibling.
func (c *Connection) DecrementQ(key []byte, delta, initial uint64, expires uint32, cas Version, timeout ...CommandTimeout) *Future[Counter] {
	cmd := newArithmeticCommand(OpDecrementQ, key, delta, initial, expires, cas, timeoutOf(timeout))
	return submitTyped(c, cmd, parseCounter, zeroCounter)
}

// Flush issues flush: empties the cache, or everything older than
// expires seconds from now if expires is nonzero.
func (c *Connection) Flush(expires uint32, timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newFlushCommand(OpFlush, expires, timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// FlushQ is flush's quiet sibling.
func (c *Connection) FlushQ(expires uint32, timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newFlushCommand(OpFlushQ, expires, timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// Noop issues noop, a no-op round trip. It is also the fence primitive:
// Then-ing a prior batch of quiet commands' futures after a Noop's
// future resolves guarantees they have all been resolved too.
func (c *Connection) Noop(timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newNoopCommand(timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// Version issues version, returning the server's version string.
func (c *Connection) Version(timeout ...CommandTimeout) *Future[string] {
	cmd := newVersionCommand(timeoutOf(timeout))
	return submitTyped(c, cmd, parseString, zeroString)
}

// Quit issues quit, asking the server to close the connection after
// replying. The Connection itself still needs an explicit Close.
func (c *Connection) Quit(timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newQuitCommand(OpQuit, timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// QuitQ is quit's quiet sibling.
func (c *Connection) QuitQ(timeout ...CommandTimeout) *Future[struct{}] {
	cmd := newQuitCommand(OpQuitQ, timeoutOf(timeout))
	return submitTyped(c, cmd, parseUnit, unitQuietOK)
}

// Stat issues stat, optionally scoped to a stat group (e.g. "items"),
// resolving with the accumulated key/value pairs of the streamed reply
// per spec.md §4.5.
func (c *Connection) Stat(statKey []byte, timeout ...CommandTimeout) *Future[map[string]string] {
	cmd := newStatCommand(statKey, timeoutOf(timeout))
	return submitStat(c, cmd)
}

// CommandTimeout overrides a single command's default timeout. Every
// typed method takes it as a variadic final argument so most call
// sites can omit it entirely.
type CommandTimeout = time.Duration

func timeoutOf(t []CommandTimeout) time.Duration {
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

func zeroVersion() Version { return NoVersion }
func zeroCounter() Counter { return Counter{} }
func zeroString() string   { return "" }
