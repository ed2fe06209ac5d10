// Package memcached provides an asynchronous client for the memcached
// binary protocol.
//
// A single Connection multiplexes many in-flight requests over one TCP
// socket: each request carries a 32-bit opaque token that the server
// echoes back, and a reader goroutine correlates replies to callers by
// that token rather than by arrival order. Commands are submitted
// through a fluent, per-opcode builder (StorageOp, GetOp, ArithmeticOp, ...) and
// resolve a Future once the matching response (or a terminal failure)
// arrives.
//
// "Quiet" opcodes (SetQ, AddQ, GetQ, ...) suppress their successful
// response; the connection treats the next non-quiet command's response
// as a fence that retroactively completes every earlier quiet command
// that has not already failed.
//
// Pool wraps one or more Connections behind a key-based picker and
// replaces a connection once it has failed terminally.
package memcached
