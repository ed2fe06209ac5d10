package memcached

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memcachedbin/memcached/internal/coalesce"
	"github.com/pkg/errors"
)

// Connection owns one TCP socket to a memcached server and multiplexes
// every in-flight request over it, correlating replies by opaque token
// per spec.md §4.6. It is the "hard part" component of this module: a
// single reader goroutine and a single writer goroutine drive the
// socket, following the "single reader fiber / single writer fiber"
// scheduling model of spec.md §5.
type Connection struct {
	raw net.Conn
	rd  *bufio.Reader

	table *coalesce.Table

	opaque atomic.Uint32

	writeCh chan []byte

	terminalOnce sync.Once
	terminalErr  atomic.Value // error

	closed  chan struct{}
	closeMu sync.Mutex
	didClose bool
}

const writeQueueDepth = 256

// Dial opens a new Connection to addr and starts its reader and writer
// goroutines. Grounded on conn.go's newConnContext, generalized from a
// per-request blocking round trip to a pipelined, opaque-correlated
// transport.
func Dial(ctx context.Context, network, addr string, dialTimeout time.Duration) (*Connection, error) {
	raw, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, network, addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	return wrapConn(raw), nil
}

// wrapConn builds a Connection around an already-established net.Conn
// and starts its goroutines. Split out of Dial so tests can drive the
// state machine over an in-memory net.Pipe instead of a real socket.
func wrapConn(raw net.Conn) *Connection {
	c := &Connection{
		raw:     raw,
		rd:      bufio.NewReader(raw),
		table:   coalesce.New(),
		writeCh: make(chan []byte, writeQueueDepth),
		closed:  make(chan struct{}),
	}

	go c.writeLoop()
	go c.readLoop()

	return c
}

// submitTyped is the generic core of every typed operation method:
// allocate an opaque, register the responder, enqueue the wire frame,
// and hand back a Future. Exactly spec.md §4.6's submit() algorithm.
// missOK is optional: pass it only for opcodes where a key-not-found
// response is a successful miss rather than a StatusError.
func submitTyped[T any](c *Connection, cmd *Command, parseOK func(cas Version, extras, key, value []byte) (T, error), quietOK func() T, missOK ...func() T) *Future[T] {
	var miss func() T
	if len(missOK) > 0 {
		miss = missOK[0]
	}
	future, waiter := newTypedFuture(parseOK, quietOK, miss)

	if err, ok := c.terminalError(); ok {
		waiter.Fail(err)
		return future
	}

	opaque := c.opaque.Add(1)
	seq := c.table.Insert(opaque, cmd.Opcode.IsQuiet(), waiter)

	frame, err := encodeCommand(cmd, opaque)
	if err != nil {
		c.table.Remove(opaque)
		waiter.Fail(err)
		return future
	}

	c.scheduleTimeout(opaque, cmd.timeout())
	c.enqueueWrite(opaque, seq, frame, waiter)

	return future
}

// submitStat is submitTyped's stat-shaped sibling: stat's responder
// accumulates a stream (spec.md §4.5) rather than resolving on the
// first body, so it cannot share typedResponder[T].
func submitStat(c *Connection, cmd *Command) *Future[map[string]string] {
	future, waiter := newStatFuture()

	if err, ok := c.terminalError(); ok {
		waiter.Fail(err)
		return future
	}

	opaque := c.opaque.Add(1)
	seq := c.table.Insert(opaque, false, waiter)

	frame, err := encodeCommand(cmd, opaque)
	if err != nil {
		c.table.Remove(opaque)
		waiter.Fail(err)
		return future
	}

	c.scheduleTimeout(opaque, cmd.timeout())
	c.enqueueWrite(opaque, seq, frame, waiter)

	return future
}

func encodeCommand(cmd *Command, opaque uint32) ([]byte, error) {
	buf := &byteBuffer{}
	if err := cmd.serialize(buf, opaque); err != nil {
		return nil, err
	}
	return buf.b, nil
}

// byteBuffer is a minimal io.Writer sink; avoids pulling in bytes.Buffer
// just to capture one serialize() call's output.
type byteBuffer struct{ b []byte }

func (w *byteBuffer) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (c *Connection) enqueueWrite(opaque uint32, _ uint64, frame []byte, waiter coalesce.Waiter) {
	select {
	case c.writeCh <- frame:
	case <-c.closed:
		c.table.Remove(opaque)
		waiter.Fail(c.currentError())
	}
}

func (c *Connection) scheduleTimeout(opaque uint32, d time.Duration) {
	time.AfterFunc(d, func() {
		w, ok := c.table.Remove(opaque)
		if !ok {
			return // already completed normally
		}
		c.table.MarkTimeout()
		w.Fail(errors.Wrap(ErrTimeout, "command timed out"))
	})
}

func (c *Connection) terminalError() (error, bool) {
	v := c.terminalErr.Load()
	if v == nil {
		return nil, false
	}
	return v.(error), true
}

func (c *Connection) currentError() error {
	if err, ok := c.terminalError(); ok {
		return err
	}
	return ErrClosed
}

// writeLoop drains the write queue one frame at a time, per spec.md
// §4.6: "only one write is outstanding on the channel at a time."
// net.Conn.Write already retries partial writes internally for a TCP
// socket, matching the teacher's bufio.Writer + explicit Flush idiom in
// conn.go's Write. Selects on c.closed rather than ranging over
// writeCh so a terminal failure raised from readLoop (the server
// closing the connection, say) wakes this goroutine immediately
// instead of leaving it blocked on a channel nothing will ever send
// on again.
func (c *Connection) writeLoop() {
	for {
		select {
		case frame := <-c.writeCh:
			if _, err := c.raw.Write(frame); err != nil {
				c.fail(errors.Wrap(ErrNetwork, "write: "+err.Error()))
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop implements spec.md §4.3's response reader and §4.4's
// quiet-opcode fence, driven continuously until a terminal failure.
func (c *Connection) readLoop() {
	for {
		header, err := readResponseHeader(c.rd)
		if err != nil {
			c.fail(classifyReadErr(err))
			return
		}

		waiter, seq, quiet, found := c.table.Lookup(header.opaque)
		if !found {
			// Discard the body regardless so the stream stays framed.
			if _, _, _, berr := readBody(c.rd, header); berr != nil {
				c.fail(classifyReadErr(berr))
				return
			}
			if c.table.SawTimeout() {
				continue // benign: late arrival for an abandoned command
			}
			c.fail(errors.Wrapf(ErrProtocol, "response for unknown opaque %d", header.opaque))
			return
		}

		if !quiet {
			c.table.DrainBefore(seq)
		}

		extras, key, value, err := readBody(c.rd, header)
		if err != nil {
			c.fail(classifyReadErr(err))
			return
		}

		done := waiter.Complete(uint16(header.status), uint64(header.cas), extras, key, value)
		if done {
			c.table.Remove(header.opaque)
		}
	}
}

func classifyReadErr(err error) error {
	if errors.Is(err, ErrProtocol) {
		return err
	}
	return errors.Wrap(ErrNetwork, err.Error())
}

// fail transitions the connection to terminal state exactly once (first
// caller wins, per spec.md §4.6), draining every in-flight and quiet
// waiter with err and closing the socket.
func (c *Connection) fail(err error) {
	c.terminalOnce.Do(func() {
		c.terminalErr.Store(err)

		waiters := c.table.DrainAll()
		for _, w := range waiters {
			w.Fail(err)
		}

		close(c.closed)
		_ = c.raw.Close()
	})
}

// Close shuts the connection down: it stops accepting new submissions,
// fails every in-flight and quiet command with ErrClosed before it
// returns, and closes the underlying socket. Commands submitted after
// Close fail immediately with ErrClosed.
func (c *Connection) Close() error {
	c.closeMu.Lock()
	if c.didClose {
		c.closeMu.Unlock()
		return nil
	}
	c.didClose = true
	c.closeMu.Unlock()

	c.fail(ErrClosed)
	return nil
}

// Err returns the terminal error if the connection has failed, or nil
// if it is still open.
func (c *Connection) Err() error {
	err, _ := c.terminalError()
	return err
}
