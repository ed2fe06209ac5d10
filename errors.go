package memcached

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels behind the error taxonomy of spec.md §7. Errors a command's
// Future fails with from the connection itself wrap exactly one of these,
// so callers can errors.Is/errors.Cause down to a stable value regardless
// of the message text. Dial errors and a cancelled Await context wrap the
// underlying net or context error instead.
var (
	// ErrServerStatus roots a StatusError: the server replied with a
	// non-zero status. Per-command only; never terminal.
	ErrServerStatus = errors.New("server status error")
	// ErrTimeout roots a deadline expiring before a response arrived.
	// Never terminal: the server may still reply and the reader
	// discards the late arrival.
	ErrTimeout = errors.New("command timed out")
	// ErrNetwork roots a socket read/write failure. Terminal for the
	// owning Connection.
	ErrNetwork = errors.New("network error")
	// ErrProtocol roots a framing violation: bad magic, an unknown
	// opcode, or a body-length mismatch. Terminal for the owning
	// Connection.
	ErrProtocol = errors.New("protocol error")
	// ErrClosed roots submission to a Connection whose terminal slot is
	// already set, or that has been explicitly closed.
	ErrClosed = errors.New("connection closed")

	ErrInvalidAddress = errors.New("invalid address")
)

// StatusError reports a non-zero status from the server for a single
// command. It wraps ErrServerStatus.
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("memcached: %s", e.Status)
	}
	return fmt.Sprintf("memcached: %s: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrServerStatus }

func newStatusError(status Status, body []byte) *StatusError {
	return &StatusError{Status: status, Message: string(body)}
}
