package memcached

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Command is an immutable description of one binary-protocol request.
// It carries everything Connection.submit needs to serialize the wire
// frame; the matching responder (picked by the caller in connection.go)
// knows how to parse the reply for this opcode family.
type Command struct {
	Opcode  Opcode
	Key     []byte
	Extras  []byte
	Value   []byte
	CAS     Version
	Timeout time.Duration
}

const defaultCommandTimeout = 5 * time.Second

func (c *Command) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultCommandTimeout
	}
	return c.Timeout
}

// serialize writes the full wire frame (header + extras + key + value)
// for this command under the given opaque. Grounded line-for-line on
// protocol_bin.go's binaryRequest.send.
func (c *Command) serialize(w io.Writer, opaque uint32) error {
	nKey := len(c.Key)
	nExtras := len(c.Extras)
	nValue := len(c.Value)

	if nKey > 0xFFFF {
		return errors.Wrap(ErrProtocol, "key exceeds 65535 bytes")
	}

	h := requestHeader{
		opcode:    c.Opcode,
		keyLen:    uint16(nKey),
		extrasLen: uint8(nExtras),
		bodyLen:   uint32(nExtras + nKey + nValue),
		opaque:    opaque,
		cas:       c.CAS,
	}

	buf := make([]byte, headerLen+nExtras+nKey+nValue)
	copy(buf, h.encode())

	s := headerLen
	if nExtras > 0 {
		copy(buf[s:], c.Extras)
		s += nExtras
	}
	if nKey > 0 {
		copy(buf[s:], c.Key)
		s += nKey
	}
	if nValue > 0 {
		copy(buf[s:], c.Value)
	}

	_, err := w.Write(buf)
	return errors.Wrap(err, "write command")
}

func extrasFlagsExpires(flags, expires uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], flags)
	binary.BigEndian.PutUint32(b[4:8], expires)
	return b
}

func extrasDeltaInitialExpires(delta, initial uint64, expires uint32) []byte {
	b := make([]byte, 20)
	binary.BigEndian.PutUint64(b[0:8], delta)
	binary.BigEndian.PutUint64(b[8:16], initial)
	binary.BigEndian.PutUint32(b[16:20], expires)
	return b
}

func extrasExpires(expires uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, expires)
	return b
}

// newStorageCommand builds set/add/replace (and their *q siblings).
// Extras: 4B flags || 4B expires. Takes a CAS (0 = none).
func newStorageCommand(op Opcode, key, value []byte, flags, expires uint32, cas Version, timeout time.Duration) *Command {
	return &Command{
		Opcode:  op,
		Key:     key,
		Extras:  extrasFlagsExpires(flags, expires),
		Value:   value,
		CAS:     cas,
		Timeout: timeout,
	}
}

// newAppendCommand builds append/prepend (and *q). No extras.
func newAppendCommand(op Opcode, key, value []byte, cas Version, timeout time.Duration) *Command {
	return &Command{
		Opcode:  op,
		Key:     key,
		Value:   value,
		CAS:     cas,
		Timeout: timeout,
	}
}

// newGetCommand builds get/getq/getk/getkq. No extras, no value.
func newGetCommand(op Opcode, key []byte, timeout time.Duration) *Command {
	return &Command{
		Opcode:  op,
		Key:     key,
		Timeout: timeout,
	}
}

// newDeleteCommand builds delete/deleteq.
func newDeleteCommand(op Opcode, key []byte, cas Version, timeout time.Duration) *Command {
	return &Command{
		Opcode:  op,
		Key:     key,
		CAS:     cas,
		Timeout: timeout,
	}
}

// newArithmeticCommand builds increment/decrement (and *q). Extras:
// 8B delta || 8B initial || 4B expires (expires=0xFFFFFFFF means "fail
// on miss" per spec.md §4.2).
func newArithmeticCommand(op Opcode, key []byte, delta, initial uint64, expires uint32, cas Version, timeout time.Duration) *Command {
	return &Command{
		Opcode:  op,
		Key:     key,
		Extras:  extrasDeltaInitialExpires(delta, initial, expires),
		CAS:     cas,
		Timeout: timeout,
	}
}

// newFlushCommand builds flush/flushq. Extras: 4B expires, empty means
// zero per spec.md §4.2.
func newFlushCommand(op Opcode, expires uint32, timeout time.Duration) *Command {
	cmd := &Command{
		Opcode:  op,
		Timeout: timeout,
	}
	if expires != 0 {
		cmd.Extras = extrasExpires(expires)
	}
	return cmd
}

// newNoopCommand builds noop. No extras, no key, no value.
func newNoopCommand(timeout time.Duration) *Command {
	return &Command{Opcode: OpNoop, Timeout: timeout}
}

// newVersionCommand builds version.
func newVersionCommand(timeout time.Duration) *Command {
	return &Command{Opcode: OpVersion, Timeout: timeout}
}

// newQuitCommand builds quit/quitq.
func newQuitCommand(op Opcode, timeout time.Duration) *Command {
	return &Command{Opcode: op, Timeout: timeout}
}

// newStatCommand builds stat, optionally scoped by a stat type key.
func newStatCommand(key []byte, timeout time.Duration) *Command {
	return &Command{Opcode: OpStat, Key: key, Timeout: timeout}
}
