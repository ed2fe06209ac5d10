package memcached

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// https://docs.memcached.org/protocols/binary/
//
// Byte/     0       |       1       |       2       |       3       |
//    /              |               |               |               |
//   |0 1 2 3 4 5 6 7|0 1 2 3 4 5 6 7|0 1 2 3 4 5 6 7|0 1 2 3 4 5 6 7|
//   +---------------+---------------+---------------+---------------+
//  0| Magic         | Opcode        | Key length                    |
//   +---------------+---------------+---------------+---------------+
//  4| Extras length | Data type     | Reserved / Status             |
//   +---------------+---------------+---------------+---------------+
//  8| Total body length                                             |
//   +---------------+---------------+---------------+---------------+
// 12| Opaque                                                        |
//   +---------------+---------------+---------------+---------------+
// 16| CAS                                                           |
//   |                                                               |
//   +---------------+---------------+---------------+---------------+
//   Total 24 bytes

const (
	magicRequest  uint8 = 0x80
	magicResponse uint8 = 0x81

	dataTypeRawBytes uint8 = 0x00

	headerLen = 24
)

// Opcode identifies a binary-protocol command.
type Opcode uint8

const (
	OpGet        Opcode = 0x00
	OpSet        Opcode = 0x01
	OpAdd        Opcode = 0x02
	OpReplace    Opcode = 0x03
	OpDelete     Opcode = 0x04
	OpIncrement  Opcode = 0x05
	OpDecrement  Opcode = 0x06
	OpQuit       Opcode = 0x07
	OpFlush      Opcode = 0x08
	OpGetQ       Opcode = 0x09
	OpNoop       Opcode = 0x0A
	OpVersion    Opcode = 0x0B
	OpGetK       Opcode = 0x0C
	OpGetKQ      Opcode = 0x0D
	OpAppend     Opcode = 0x0E
	OpPrepend    Opcode = 0x0F
	OpStat       Opcode = 0x10
	OpSetQ       Opcode = 0x11
	OpAddQ       Opcode = 0x12
	OpReplaceQ   Opcode = 0x13
	OpDeleteQ    Opcode = 0x14
	OpIncrementQ Opcode = 0x15
	OpDecrementQ Opcode = 0x16
	OpQuitQ      Opcode = 0x17
	OpFlushQ     Opcode = 0x18
	OpAppendQ    Opcode = 0x19
	OpPrependQ   Opcode = 0x1A
)

var opcodeNames = map[Opcode]string{
	OpGet: "get", OpSet: "set", OpAdd: "add", OpReplace: "replace",
	OpDelete: "delete", OpIncrement: "increment", OpDecrement: "decrement",
	OpQuit: "quit", OpFlush: "flush", OpGetQ: "getq", OpNoop: "noop",
	OpVersion: "version", OpGetK: "getk", OpGetKQ: "getkq",
	OpAppend: "append", OpPrepend: "prepend", OpStat: "stat",
	OpSetQ: "setq", OpAddQ: "addq", OpReplaceQ: "replaceq",
	OpDeleteQ: "deleteq", OpIncrementQ: "incrementq", OpDecrementQ: "decrementq",
	OpQuitQ: "quitq", OpFlushQ: "flushq", OpAppendQ: "appendq", OpPrependQ: "prependq",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", uint8(o))
}

// IsQuiet reports whether the opcode suppresses its successful response,
// per spec.md §4.4: only the *q siblings of the write/retrieval opcodes
// do.
func (o Opcode) IsQuiet() bool {
	switch o {
	case OpGetQ, OpGetKQ, OpSetQ, OpAddQ, OpReplaceQ, OpDeleteQ,
		OpIncrementQ, OpDecrementQ, OpQuitQ, OpFlushQ, OpAppendQ, OpPrependQ:
		return true
	}
	return false
}

// Status is the server-reported outcome of a request.
type Status uint16

const (
	StatusOK              Status = 0x0000
	StatusKeyNotFound     Status = 0x0001
	StatusKeyExists       Status = 0x0002
	StatusValueTooLarge   Status = 0x0003
	StatusInvalidArgs     Status = 0x0004
	StatusItemNotStored   Status = 0x0005
	StatusNonNumeric      Status = 0x0006
	StatusUnknownCommand  Status = 0x0081
	StatusOutOfMemory     Status = 0x0082
)

var statusNames = map[Status]string{
	StatusOK:             "ok",
	StatusKeyNotFound:    "key not found",
	StatusKeyExists:      "key exists",
	StatusValueTooLarge:  "value too large",
	StatusInvalidArgs:    "invalid arguments",
	StatusItemNotStored:  "item not stored",
	StatusNonNumeric:     "non-numeric value",
	StatusUnknownCommand: "unknown command",
	StatusOutOfMemory:    "out of memory",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(0x%04x)", uint16(s))
}

// Version is the CAS (check-and-set) token. Zero means "no constraint"
// on a request and "not applicable" on a response. Versions compare by
// unsigned magnitude — spec.md §9 flags the source's truncating signed
// subtraction as unsafe; this type never does that.
type Version uint64

// NoVersion disables CAS checking on a write.
const NoVersion Version = 0

// Less reports whether v is strictly less than other, by unsigned
// comparison.
func (v Version) Less(other Version) bool { return v < other }

// Equal reports exact-bit equality.
func (v Version) Equal(other Version) bool { return v == other }

// requestHeader is the 24-byte frame written ahead of every command's
// extras/key/value. Grounded on protocol_bin.go's binaryRequest.send.
type requestHeader struct {
	opcode     Opcode
	keyLen     uint16
	extrasLen  uint8
	bodyLen    uint32
	opaque     uint32
	cas        Version
}

func (h requestHeader) encode() []byte {
	buf := make([]byte, headerLen)
	buf[0] = magicRequest
	buf[1] = uint8(h.opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.keyLen)
	buf[4] = h.extrasLen
	buf[5] = dataTypeRawBytes
	binary.BigEndian.PutUint16(buf[6:8], 0) // reserved
	binary.BigEndian.PutUint32(buf[8:12], h.bodyLen)
	binary.BigEndian.PutUint32(buf[12:16], h.opaque)
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.cas))
	return buf
}

// responseHeader is the 24-byte frame preceding every response body.
type responseHeader struct {
	opcode    Opcode
	keyLen    uint16
	extrasLen uint8
	status    Status
	bodyLen   uint32
	opaque    uint32
	cas       Version
}

// readResponseHeader reads and validates exactly one 24-byte response
// header, retrying short reads via io.ReadFull (spec.md §9: this
// subsumes the source's recursive readBody retry loop).
func readResponseHeader(r io.Reader) (responseHeader, error) {
	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return responseHeader{}, errors.Wrap(err, "read response header")
	}

	if magic := buf[0]; magic != magicResponse {
		return responseHeader{}, errors.Wrapf(ErrProtocol, "invalid magic 0x%02x", magic)
	}

	h := responseHeader{
		opcode:    Opcode(buf[1]),
		keyLen:    binary.BigEndian.Uint16(buf[2:4]),
		extrasLen: buf[4],
		status:    Status(binary.BigEndian.Uint16(buf[6:8])),
		bodyLen:   binary.BigEndian.Uint32(buf[8:12]),
		opaque:    binary.BigEndian.Uint32(buf[12:16]),
		cas:       Version(binary.BigEndian.Uint64(buf[16:24])),
	}

	if _, ok := opcodeNames[h.opcode]; !ok {
		return responseHeader{}, errors.Wrapf(ErrProtocol, "unknown opcode 0x%02x", uint8(h.opcode))
	}

	return h, nil
}

// readBody reads exactly h.bodyLen bytes and splits them into
// extras/key/value per the header's length fields.
func readBody(r io.Reader, h responseHeader) (extras, key, value []byte, err error) {
	if h.bodyLen == 0 {
		return nil, nil, nil, nil
	}

	body := make([]byte, h.bodyLen)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, nil, nil, errors.Wrap(err, "read response body")
	}

	s := uint32(0)
	if h.extrasLen > 0 {
		if uint32(h.extrasLen) > uint32(len(body)) {
			return nil, nil, nil, errors.Wrap(ErrProtocol, "extras length exceeds body length")
		}
		extras = body[:h.extrasLen]
		s += uint32(h.extrasLen)
	}
	if h.keyLen > 0 {
		if s+uint32(h.keyLen) > uint32(len(body)) {
			return nil, nil, nil, errors.Wrap(ErrProtocol, "key length exceeds body length")
		}
		key = body[s : s+uint32(h.keyLen)]
		s += uint32(h.keyLen)
	}
	if s > uint32(len(body)) {
		return nil, nil, nil, errors.Wrap(ErrProtocol, "extras+key length exceeds body length")
	}
	value = body[s:]
	if len(value) == 0 {
		value = nil
	}

	return extras, key, value, nil
}
