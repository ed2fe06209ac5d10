package memcached

import (
	"encoding/binary"

	"github.com/memcachedbin/memcached/internal/coalesce"
	"github.com/pkg/errors"
)

// Value is the result of a successful get/getq/getk/getkq.
type Value struct {
	Flags uint32
	Value []byte
	CAS   Version
	// Key is populated only for getk/getkq.
	Key []byte
}

// Counter is the result of a successful increment/decrement.
type Counter struct {
	Value uint64
	CAS   Version
}

// Option carries "found" or "not found" without a nil pointer, per
// spec.md §6's Option<Value> return shape for the retrieval opcodes.
type Option[T any] struct {
	Value T
	Found bool
}

func some[T any](v T) Option[T] { return Option[T]{Value: v, Found: true} }
func none[T any]() Option[T]    { return Option[T]{} }

// typedResponder adapts a Future[T] to the coalesce.Waiter interface
// for every opcode family except stat, whose multi-response streaming
// (spec.md §4.5) needs its own accumulating state below.
type typedResponder[T any] struct {
	complete func(T, error)
	parseOK  func(cas Version, extras, key, value []byte) (T, error)
	quietOK  func() T
	// missOK, when set, turns a StatusKeyNotFound response into a
	// successful completion instead of a StatusError — the get family's
	// "miss" outcome per spec.md §8 R3, as opposed to delete/increment/
	// decrement/add/replace, which fail a command on the same status.
	missOK func() T
}

func (r *typedResponder[T]) Complete(status uint16, cas uint64, extras, key, value []byte) bool {
	if Status(status) == StatusKeyNotFound && r.missOK != nil {
		r.complete(r.missOK(), nil)
		return true
	}

	if Status(status) != StatusOK {
		var zero T
		r.complete(zero, newStatusError(Status(status), value))
		return true
	}

	v, err := r.parseOK(Version(cas), extras, key, value)
	r.complete(v, err)
	return true
}

func (r *typedResponder[T]) CompleteQuietSuccess() {
	r.complete(r.quietOK(), nil)
}

func (r *typedResponder[T]) Fail(err error) {
	var zero T
	r.complete(zero, err)
}

// newTypedFuture builds a Future[T] together with the coalesce.Waiter
// that drives it, given how to parse a successful body, what value an
// implicit (fenced) quiet success resolves to, and (optionally) what a
// key-not-found response resolves to instead of failing.
func newTypedFuture[T any](parseOK func(cas Version, extras, key, value []byte) (T, error), quietOK func() T, missOK func() T) (*Future[T], coalesce.Waiter) {
	future, complete := newFuture[T]()
	r := &typedResponder[T]{complete: complete, parseOK: parseOK, quietOK: quietOK, missOK: missOK}
	return future, r
}

func unitQuietOK() struct{} { return struct{}{} }

func parseUnit(Version, []byte, []byte, []byte) (struct{}, error) { return struct{}{}, nil }

func parseVersion(cas Version, _, _, _ []byte) (Version, error) { return cas, nil }

func parseGetValue(cas Version, extras, _, value []byte) (Option[Value], error) {
	v, err := decodeValue(cas, extras, nil, value)
	if err != nil {
		return Option[Value]{}, err
	}
	return some(v), nil
}

func parseGetKValue(cas Version, extras, key, value []byte) (Option[Value], error) {
	v, err := decodeValue(cas, extras, key, value)
	if err != nil {
		return Option[Value]{}, err
	}
	return some(v), nil
}

func decodeValue(cas Version, extras, key, value []byte) (Value, error) {
	if len(extras) != 4 {
		return Value{}, errors.Wrapf(ErrProtocol, "get response extras length %d, want 4", len(extras))
	}
	return Value{
		Flags: binary.BigEndian.Uint32(extras),
		Value: value,
		CAS:   cas,
		Key:   key,
	}, nil
}

func parseCounter(cas Version, _, _, value []byte) (Counter, error) {
	if len(value) != 8 {
		return Counter{}, errors.Wrapf(ErrProtocol, "counter response body length %d, want 8", len(value))
	}
	return Counter{Value: binary.BigEndian.Uint64(value), CAS: cas}, nil
}

func parseString(_ Version, _, _, value []byte) (string, error) {
	return string(value), nil
}

// statResponder accumulates the streamed key/value pairs of spec.md
// §4.5 until the zero-length terminator arrives.
type statResponder struct {
	complete func(map[string]string, error)
	accum    map[string]string
}

func (r *statResponder) Complete(status uint16, _ uint64, _, key, value []byte) bool {
	if Status(status) != StatusOK {
		r.complete(nil, newStatusError(Status(status), value))
		return true
	}

	if len(key) == 0 && len(value) == 0 {
		accum := r.accum
		if accum == nil {
			accum = map[string]string{}
		}
		r.complete(accum, nil)
		return true
	}

	if r.accum == nil {
		r.accum = make(map[string]string)
	}
	r.accum[string(key)] = string(value)
	return false
}

func (r *statResponder) CompleteQuietSuccess() {
	// stat is never a quiet opcode.
}

func (r *statResponder) Fail(err error) {
	r.complete(nil, err)
}

func newStatFuture() (*Future[map[string]string], coalesce.Waiter) {
	future, complete := newFuture[map[string]string]()
	return future, &statResponder{complete: complete}
}
