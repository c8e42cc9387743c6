// Package kbin implements the primitive encodings of the Kafka 0.9 wire
// protocol: big-endian fixed-width integers, length-prefixed strings and
// byte arrays, and int32-counted arrays. The protocol carries no type
// tags, so an encoder and its matching decoder must agree statically on
// the shape of every request and response; this package only provides the
// primitives, kmsg provides the shapes.
package kbin

import (
	"encoding/binary"
	"errors"
)

// ErrNotEnoughData is returned by every Reader getter when the backing
// slice is exhausted before a value could be fully read.
var ErrNotEnoughData = errors.New("kbin: response did not contain enough data")

// Kafka encodes length -1 for a null string or byte array. Go strings
// cannot be nil, so nullness of a string is only visible through the
// NullableString getter and setter; Bytes uses a nil slice for null.
const (
	nullStringLen = -1
	nullBytesLen  = -1
)

// Writer accumulates an encoded request body. The zero value is ready to
// use.
type Writer struct {
	buf []byte
}

// NewWriter wraps an existing destination slice (typically one drawn from
// a pool) so the caller can reuse buffers across requests.
func NewWriter(dst []byte) *Writer { return &Writer{buf: dst[:0]} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Int8(v int8)   { w.buf = append(w.buf, byte(v)) }
func (w *Writer) Bool(v bool) {
	if v {
		w.Int8(1)
	} else {
		w.Int8(0)
	}
}

func (w *Writer) Int16(v int16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Int64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// String encodes a non-null Kafka string: int16 length followed by UTF-8
// bytes.
func (w *Writer) String(v string) {
	w.Int16(int16(len(v)))
	w.buf = append(w.buf, v...)
}

// NullableString encodes -1 for a nil pointer, else the pointed-to string.
func (w *Writer) NullableString(v *string) {
	if v == nil {
		w.Int16(nullStringLen)
		return
	}
	w.String(*v)
}

// Bytes encodes a byte array: int32 length followed by raw bytes. A nil
// slice encodes as length -1 (null).
func (w *Writer) Bytes(v []byte) {
	if v == nil {
		w.Int32(nullBytesLen)
		return
	}
	w.Int32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// ArrayLen writes the int32 element count that precedes every Kafka array.
func (w *Writer) ArrayLen(n int) { w.Int32(int32(n)) }

// StringArray encodes an array of non-null strings.
func (w *Writer) StringArray(vs []string) {
	w.ArrayLen(len(vs))
	for _, v := range vs {
		w.String(v)
	}
}

// Int32Array encodes an array of int32s.
func (w *Writer) Int32Array(vs []int32) {
	w.ArrayLen(len(vs))
	for _, v := range vs {
		w.Int32(v)
	}
}

// Raw appends already-encoded bytes verbatim (used to splice an embedded
// encoding, e.g. a GroupMemberAssignment, into bytes()).
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Reader consumes a decoded response body (or any sub-region of one, such
// as an embedded assignment) sequentially. Every getter advances Src and,
// on underflow, sets and returns the sticky Err so callers can chain calls
// and check the error once at the end, the way kmsg's ReadFrom methods do.
type Reader struct {
	Src []byte
	Err error
}

// Complete returns the reader's sticky error, or ErrNotEnoughData if bytes
// remain unconsumed when the caller expected an exact-length body (callers
// that intentionally stop early should not call Complete).
func (r *Reader) Complete() error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Src) > 0 {
		return ErrNotEnoughData
	}
	return nil
}

func (r *Reader) fail() {
	if r.Err == nil {
		r.Err = ErrNotEnoughData
	}
	r.Src = nil
}

func (r *Reader) take(n int) []byte {
	if r.Err != nil || n < 0 || len(r.Src) < n {
		r.fail()
		return nil
	}
	b := r.Src[:n]
	r.Src = r.Src[n:]
	return b
}

func (r *Reader) Int8() int8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

func (r *Reader) Bool() bool { return r.Int8() != 0 }

func (r *Reader) Int16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// String reads a non-null Kafka string. A length of -1 decodes as "",
// indistinguishable from an empty string; callers that need to tell the
// two apart use NullableString.
func (r *Reader) String() string {
	n := r.Int16()
	if r.Err != nil {
		return ""
	}
	if n == nullStringLen {
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// NullableString reads a Kafka string that may be null, returning nil for
// length -1.
func (r *Reader) NullableString() *string {
	n := r.Int16()
	if r.Err != nil {
		return nil
	}
	if n == nullStringLen {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// Bytes reads a Kafka byte array, returning nil for length -1 (null).
func (r *Reader) Bytes() []byte {
	n := r.Int32()
	if r.Err != nil {
		return nil
	}
	if n == nullBytesLen {
		return nil
	}
	if n < 0 {
		r.fail()
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ArrayLen reads the int32 element count that precedes every Kafka array.
// A negative count (used by some brokers to mean "empty/absent") decodes
// as zero.
func (r *Reader) ArrayLen() int {
	n := r.Int32()
	if n < 0 {
		return 0
	}
	return int(n)
}

func (r *Reader) StringArray() []string {
	n := r.ArrayLen()
	if r.Err != nil {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.String()
	}
	return out
}

func (r *Reader) Int32Array() []int32 {
	n := r.ArrayLen()
	if r.Err != nil {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = r.Int32()
	}
	return out
}

// Span takes exactly n raw bytes, useful for slicing out a message set
// whose length was already read as a prefix.
func (r *Reader) Span(n int) []byte { return r.take(n) }

// Remaining returns everything left unconsumed.
func (r *Reader) Remaining() []byte {
	b := r.Src
	r.Src = nil
	return b
}
