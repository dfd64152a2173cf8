// Package oer implements the subset of canonical Octet Encoding Rules used by
// the BTP envelope and the ILP packets it carries.
package oer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a read runs past the end of the buffer.
var ErrTruncated = errors.New("oer: unexpected end of data")

// maxLengthPrefixBytes bounds the length-of-length octet so a hostile frame
// cannot claim a multi-gigabyte payload.
const maxLengthPrefixBytes = 4

// Writer appends OER-encoded values to an in-memory buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity hint n.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) WriteUInt8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUInt32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUInt64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// WriteOctets appends b verbatim (fixed-length octet string).
func (w *Writer) WriteOctets(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteLengthPrefix writes a short-form length for n < 128 and a long-form
// length otherwise.
func (w *Writer) WriteLengthPrefix(n int) {
	if n < 0x80 {
		w.buf = append(w.buf, byte(n))
		return
	}
	l := minimalBytes(uint64(n))
	w.buf = append(w.buf, 0x80|byte(len(l)))
	w.buf = append(w.buf, l...)
}

// WriteVarOctetString writes a length-prefixed octet string.
func (w *Writer) WriteVarOctetString(b []byte) {
	w.WriteLengthPrefix(len(b))
	w.buf = append(w.buf, b...)
}

// WriteVarUInt writes a length-prefixed big-endian unsigned integer using the
// fewest octets (at least one).
func (w *Writer) WriteVarUInt(v uint64) {
	w.WriteVarOctetString(minimalBytes(v))
}

func minimalBytes(v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	i := 0
	for i < 7 && tmp[i] == 0 {
		i++
	}
	return append([]byte(nil), tmp[i:]...)
}

// Reader consumes OER-encoded values from a buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len reports the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadUInt8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUInt32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadUInt64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadOctets reads exactly n bytes and returns a copy.
func (r *Reader) ReadOctets(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadLengthPrefix reads a short- or long-form length determinant.
func (r *Reader) ReadLengthPrefix() (int, error) {
	first, err := r.ReadUInt8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return int(first), nil
	}
	n := int(first & 0x7f)
	if n == 0 || n > maxLengthPrefixBytes {
		return 0, fmt.Errorf("oer: invalid length prefix size %d", n)
	}
	b, err := r.take(n)
	if err != nil {
		return 0, err
	}
	length := 0
	for _, c := range b {
		length = length<<8 | int(c)
	}
	if length < 0x80 {
		return 0, errors.New("oer: length prefix is not canonical")
	}
	return length, nil
}

// ReadVarOctetString reads a length-prefixed octet string and returns a copy.
func (r *Reader) ReadVarOctetString() ([]byte, error) {
	n, err := r.ReadLengthPrefix()
	if err != nil {
		return nil, err
	}
	return r.ReadOctets(n)
}

// ReadVarUInt reads a length-prefixed unsigned integer of at most 8 octets.
func (r *Reader) ReadVarUInt() (uint64, error) {
	b, err := r.ReadVarOctetString()
	if err != nil {
		return 0, err
	}
	if len(b) == 0 || len(b) > 8 {
		return 0, fmt.Errorf("oer: invalid var uint size %d", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}
