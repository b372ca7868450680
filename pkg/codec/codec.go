// Package codec implements the canonical deterministic byte encoding shared
// by hashing, signing, and on-disk KV values: fixed little-endian integers,
// explicit tag bytes ahead of every discriminated-union variant, and a
// u64-length prefix ahead of every variable-length sequence. Two callers
// that encode the same logical value always produce the same bytes.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a canonical byte encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteTag appends a single discriminant byte for a tagged union variant.
func (w *Writer) WriteTag(tag byte) {
	w.buf = append(w.buf, tag)
}

// WriteU8 appends a single byte.
func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteU32 appends a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64 appends a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteFixed appends b verbatim, with no length prefix. Use only for
// fields whose length is fixed by their type (hashes, public keys).
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteVarBytes appends a u64-length prefix followed by b. Use for any
// field whose length varies between instances of the same type.
func (w *Writer) WriteVarBytes(b []byte) {
	w.WriteU64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteVarSeq writes the length prefix for a sequence of n elements. The
// caller is responsible for encoding each element immediately after.
func (w *Writer) WriteVarSeq(n int) {
	w.WriteU64(uint64(n))
}

// Reader decodes a canonical byte encoding produced by Writer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps b for sequential canonical decoding.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// ErrShortBuffer is returned when a read runs past the end of the input.
var ErrShortBuffer = fmt.Errorf("codec: short buffer")

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Done reports whether every byte has been consumed.
func (r *Reader) Done() bool {
	return r.Remaining() == 0
}

// ReadTag reads a single discriminant byte.
func (r *Reader) ReadTag() (byte, error) {
	return r.ReadU8()
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

// ReadFixed reads exactly n bytes.
func (r *Reader) ReadFixed(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

// ReadVarBytes reads a u64-length prefix followed by that many bytes.
func (r *Reader) ReadVarBytes() ([]byte, error) {
	n, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	return r.ReadFixed(int(n))
}

// ReadVarSeq reads a sequence length prefix. The caller then decodes that
// many elements itself.
func (r *Reader) ReadVarSeq() (int, error) {
	n, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
