// Completion: 100% - Byte writer primitives complete
package c67mach

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ByteWriter accumulates an image byte by byte. It is the sole place in
// the repository that appends raw bytes; every other component goes
// through it rather than touching a buffer directly.
type ByteWriter struct {
	buf bytes.Buffer
}

// NewByteWriter returns an empty writer.
func NewByteWriter() *ByteWriter {
	return &ByteWriter{}
}

func (w *ByteWriter) Len() int        { return w.buf.Len() }
func (w *ByteWriter) Bytes() []byte   { return w.buf.Bytes() }

// U8 appends a single byte.
func (w *ByteWriter) U8(b byte) {
	w.buf.WriteByte(b)
}

// U16 appends an unsigned 16-bit little-endian integer.
func (w *ByteWriter) U16(v uint16) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

// U32 appends an unsigned 32-bit little-endian integer.
func (w *ByteWriter) U32(v uint32) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

// U64 appends an unsigned 64-bit little-endian integer.
func (w *ByteWriter) U64(v uint64) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

// U32BE appends an unsigned 32-bit big-endian integer, used only by the
// code-signature blob (spec: "code-signature blobs... are big-endian").
func (w *ByteWriter) U32BE(v uint32) {
	binary.Write(&w.buf, binary.BigEndian, v)
}

// ULEB128 appends v as an unsigned little-endian base-128 integer: the
// continuation bit 0x80 is set on every byte but the last.
func (w *ByteWriter) ULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			w.buf.WriteByte(b | 0x80)
		} else {
			w.buf.WriteByte(b)
			break
		}
	}
}

// CString appends s followed by a single NUL terminator.
func (w *ByteWriter) CString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// Raw appends raw bytes verbatim.
func (w *ByteWriter) Raw(bs []byte) {
	w.buf.Write(bs)
}

// PadTo grows the buffer with zero bytes until it is exactly target
// bytes long. It fails if the buffer is already longer than target.
func (w *ByteWriter) PadTo(target int) error {
	cur := w.buf.Len()
	if cur > target {
		return &InvariantError{Msg: fmt.Sprintf("PadTo(%d): buffer already %d bytes", target, cur)}
	}
	for i := cur; i < target; i++ {
		w.buf.WriteByte(0)
	}
	return nil
}
