package bsp

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// reader decodes fixed-layout little-endian records from a byte buffer.
// Errors are sticky: after the first failure all further reads return zero
// values and err() reports the original cause.
type reader struct {
	buf []byte
	off int
	e   error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) err() error { return r.e }

func (r *reader) fail(n int) {
	if r.e == nil {
		r.e = errors.Wrapf(ErrTruncatedData, "need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
	}
}

func (r *reader) bytes(n int) []byte {
	if r.e != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail(n)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) i8() int8 { return int8(r.u8()) }

func (r *reader) u16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) i16() int16 { return int16(r.u16()) }

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) vec3() mgl32.Vec3 {
	return mgl32.Vec3{r.f32(), r.f32(), r.f32()}
}

// writer is the encoding counterpart of reader, used to fabricate maps for
// tests and tooling. Appends are infallible.
type writer struct {
	buf []byte
}

func (w *writer) bytes(b []byte)  { w.buf = append(w.buf, b...) }
func (w *writer) u8(v uint8)      { w.buf = append(w.buf, v) }
func (w *writer) i8(v int8)       { w.u8(uint8(v)) }
func (w *writer) u16(v uint16)    { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) i16(v int16)     { w.u16(uint16(v)) }
func (w *writer) u32(v uint32)    { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) i32(v int32)     { w.u32(uint32(v)) }
func (w *writer) f32(v float32)   { w.u32(math.Float32bits(v)) }
func (w *writer) vec3(v mgl32.Vec3) {
	w.f32(v[0])
	w.f32(v[1])
	w.f32(v[2])
}
