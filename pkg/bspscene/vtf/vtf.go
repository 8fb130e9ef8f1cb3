// Package vtf decodes Valve texture containers into raw RGBA mip buffers.
//
// The container holds one or more mip levels, stored smallest first,
// possibly block-compressed (DXT1/3/5). Every supported pixel format is
// expanded to 8-bit RGBA on decode.
package vtf

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedFormat is returned for pixel formats outside the
	// supported set.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// ErrTruncated is returned when the buffer ends before the declared
	// image data does.
	ErrTruncated = errors.New("truncated texture data")
	// ErrInvalid is returned for buffers that are not a texture container.
	ErrInvalid = errors.New("invalid texture container")
)

// Format is the pixel format tag from the container header.
type Format uint32

// Pixel formats, in header tag order.
const (
	FormatRGBA8888 Format = 0
	FormatABGR8888 Format = 1
	FormatRGB888   Format = 2
	FormatBGR888   Format = 3
	FormatRGB565   Format = 4
	FormatI8       Format = 5
	FormatIA88     Format = 6
	FormatP8       Format = 7
	FormatA8       Format = 8
	FormatARGB8888 Format = 11
	FormatBGRA8888 Format = 12
	FormatDXT1     Format = 13
	FormatDXT3     Format = 14
	FormatDXT5     Format = 15
	FormatBGRX8888 Format = 16

	// FormatNone marks an absent image (used for thumbnails).
	FormatNone Format = 0xffffffff
)

var formatNames = map[Format]string{
	FormatRGBA8888: "RGBA8888",
	FormatABGR8888: "ABGR8888",
	FormatRGB888:   "RGB888",
	FormatBGR888:   "BGR888",
	FormatRGB565:   "RGB565",
	FormatI8:       "I8",
	FormatIA88:     "IA88",
	FormatP8:       "P8",
	FormatA8:       "A8",
	FormatARGB8888: "ARGB8888",
	FormatBGRA8888: "BGRA8888",
	FormatDXT1:     "DXT1",
	FormatDXT3:     "DXT3",
	FormatDXT5:     "DXT5",
	FormatBGRX8888: "BGRX8888",
	FormatNone:     "NONE",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "UNKNOWN"
}

// flagEnvmap marks cubemap textures, which carry six faces per mip and are
// not supported here.
const flagEnvmap = 0x4000

// Texture is a decoded container: per-mip RGBA pixel buffers, largest mip
// first.
type Texture struct {
	Width    int
	Height   int
	Format   Format
	Flags    uint32
	MipCount int
	Mips     [][]byte
}

// Image wraps one decoded mip as an NRGBA image.
func (t *Texture) Image(mip int) *image.NRGBA {
	w, h := mipDims(t.Width, t.Height, mip)

	return &image.NRGBA{
		Pix:    t.Mips[mip],
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}
}

var vtfMagic = [4]byte{'V', 'T', 'F', 0}

const baseHeaderLen = 63

// Decode parses a texture container and expands every mip to RGBA.
func Decode(data []byte) (*Texture, error) {
	if len(data) < baseHeaderLen {
		return nil, errors.Wrapf(ErrInvalid, "%d bytes is too short for a header", len(data))
	}

	if string(data[:4]) != string(vtfMagic[:]) {
		return nil, errors.Wrapf(ErrInvalid, "bad magic %q", data[:4])
	}

	major := binary.LittleEndian.Uint32(data[4:])
	minor := binary.LittleEndian.Uint32(data[8:])

	if major != 7 || minor > 5 {
		return nil, errors.Wrapf(ErrInvalid, "unsupported container version %d.%d", major, minor)
	}

	headerSize := binary.LittleEndian.Uint32(data[12:])
	if int(headerSize) > len(data) || headerSize < baseHeaderLen {
		return nil, errors.Wrapf(ErrTruncated, "header size %d, file is %d bytes", headerSize, len(data))
	}

	t := &Texture{
		Width:    int(binary.LittleEndian.Uint16(data[16:])),
		Height:   int(binary.LittleEndian.Uint16(data[18:])),
		Flags:    binary.LittleEndian.Uint32(data[20:]),
		Format:   Format(binary.LittleEndian.Uint32(data[52:])),
		MipCount: int(data[56]),
	}

	frames := int(binary.LittleEndian.Uint16(data[24:]))
	lowResFormat := Format(binary.LittleEndian.Uint32(data[57:]))
	lowResW := int(data[61])
	lowResH := int(data[62])

	if t.Width <= 0 || t.Height <= 0 || t.MipCount <= 0 {
		return nil, errors.Wrapf(ErrInvalid, "%dx%d with %d mips", t.Width, t.Height, t.MipCount)
	}

	if t.Flags&flagEnvmap != 0 {
		return nil, errors.Wrap(ErrUnsupportedFormat, "cubemap texture")
	}

	if frames <= 0 {
		frames = 1
	}

	pixelSize, ok := mipSizer(t.Format)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s (tag %d)", t.Format, uint32(t.Format))
	}

	imageOffset := int(headerSize)

	if minor >= 3 {
		off, err := legacyImageResource(data, headerSize)
		if err != nil {
			return nil, err
		}
		imageOffset = off
	} else if lowResFormat != FormatNone {
		thumbSize, ok := mipSizer(lowResFormat)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedFormat, "thumbnail format %s", lowResFormat)
		}
		imageOffset += thumbSize(lowResW, lowResH)
	}

	// mips are stored smallest first, each holding all frames in sequence
	t.Mips = make([][]byte, t.MipCount)
	offset := imageOffset

	for mip := t.MipCount - 1; mip >= 0; mip-- {
		w, h := mipDims(t.Width, t.Height, mip)
		size := pixelSize(w, h)

		if offset+size > len(data) {
			return nil, errors.Wrapf(ErrTruncated,
				"mip %d (%dx%d) needs %d bytes at offset %d, file is %d bytes",
				mip, w, h, size, offset, len(data))
		}

		pixels, err := decodePixels(t.Format, data[offset:offset+size], w, h)
		if err != nil {
			return nil, err
		}

		t.Mips[mip] = pixels
		offset += size * frames
	}

	return t, nil
}

// legacyImageResource finds the high-res image data offset in a 7.3+
// resource dictionary.
func legacyImageResource(data []byte, headerSize uint32) (int, error) {
	const dictStart = 80

	if len(data) < dictStart || headerSize < 72 {
		return 0, errors.Wrap(ErrTruncated, "resource dictionary out of bounds")
	}

	numResources := int(binary.LittleEndian.Uint32(data[68:]))

	for i := 0; i < numResources; i++ {
		entry := dictStart + i*8
		if entry+8 > int(headerSize) || entry+8 > len(data) {
			return 0, errors.Wrap(ErrTruncated, "resource dictionary out of bounds")
		}

		// tag 0x30,0,0 is the high-res image
		if data[entry] == 0x30 && data[entry+1] == 0 && data[entry+2] == 0 {
			return int(binary.LittleEndian.Uint32(data[entry+4:])), nil
		}
	}

	return 0, errors.Wrap(ErrInvalid, "no image resource in container")
}

func mipDims(w, h, mip int) (int, int) {
	w >>= uint(mip)
	h >>= uint(mip)

	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	return w, h
}

// mipSizer returns the on-disk byte size function for a format, or false if
// the format is outside the supported set.
func mipSizer(f Format) (func(w, h int) int, bool) {
	switch f {
	case FormatDXT1:
		return func(w, h int) int { return blocks(w) * blocks(h) * 8 }, true
	case FormatDXT3, FormatDXT5:
		return func(w, h int) int { return blocks(w) * blocks(h) * 16 }, true
	case FormatRGBA8888, FormatABGR8888, FormatARGB8888, FormatBGRA8888, FormatBGRX8888:
		return func(w, h int) int { return w * h * 4 }, true
	case FormatRGB888, FormatBGR888:
		return func(w, h int) int { return w * h * 3 }, true
	case FormatRGB565, FormatIA88:
		return func(w, h int) int { return w * h * 2 }, true
	case FormatI8, FormatA8:
		return func(w, h int) int { return w * h }, true
	default:
		return nil, false
	}
}

func blocks(dim int) int {
	n := (dim + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func decodePixels(f Format, data []byte, w, h int) ([]byte, error) {
	switch f {
	case FormatDXT1:
		return decodeDXT1(data, w, h), nil
	case FormatDXT3:
		return decodeDXT3(data, w, h), nil
	case FormatDXT5:
		return decodeDXT5(data, w, h), nil
	}

	out := make([]byte, w*h*4)

	for i := 0; i < w*h; i++ {
		var r, g, b, a uint8 = 0, 0, 0, 0xff

		switch f {
		case FormatRGBA8888:
			r, g, b, a = data[i*4], data[i*4+1], data[i*4+2], data[i*4+3]
		case FormatABGR8888:
			a, b, g, r = data[i*4], data[i*4+1], data[i*4+2], data[i*4+3]
		case FormatARGB8888:
			a, r, g, b = data[i*4], data[i*4+1], data[i*4+2], data[i*4+3]
		case FormatBGRA8888:
			b, g, r, a = data[i*4], data[i*4+1], data[i*4+2], data[i*4+3]
		case FormatBGRX8888:
			b, g, r = data[i*4], data[i*4+1], data[i*4+2]
		case FormatRGB888:
			r, g, b = data[i*3], data[i*3+1], data[i*3+2]
		case FormatBGR888:
			b, g, r = data[i*3], data[i*3+1], data[i*3+2]
		case FormatRGB565:
			r16, g16, b16 := rgb565(binary.LittleEndian.Uint16(data[i*2:]))
			r, g, b = uint8(r16), uint8(g16), uint8(b16)
		case FormatI8:
			r, g, b = data[i], data[i], data[i]
		case FormatIA88:
			r, g, b, a = data[i*2], data[i*2], data[i*2], data[i*2+1]
		case FormatA8:
			r, g, b, a = 0xff, 0xff, 0xff, data[i]
		default:
			return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", f)
		}

		out[i*4] = r
		out[i*4+1] = g
		out[i*4+2] = b
		out[i*4+3] = a
	}

	return out, nil
}

// MipSize reports the encoded byte size of one mip level, for building
// containers in tests and tooling.
func MipSize(f Format, w, h int) (int, error) {
	sizer, ok := mipSizer(f)
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%s", f)
	}
	return sizer(w, h), nil
}

// MipCountFor returns the full mip chain length for the given dimensions.
func MipCountFor(w, h int) int {
	longest := w
	if h > longest {
		longest = h
	}
	return int(math.Log2(float64(longest))) + 1
}
