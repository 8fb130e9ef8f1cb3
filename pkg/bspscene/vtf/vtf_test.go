package vtf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeVTF builds a 7.1 container with no thumbnail. mips must be ordered
// smallest first, exactly as stored on disk.
func makeVTF(t *testing.T, format Format, w, h, mipCount int, mips ...[]byte) []byte {
	t.Helper()

	header := make([]byte, 64)
	copy(header, "VTF\x00")
	binary.LittleEndian.PutUint32(header[4:], 7)
	binary.LittleEndian.PutUint32(header[8:], 1)
	binary.LittleEndian.PutUint32(header[12:], 64)
	binary.LittleEndian.PutUint16(header[16:], uint16(w))
	binary.LittleEndian.PutUint16(header[18:], uint16(h))
	binary.LittleEndian.PutUint16(header[24:], 1) // frames
	binary.LittleEndian.PutUint32(header[52:], uint32(format))
	header[56] = byte(mipCount)
	binary.LittleEndian.PutUint32(header[57:], uint32(FormatNone))

	out := header
	for _, m := range mips {
		out = append(out, m...)
	}

	return out
}

func TestDecode_RGBA8888(t *testing.T) {
	t.Parallel()

	pixels := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 128,
	}

	tex, err := Decode(makeVTF(t, FormatRGBA8888, 2, 2, 1, pixels))
	require.NoError(t, err)

	assert.Equal(t, 2, tex.Width)
	assert.Equal(t, 2, tex.Height)
	assert.Equal(t, 1, tex.MipCount)
	assert.Equal(t, pixels, tex.Mips[0])

	img := tex.Image(0)
	assert.Equal(t, 2, img.Rect.Dx())
}

func TestDecode_BGR888(t *testing.T) {
	t.Parallel()

	// one blue pixel, one red pixel
	data := []byte{255, 0, 0, 0, 0, 255}

	tex, err := Decode(makeVTF(t, FormatBGR888, 2, 1, 1, data))
	require.NoError(t, err)

	assert.Equal(t, []byte{0, 0, 255, 255, 255, 0, 0, 255}, tex.Mips[0])
}

func TestDecode_IA88(t *testing.T) {
	t.Parallel()

	data := []byte{200, 100}

	tex, err := Decode(makeVTF(t, FormatIA88, 1, 1, 1, data))
	require.NoError(t, err)

	assert.Equal(t, []byte{200, 200, 200, 100}, tex.Mips[0])
}

func TestDecode_MipChain(t *testing.T) {
	t.Parallel()

	mip2 := make([]byte, 4)  // 1x1
	mip1 := make([]byte, 16) // 2x2
	mip0 := make([]byte, 64) // 4x4
	mip2[0] = 1
	mip1[0] = 2
	mip0[0] = 3

	tex, err := Decode(makeVTF(t, FormatRGBA8888, 4, 4, 3, mip2, mip1, mip0))
	require.NoError(t, err)

	require.Len(t, tex.Mips, 3)
	assert.Len(t, tex.Mips[0], 64)
	assert.Len(t, tex.Mips[1], 16)
	assert.Len(t, tex.Mips[2], 4)
	assert.EqualValues(t, 3, tex.Mips[0][0])
	assert.EqualValues(t, 2, tex.Mips[1][0])
	assert.EqualValues(t, 1, tex.Mips[2][0])
}

func TestDecode_DXT1(t *testing.T) {
	t.Parallel()

	// single block, all indices 0 -> solid color0 (pure red in 565)
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block[0:], 0xf800)
	binary.LittleEndian.PutUint16(block[2:], 0xf800)

	tex, err := Decode(makeVTF(t, FormatDXT1, 4, 4, 1, block))
	require.NoError(t, err)

	require.Len(t, tex.Mips[0], 4*4*4)
	for i := 0; i < 16; i++ {
		assert.Equal(t, []byte{255, 0, 0, 255}, tex.Mips[0][i*4:i*4+4])
	}
}

func TestDecode_DXT1_Clipped(t *testing.T) {
	t.Parallel()

	// 2x2 image still occupies one full block on disk
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block[0:], 0x07e0) // green
	binary.LittleEndian.PutUint16(block[2:], 0x07e0)

	tex, err := Decode(makeVTF(t, FormatDXT1, 2, 2, 1, block))
	require.NoError(t, err)

	require.Len(t, tex.Mips[0], 2*2*4)
	assert.Equal(t, []byte{0, 255, 0, 255}, tex.Mips[0][:4])
}

func TestDecode_DXT5(t *testing.T) {
	t.Parallel()

	block := make([]byte, 16)
	block[0] = 0x80 // alpha0, all alpha codes 0
	block[1] = 0x40
	binary.LittleEndian.PutUint16(block[8:], 0xf800)  // color0 red
	binary.LittleEndian.PutUint16(block[10:], 0x001f) // color1 blue

	tex, err := Decode(makeVTF(t, FormatDXT5, 4, 4, 1, block))
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		assert.Equal(t, []byte{255, 0, 0, 0x80}, tex.Mips[0][i*4:i*4+4])
	}
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	data := makeVTF(t, FormatRGBA8888, 1, 1, 1, make([]byte, 4))
	binary.LittleEndian.PutUint32(data[52:], 24) // RGBA16161616F

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecode_BadMagic(t *testing.T) {
	t.Parallel()

	data := makeVTF(t, FormatRGBA8888, 1, 1, 1, make([]byte, 4))
	data[0] = 'X'

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecode_Truncated(t *testing.T) {
	t.Parallel()

	data := makeVTF(t, FormatRGBA8888, 4, 4, 1, make([]byte, 64))

	_, err := Decode(data[:len(data)-8])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_ResourceDictionary(t *testing.T) {
	t.Parallel()

	// 7.3 layout: resource dictionary names the image data offset
	header := make([]byte, 88)
	copy(header, "VTF\x00")
	binary.LittleEndian.PutUint32(header[4:], 7)
	binary.LittleEndian.PutUint32(header[8:], 3)
	binary.LittleEndian.PutUint32(header[12:], 88)
	binary.LittleEndian.PutUint16(header[16:], 1)
	binary.LittleEndian.PutUint16(header[18:], 1)
	binary.LittleEndian.PutUint16(header[24:], 1)
	binary.LittleEndian.PutUint32(header[52:], uint32(FormatRGBA8888))
	header[56] = 1
	binary.LittleEndian.PutUint32(header[57:], uint32(FormatNone))
	binary.LittleEndian.PutUint16(header[63:], 1)  // depth
	binary.LittleEndian.PutUint32(header[68:], 1)  // one resource
	header[80] = 0x30                              // image data tag
	binary.LittleEndian.PutUint32(header[84:], 88) // image offset

	data := append(header, 10, 20, 30, 255)

	tex, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 255}, tex.Mips[0])
}

func TestMipSize(t *testing.T) {
	t.Parallel()

	n, err := MipSize(FormatDXT1, 8, 8)
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	n, err = MipSize(FormatRGB888, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 24, n)

	_, err = MipSize(Format(99), 4, 4)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMipCountFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, MipCountFor(1, 1))
	assert.Equal(t, 3, MipCountFor(4, 4))
	assert.Equal(t, 11, MipCountFor(1024, 512))
}
