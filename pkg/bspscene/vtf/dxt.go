package vtf

import "encoding/binary"

// DXT block decompression. Each compressed block covers a 4x4 pixel cell;
// cells overhanging the image edge are clipped on write.

func decodeDXT1(data []byte, w, h int) []byte {
	out := make([]byte, w*h*4)
	bw := blocks(w)

	for bi := 0; bi*8+8 <= len(data); bi++ {
		var cell [16][4]byte
		decodeColorBlock(data[bi*8:], &cell, true)
		writeCell(out, w, h, bi, bw, &cell)
	}

	return out
}

func decodeDXT3(data []byte, w, h int) []byte {
	out := make([]byte, w*h*4)
	bw := blocks(w)

	for bi := 0; bi*16+16 <= len(data); bi++ {
		block := data[bi*16:]

		var cell [16][4]byte
		decodeColorBlock(block[8:], &cell, false)

		// 4 bits of explicit alpha per pixel
		alpha := binary.LittleEndian.Uint64(block)
		for i := 0; i < 16; i++ {
			a := byte((alpha >> (4 * uint(i))) & 0xf)
			cell[i][3] = a<<4 | a
		}

		writeCell(out, w, h, bi, bw, &cell)
	}

	return out
}

func decodeDXT5(data []byte, w, h int) []byte {
	out := make([]byte, w*h*4)
	bw := blocks(w)

	for bi := 0; bi*16+16 <= len(data); bi++ {
		block := data[bi*16:]

		var cell [16][4]byte
		decodeColorBlock(block[8:], &cell, false)
		decodeAlphaBlock(block, &cell)
		writeCell(out, w, h, bi, bw, &cell)
	}

	return out
}

// decodeColorBlock expands one 8-byte DXT color block. oneBitAlpha enables
// the DXT1 3-color mode where index 3 is transparent black.
func decodeColorBlock(block []byte, cell *[16][4]byte, oneBitAlpha bool) {
	color0 := binary.LittleEndian.Uint16(block[0:])
	color1 := binary.LittleEndian.Uint16(block[2:])
	code := binary.LittleEndian.Uint32(block[4:])

	r0, g0, b0 := rgb565(color0)
	r1, g1, b1 := rgb565(color1)

	for i := uint(0); i < 16; i++ {
		pos := (code >> (2 * i)) & 3

		var r, g, b, a uint16
		a = 0xff

		switch pos {
		case 0:
			r, g, b = r0, g0, b0
		case 1:
			r, g, b = r1, g1, b1
		case 2:
			if color0 > color1 || !oneBitAlpha {
				r, g, b = (2*r0+r1)/3, (2*g0+g1)/3, (2*b0+b1)/3
			} else {
				r, g, b = (r0+r1)/2, (g0+g1)/2, (b0+b1)/2
			}
		case 3:
			if color0 > color1 || !oneBitAlpha {
				r, g, b = (r0+2*r1)/3, (g0+2*g1)/3, (b0+2*b1)/3
			} else {
				r, g, b, a = 0, 0, 0, 0
			}
		}

		cell[i] = [4]byte{byte(r), byte(g), byte(b), byte(a)}
	}
}

// decodeAlphaBlock expands the 8-byte interpolated alpha half of a DXT5
// block into the cell's alpha channel.
func decodeAlphaBlock(block []byte, cell *[16][4]byte) {
	alpha0 := uint32(block[0])
	alpha1 := uint32(block[1])

	// 48 bits of 3-bit codes, split low 16 / high 32
	codeLo := uint32(binary.LittleEndian.Uint16(block[2:]))
	codeHi := binary.LittleEndian.Uint32(block[4:])

	for i := uint32(0); i < 16; i++ {
		bit := 3 * i

		var code uint32
		switch {
		case bit <= 12:
			code = (codeLo >> bit) & 7
		case bit == 15:
			code = (codeLo >> 15) | ((codeHi << 1) & 6)
		default:
			code = (codeHi >> (bit - 16)) & 7
		}

		var a byte
		switch {
		case code == 0:
			a = byte(alpha0)
		case code == 1:
			a = byte(alpha1)
		case alpha0 > alpha1:
			a = byte(((8-code)*alpha0 + (code-1)*alpha1) / 7)
		case code == 6:
			a = 0
		case code == 7:
			a = 0xff
		default:
			a = byte(((6-code)*alpha0 + (code-1)*alpha1) / 5)
		}

		cell[i][3] = a
	}
}

// rgb565 expands a packed 5:6:5 color to 8-bit channels.
func rgb565(v uint16) (r, g, b uint16) {
	r = (v >> 11) & 0x1f
	g = (v >> 5) & 0x3f
	b = v & 0x1f

	r = (r << 3) | (r >> 2)
	g = (g << 2) | (g >> 4)
	b = (b << 3) | (b >> 2)

	return
}

// writeCell copies a decoded 4x4 cell into the output image, clipping
// pixels past the right and bottom edges.
func writeCell(out []byte, w, h, blockIndex, blocksWide int, cell *[16][4]byte) {
	bx := (blockIndex % blocksWide) * 4
	by := (blockIndex / blocksWide) * 4

	for i := 0; i < 16; i++ {
		x := bx + i%4
		y := by + i/4

		if x >= w || y >= h {
			continue
		}

		copy(out[(y*w+x)*4:], cell[i][:])
	}
}
