package bspscene

import (
	"sort"

	"github.com/saiko-tech/bsp-scene/pkg/bspscene/bsp"
)

// defaultAtlasWidth is the shelf width rectangles are packed into. It only
// grows if a single lightmap is wider.
const defaultAtlasWidth = 1024

// Rect is a rectangle inside the lightmap atlas, in luxels.
type Rect struct {
	X, Y, W, H int
}

// Atlas is the combined lightmap of a scene: one RGBA pixel buffer holding
// every face's lightmap samples.
type Atlas struct {
	Width  int
	Height int
	Pixels []byte
}

type atlasEntry struct {
	id   int
	w, h int
}

// packRects places rectangles on shelves, tallest first. The sort is stable
// over insertion order, which callers keep in face order, so the layout is
// fully determined by the input.
func packRects(entries []atlasEntry) (rects map[int]Rect, width, height int) {
	width = defaultAtlasWidth

	for _, e := range entries {
		for e.w > width {
			width *= 2
		}
	}

	sorted := make([]atlasEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].h > sorted[j].h
	})

	rects = make(map[int]Rect, len(sorted))

	var x, y, rowH int

	for _, e := range sorted {
		if x+e.w > width {
			y += rowH
			x, rowH = 0, 0
		}

		rects[e.id] = Rect{X: x, Y: y, W: e.w, H: e.h}

		x += e.w
		if e.h > rowH {
			rowH = e.h
		}
	}

	height = y + rowH

	return rects, width, height
}

func newAtlas(width, height int) *Atlas {
	return &Atlas{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*4),
	}
}

// fill paints a rect with one color.
func (a *Atlas) fill(r Rect, c [4]uint8) {
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			copy(a.Pixels[(y*a.Width+x)*4:], c[:])
		}
	}
}

// blitLightmap expands a face's ColorRGBExp32 sample rectangle into the
// atlas. sampleOfs indexes samples (not bytes) in the lighting lump.
func (a *Atlas) blitLightmap(r Rect, lighting []byte, sampleOfs int) {
	for t := 0; t < r.H; t++ {
		for s := 0; s < r.W; s++ {
			sample := lighting[(sampleOfs+t*r.W+s)*4:]
			rgba := bsp.SampleRGBA(sample)
			copy(a.Pixels[((r.Y+t)*a.Width+r.X+s)*4:], rgba[:])
		}
	}
}
