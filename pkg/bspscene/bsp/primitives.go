package bsp

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Record sizes in bytes, as laid out in the file.
const (
	edgeSize     = 4
	surfEdgeSize = 4
	planeSize    = 20
	faceSize     = 56
	texInfoSize  = 72
	texDataSize  = 32
	modelSize    = 48
	lightSize    = 4
)

// Edge is a pair of vertex indices into the vertex lump.
type Edge [2]uint16

// Plane is the partition plane referenced by nodes and faces.
type Plane struct {
	Normal   mgl32.Vec3
	Distance float32
	AxisType int32
}

// Face references a plane, a contiguous surfedge range forming its boundary
// loop, a texinfo entry and its lightmap rectangle. It owns no geometry of
// its own; everything is reached by index.
type Face struct {
	PlaneNum           uint16
	Side               uint8
	OnNode             uint8
	FirstEdge          int32
	NumEdges           int16
	TexInfo            int16
	DispInfo           int16
	SurfaceFogVolumeID int16
	Styles             [4]uint8
	LightOfs           int32
	Area               float32
	LightmapMins       [2]int32
	LightmapSize       [2]int32
	OrigFace           int32
	NumPrims           uint16
	FirstPrimID        uint16
	SmoothingGroups    uint32
}

// TexInfo holds the two texture and two lightmap projection vectors for a
// face, plus surface flags and the texdata index.
type TexInfo struct {
	TextureVecs  [2][4]float32
	LightmapVecs [2][4]float32
	Flags        int32
	TexData      int32
}

// Surface flags relevant to rendering.
const (
	SurfSky     = 0x0004
	SurfTrigger = 0x0040
	SurfNoDraw  = 0x0080
	SurfHint    = 0x0100
	SurfSkip    = 0x0200
)

// NotRendered reports whether the surface flags mark the face as invisible
// (sky, tool or hint surfaces).
func (t *TexInfo) NotRendered() bool {
	return t.Flags&(SurfSky|SurfTrigger|SurfNoDraw|SurfHint|SurfSkip) != 0
}

// TexData names the material applied to a surface via the texdata string
// table and carries the texture dimensions used for UV normalization.
type TexData struct {
	Reflectivity      mgl32.Vec3
	NameStringTableID int32
	Width             int32
	Height            int32
	ViewWidth         int32
	ViewHeight        int32
}

// Model is a rigid group of faces; model 0 is the world.
type Model struct {
	Mins      mgl32.Vec3
	Maxs      mgl32.Vec3
	Origin    mgl32.Vec3
	HeadNode  int32
	FirstFace int32
	NumFaces  int32
}

func readEdge(r *reader) Edge {
	return Edge{r.u16(), r.u16()}
}

func readPlane(r *reader) Plane {
	return Plane{
		Normal:   r.vec3(),
		Distance: r.f32(),
		AxisType: r.i32(),
	}
}

func readFace(r *reader) Face {
	var f Face
	f.PlaneNum = r.u16()
	f.Side = r.u8()
	f.OnNode = r.u8()
	f.FirstEdge = r.i32()
	f.NumEdges = r.i16()
	f.TexInfo = r.i16()
	f.DispInfo = r.i16()
	f.SurfaceFogVolumeID = r.i16()
	for i := range f.Styles {
		f.Styles[i] = r.u8()
	}
	f.LightOfs = r.i32()
	f.Area = r.f32()
	f.LightmapMins[0] = r.i32()
	f.LightmapMins[1] = r.i32()
	f.LightmapSize[0] = r.i32()
	f.LightmapSize[1] = r.i32()
	f.OrigFace = r.i32()
	f.NumPrims = r.u16()
	f.FirstPrimID = r.u16()
	f.SmoothingGroups = r.u32()
	return f
}

func readTexInfo(r *reader) TexInfo {
	var t TexInfo
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			t.TextureVecs[i][j] = r.f32()
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			t.LightmapVecs[i][j] = r.f32()
		}
	}
	t.Flags = r.i32()
	t.TexData = r.i32()
	return t
}

func readTexData(r *reader) TexData {
	return TexData{
		Reflectivity:      r.vec3(),
		NameStringTableID: r.i32(),
		Width:             r.i32(),
		Height:            r.i32(),
		ViewWidth:         r.i32(),
		ViewHeight:        r.i32(),
	}
}

func readModel(r *reader) Model {
	return Model{
		Mins:      r.vec3(),
		Maxs:      r.vec3(),
		Origin:    r.vec3(),
		HeadNode:  r.i32(),
		FirstFace: r.i32(),
		NumFaces:  r.i32(),
	}
}

// SampleRGBA expands a 4-byte ColorRGBExp32 lightmap sample into 8-bit RGBA.
// The alpha channel is always opaque.
func SampleRGBA(sample []byte) [4]uint8 {
	exp := int8(sample[3])

	return [4]uint8{
		scaleExp(sample[0], exp),
		scaleExp(sample[1], exp),
		scaleExp(sample[2], exp),
		0xff,
	}
}

func scaleExp(c uint8, exp int8) uint8 {
	v := int64(c)
	if exp >= 0 {
		if exp > 8 {
			exp = 8
		}
		v <<= uint(exp)
	} else {
		v >>= uint(-exp)
	}

	if v > 0xff {
		return 0xff
	}

	return uint8(v)
}
