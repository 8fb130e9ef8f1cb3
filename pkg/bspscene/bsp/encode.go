package bsp

import "github.com/go-gl/mathgl/mgl32"

// Record encoders, the byte-exact counterparts of the lump readers. They
// exist so tests and tooling can fabricate maps without binary fixtures.

// AppendVertex appends a vertex record to buf.
func AppendVertex(buf []byte, v mgl32.Vec3) []byte {
	w := writer{buf: buf}
	w.vec3(v)
	return w.buf
}

// AppendEdge appends an edge record to buf.
func AppendEdge(buf []byte, e Edge) []byte {
	w := writer{buf: buf}
	w.u16(e[0])
	w.u16(e[1])
	return w.buf
}

// AppendSurfEdge appends a surfedge record to buf.
func AppendSurfEdge(buf []byte, se int32) []byte {
	w := writer{buf: buf}
	w.i32(se)
	return w.buf
}

// AppendPlane appends a plane record to buf.
func AppendPlane(buf []byte, p Plane) []byte {
	w := writer{buf: buf}
	w.vec3(p.Normal)
	w.f32(p.Distance)
	w.i32(p.AxisType)
	return w.buf
}

// AppendFace appends a face record to buf.
func AppendFace(buf []byte, f Face) []byte {
	w := writer{buf: buf}
	w.u16(f.PlaneNum)
	w.u8(f.Side)
	w.u8(f.OnNode)
	w.i32(f.FirstEdge)
	w.i16(f.NumEdges)
	w.i16(f.TexInfo)
	w.i16(f.DispInfo)
	w.i16(f.SurfaceFogVolumeID)
	w.bytes(f.Styles[:])
	w.i32(f.LightOfs)
	w.f32(f.Area)
	w.i32(f.LightmapMins[0])
	w.i32(f.LightmapMins[1])
	w.i32(f.LightmapSize[0])
	w.i32(f.LightmapSize[1])
	w.i32(f.OrigFace)
	w.u16(f.NumPrims)
	w.u16(f.FirstPrimID)
	w.u32(f.SmoothingGroups)
	return w.buf
}

// AppendTexInfo appends a texinfo record to buf.
func AppendTexInfo(buf []byte, t TexInfo) []byte {
	w := writer{buf: buf}
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			w.f32(t.TextureVecs[i][j])
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			w.f32(t.LightmapVecs[i][j])
		}
	}
	w.i32(t.Flags)
	w.i32(t.TexData)
	return w.buf
}

// AppendTexData appends a texdata record to buf.
func AppendTexData(buf []byte, t TexData) []byte {
	w := writer{buf: buf}
	w.vec3(t.Reflectivity)
	w.i32(t.NameStringTableID)
	w.i32(t.Width)
	w.i32(t.Height)
	w.i32(t.ViewWidth)
	w.i32(t.ViewHeight)
	return w.buf
}

// AppendModel appends a model record to buf.
func AppendModel(buf []byte, m Model) []byte {
	w := writer{buf: buf}
	w.vec3(m.Mins)
	w.vec3(m.Maxs)
	w.vec3(m.Origin)
	w.i32(m.HeadNode)
	w.i32(m.FirstFace)
	w.i32(m.NumFaces)
	return w.buf
}

// Builder assembles a map file from lump contents, laying out the header
// and lump directory. Unset lumps are written with zero length.
type Builder struct {
	version int32
	lumps   [numLumps][]byte
}

// NewBuilder returns a Builder for a version 20 map.
func NewBuilder() *Builder {
	return &Builder{version: 20}
}

// SetVersion overrides the header version.
func (b *Builder) SetVersion(v int32) { b.version = v }

// SetLump sets the content of one lump.
func (b *Builder) SetLump(i int, data []byte) { b.lumps[i] = data }

// Bytes lays out the final map file.
func (b *Builder) Bytes() []byte {
	w := writer{buf: make([]byte, 0, headerSize)}
	w.bytes(magic[:])
	w.i32(b.version)

	offset := headerSize
	for _, l := range b.lumps {
		if len(l) == 0 {
			w.i32(0)
		} else {
			w.i32(int32(offset))
		}
		w.i32(int32(len(l)))
		w.i32(0) // lump version
		w.i32(0) // fourCC
		offset += len(l)
	}

	w.i32(1) // map revision

	for _, l := range b.lumps {
		w.bytes(l)
	}

	return w.buf
}
