package bsp

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BadMagic(t *testing.T) {
	t.Parallel()

	data := NewBuilder().Bytes()
	data[0] = 'X'

	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParse_TooShort(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("VBSP"))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParse_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.SetVersion(7)

	_, err := Parse(b.Bytes())
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestParse_LumpOutOfRange(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.SetLump(LumpVertexes, AppendVertex(nil, mgl32.Vec3{1, 2, 3}))

	data := b.Bytes()
	// grow the declared vertex lump length past the end of the file
	truncated := data[:len(data)-4]

	_, err := Parse(truncated)
	assert.ErrorIs(t, err, ErrLumpOutOfRange)
}

func TestParse_EmptyMap(t *testing.T) {
	t.Parallel()

	m, err := Parse(NewBuilder().Bytes())
	require.NoError(t, err)

	assert.EqualValues(t, 20, m.Version())

	vertexes, err := m.Vertexes()
	require.NoError(t, err)
	assert.Empty(t, vertexes)
}

func TestLumpRecords_PartialRecord(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.SetLump(LumpFaces, make([]byte, faceSize+1))

	m, err := Parse(b.Bytes())
	require.NoError(t, err)

	_, err = m.Faces()
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestRoundTrip_Records(t *testing.T) {
	t.Parallel()

	t.Run("vertex", func(t *testing.T) {
		t.Parallel()

		buf := AppendVertex(nil, mgl32.Vec3{1.5, -2.25, 1024})
		require.Len(t, buf, 12)

		r := newReader(buf)
		v := r.vec3()
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendVertex(nil, v))
	})

	t.Run("edge", func(t *testing.T) {
		t.Parallel()

		buf := AppendEdge(nil, Edge{3, 65535})
		require.Len(t, buf, edgeSize)

		r := newReader(buf)
		e := readEdge(r)
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendEdge(nil, e))
	})

	t.Run("surfedge", func(t *testing.T) {
		t.Parallel()

		buf := AppendSurfEdge(nil, -7)
		require.Len(t, buf, surfEdgeSize)

		r := newReader(buf)
		se := r.i32()
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendSurfEdge(nil, se))
	})

	t.Run("plane", func(t *testing.T) {
		t.Parallel()

		buf := AppendPlane(nil, Plane{Normal: mgl32.Vec3{0, 0, 1}, Distance: 64, AxisType: 2})
		require.Len(t, buf, planeSize)

		r := newReader(buf)
		p := readPlane(r)
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendPlane(nil, p))
	})

	t.Run("face", func(t *testing.T) {
		t.Parallel()

		buf := AppendFace(nil, Face{
			PlaneNum:     2,
			FirstEdge:    4,
			NumEdges:     4,
			TexInfo:      1,
			DispInfo:     -1,
			Styles:       [4]uint8{0, 0xff, 0xff, 0xff},
			LightOfs:     32,
			Area:         4096,
			LightmapMins: [2]int32{-8, 16},
			LightmapSize: [2]int32{3, 1},
			OrigFace:     7,
		})
		require.Len(t, buf, faceSize)

		r := newReader(buf)
		f := readFace(r)
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendFace(nil, f))
	})

	t.Run("texinfo", func(t *testing.T) {
		t.Parallel()

		buf := AppendTexInfo(nil, TexInfo{
			TextureVecs:  [2][4]float32{{1, 0, 0, 8}, {0, -1, 0, 16}},
			LightmapVecs: [2][4]float32{{0.0625, 0, 0, 0}, {0, 0.0625, 0, 0}},
			Flags:        SurfNoDraw,
			TexData:      3,
		})
		require.Len(t, buf, texInfoSize)

		r := newReader(buf)
		ti := readTexInfo(r)
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendTexInfo(nil, ti))
	})

	t.Run("texdata", func(t *testing.T) {
		t.Parallel()

		buf := AppendTexData(nil, TexData{
			Reflectivity:      mgl32.Vec3{0.2, 0.3, 0.4},
			NameStringTableID: 1,
			Width:             512,
			Height:            256,
			ViewWidth:         512,
			ViewHeight:        256,
		})
		require.Len(t, buf, texDataSize)

		r := newReader(buf)
		td := readTexData(r)
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendTexData(nil, td))
	})

	t.Run("model", func(t *testing.T) {
		t.Parallel()

		buf := AppendModel(nil, Model{
			Mins:      mgl32.Vec3{-64, -64, 0},
			Maxs:      mgl32.Vec3{64, 64, 128},
			HeadNode:  0,
			FirstFace: 0,
			NumFaces:  6,
		})
		require.Len(t, buf, modelSize)

		r := newReader(buf)
		mdl := readModel(r)
		require.NoError(t, r.err())
		assert.Equal(t, buf, AppendModel(nil, mdl))
	})
}

func TestReader_Truncated(t *testing.T) {
	t.Parallel()

	r := newReader([]byte{1, 2})

	r.u32()
	assert.ErrorIs(t, r.err(), ErrTruncatedData)

	// sticky
	assert.Zero(t, r.u16())
	assert.ErrorIs(t, r.err(), ErrTruncatedData)
}

func TestTexNames(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.SetLump(LumpTexDataStringData, []byte("BRICK/BRICKWALL001\x00concrete/floor\x00"))

	var table []byte
	table = AppendSurfEdge(table, 0)
	table = AppendSurfEdge(table, 19)
	b.SetLump(LumpTexDataStringTable, table)

	m, err := Parse(b.Bytes())
	require.NoError(t, err)

	names, err := m.TexNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"brick/brickwall001", "concrete/floor"}, names)
}

func TestTexNames_BadOffset(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.SetLump(LumpTexDataStringData, []byte("abc\x00"))
	b.SetLump(LumpTexDataStringTable, AppendSurfEdge(nil, 99))

	m, err := Parse(b.Bytes())
	require.NoError(t, err)

	_, err = m.TexNames()
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestEntities(t *testing.T) {
	t.Parallel()

	b := NewBuilder()
	b.SetLump(LumpEntities, []byte("{\n\"classname\" \"worldspawn\"\n\"skyname\" \"sky_day01\"\n}\n{\n\"classname\" \"light\"\n}\n"))

	m, err := Parse(b.Bytes())
	require.NoError(t, err)

	ents := m.Entities()
	require.Len(t, ents, 2)
	assert.Equal(t, "worldspawn", ents[0]["classname"])
	assert.Equal(t, "sky_day01", ents[0]["skyname"])
	assert.Equal(t, "light", ents[1]["classname"])
}

func TestSampleRGBA(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [4]uint8{64, 128, 255, 255}, SampleRGBA([]byte{64, 128, 255, 0}))
	assert.Equal(t, [4]uint8{128, 255, 255, 255}, SampleRGBA([]byte{64, 128, 255, 1}))
	assert.Equal(t, [4]uint8{32, 64, 127, 255}, SampleRGBA([]byte{64, 128, 255, byte(0xff)}))
}
