// Package bsp decodes the Valve BSP map container into typed lump views.
//
// Parse validates only the header and the lump directory; the individual
// lumps are re-interpreted as record arrays on first access through the
// RawMap accessors. Cross-lump indices (edge -> vertex, face -> surfedge)
// are not validated here, that happens at the point of use.
package bsp

import (
	"bytes"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Decode failures. Everything the parser reports wraps one of these.
var (
	ErrInvalidHeader   = errors.New("invalid bsp header")
	ErrLumpOutOfRange  = errors.New("lump exceeds file bounds")
	ErrTruncatedData   = errors.New("truncated data")
	ErrInvalidEncoding = errors.New("invalid encoding")
)

var magic = [4]byte{'V', 'B', 'S', 'P'}

const (
	minVersion = 19
	maxVersion = 21

	numLumps   = 64
	lumpDirEnt = 16
	headerSize = 4 + 4 + numLumps*lumpDirEnt + 4
)

// Lump indices used by this package.
const (
	LumpEntities           = 0
	LumpPlanes             = 1
	LumpTexData            = 2
	LumpVertexes           = 3
	LumpTexInfo            = 6
	LumpFaces              = 7
	LumpLighting           = 8
	LumpEdges              = 12
	LumpSurfEdges          = 13
	LumpModels             = 14
	LumpPakfile            = 40
	LumpTexDataStringData  = 43
	LumpTexDataStringTable = 44
)

var lumpNames = map[int]string{
	LumpEntities:           "entities",
	LumpPlanes:             "planes",
	LumpTexData:            "texdata",
	LumpVertexes:           "vertexes",
	LumpTexInfo:            "texinfo",
	LumpFaces:              "faces",
	LumpLighting:           "lighting",
	LumpEdges:              "edges",
	LumpSurfEdges:          "surfedges",
	LumpModels:             "models",
	LumpPakfile:            "pakfile",
	LumpTexDataStringData:  "texdata string data",
	LumpTexDataStringTable: "texdata string table",
}

func lumpName(i int) string {
	if n, ok := lumpNames[i]; ok {
		return n
	}
	return "unknown"
}

type lumpEntry struct {
	Offset  int32
	Length  int32
	Version int32
	FourCC  int32
}

// RawMap is a parsed map file. It keeps the full file buffer and hands out
// typed views into it; views are decoded once on first access and memoized.
// First access to any accessor is not safe for concurrent use.
type RawMap struct {
	data     []byte
	version  int32
	revision int32
	lumps    [numLumps]lumpEntry

	vertexes  []mgl32.Vec3
	edges     []Edge
	surfEdges []int32
	planes    []Plane
	faces     []Face
	texInfos  []TexInfo
	texDatas  []TexData
	models    []Model
	texNames  []string
	entities  []Entity
}

// Parse decodes the header and lump directory of a full map file buffer.
// The buffer must stay valid for the lifetime of the RawMap; lump views
// alias it.
func Parse(data []byte) (*RawMap, error) {
	if len(data) < headerSize {
		return nil, errors.Wrapf(ErrInvalidHeader, "file is %d bytes, header needs %d", len(data), headerSize)
	}

	if !bytes.Equal(data[:4], magic[:]) {
		return nil, errors.Wrapf(ErrInvalidHeader, "bad magic %q", data[:4])
	}

	r := newReader(data[4:headerSize])

	m := &RawMap{data: data}
	m.version = r.i32()

	if m.version < minVersion || m.version > maxVersion {
		return nil, errors.Wrapf(ErrInvalidHeader, "unsupported version %d", m.version)
	}

	for i := range m.lumps {
		m.lumps[i] = lumpEntry{
			Offset:  r.i32(),
			Length:  r.i32(),
			Version: r.i32(),
			FourCC:  r.i32(),
		}
	}

	m.revision = r.i32()

	if err := r.err(); err != nil {
		return nil, err
	}

	for i, l := range m.lumps {
		if l.Offset < 0 || l.Length < 0 || int(l.Offset)+int(l.Length) > len(data) {
			return nil, errors.Wrapf(ErrLumpOutOfRange,
				"lump %d (%s): offset %d length %d, file is %d bytes",
				i, lumpName(i), l.Offset, l.Length, len(data))
		}
	}

	return m, nil
}

// Version returns the format version from the header.
func (m *RawMap) Version() int32 { return m.version }

// Revision returns the map revision counter from the header.
func (m *RawMap) Revision() int32 { return m.revision }

func (m *RawMap) lumpBytes(i int) []byte {
	l := m.lumps[i]
	return m.data[l.Offset : l.Offset+l.Length]
}

func lumpRecords[T any](m *RawMap, lump, size int, read func(*reader) T) ([]T, error) {
	b := m.lumpBytes(lump)
	if len(b)%size != 0 {
		return nil, errors.Wrapf(ErrInvalidEncoding,
			"lump %d (%s): %d bytes is not a whole number of %d-byte records",
			lump, lumpName(lump), len(b), size)
	}

	r := newReader(b)
	out := make([]T, len(b)/size)

	for i := range out {
		out[i] = read(r)
	}

	return out, r.err()
}

// Vertexes returns the vertex position lump.
func (m *RawMap) Vertexes() ([]mgl32.Vec3, error) {
	if m.vertexes == nil {
		v, err := lumpRecords(m, LumpVertexes, 12, (*reader).vec3)
		if err != nil {
			return nil, err
		}
		m.vertexes = v
	}
	return m.vertexes, nil
}

// Edges returns the edge lump.
func (m *RawMap) Edges() ([]Edge, error) {
	if m.edges == nil {
		v, err := lumpRecords(m, LumpEdges, edgeSize, readEdge)
		if err != nil {
			return nil, err
		}
		m.edges = v
	}
	return m.edges, nil
}

// SurfEdges returns the signed surfedge lump. A positive value walks the
// referenced edge start to end, a negative value walks it end to start.
func (m *RawMap) SurfEdges() ([]int32, error) {
	if m.surfEdges == nil {
		v, err := lumpRecords(m, LumpSurfEdges, surfEdgeSize, (*reader).i32)
		if err != nil {
			return nil, err
		}
		m.surfEdges = v
	}
	return m.surfEdges, nil
}

// Planes returns the plane lump.
func (m *RawMap) Planes() ([]Plane, error) {
	if m.planes == nil {
		v, err := lumpRecords(m, LumpPlanes, planeSize, readPlane)
		if err != nil {
			return nil, err
		}
		m.planes = v
	}
	return m.planes, nil
}

// Faces returns the face lump.
func (m *RawMap) Faces() ([]Face, error) {
	if m.faces == nil {
		v, err := lumpRecords(m, LumpFaces, faceSize, readFace)
		if err != nil {
			return nil, err
		}
		m.faces = v
	}
	return m.faces, nil
}

// TexInfos returns the texinfo lump.
func (m *RawMap) TexInfos() ([]TexInfo, error) {
	if m.texInfos == nil {
		v, err := lumpRecords(m, LumpTexInfo, texInfoSize, readTexInfo)
		if err != nil {
			return nil, err
		}
		m.texInfos = v
	}
	return m.texInfos, nil
}

// TexDatas returns the texdata lump.
func (m *RawMap) TexDatas() ([]TexData, error) {
	if m.texDatas == nil {
		v, err := lumpRecords(m, LumpTexData, texDataSize, readTexData)
		if err != nil {
			return nil, err
		}
		m.texDatas = v
	}
	return m.texDatas, nil
}

// Models returns the model lump. Model 0 is the world.
func (m *RawMap) Models() ([]Model, error) {
	if m.models == nil {
		v, err := lumpRecords(m, LumpModels, modelSize, readModel)
		if err != nil {
			return nil, err
		}
		m.models = v
	}
	return m.models, nil
}

// TexNames returns the material names referenced by texdata entries,
// resolved through the string table.
func (m *RawMap) TexNames() ([]string, error) {
	if m.texNames != nil {
		return m.texNames, nil
	}

	table, err := lumpRecords(m, LumpTexDataStringTable, 4, (*reader).i32)
	if err != nil {
		return nil, err
	}

	strdata := m.lumpBytes(LumpTexDataStringData)
	names := make([]string, len(table))

	for i, off := range table {
		if off < 0 || int(off) >= len(strdata) {
			return nil, errors.Wrapf(ErrInvalidEncoding,
				"texdata string table entry %d: offset %d out of %d string bytes", i, off, len(strdata))
		}

		end := bytes.IndexByte(strdata[off:], 0)
		if end < 0 {
			return nil, errors.Wrapf(ErrInvalidEncoding,
				"texdata string table entry %d: unterminated string", i)
		}

		names[i] = strings.ToLower(string(strdata[off : int(off)+end]))
	}

	m.texNames = names

	return names, nil
}

// Lighting returns the raw lightmap sample lump. Samples are 4-byte
// ColorRGBExp32 records; use SampleRGBA to expand one. The slice aliases the
// map buffer, it is returned uncopied because the lump is large.
func (m *RawMap) Lighting() []byte {
	return m.lumpBytes(LumpLighting)
}

// PakfileBytes returns the embedded pakfile lump, a zip archive of assets
// packed into the map. Empty if the map carries none.
func (m *RawMap) PakfileBytes() []byte {
	return m.lumpBytes(LumpPakfile)
}
