package bspscene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/saiko-tech/bsp-scene/pkg/bspscene/bsp"
)

// UnitScale converts hammer units to meters (1 unit is ~1.905 cm).
const UnitScale float32 = 1.0 / 190.5

// MapCoords converts a map-space position to right-handed Y-up renderer
// space, in meters.
func MapCoords(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v[1] * UnitScale, v[2] * UnitScale, v[0] * UnitScale}
}

// Vertex is one batch vertex: position in map units, texture UV and the UV
// of its lightmap luxel inside the scene atlas.
type Vertex struct {
	Position   mgl32.Vec3
	UV         mgl32.Vec2
	LightmapUV mgl32.Vec2
}

// Batch is all triangles of a scene sharing one material, in one vertex and
// index buffer, so a renderer can draw them with a single call.
type Batch struct {
	Material *Material
	Vertices []Vertex
	Indices  []uint32
}

// Triangles returns the triangle count of the batch.
func (b *Batch) Triangles() int {
	return len(b.Indices) / 3
}

// Diagnostic records a face or material that was degraded or dropped
// without failing the load. Face is -1 for map-level findings.
type Diagnostic struct {
	Face     int
	Material string
	Err      error
}

// Scene is renderable map geometry: per-material draw batches and the
// combined lightmap atlas. Immutable once built.
type Scene struct {
	Batches     []*Batch
	Atlas       *Atlas
	Diagnostics []Diagnostic
}

type mapData struct {
	vertexes  []mgl32.Vec3
	edges     []bsp.Edge
	surfEdges []int32
	faces     []bsp.Face
	texInfos  []bsp.TexInfo
	texDatas  []bsp.TexData
	texNames  []string
	lighting  []byte
}

type faceResult struct {
	face    int
	skip    error // face dropped, with diagnostic
	silent  bool  // face dropped by design (tool/sky surfaces)
	matName string

	material *Material
	matErr   error

	positions []mgl32.Vec3
	uvs       []mgl32.Vec2
	luxels    []mgl32.Vec2 // lightmap coords relative to the face rect
	lmW, lmH  int          // luxel extents, 0 if the face has no lightmap
	lightOfs  int          // sample index into the lighting lump
}

// whiteID keys the shared atlas cell used by faces without lightmap data.
const whiteID = -1

// BuildScene walks every face of every model, resolves materials and
// textures, and assembles per-material draw batches plus the lightmap
// atlas.
//
// Map container failures abort the build. Per-face and per-material
// failures degrade: the face is dropped or rendered with a placeholder, and
// the returned Scene's Diagnostics name them. Output is byte-for-byte
// reproducible for the same map and asset sources regardless of worker
// count.
func (s *Session) BuildScene(m *bsp.RawMap) (*Scene, error) {
	d, err := decodeMapData(m)
	if err != nil {
		return nil, err
	}

	models, err := m.Models()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode models lump")
	}

	if len(models) == 0 {
		return nil, errors.Wrap(bsp.ErrInvalidEncoding, "map has no models")
	}

	var diags []Diagnostic

	var jobs []int

	for mi, mdl := range models {
		first, n := int(mdl.FirstFace), int(mdl.NumFaces)

		if first < 0 || n < 0 || first+n > len(d.faces) {
			diags = append(diags, Diagnostic{
				Face: -1,
				Err:  errors.Errorf("model %d: face range [%d,%d) exceeds %d faces", mi, first, first+n, len(d.faces)),
			})

			continue
		}

		for fi := first; fi < first+n; fi++ {
			jobs = append(jobs, fi)
		}
	}

	results := make([]*faceResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(s.workers)

	for ji, fi := range jobs {
		ji, fi := ji, fi

		g.Go(func() error {
			results[ji] = s.buildFace(d, fi)
			return nil
		})
	}

	_ = g.Wait()

	return s.assemble(d, results, diags), nil
}

func decodeMapData(m *bsp.RawMap) (*mapData, error) {
	var (
		d   mapData
		err error
	)

	if d.vertexes, err = m.Vertexes(); err != nil {
		return nil, errors.Wrap(err, "failed to decode vertex lump")
	}
	if d.edges, err = m.Edges(); err != nil {
		return nil, errors.Wrap(err, "failed to decode edge lump")
	}
	if d.surfEdges, err = m.SurfEdges(); err != nil {
		return nil, errors.Wrap(err, "failed to decode surfedge lump")
	}
	if d.faces, err = m.Faces(); err != nil {
		return nil, errors.Wrap(err, "failed to decode face lump")
	}
	if d.texInfos, err = m.TexInfos(); err != nil {
		return nil, errors.Wrap(err, "failed to decode texinfo lump")
	}
	if d.texDatas, err = m.TexDatas(); err != nil {
		return nil, errors.Wrap(err, "failed to decode texdata lump")
	}
	if d.texNames, err = m.TexNames(); err != nil {
		return nil, errors.Wrap(err, "failed to decode texdata names")
	}

	d.lighting = m.Lighting()

	return &d, nil
}

// buildFace computes one face's vertex loop, UVs and material. Safe to call
// concurrently for different faces; material/texture caches are shared.
func (s *Session) buildFace(d *mapData, fi int) *faceResult {
	res := &faceResult{face: fi}
	f := &d.faces[fi]

	if int(f.TexInfo) < 0 || int(f.TexInfo) >= len(d.texInfos) {
		res.skip = errors.Errorf("texinfo index %d out of range", f.TexInfo)
		return res
	}

	ti := &d.texInfos[f.TexInfo]

	if ti.NotRendered() {
		res.silent = true
		return res
	}

	if ti.TexData < 0 || int(ti.TexData) >= len(d.texDatas) {
		res.skip = errors.Errorf("texdata index %d out of range", ti.TexData)
		return res
	}

	td := &d.texDatas[ti.TexData]

	if td.NameStringTableID < 0 || int(td.NameStringTableID) >= len(d.texNames) {
		res.skip = errors.Errorf("texdata name index %d out of range", td.NameStringTableID)
		return res
	}

	res.matName = d.texNames[td.NameStringTableID]

	first, n := int(f.FirstEdge), int(f.NumEdges)

	if n < 3 {
		res.skip = errors.Errorf("face has only %d edges", n)
		return res
	}

	if first < 0 || first+n > len(d.surfEdges) {
		res.skip = errors.Errorf("surfedge range [%d,%d) exceeds %d surfedges", first, first+n, len(d.surfEdges))
		return res
	}

	positions := make([]mgl32.Vec3, 0, n)

	for i := 0; i < n; i++ {
		se := d.surfEdges[first+i]

		ei := se
		if ei < 0 {
			ei = -ei
		}

		// ei stays negative when se is the minimum int32
		if ei < 0 || int(ei) >= len(d.edges) {
			res.skip = errors.Errorf("surfedge %d references no valid edge", se)
			return res
		}

		e := d.edges[ei]

		// the sign picks the traversal direction along the edge
		vi := e[0]
		if se < 0 {
			vi = e[1]
		}

		if int(vi) >= len(d.vertexes) {
			res.skip = errors.Errorf("vertex index %d out of range", vi)
			return res
		}

		positions = append(positions, d.vertexes[vi])
	}

	if distinctPositions(positions) < 3 {
		res.skip = errors.New("degenerate face loop")
		return res
	}

	tw, th := float32(td.Width), float32(td.Height)
	if tw <= 0 {
		tw = 1
	}
	if th <= 0 {
		th = 1
	}

	uvs := make([]mgl32.Vec2, len(positions))
	for i, p := range positions {
		uvs[i] = mgl32.Vec2{
			project(p, ti.TextureVecs[0]) / tw,
			project(p, ti.TextureVecs[1]) / th,
		}
	}

	res.positions = positions
	res.uvs = uvs

	lw, lh := int(f.LightmapSize[0])+1, int(f.LightmapSize[1])+1
	sampleCount := len(d.lighting) / 4

	if f.LightOfs >= 0 && f.LightOfs%4 == 0 && lw > 0 && lh > 0 &&
		int(f.LightOfs)/4+lw*lh <= sampleCount {
		res.lmW, res.lmH = lw, lh
		res.lightOfs = int(f.LightOfs) / 4

		res.luxels = make([]mgl32.Vec2, len(positions))
		for i, p := range positions {
			res.luxels[i] = mgl32.Vec2{
				project(p, ti.LightmapVecs[0]) - float32(f.LightmapMins[0]),
				project(p, ti.LightmapVecs[1]) - float32(f.LightmapMins[1]),
			}
		}
	}

	res.material, res.matErr = s.Material(res.matName)

	return res
}

// assemble merges per-face results in map order: packs the atlas, blits
// lightmaps and appends triangles to their material batches.
func (s *Session) assemble(d *mapData, results []*faceResult, diags []Diagnostic) *Scene {
	entries := []atlasEntry{{id: whiteID, w: 1, h: 1}}

	for _, r := range results {
		if r.skip != nil || r.silent {
			continue
		}

		if r.lmW > 0 {
			entries = append(entries, atlasEntry{id: r.face, w: r.lmW, h: r.lmH})
		}
	}

	rects, aw, ah := packRects(entries)
	atlas := newAtlas(aw, ah)
	atlas.fill(rects[whiteID], [4]uint8{255, 255, 255, 255})

	batchByName := make(map[string]*Batch)

	var batches []*Batch

	matReported := make(map[string]bool)

	for _, r := range results {
		if r.silent {
			continue
		}

		if r.skip != nil {
			s.log.WithFields(logrus.Fields{"face": r.face, "reason": r.skip}).Debug("skipping face")
			diags = append(diags, Diagnostic{Face: r.face, Material: r.matName, Err: r.skip})

			continue
		}

		if r.matErr != nil && !matReported[r.material.Name] {
			matReported[r.material.Name] = true
			diags = append(diags, Diagnostic{Face: r.face, Material: r.material.Name, Err: r.matErr})
		}

		rect := rects[whiteID]
		if r.lmW > 0 {
			rect = rects[r.face]
			atlas.blitLightmap(rect, d.lighting, r.lightOfs)
		}

		b := batchByName[r.material.Name]
		if b == nil {
			b = &Batch{Material: r.material}
			batchByName[r.material.Name] = b
			batches = append(batches, b)
		}

		base := uint32(len(b.Vertices))

		for i, pos := range r.positions {
			var lu, lv float32

			if r.lmW > 0 {
				lu = (float32(rect.X) + r.luxels[i][0] + 0.5) / float32(aw)
				lv = (float32(rect.Y) + r.luxels[i][1] + 0.5) / float32(ah)
			} else {
				lu = (float32(rect.X) + 0.5) / float32(aw)
				lv = (float32(rect.Y) + 0.5) / float32(ah)
			}

			b.Vertices = append(b.Vertices, Vertex{
				Position:   pos,
				UV:         r.uvs[i],
				LightmapUV: mgl32.Vec2{lu, lv},
			})
		}

		// fan triangulation; BSP faces are planar convex polygons
		for i := 1; i+1 < len(r.positions); i++ {
			b.Indices = append(b.Indices, base, base+uint32(i), base+uint32(i)+1)
		}
	}

	return &Scene{Batches: batches, Atlas: atlas, Diagnostics: diags}
}

func project(p mgl32.Vec3, v [4]float32) float32 {
	return p[0]*v[0] + p[1]*v[1] + p[2]*v[2] + v[3]
}

func distinctPositions(positions []mgl32.Vec3) int {
	n := 0

	for i, p := range positions {
		dup := false

		for _, q := range positions[:i] {
			if p == q {
				dup = true
				break
			}
		}

		if !dup {
			n++
		}
	}

	return n
}
