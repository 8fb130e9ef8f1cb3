package bspscene

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-scene/pkg/bspscene/vfs"
	"github.com/saiko-tech/bsp-scene/pkg/bspscene/vmt"
	"github.com/saiko-tech/bsp-scene/pkg/bspscene/vtf"
)

// ErrMaterialUnavailable marks a material that could not be resolved or
// parsed. Faces using it render with a placeholder instead of failing the
// load.
var ErrMaterialUnavailable = errors.New("material unavailable")

// Material is a resolved, render-ready material. Instances are cached per
// session and shared between batches; they must not be mutated.
type Material struct {
	Name               string
	Shader             string
	Color              [4]uint8
	Texture            *vtf.Texture
	Texture2           *vtf.Texture // blend texture of two-way blend shaders
	BumpMap            *vtf.Texture
	Translucent        bool
	AlphaTest          bool
	AlphaTestReference float32
	Placeholder        bool
}

var (
	placeholderColor = [4]uint8{255, 0, 255, 255}
	waterColor       = [4]uint8{82, 180, 217, 128}
)

// Material resolves a material by the name a face's texdata references.
// Results are cached for the session; repeated calls return the same
// instance. On failure the returned material is a flat-color placeholder
// and the error wraps ErrMaterialUnavailable.
func (s *Session) Material(name string) (*Material, error) {
	key := vfs.Normalize(name)

	s.mu.Lock()
	if e, ok := s.materials[key]; ok {
		s.mu.Unlock()
		return e.mat, e.err
	}
	s.mu.Unlock()

	v, _, _ := s.matFlight.Do(key, func() (interface{}, error) {
		mat, err := s.loadMaterial(key)
		if err != nil {
			err = errors.Wrapf(ErrMaterialUnavailable, "%s: %s", key, err)
			mat = &Material{Name: key, Color: placeholderColor, Placeholder: true}

			s.log.WithField("material", key).WithError(err).Warn("substituting placeholder material")
		}

		e := &materialEntry{mat: mat, err: err}

		s.mu.Lock()
		if s.materials != nil {
			s.materials[key] = e
		}
		s.mu.Unlock()

		return e, nil
	})

	e := v.(*materialEntry)

	return e.mat, e.err
}

func (s *Session) loadMaterial(name string) (*Material, error) {
	doc, err := s.loadDocument(name)
	if err != nil {
		return nil, err
	}

	if doc.IsPatch() {
		include := doc.Include()
		if include == "" {
			return nil, errors.New("patch material names no include")
		}

		base, err := s.loadDocument(include)
		if err != nil {
			return nil, errors.Wrapf(err, "patch include %q", include)
		}

		doc = doc.ApplyPatch(base)
	}

	def := doc.Material()

	if def.IsWater() && def.BaseTexture == "" {
		return &Material{
			Name:        name,
			Shader:      def.Shader,
			Color:       waterColor,
			Translucent: true,
		}, nil
	}

	if def.BaseTexture == "" {
		return nil, errors.New("material names no base texture")
	}

	tex, err := s.Texture(def.BaseTexture)
	if err != nil {
		return nil, errors.Wrapf(err, "base texture %q", def.BaseTexture)
	}

	mat := &Material{
		Name:               name,
		Shader:             def.Shader,
		Color:              [4]uint8{255, 255, 255, 255},
		Texture:            tex,
		Translucent:        def.Translucent,
		AlphaTest:          def.AlphaTest,
		AlphaTestReference: def.AlphaTestReference,
	}

	if def.BaseTexture2 != "" {
		tex2, err := s.Texture(def.BaseTexture2)
		if err != nil {
			// blending falls back to the base texture alone
			s.log.WithField("material", name).WithError(err).Debug("dropping unresolvable blend texture")
		} else {
			mat.Texture2 = tex2
		}
	}

	if def.BumpMap != "" {
		bump, err := s.Texture(def.BumpMap)
		if err != nil {
			// bump maps are cosmetic, a missing one is not worth a placeholder
			s.log.WithField("material", name).WithError(err).Debug("dropping unresolvable bump map")
		} else {
			mat.BumpMap = bump
		}
	}

	return mat, nil
}

func (s *Session) loadDocument(name string) (*vmt.Document, error) {
	path := materialPath(name)

	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := vmt.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	return doc, nil
}

// Texture fetches and decodes a texture by material-relative name. Results
// are cached for the session; repeated calls return the same instance.
func (s *Session) Texture(name string) (*vtf.Texture, error) {
	key := vfs.Normalize(name)

	s.mu.Lock()
	if e, ok := s.textures[key]; ok {
		s.mu.Unlock()
		return e.tex, e.err
	}
	s.mu.Unlock()

	v, _, _ := s.texFlight.Do(key, func() (interface{}, error) {
		tex, err := s.loadTexture(key)

		e := &textureEntry{tex: tex, err: err}

		s.mu.Lock()
		if s.textures != nil {
			s.textures[key] = e
		}
		s.mu.Unlock()

		return e, nil
	})

	e := v.(*textureEntry)

	return e.tex, e.err
}

func (s *Session) loadTexture(name string) (*vtf.Texture, error) {
	path := texturePath(name)

	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tex, err := vtf.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	return tex, nil
}

// materialPath maps a material name to its logical archive path.
func materialPath(name string) string {
	name = vfs.Normalize(name)
	name = strings.TrimSuffix(name, ".vmt")

	if !strings.HasPrefix(name, "materials/") {
		name = "materials/" + name
	}

	return name + ".vmt"
}

// texturePath maps a texture reference from a material to its logical
// archive path.
func texturePath(name string) string {
	name = vfs.Normalize(name)
	name = strings.TrimSuffix(name, ".vtf")

	if !strings.HasPrefix(name, "materials/") {
		name = "materials/" + name
	}

	return name + ".vtf"
}
