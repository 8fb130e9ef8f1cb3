// Package bspscene turns compiled Valve BSP maps and the art assets they
// reference into material-batched triangle geometry a GPU renderer can draw.
//
// A Session owns the asset sources and caches for one viewing session:
// archive handles, parsed materials and decoded textures all live until the
// Session is closed. Maps are loaded once per session, there is no
// hot-reload and no cache invalidation.
package bspscene

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/saiko-tech/bsp-scene/pkg/bspscene/bsp"
	"github.com/saiko-tech/bsp-scene/pkg/bspscene/vfs"
	"github.com/saiko-tech/bsp-scene/pkg/bspscene/vtf"
)

// Session resolves and caches assets while building scenes.
type Session struct {
	log     logrus.FieldLogger
	fs      *vfs.FileSystem
	workers int

	mu        sync.Mutex
	materials map[string]*materialEntry
	textures  map[string]*textureEntry
	matFlight singleflight.Group
	texFlight singleflight.Group
}

type materialEntry struct {
	mat *Material
	err error
}

type textureEntry struct {
	tex *vtf.Texture
	err error
}

type options struct {
	log     logrus.FieldLogger
	dirs    []string
	vpks    []string
	workers int
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger. Defaults to the logrus standard
// logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithGameDirs adds game content directories used for loose-file lookups
// and VPK discovery.
func WithGameDirs(dirs ...string) Option {
	return func(o *options) { o.dirs = append(o.dirs, dirs...) }
}

// WithVPKs adds explicit VPK archive prefixes (path without "_dir.vpk").
func WithVPKs(prefixes ...string) Option {
	return func(o *options) { o.vpks = append(o.vpks, prefixes...) }
}

// WithWorkers caps the number of concurrent face workers during scene
// building. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// NewSession creates a Session over the given asset sources.
func NewSession(opts ...Option) *Session {
	o := options{
		log:     logrus.StandardLogger(),
		workers: runtime.GOMAXPROCS(0),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.workers < 1 {
		o.workers = 1
	}

	return &Session{
		log: o.log,
		fs: vfs.New(
			vfs.WithLogger(o.log),
			vfs.WithGameDirs(o.dirs...),
			vfs.WithVPKs(o.vpks...),
		),
		workers:   o.workers,
		materials: make(map[string]*materialEntry),
		textures:  make(map[string]*textureEntry),
	}
}

// Close releases archive handles and caches. The Session must not be used
// afterwards; Scenes built by it stay valid.
func (s *Session) Close() error {
	s.mu.Lock()
	s.materials = nil
	s.textures = nil
	s.mu.Unlock()

	return s.fs.Close()
}

// LoadMapFile reads a map file from disk and builds its scene.
func (s *Session) LoadMapFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read map file %q", path)
	}

	return s.LoadMap(data)
}

// LoadMap parses a map from its full file content and builds its scene.
// The map's embedded pakfile becomes the highest-priority asset source for
// this session.
func (s *Session) LoadMap(data []byte) (*Scene, error) {
	m, err := bsp.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse map")
	}

	if err := s.fs.SetPakfile(m.PakfileBytes()); err != nil {
		// a broken pakfile loses a source tier, not the map
		s.log.WithError(err).Warn("ignoring malformed map pakfile")
	}

	return s.BuildScene(m)
}
