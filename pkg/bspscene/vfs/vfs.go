// Package vfs resolves logical asset paths across the tiered sources a
// Source game ships with: the zip pakfile embedded in a map, loose files
// under the game content directories, and VPK archives found there.
//
// Lookup order is pakfile, then loose files, then VPKs. Archives are opened
// lazily on first lookup and stay open for the life of the FileSystem.
package vfs

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	vpk "github.com/galaco/vpk2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned after every source tier has been exhausted.
	ErrNotFound = errors.New("file not found")
	// ErrCorruptArchive is returned when an archive that does exist fails
	// to parse.
	ErrCorruptArchive = errors.New("corrupt archive")
)

// FileSystem is a tiered, caching asset resolver. Safe for concurrent use.
type FileSystem struct {
	log  logrus.FieldLogger
	dirs []string

	mu       sync.Mutex
	pak      *zip.Reader
	pakIndex map[string]*zip.File
	archives []*archive
	scanned  bool
}

type archive struct {
	prefix string
	once   sync.Once
	vpk    *vpk.VPK
	err    error
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger used for per-tier lookup tracing.
func WithLogger(log logrus.FieldLogger) Option {
	return func(fs *FileSystem) { fs.log = log }
}

// WithGameDirs adds content directories searched for loose files and
// scanned for "*_dir.vpk" archives.
func WithGameDirs(dirs ...string) Option {
	return func(fs *FileSystem) { fs.dirs = append(fs.dirs, dirs...) }
}

// WithVPKs adds explicit VPK archive prefixes (the path without the
// "_dir.vpk" suffix), ahead of any archives discovered under game dirs.
func WithVPKs(prefixes ...string) Option {
	return func(fs *FileSystem) {
		for _, p := range prefixes {
			fs.archives = append(fs.archives, &archive{prefix: p})
		}
	}
}

// New returns a FileSystem with the given options.
func New(opts ...Option) *FileSystem {
	fs := &FileSystem{log: logrus.StandardLogger()}

	for _, opt := range opts {
		opt(fs)
	}

	return fs
}

// Normalize lowercases a logical path and normalizes its separators.
func Normalize(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(name, "/")
}

func escapesRoot(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// SetPakfile installs the map-embedded pakfile as the highest-priority
// tier. An empty buffer clears it.
func (fs *FileSystem) SetPakfile(data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.pak = nil
	fs.pakIndex = nil

	if len(data) == 0 {
		return nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(ErrCorruptArchive, err.Error())
	}

	fs.pak = zr

	return nil
}

// ReadFile resolves a logical path through the source tiers and returns its
// content. It fails with ErrNotFound only once every tier has been tried.
// An archive that exists but whose directory fails to parse fails the
// lookup with ErrCorruptArchive instead. Paths with ".." segments never
// resolve; the loose-file tier must not read outside the content dirs.
func (fs *FileSystem) ReadFile(name string) ([]byte, error) {
	name = Normalize(name)

	if escapesRoot(name) {
		return nil, errors.Wrapf(ErrNotFound, "%s escapes the content root", name)
	}

	if data, ok := fs.readPakfile(name); ok {
		fs.log.WithField("path", name).Debug("asset found in map pakfile")
		return data, nil
	}

	for _, dir := range fs.dirs {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err == nil {
			fs.log.WithFields(logrus.Fields{"path": name, "dir": dir}).Debug("asset found on disk")
			return data, nil
		}
	}

	for _, a := range fs.vpkArchives() {
		data, err := a.read(name)

		switch {
		case err == nil:
			fs.log.WithFields(logrus.Fields{"path": name, "vpk": a.prefix}).Debug("asset found in vpk")
			return data, nil
		case errors.Is(err, ErrCorruptArchive):
			return nil, err
		}
	}

	return nil, errors.Wrapf(ErrNotFound, "%s not found in any source", name)
}

// Close releases cached archive handles. The FileSystem must not be used
// afterwards.
func (fs *FileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.pak = nil
	fs.pakIndex = nil
	fs.archives = nil
	fs.scanned = true

	return nil
}

func (fs *FileSystem) readPakfile(name string) ([]byte, bool) {
	fs.mu.Lock()

	if fs.pak == nil {
		fs.mu.Unlock()
		return nil, false
	}

	if fs.pakIndex == nil {
		fs.pakIndex = make(map[string]*zip.File, len(fs.pak.File))

		for _, f := range fs.pak.File {
			fs.pakIndex[Normalize(f.Name)] = f
		}
	}

	f, ok := fs.pakIndex[name]
	fs.mu.Unlock()

	if !ok {
		return nil, false
	}

	rc, err := f.Open()
	if err != nil {
		return nil, false
	}

	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false
	}

	return data, true
}

// vpkArchives returns the archive list, scanning the game dirs for
// "*_dir.vpk" files on first call.
func (fs *FileSystem) vpkArchives() []*archive {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.scanned {
		return fs.archives
	}

	for _, dir := range fs.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*_dir.vpk"))
		if err != nil {
			continue
		}

		for _, m := range matches {
			fs.archives = append(fs.archives, &archive{
				prefix: strings.TrimSuffix(m, "_dir.vpk"),
			})
		}
	}

	fs.scanned = true

	return fs.archives
}

func (a *archive) open() {
	if _, err := os.Stat(a.prefix + "_dir.vpk"); err != nil {
		a.err = errors.Wrapf(ErrNotFound, "vpk %s_dir.vpk missing", a.prefix)
		return
	}

	pak, err := vpk.Open(vpk.MultiVPK(a.prefix))
	if err != nil {
		a.err = errors.Wrapf(ErrCorruptArchive, "vpk %s: %s", a.prefix, err)
		return
	}

	a.vpk = pak
}

func (a *archive) read(name string) ([]byte, error) {
	a.once.Do(a.open)

	if a.err != nil {
		return nil, a.err
	}

	f, err := a.vpk.Open(name)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "%s not in vpk %s", name, a.prefix)
	}

	defer f.Close()

	return io.ReadAll(f)
}
