package vfs

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)

		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// writeVPK writes a minimal single-file VPK v2 archive with all data stored
// inline in the directory file.
func writeVPK(t *testing.T, path string, files map[string]string) {
	t.Helper()

	var tree, data bytes.Buffer

	// group entries by extension, then by directory
	byExt := map[string]map[string]map[string]string{}

	for name, content := range files {
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		dir := strings.ReplaceAll(filepath.Dir(name), "\\", "/")
		base := strings.TrimSuffix(filepath.Base(name), "."+ext)

		if byExt[ext] == nil {
			byExt[ext] = map[string]map[string]string{}
		}
		if byExt[ext][dir] == nil {
			byExt[ext][dir] = map[string]string{}
		}

		byExt[ext][dir][base] = content
	}

	writeString := func(b *bytes.Buffer, s string) {
		b.WriteString(s)
		b.WriteByte(0)
	}

	for ext, dirs := range byExt {
		writeString(&tree, ext)

		for dir, names := range dirs {
			writeString(&tree, dir)

			for base, content := range names {
				writeString(&tree, base)

				entry := make([]byte, 18)
				binary.LittleEndian.PutUint32(entry[0:], crc32.ChecksumIEEE([]byte(content)))
				binary.LittleEndian.PutUint16(entry[4:], 0)      // preload bytes
				binary.LittleEndian.PutUint16(entry[6:], 0x7fff) // data lives in the dir file
				binary.LittleEndian.PutUint32(entry[8:], uint32(data.Len()))
				binary.LittleEndian.PutUint32(entry[12:], uint32(len(content)))
				binary.LittleEndian.PutUint16(entry[16:], 0xffff)
				tree.Write(entry)

				data.WriteString(content)
			}

			tree.WriteByte(0)
		}

		tree.WriteByte(0)
	}

	tree.WriteByte(0)

	var out bytes.Buffer

	header := make([]byte, 28)
	binary.LittleEndian.PutUint32(header[0:], 0x55aa1234)
	binary.LittleEndian.PutUint32(header[4:], 2)
	binary.LittleEndian.PutUint32(header[8:], uint32(tree.Len()))
	binary.LittleEndian.PutUint32(header[12:], uint32(data.Len()))
	out.Write(header)
	out.Write(tree.Bytes())
	out.Write(data.Bytes())

	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
}

func writeLoose(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "materials/brick/wall.vmt", Normalize(`/Materials\BRICK\wall.VMT`))
}

func TestReadFile_NotFound(t *testing.T) {
	t.Parallel()

	fs := New(WithGameDirs(t.TempDir()))

	_, err := fs.ReadFile("materials/missing.vmt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadFile_RejectsTraversal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o644))

	dir := filepath.Join(root, "game")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	fs := New(WithGameDirs(dir))

	for _, name := range []string{
		"../secret.txt",
		"materials/../../secret.txt",
		`..\secret.txt`,
	} {
		_, err := fs.ReadFile(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestSetPakfile_Corrupt(t *testing.T) {
	t.Parallel()

	fs := New()

	err := fs.SetPakfile([]byte("this is not a zip"))
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestReadFile_Pakfile(t *testing.T) {
	t.Parallel()

	fs := New()
	require.NoError(t, fs.SetPakfile(makeZip(t, map[string]string{
		"Materials/Test.VMT": "from pak",
	})))

	data, err := fs.ReadFile("materials/test.vmt")
	require.NoError(t, err)
	assert.Equal(t, "from pak", string(data))
}

func TestReadFile_PakfileBeatsLoose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLoose(t, dir, "materials/test.vmt", "from disk")

	fs := New(WithGameDirs(dir))
	require.NoError(t, fs.SetPakfile(makeZip(t, map[string]string{
		"materials/test.vmt": "from pak",
	})))

	data, err := fs.ReadFile("materials/test.vmt")
	require.NoError(t, err)
	assert.Equal(t, "from pak", string(data))
}

func TestReadFile_LooseBeatsVPK(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLoose(t, dir, "materials/test.vmt", "from disk")
	writeVPK(t, filepath.Join(dir, "pak01_dir.vpk"), map[string]string{
		"materials/test.vmt": "from vpk",
	})

	fs := New(WithGameDirs(dir))

	data, err := fs.ReadFile("materials/test.vmt")
	require.NoError(t, err)
	assert.Equal(t, "from disk", string(data))
}

func TestReadFile_VPK(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeVPK(t, filepath.Join(dir, "pak01_dir.vpk"), map[string]string{
		"materials/test.vmt": "from vpk",
	})

	fs := New(WithGameDirs(dir))

	data, err := fs.ReadFile("materials/test.vmt")
	require.NoError(t, err)
	assert.Equal(t, "from vpk", string(data))

	// second lookup reuses the open archive
	data, err = fs.ReadFile("materials/test.vmt")
	require.NoError(t, err)
	assert.Equal(t, "from vpk", string(data))
}

func TestReadFile_ExplicitVPKPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeVPK(t, filepath.Join(dir, "extra_dir.vpk"), map[string]string{
		"materials/extra.vmt": "extra",
	})

	fs := New(WithVPKs(filepath.Join(dir, "extra")))

	data, err := fs.ReadFile("materials/extra.vmt")
	require.NoError(t, err)
	assert.Equal(t, "extra", string(data))
}

func TestClose(t *testing.T) {
	t.Parallel()

	fs := New()
	require.NoError(t, fs.SetPakfile(makeZip(t, map[string]string{"a.txt": "a"})))
	require.NoError(t, fs.Close())

	_, err := fs.ReadFile("a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}
