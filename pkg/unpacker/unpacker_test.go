package unpacker

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/bgrewell/vromfs-kit/internal/testutil"
	"github.com/bgrewell/vromfs-kit/pkg/filter"
	"github.com/bgrewell/vromfs-kit/pkg/innerfs"
	"github.com/bgrewell/vromfs-kit/pkg/vromfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildOneFieldFatBlk assembles a minimal FAT BLK body (kind byte included)
// for a root holding a single Int field named name with value v.
func buildOneFieldFatBlk(name string, v int32) []byte {
	return testutil.OneIntFieldFatBlk(name, v)
}

// buildArchive wraps entries into a plain-packed, uncompressed VROMFS
// archive, ready for Construct.
func buildArchive(t *testing.T, entries []innerfs.Entry, meta vromfs.Metadata) []byte {
	t.Helper()
	archive, err := testutil.BuildArchive(entries, meta)
	require.NoError(t, err)
	return archive
}

func testEntries() []innerfs.Entry {
	return []innerfs.Entry{
		{Path: "gamedata/weapons/gun.blk", Data: buildOneFieldFatBlk("x", 42)},
		{Path: "gamedata/sounds/shot.wav", Data: []byte("RIFF....WAVEfmt ")},
		{Path: "version", Data: []byte("2.25.1.39")},
	}
}

func TestConstructAndUnpackAll_JSON(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})

	u, err := Construct(archive)
	require.NoError(t, err)

	entries, err := u.UnpackAll(UnpackAllOptions{Format: RenderJSON})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "gamedata/weapons/gun.blk", entries[0].Path)
	assert.Equal(t, `{"x":42}`, string(entries[0].Data))

	assert.Equal(t, "gamedata/sounds/shot.wav", entries[1].Path)
	assert.Equal(t, []byte("RIFF....WAVEfmt "), entries[1].Data)

	assert.Equal(t, "version", entries[2].Path)
	assert.Equal(t, "2.25.1.39", string(entries[2].Data))
}

func TestUnpackAll_RenderNoneCopiesBlkThrough(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	entries, err := u.UnpackAll(UnpackAllOptions{Format: RenderNone})
	require.NoError(t, err)
	assert.Equal(t, buildOneFieldFatBlk("x", 42), entries[0].Data)
}

func TestUnpackAll_PrefixFilterStrips(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	entries, err := u.UnpackAll(UnpackAllOptions{
		Format: RenderJSON,
		Filter: filter.Prefix{Path: "gamedata/weapons/", Strip: true},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gun.blk", entries[0].Path)
}

func TestUnpackAll_ParallelPreservesOrder(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	entries, err := u.UnpackAll(UnpackAllOptions{Format: RenderJSON, Parallel: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "gamedata/weapons/gun.blk", entries[0].Path)
	assert.Equal(t, "gamedata/sounds/shot.wav", entries[1].Path)
	assert.Equal(t, "version", entries[2].Path)
}

func TestUnpackOne(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	e, err := u.UnpackOne("gamedata/weapons/gun.blk", RenderJSON, false)
	require.NoError(t, err)
	assert.Equal(t, `{"x":42}`, string(e.Data))

	_, err = u.UnpackOne("missing/path.blk", RenderJSON, false)
	assert.Error(t, err)
}

func TestListFiles(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	names := u.ListFiles(filter.Prefix{Path: "gamedata/"})
	assert.Equal(t, []string{"gamedata/weapons/gun.blk", "gamedata/sounds/shot.wav"}, names)
}

func TestQueryVersions_MergesVersionFile(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	versions, err := u.QueryVersions()
	require.NoError(t, err)
	assert.Equal(t, []string{"2.25.1.39"}, versions)
}

func TestUnpackAllToZip(t *testing.T) {
	archive := buildArchive(t, testEntries(), vromfs.Metadata{Platform: vromfs.PlatformPC, Packing: vromfs.PackingPlain})
	u, err := Construct(archive)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = u.UnpackAllToZip(&buf, UnpackAllOptions{Format: RenderJSON}, ZipOptions{Deflate: true, Level: 6})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)

	f, err := zr.File[0].Open()
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, `{"x":42}`, string(content))
}
