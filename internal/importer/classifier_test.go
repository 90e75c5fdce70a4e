package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	dir := t.TempDir()

	file := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.Equal(t, PathFile, Classify(file))
	assert.Equal(t, PathDirectory, Classify(dir))
	assert.Equal(t, PathMissing, Classify(filepath.Join(dir, "nope.mp3")))
}

func TestClassifyIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "ghost.mp3")

	Classify(missing)

	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err), "classification must not create the path")
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a.mp3"))
	assert.True(t, IsSupportedFormat("b.M4B"))
	assert.True(t, IsSupportedFormat("/some/dir/c.FLAC"))
	assert.True(t, IsSupportedFormat("d.aiff"))
	assert.True(t, IsSupportedFormat("e.caf"))

	assert.False(t, IsSupportedFormat("notes.txt"))
	assert.False(t, IsSupportedFormat("clip.ogg"))
	assert.False(t, IsSupportedFormat("noext"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".mp3", Extension("Track.MP3"))
	assert.Equal(t, "", Extension("noext"))
	assert.Equal(t, ".wav", Extension("/a/b/c.wav"))
}

func TestPathKindString(t *testing.T) {
	assert.Equal(t, "file", PathFile.String())
	assert.Equal(t, "directory", PathDirectory.String())
	assert.Equal(t, "missing", PathMissing.String())
}
