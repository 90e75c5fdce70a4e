package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fermata-audio/fermata/internal/artwork"
	"github.com/fermata-audio/fermata/internal/database"
	"github.com/fermata-audio/fermata/internal/metadata"
	"github.com/fermata-audio/fermata/internal/scope"
)

type coordinatorFixture struct {
	db          *database.DB
	coordinator *Coordinator
	libraryPath string
	artworkDir  string
}

func newFixture(t *testing.T) *coordinatorFixture {
	return newFixtureSlots(t, 8)
}

func newFixtureSlots(t *testing.T, slots int) *coordinatorFixture {
	t.Helper()

	base := t.TempDir()
	db, err := database.New(filepath.Join(base, "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	libraryPath := filepath.Join(base, "media")
	require.NoError(t, os.MkdirAll(libraryPath, 0755))

	artworkDir := filepath.Join(base, "artwork")
	art, err := artwork.New(artworkDir)
	require.NoError(t, err)

	scopes := scope.NewManager(slots)
	extractor := metadata.NewExtractor(scopes)

	return &coordinatorFixture{
		db:          db,
		coordinator: NewCoordinator(db, scopes, extractor, art, libraryPath),
		libraryPath: libraryPath,
		artworkDir:  artworkDir,
	}
}

func writeAudio(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("audio bytes"), 0644))
}

func TestImportRejectsUnsupportedFile(t *testing.T) {
	fx := newFixture(t)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("text"), 0644))

	res, err := fx.coordinator.ImportPaths(context.Background(), []string{src}, Options{})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].Success)
	assert.Equal(t, string(KindUnsupportedFormat), res.Results[0].ErrorKind)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 1, res.Failed)

	_, total, err := fx.db.ListEntries(context.Background(), "", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestImportMissingPath(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.coordinator.ImportPaths(context.Background(), []string{filepath.Join(t.TempDir(), "gone.mp3")}, Options{})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	assert.Equal(t, string(KindInvalidFile), res.Results[0].ErrorKind)
}

func TestImportDirectoryBuildsFolderChain(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root := filepath.Join(t.TempDir(), "Music")
	writeAudio(t, filepath.Join(root, "Jazz", "take5.mp3"))
	writeAudio(t, filepath.Join(root, "Jazz", "solo.mp3"))

	res, err := fx.coordinator.ImportPaths(ctx, []string{root}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Failed)

	musicFolder, err := fx.db.GetFolderByKey(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, "Music", musicFolder.Name)
	assert.False(t, musicFolder.Synthetic)
	assert.Equal(t, 2, musicFolder.EntryCount, "ancestor counts include subtree entries")

	jazzFolder, err := fx.db.GetFolderByKey(ctx, filepath.Join(root, "Jazz"))
	require.NoError(t, err)
	assert.Equal(t, musicFolder.ID, jazzFolder.ParentID.String)
	assert.Equal(t, 2, jazzFolder.EntryCount)

	entries, _, err := fx.db.ListEntries(ctx, jazzFolder.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReimportReusesFolders(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root := filepath.Join(t.TempDir(), "Podcasts")
	writeAudio(t, filepath.Join(root, "ep1.mp3"))

	_, err := fx.coordinator.ImportPaths(ctx, []string{root}, Options{})
	require.NoError(t, err)
	first, err := fx.db.GetFolderByKey(ctx, root)
	require.NoError(t, err)

	_, err = fx.coordinator.ImportPaths(ctx, []string{root}, Options{})
	require.NoError(t, err)
	second, err := fx.db.GetFolderByKey(ctx, root)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.EntryCount, "re-import adds entries, never a second folder")
}

func TestImportSmartGrouping(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	src := t.TempDir()
	var paths []string
	for _, name := range []string{"My Book Chapter 1.mp3", "My Book Chapter 2.mp3", "My Book Chapter 3.mp3"} {
		p := filepath.Join(src, name)
		writeAudio(t, p)
		paths = append(paths, p)
	}

	res, err := fx.coordinator.ImportPaths(ctx, paths, Options{SmartGrouping: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	folders, err := fx.db.ListRootFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.True(t, folders[0].Synthetic)
	assert.Equal(t, "Book Chapter", folders[0].Name)
	assert.Equal(t, 3, folders[0].EntryCount)
}

func TestImportWithoutGroupingLeavesFilesUngrouped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	src := t.TempDir()
	var paths []string
	for _, name := range []string{"My Book Chapter 1.mp3", "My Book Chapter 2.mp3", "My Book Chapter 3.mp3"} {
		p := filepath.Join(src, name)
		writeAudio(t, p)
		paths = append(paths, p)
	}

	res, err := fx.coordinator.ImportPaths(ctx, paths, Options{SmartGrouping: false})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	folders, err := fx.db.ListRootFolders(ctx)
	require.NoError(t, err)
	assert.Empty(t, folders)

	ungrouped, total, err := fx.db.ListEntries(ctx, "none", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, ungrouped, 3)
}

func TestImportCopiesUnderGeneratedKey(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "original name.mp3")
	writeAudio(t, src)

	res, err := fx.coordinator.ImportPaths(ctx, []string{src}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)

	entries, _, err := fx.db.ListEntries(ctx, "", 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "original name.mp3", e.OriginalFilename)
	assert.NotEqual(t, e.OriginalFilename, e.StoragePath)
	assert.Equal(t, ".mp3", filepath.Ext(e.StoragePath))

	data, err := os.ReadFile(filepath.Join(fx.libraryPath, e.StoragePath))
	require.NoError(t, err)
	assert.Equal(t, []byte("audio bytes"), data)

	// The source file is untouched.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestImportMixedBatchIsolatesFailures(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.mp3")
	writeAudio(t, good)
	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0644))

	res, err := fx.coordinator.ImportPaths(ctx, []string{good, bad}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)

	_, total, err := fx.db.ListEntries(ctx, "", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestImportWithSingleScopeSlot(t *testing.T) {
	fx := newFixtureSlots(t, 1)
	ctx := context.Background()

	root := filepath.Join(t.TempDir(), "Music")
	writeAudio(t, filepath.Join(root, "Jazz", "take5.mp3"))

	type outcome struct {
		res *BatchResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fx.coordinator.ImportPaths(ctx, []string{root}, Options{})
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.Equal(t, 1, o.res.Imported)
	case <-time.After(10 * time.Second):
		t.Fatal("import did not return with a single scope slot")
	}
}

func TestCommitFailureRollsBackCopiedFiles(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "track.mp3")
	writeAudio(t, src)

	// Closing the store makes the persist phase fail after the bytes were
	// already copied into the library.
	require.NoError(t, fx.db.Close())

	res, err := fx.coordinator.ImportPaths(ctx, []string{src}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch commit failed")
	require.NotNil(t, res)

	mediaFiles, err := os.ReadDir(fx.libraryPath)
	require.NoError(t, err)
	assert.Empty(t, mediaFiles, "copied bytes must be rolled back")

	artFiles, err := os.ReadDir(fx.artworkDir)
	require.NoError(t, err)
	assert.Empty(t, artFiles)

	// The source file is untouched by the rollback.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestImportEmptyDirectory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	root := filepath.Join(t.TempDir(), "Empty")
	require.NoError(t, os.MkdirAll(root, 0755))

	res, err := fx.coordinator.ImportPaths(ctx, []string{root}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 0, res.Failed)

	// The directory itself still becomes a folder.
	f, err := fx.db.GetFolderByKey(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, f.EntryCount)
}
