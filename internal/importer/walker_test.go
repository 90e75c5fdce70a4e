package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fermata-audio/fermata/internal/scope"
)

// walkWithTimeout guards against the walk blocking on scope slots.
func walkWithTimeout(t *testing.T, w *Walker, root string) (*FolderTree, error) {
	t.Helper()

	type result struct {
		tree *FolderTree
		err  error
	}
	done := make(chan result, 1)
	go func() {
		tree, err := w.Walk(root)
		done <- result{tree, err}
	}()

	select {
	case r := <-done:
		return r.tree, r.err
	case <-time.After(10 * time.Second):
		t.Fatal("walk did not return")
		return nil, nil
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
}

func TestWalkNestedTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Music")
	writeFile(t, filepath.Join(root, "intro.mp3"))
	writeFile(t, filepath.Join(root, "Jazz", "take5.mp3"))
	writeFile(t, filepath.Join(root, "Jazz", "Live", "solo.flac"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	w := NewWalker(scope.NewManager(8))
	tree, err := w.Walk(root)
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 3)

	// Parents precede children.
	assert.Equal(t, "Music", tree.Nodes[0].Name)
	assert.Equal(t, -1, tree.Nodes[0].Parent)
	assert.Equal(t, "Jazz", tree.Nodes[1].Name)
	assert.Equal(t, 0, tree.Nodes[1].Parent)
	assert.Equal(t, "Live", tree.Nodes[2].Name)
	assert.Equal(t, 1, tree.Nodes[2].Parent)

	// Non-audio files are ignored.
	assert.Len(t, tree.Nodes[0].Files, 1)
	assert.Len(t, tree.Nodes[1].Files, 1)
	assert.Len(t, tree.Nodes[2].Files, 1)
}

func TestWalkSkipsHiddenEntries(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Library")
	writeFile(t, filepath.Join(root, "track.mp3"))
	writeFile(t, filepath.Join(root, ".hidden.mp3"))
	writeFile(t, filepath.Join(root, ".cache", "stale.mp3"))

	w := NewWalker(scope.NewManager(8))
	tree, err := w.Walk(root)
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 1)
	require.Len(t, tree.Nodes[0].Files, 1)
	assert.Equal(t, "track.mp3", filepath.Base(tree.Nodes[0].Files[0]))
}

func TestWalkEmptyDirectoriesStillAppear(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Audiobooks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Empty"), 0755))
	writeFile(t, filepath.Join(root, "ch1.m4b"))

	w := NewWalker(scope.NewManager(8))
	tree, err := w.Walk(root)
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 2)
	assert.Equal(t, "Empty", tree.Nodes[1].Name)
	assert.Empty(t, tree.Nodes[1].Files)
}

func TestWalkNestedTreeWithSingleSlot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Music")
	writeFile(t, filepath.Join(root, "Jazz", "take5.mp3"))

	// One slot must suffice: each listing releases before descending.
	w := NewWalker(scope.NewManager(1))
	tree, err := walkWithTimeout(t, w, root)
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 2)
	assert.Len(t, tree.Nodes[1].Files, 1)
}

func TestWalkDeepTreeWithDefaultSlots(t *testing.T) {
	base := t.TempDir()
	leaf := base
	for i := 0; i < 70; i++ {
		leaf = filepath.Join(leaf, fmt.Sprintf("level%02d", i))
	}
	writeFile(t, filepath.Join(leaf, "deep.mp3"))

	// Deeper than the default slot count; must still complete.
	w := NewWalker(scope.NewManager(0))
	tree, err := walkWithTimeout(t, w, base)
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 71)
	assert.Len(t, tree.Nodes[70].Files, 1)
}

func TestWalkSkipsUnreadableSubtree(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not bind root")
	}

	root := filepath.Join(t.TempDir(), "Mixed")
	writeFile(t, filepath.Join(root, "ok.mp3"))
	locked := filepath.Join(root, "Locked")
	writeFile(t, filepath.Join(locked, "unreachable.mp3"))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	w := NewWalker(scope.NewManager(8))
	tree, err := w.Walk(root)
	require.NoError(t, err, "an unreadable subtree must not fail the walk")

	require.Len(t, tree.Nodes, 1)
	require.Len(t, tree.Nodes[0].Files, 1)
	assert.Equal(t, "ok.mp3", filepath.Base(tree.Nodes[0].Files[0]))
}

func TestWalkMissingRootFails(t *testing.T) {
	w := NewWalker(scope.NewManager(8))
	_, err := w.Walk(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestWalkKeysAreAbsolutePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "Podcasts")
	writeFile(t, filepath.Join(root, "ep1.mp3"))

	w := NewWalker(scope.NewManager(8))
	tree, err := w.Walk(root)
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 1)
	assert.True(t, filepath.IsAbs(tree.Nodes[0].Key))
	assert.Equal(t, root, tree.Nodes[0].Key)

	// A second walk over the same root resolves to the same keys.
	again, err := w.Walk(root)
	require.NoError(t, err)
	assert.Equal(t, tree.Nodes[0].Key, again.Nodes[0].Key)
}
