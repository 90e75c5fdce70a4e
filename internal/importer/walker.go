package importer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/scope"
)

// FolderNode is one directory discovered during traversal. Key doubles as
// the folder's path key, so a second walk over the same root resolves to
// the same library folders.
type FolderNode struct {
	Key    string
	Name   string
	Parent int // index into FolderTree.Nodes, -1 for the root
	Files  []string
}

// FolderTree is the pure result of a directory walk: nodes in top-down
// order (parents always precede children) plus the audio files directly
// contained in each. No store writes happen here; the persist phase
// applies the tree separately.
type FolderTree struct {
	Nodes []FolderNode
}

type Walker struct {
	scopes *scope.Manager
}

func NewWalker(scopes *scope.Manager) *Walker {
	return &Walker{scopes: scopes}
}

// Walk expands rootPath into a folder tree. Hidden entries are skipped and
// non-audio files ignored. A listing error below the root logs and skips
// that subtree; only an unreadable root fails the walk.
func (w *Walker) Walk(rootPath string) (*FolderTree, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	tree := &FolderTree{}
	if err := w.walkDir(abs, -1, tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func (w *Walker) walkDir(dir string, parent int, tree *FolderTree) error {
	// The scope brackets the listing only. Holding it across the recursion
	// would pin one slot per tree level and starve deep trees.
	release := w.scopes.Acquire(dir)
	dirents, err := os.ReadDir(dir)
	release()
	if err != nil {
		return err
	}

	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, FolderNode{
		Key:    dir,
		Name:   filepath.Base(dir),
		Parent: parent,
	})

	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}

		child := filepath.Join(dir, d.Name())
		if d.IsDir() {
			if err := w.walkDir(child, idx, tree); err != nil {
				log.Warn().Err(err).Str("path", child).Msg("Skipping unreadable subdirectory")
			}
			continue
		}

		if supportedExtensions[Extension(d.Name())] {
			tree.Nodes[idx].Files = append(tree.Nodes[idx].Files, child)
		}
	}

	return nil
}
