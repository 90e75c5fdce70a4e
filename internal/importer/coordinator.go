package importer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/artwork"
	"github.com/fermata-audio/fermata/internal/database"
	"github.com/fermata-audio/fermata/internal/metadata"
	"github.com/fermata-audio/fermata/internal/models"
	"github.com/fermata-audio/fermata/internal/scope"
)

// Coordinator turns an arbitrary set of filesystem paths into validated,
// deduplicated, organized library entries. A batch runs in two phases:
// scan (classify, walk, group, extract, copy bytes) collects everything in
// memory, then persist writes it all in a single store commit. Per-file
// failures never abort a batch; only a failed commit is systemic.
type Coordinator struct {
	db          *database.DB
	scopes      *scope.Manager
	walker      *Walker
	extractor   *metadata.Extractor
	artwork     *artwork.Store
	guard       DuplicateGuard
	libraryPath string

	// Serializes whole batches: concurrent imports must not race on
	// folder lookup-or-create or on the entry-count recomputation.
	batchMu sync.Mutex
}

func NewCoordinator(db *database.DB, scopes *scope.Manager, extractor *metadata.Extractor, art *artwork.Store, libraryPath string) *Coordinator {
	return &Coordinator{
		db:          db,
		scopes:      scopes,
		walker:      NewWalker(scopes),
		extractor:   extractor,
		artwork:     art,
		libraryPath: libraryPath,
	}
}

// Options toggle optional import behavior, resolved from settings at batch
// start.
type Options struct {
	SmartGrouping  bool
	ExtractArtwork bool
}

// BatchResult is the per-file breakdown of one batch. When ImportPaths
// also returns an error the commit failed: Results then reflect
// extraction-time outcomes for entries that were never durably persisted.
type BatchResult struct {
	Results  []models.ImportResult
	Imported int
	Failed   int
}

type pendingEntry struct {
	entry    *models.AudioEntry
	treeIdx  int // -1 when not directory-sourced
	nodeIdx  int
	groupIdx int // -1 when ungrouped
}

// ImportPaths runs one batch import over the given files and directories.
// Once started a batch runs to completion; it is not abortable mid-flight.
func (c *Coordinator) ImportPaths(ctx context.Context, paths []string, opts Options) (*BatchResult, error) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	res := &BatchResult{}

	var trees []*FolderTree
	var individual []string

	for _, p := range paths {
		switch Classify(p) {
		case PathMissing:
			res.record(p, errInvalidFile("no such file or directory"))
		case PathDirectory:
			tree, err := c.walker.Walk(p)
			if err != nil {
				res.record(p, errFolderProcessing(err.Error()))
				continue
			}
			trees = append(trees, tree)
		case PathFile:
			if !IsSupportedFormat(p) {
				res.record(p, errUnsupportedFormat(Extension(p)))
				continue
			}
			individual = append(individual, p)
		}
	}

	var groups []Group
	if opts.SmartGrouping {
		groups = ProposeGroups(individual)
	}
	groupOf := make(map[string]int)
	for gi, g := range groups {
		for _, f := range g.Files {
			groupOf[f] = gi
		}
	}

	existingKeys, err := c.db.ListStorageKeys(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list storage keys, duplicate check disabled")
		existingKeys = map[string]bool{}
	}

	var pending []pendingEntry
	var created []string // files written this batch, rolled back on commit failure

	scan := func(src string, treeIdx, nodeIdx, groupIdx int) {
		entry, files, err := c.scanFile(src, existingKeys, opts)
		if err != nil {
			res.record(src, err)
			return
		}
		created = append(created, files...)
		pending = append(pending, pendingEntry{entry: entry, treeIdx: treeIdx, nodeIdx: nodeIdx, groupIdx: groupIdx})
		res.record(src, nil)
	}

	for ti, tree := range trees {
		for ni := range tree.Nodes {
			for _, f := range tree.Nodes[ni].Files {
				scan(f, ti, ni, -1)
			}
		}
	}
	for _, f := range individual {
		gi, ok := groupOf[f]
		if !ok {
			gi = -1
		}
		scan(f, -1, -1, gi)
	}

	if err := c.persist(ctx, trees, groups, pending); err != nil {
		for _, f := range created {
			if rmErr := os.Remove(f); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn().Err(rmErr).Str("path", f).Msg("Failed to roll back copied file")
			}
		}
		return res, fmt.Errorf("batch commit failed: %w", err)
	}

	log.Info().
		Int("total", len(res.Results)).
		Int("imported", res.Imported).
		Int("failed", res.Failed).
		Int("folders", c.countFolders(trees)).
		Int("groups", len(groups)).
		Msg("Batch import completed")

	return res, nil
}

// scanFile validates, copies, and extracts a single file. On failure it
// removes anything it wrote and returns a classified error; on success it
// returns the not-yet-persisted entry plus the files it created.
func (c *Coordinator) scanFile(src string, existingKeys map[string]bool, opts Options) (*models.AudioEntry, []string, error) {
	release := c.scopes.Acquire(src)
	defer release()

	if !IsSupportedFormat(src) {
		return nil, nil, errUnsupportedFormat(Extension(src))
	}

	if c.guard.IsDuplicate(src, existingKeys) {
		return nil, nil, &Error{Kind: KindDuplicateFile, Detail: filepath.Base(src)}
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, nil, errInvalidFile(err.Error())
	}
	if info.IsDir() {
		return nil, nil, errInvalidFile("is a directory")
	}

	// Fresh storage key per import: collision-proof by construction, and
	// never equal to the original filename.
	storageKey := uuid.NewString() + Extension(src)
	dest := filepath.Join(c.libraryPath, storageKey)
	if err := copyFile(src, dest); err != nil {
		return nil, nil, errInvalidFile("copy failed: " + err.Error())
	}
	created := []string{dest}

	// Extract brackets its own read; drop this scope first so a single
	// slot is always enough.
	release()
	meta := c.extractor.Extract(src)

	entry := &models.AudioEntry{
		Title:            nullString(meta.Title),
		Artist:           nullString(meta.Artist),
		Album:            nullString(meta.Album),
		Genre:            nullString(meta.Genre),
		Duration:         meta.Duration,
		StoragePath:      storageKey,
		OriginalFilename: filepath.Base(src),
		Size:             meta.Size,
	}

	if opts.ExtractArtwork && len(meta.Artwork) > 0 {
		ref, err := c.artwork.Put(meta.Artwork, meta.ArtworkExt)
		if err != nil {
			log.Warn().Err(err).Str("path", src).Msg("Failed to store embedded artwork")
		} else {
			entry.ArtworkPath = nullString(ref)
			created = append(created, c.artwork.Path(ref))
		}
	}

	return entry, created, nil
}

// persist applies the scanned batch in one transaction: folders resolved
// top-down (looked up by path key before creation, so re-imports reuse
// them), then entries, then the bottom-up entry-count recomputation. All
// of it becomes visible at Commit or not at all.
func (c *Coordinator) persist(ctx context.Context, trees []*FolderTree, groups []Group, pending []pendingEntry) error {
	if len(trees) == 0 && len(pending) == 0 {
		return nil
	}

	batch, err := c.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer batch.Rollback()

	folderIDs := make([][]string, len(trees))
	for ti, tree := range trees {
		ids := make([]string, len(tree.Nodes))
		for ni, node := range tree.Nodes {
			existing, err := batch.FetchFolder(ctx, node.Key)
			if err != nil {
				return err
			}
			if existing != nil {
				ids[ni] = existing.ID
				continue
			}
			parentID := ""
			if node.Parent >= 0 {
				parentID = ids[node.Parent]
			}
			f, err := batch.CreateFolder(ctx, node.Name, node.Key, parentID, false)
			if err != nil {
				return err
			}
			ids[ni] = f.ID
		}
		folderIDs[ti] = ids
	}

	// A synthetic group only exists for its members; skip any whose files
	// all failed the scan phase.
	groupMembers := make([]int, len(groups))
	for _, p := range pending {
		if p.groupIdx >= 0 {
			groupMembers[p.groupIdx]++
		}
	}
	groupIDs := make([]string, len(groups))
	for gi, g := range groups {
		if groupMembers[gi] == 0 {
			continue
		}
		f, err := batch.CreateFolder(ctx, g.Name, g.Key, "", true)
		if err != nil {
			return err
		}
		groupIDs[gi] = f.ID
	}

	for _, p := range pending {
		switch {
		case p.treeIdx >= 0:
			p.entry.FolderID = nullString(folderIDs[p.treeIdx][p.nodeIdx])
		case p.groupIdx >= 0:
			p.entry.FolderID = nullString(groupIDs[p.groupIdx])
		}
		if err := batch.CreateEntry(ctx, p.entry); err != nil {
			return err
		}
	}

	if err := batch.RecomputeFolderCounts(ctx); err != nil {
		return err
	}

	return batch.Commit()
}

func (c *Coordinator) countFolders(trees []*FolderTree) int {
	n := 0
	for _, t := range trees {
		n += len(t.Nodes)
	}
	return n
}

func (r *BatchResult) record(src string, err error) {
	result := models.ImportResult{
		SourcePath: src,
		Filename:   filepath.Base(src),
		Success:    err == nil,
	}
	if err != nil {
		kind, reason := classifyError(err)
		result.ErrorKind = string(kind)
		result.Reason = reason
		r.Failed++
	} else {
		r.Imported++
	}
	r.Results = append(r.Results, result)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
