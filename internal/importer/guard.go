package importer

import "path/filepath"

// DuplicateGuard decides whether a candidate should be skipped because the
// library already holds it. Storage keys are generated fresh for every
// import and never derive from the original filename, so re-importing the
// same source bytes does not collide with an existing key: the guard never
// fires today. It stays in the pipeline as the seam for content-hash
// deduplication.
type DuplicateGuard struct{}

func (DuplicateGuard) IsDuplicate(candidatePath string, existingStorageKeys map[string]bool) bool {
	return existingStorageKeys[filepath.Base(candidatePath)]
}
