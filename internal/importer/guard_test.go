package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicateGuardMatchesByStorageKey(t *testing.T) {
	var g DuplicateGuard

	existing := map[string]bool{"7b1d-generated-key.mp3": true}

	// Storage keys are generated per import, so a filename never collides
	// with a stored key and every re-import lands as a new entry.
	assert.False(t, g.IsDuplicate("/in/track.mp3", existing))
	assert.False(t, g.IsDuplicate("/in/track.mp3", map[string]bool{}))

	// Only an exact key match would fire.
	assert.True(t, g.IsDuplicate("/in/7b1d-generated-key.mp3", existing))
}
