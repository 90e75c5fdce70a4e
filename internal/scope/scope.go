package scope

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager brackets read access to caller-supplied paths. Import inputs may
// live outside the library root, so every directory listing, metadata read,
// and artwork read acquires its own scope instead of inheriting one from a
// parent directory.
type Manager struct {
	slots chan struct{}
}

func NewManager(maxOpen int) *Manager {
	if maxOpen <= 0 {
		maxOpen = 64
	}
	return &Manager{slots: make(chan struct{}, maxOpen)}
}

// Acquire grants read access to path and returns the release for it. The
// release must run on every exit path and is safe to call more than once.
// A failed access probe is not fatal: the caller proceeds and any
// subsequent read surfaces as an ordinary I/O error.
func (m *Manager) Acquire(path string) (release func()) {
	m.slots <- struct{}{}

	if _, err := os.Lstat(path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Scope acquired without access probe")
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-m.slots })
	}
}
