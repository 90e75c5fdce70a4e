package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/artwork"
	"github.com/fermata-audio/fermata/internal/database"
)

// Janitor periodically prunes finished jobs past the retention window and
// removes artwork files no longer referenced by any entry or folder.
type Janitor struct {
	db        *database.DB
	artwork   *artwork.Store
	interval  time.Duration
	retention time.Duration

	running   bool
	runningMu sync.Mutex
	cancel    context.CancelFunc
}

func NewJanitor(db *database.DB, art *artwork.Store, interval, retention time.Duration) *Janitor {
	return &Janitor{
		db:        db,
		artwork:   art,
		interval:  interval,
		retention: retention,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.runningMu.Lock()
	if j.running {
		j.runningMu.Unlock()
		return
	}
	j.running = true
	ctx, j.cancel = context.WithCancel(ctx)
	j.runningMu.Unlock()

	log.Info().Msg("Starting janitor")

	go j.loop(ctx)
}

func (j *Janitor) Stop() {
	j.runningMu.Lock()
	if !j.running {
		j.runningMu.Unlock()
		return
	}
	j.running = false
	j.runningMu.Unlock()

	if j.cancel != nil {
		j.cancel()
	}

	log.Info().Msg("Janitor stopped")
}

func (j *Janitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	pruned, err := j.db.DeleteFinishedJobsBefore(ctx, time.Now().Add(-j.retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune finished jobs")
	}

	referenced, err := j.db.ListReferencedArtwork(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list referenced artwork")
		return
	}

	names, err := j.artwork.List()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list artwork directory")
		return
	}

	removed := 0
	for _, name := range names {
		if referenced[name] {
			continue
		}
		if err := j.artwork.Remove(name); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Failed to remove orphaned artwork")
			continue
		}
		removed++
	}

	if pruned > 0 || removed > 0 {
		log.Info().
			Int64("jobs_pruned", pruned).
			Int("artwork_removed", removed).
			Msg("Janitor sweep completed")
	}
}
