package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/database"
	"github.com/fermata-audio/fermata/internal/importer"
	"github.com/fermata-audio/fermata/internal/models"
)

// Worker drains queued import jobs one at a time. Imports are not retried:
// a batch always runs to completion with per-file failures recorded, so a
// failed job means the commit itself failed and re-running it would copy
// the surviving files a second time.
type Worker struct {
	db           *database.DB
	coordinator  *importer.Coordinator
	logger       *Logger
	workerCount  int
	pollInterval time.Duration

	running   bool
	runningMu sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewWorker(db *database.DB, coordinator *importer.Coordinator, logger *Logger, workerCount int) *Worker {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Worker{
		db:           db,
		coordinator:  coordinator,
		logger:       logger,
		workerCount:  workerCount,
		pollInterval: 2 * time.Second,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.runningMu.Lock()
	if w.running {
		w.runningMu.Unlock()
		return
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.runningMu.Unlock()

	log.Info().Int("workers", w.workerCount).Msg("Starting import workers")

	for i := 0; i < w.workerCount; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

func (w *Worker) Stop() {
	w.runningMu.Lock()
	if !w.running {
		w.runningMu.Unlock()
		return
	}
	w.running = false
	w.runningMu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.wg.Wait()
	log.Info().Msg("Import workers stopped")
}

func (w *Worker) workerLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	log.Debug().Int("worker_id", id).Msg("Worker started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", id).Msg("Worker stopping")
			return
		case <-ticker.C:
			w.processNextJob(ctx, id)
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context, workerID int) {
	job, err := w.db.GetNextJob(ctx, models.JobTypeImport)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Error().Err(err).Msg("Failed to get next job")
		}
		return
	}

	log.Info().
		Str("job_id", job.ID).
		Int("worker", workerID).
		Msg("Processing import job")

	var payload models.ImportJobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		job.Status = models.StatusFailed
		job.LastError = sql.NullString{String: "invalid payload: " + err.Error(), Valid: true}
		job.FinishedAt = sql.NullTime{Time: time.Now(), Valid: true}
		w.db.UpdateJob(ctx, job)
		return
	}

	w.logger.StartJob(job.ID)

	run, runErr := w.Execute(ctx, payload.Paths)
	if run != nil {
		job.RunID = sql.NullString{String: run.ID, Valid: true}
		for _, r := range run.Results {
			if r.Success {
				w.logger.Info(job.ID, "Imported "+r.Filename)
			} else {
				w.logger.Error(job.ID, "Failed "+r.Filename, r.Reason)
			}
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Str("job_id", job.ID).Msg("Import job failed")
		job.Status = models.StatusFailed
		job.LastError = sql.NullString{String: runErr.Error(), Valid: true}
		w.logger.EndJob(job.ID, false, runErr.Error())
	} else {
		log.Info().Str("job_id", job.ID).Msg("Import job completed")
		job.Status = models.StatusSuccess
		w.logger.EndJob(job.ID, true, "")
	}
	job.FinishedAt = sql.NullTime{Time: time.Now(), Valid: true}

	w.db.UpdateJob(ctx, job)
}

// Execute runs one batch import end to end and records it as an ImportRun.
// The returned error is systemic (commit failure); per-file failures live
// on the run's results.
func (w *Worker) Execute(ctx context.Context, paths []string) (*models.ImportRun, error) {
	run := &models.ImportRun{FilesTotal: len(paths)}
	if err := w.db.CreateImportRun(ctx, run); err != nil {
		return nil, err
	}

	opts := importer.Options{
		SmartGrouping:  w.db.GetBoolSetting(ctx, "smart_grouping_enabled", true),
		ExtractArtwork: w.db.GetBoolSetting(ctx, "artwork_extraction_enabled", true),
	}

	result, batchErr := w.coordinator.ImportPaths(ctx, paths, opts)

	run.FilesTotal = len(result.Results)
	run.FilesImported = result.Imported
	run.FilesFailed = result.Failed
	run.Results = result.Results
	if data, err := json.Marshal(result.Results); err == nil {
		run.ResultsJSON = string(data)
	}

	run.Status = models.StatusSuccess
	if batchErr != nil {
		run.Status = models.StatusFailed
		run.ErrorMsg = sql.NullString{String: batchErr.Error(), Valid: true}
	}
	run.FinishedAt = sql.NullTime{Time: time.Now(), Valid: true}

	if err := w.db.UpdateImportRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to update import run")
	}

	return run, batchErr
}
