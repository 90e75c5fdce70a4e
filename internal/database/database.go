package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fermata-audio/fermata/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sqlx.DB
}

func New(dsn string) (*DB, error) {
	db, err := sqlx.Connect("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations, err := migrationsFS.ReadFile("migrations/001_initial.sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	_, err = db.Exec(string(migrations))
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return db.seedDefaults()
}

func (db *DB) seedDefaults() error {
	settings := []models.Setting{
		{Key: "smart_grouping_enabled", Value: "true", Type: "bool", Category: "importer"},
		{Key: "artwork_extraction_enabled", Value: "true", Type: "bool", Category: "importer"},
		{Key: "worker_count", Value: "1", Type: "int", Category: "importer"},
		{Key: "job_retention_days", Value: "7", Type: "int", Category: "maintenance"},
	}

	for _, s := range settings {
		_, err := db.Exec(`
			INSERT OR IGNORE INTO settings (key, value, type, category, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, s.Key, s.Value, s.Type, s.Category, time.Now())
		if err != nil {
			return err
		}
	}

	return nil
}

// recomputeCountsSQL rebuilds every folder's cached entry count as its
// direct entries plus all descendant entries. Runs bottom-up by
// construction: each folder counts the entries of its full subtree.
const recomputeCountsSQL = `
	WITH RECURSIVE subtree(id, root_id) AS (
		SELECT id, id FROM folders
		UNION ALL
		SELECT f.id, s.root_id FROM folders f JOIN subtree s ON f.parent_id = s.id
	)
	UPDATE folders SET entry_count = (
		SELECT COUNT(*)
		FROM entries e
		JOIN subtree s ON s.id = e.folder_id
		WHERE s.root_id = folders.id
	)
`

// Batch is one import transaction: all folder and entry writes of a batch
// become visible atomically at Commit, or not at all.
type Batch struct {
	tx *sqlx.Tx
}

func (db *DB) Begin(ctx context.Context) (*Batch, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	return &Batch{tx: tx}, nil
}

// FetchFolder looks a folder up by its path key. Returns nil when no such
// folder exists.
func (b *Batch) FetchFolder(ctx context.Context, pathKey string) (*models.Folder, error) {
	var f models.Folder
	err := b.tx.GetContext(ctx, &f, "SELECT * FROM folders WHERE path_key = ?", pathKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (b *Batch) CreateFolder(ctx context.Context, name, pathKey, parentID string, synthetic bool) (*models.Folder, error) {
	f := &models.Folder{
		ID:        uuid.NewString(),
		Name:      name,
		PathKey:   pathKey,
		Synthetic: synthetic,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if parentID != "" {
		f.ParentID = sql.NullString{String: parentID, Valid: true}
	}

	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO folders (id, name, path_key, synthetic, parent_id, entry_count, resume_offset, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, f.ID, f.Name, f.PathKey, f.Synthetic, f.ParentID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (b *Batch) CreateEntry(ctx context.Context, e *models.AudioEntry) error {
	e.ID = uuid.NewString()
	e.ImportedAt = time.Now()
	e.UpdatedAt = time.Now()

	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO entries (id, folder_id, title, artist, album, genre, duration, storage_path,
		original_filename, size, artwork_path, play_count, playback_offset, imported_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, e.ID, e.FolderID, e.Title, e.Artist, e.Album, e.Genre, e.Duration, e.StoragePath,
		e.OriginalFilename, e.Size, e.ArtworkPath, e.ImportedAt, e.UpdatedAt)
	return err
}

func (b *Batch) RecomputeFolderCounts(ctx context.Context) error {
	_, err := b.tx.ExecContext(ctx, recomputeCountsSQL)
	return err
}

func (b *Batch) Commit() error {
	return b.tx.Commit()
}

func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

// Folder operations

func (db *DB) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	var f models.Folder
	err := db.GetContext(ctx, &f, "SELECT * FROM folders WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (db *DB) GetFolderByKey(ctx context.Context, pathKey string) (*models.Folder, error) {
	var f models.Folder
	err := db.GetContext(ctx, &f, "SELECT * FROM folders WHERE path_key = ?", pathKey)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (db *DB) ListRootFolders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := db.SelectContext(ctx, &folders, "SELECT * FROM folders WHERE parent_id IS NULL ORDER BY name")
	return folders, err
}

func (db *DB) ListChildFolders(ctx context.Context, parentID string) ([]models.Folder, error) {
	var folders []models.Folder
	err := db.SelectContext(ctx, &folders, "SELECT * FROM folders WHERE parent_id = ? ORDER BY name", parentID)
	return folders, err
}

func (db *DB) UpdateFolderResume(ctx context.Context, folderID, entryID string, offset float64) error {
	_, err := db.ExecContext(ctx, `
		UPDATE folders SET resume_entry_id = ?, resume_offset = ?, updated_at = ?
		WHERE id = ?
	`, entryID, offset, time.Now(), folderID)
	return err
}

func (db *DB) SetFolderArtwork(ctx context.Context, folderID, artworkPath string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE folders SET artwork_path = ?, updated_at = ? WHERE id = ?
	`, artworkPath, time.Now(), folderID)
	return err
}

// ListEntriesUnder returns every entry in a folder's subtree, including the
// folder's own direct entries.
func (db *DB) ListEntriesUnder(ctx context.Context, folderID string) ([]models.AudioEntry, error) {
	var entries []models.AudioEntry
	err := db.SelectContext(ctx, &entries, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM folders WHERE id = ?
			UNION ALL
			SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.id
		)
		SELECT e.* FROM entries e JOIN subtree s ON s.id = e.folder_id
		ORDER BY e.original_filename
	`, folderID)
	return entries, err
}

// DeleteFolder removes a folder, cascading to child folders and entries.
// Callers are responsible for removing the backing files first (see
// ListEntriesUnder).
func (db *DB) DeleteFolder(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id)
	if err != nil {
		return err
	}
	return db.RecomputeFolderCounts(ctx)
}

func (db *DB) RecomputeFolderCounts(ctx context.Context) error {
	_, err := db.ExecContext(ctx, recomputeCountsSQL)
	return err
}

// Entry operations

func (db *DB) GetEntry(ctx context.Context, id string) (*models.AudioEntry, error) {
	var e models.AudioEntry
	err := db.GetContext(ctx, &e, "SELECT * FROM entries WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns entries filtered by folder. folderID "" lists all,
// "none" lists ungrouped entries only.
func (db *DB) ListEntries(ctx context.Context, folderID string, limit, offset int) ([]models.AudioEntry, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	switch folderID {
	case "":
	case "none":
		where += " AND folder_id IS NULL"
	default:
		where += " AND folder_id = ?"
		args = append(args, folderID)
	}

	var total int
	if err := db.GetContext(ctx, &total, "SELECT COUNT(*) FROM entries "+where, args...); err != nil {
		return nil, 0, err
	}

	var entries []models.AudioEntry
	args = append(args, limit, offset)
	err := db.SelectContext(ctx, &entries, `
		SELECT * FROM entries `+where+` ORDER BY original_filename LIMIT ? OFFSET ?
	`, args...)

	return entries, total, err
}

// ListStorageKeys returns the storage paths of all persisted entries, for
// the duplicate check during import.
func (db *DB) ListStorageKeys(ctx context.Context) (map[string]bool, error) {
	var keys []string
	if err := db.SelectContext(ctx, &keys, "SELECT storage_path FROM entries"); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

// UpdatePlayback records a playback progress event. The offset is clamped
// to [0, duration]; a completed event increments the play count and resets
// the offset. The owning folder's resume pointer follows the entry.
func (db *DB) UpdatePlayback(ctx context.Context, id string, offset float64, completed bool) (*models.AudioEntry, error) {
	e, err := db.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if offset > e.Duration {
		offset = e.Duration
	}

	e.PlaybackOffset = offset
	e.LastPlayedAt = sql.NullTime{Time: time.Now(), Valid: true}
	if completed {
		e.PlayCount++
		e.PlaybackOffset = 0
	}
	e.UpdatedAt = time.Now()

	_, err = db.ExecContext(ctx, `
		UPDATE entries SET play_count = ?, playback_offset = ?, last_played_at = ?, updated_at = ?
		WHERE id = ?
	`, e.PlayCount, e.PlaybackOffset, e.LastPlayedAt, e.UpdatedAt, e.ID)
	if err != nil {
		return nil, err
	}

	if e.FolderID.Valid {
		if err := db.UpdateFolderResume(ctx, e.FolderID.String, e.ID, e.PlaybackOffset); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// DeleteEntry removes the entry row, clears any folder resume pointer
// referencing it, and restores the count invariant. File removal is the
// caller's job.
func (db *DB) DeleteEntry(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE folders SET resume_entry_id = NULL, resume_offset = 0 WHERE resume_entry_id = ?
	`, id)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id); err != nil {
		return err
	}
	return db.RecomputeFolderCounts(ctx)
}

// ImportRun operations

func (db *DB) CreateImportRun(ctx context.Context, run *models.ImportRun) error {
	run.ID = uuid.NewString()
	run.StartedAt = time.Now()
	run.Status = models.StatusRunning

	_, err := db.ExecContext(ctx, `
		INSERT INTO import_runs (id, status, files_total, files_imported, files_failed, results_json, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Status, run.FilesTotal, run.FilesImported, run.FilesFailed, run.ResultsJSON, run.StartedAt)

	return err
}

func (db *DB) UpdateImportRun(ctx context.Context, run *models.ImportRun) error {
	_, err := db.ExecContext(ctx, `
		UPDATE import_runs SET status = ?, files_total = ?, files_imported = ?, files_failed = ?,
		results_json = ?, error_msg = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.FilesTotal, run.FilesImported, run.FilesFailed,
		run.ResultsJSON, run.ErrorMsg, run.FinishedAt, run.ID)
	return err
}

func (db *DB) GetImportRun(ctx context.Context, id string) (*models.ImportRun, error) {
	var run models.ImportRun
	err := db.GetContext(ctx, &run, "SELECT * FROM import_runs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	run.ParseResults()
	return &run, nil
}

func (db *DB) ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	var runs []models.ImportRun
	err := db.SelectContext(ctx, &runs, `
		SELECT * FROM import_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	return runs, err
}

// Job operations

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	job.ID = uuid.NewString()
	job.CreatedAt = time.Now()
	job.Status = models.StatusQueued
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, payload_json, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, job.Status, job.PayloadJSON, job.ScheduledAt, job.CreatedAt)

	return err
}

// GetNextJob atomically claims the oldest queued job of the given type.
func (db *DB) GetNextJob(ctx context.Context, jobType string) (*models.Job, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var job models.Job
	err = tx.GetContext(ctx, &job, `
		SELECT * FROM jobs
		WHERE type = ? AND status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT 1
	`, jobType, models.StatusQueued, time.Now())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`, models.StatusRunning, time.Now(), job.ID, models.StatusQueued)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = models.StatusRunning
	return &job, nil
}

func (db *DB) UpdateJob(ctx context.Context, job *models.Job) error {
	_, err := db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, run_id = ?, last_error = ?, started_at = ?, finished_at = ?
		WHERE id = ?
	`, job.Status, job.RunID, job.LastError, job.StartedAt, job.FinishedAt, job.ID)
	return err
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := db.GetContext(ctx, &job, "SELECT * FROM jobs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (db *DB) ListJobs(ctx context.Context, status string, limit int) ([]models.Job, error) {
	var jobs []models.Job
	query := "SELECT * FROM jobs"
	args := []interface{}{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	err := db.SelectContext(ctx, &jobs, query, args...)
	return jobs, err
}

// DeleteFinishedJobsBefore prunes terminal jobs older than the cutoff.
func (db *DB) DeleteFinishedJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN (?, ?) AND finished_at < ?
	`, models.StatusSuccess, models.StatusFailed, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListReferencedArtwork returns every artwork reference held by an entry or
// folder, for the orphan sweep.
func (db *DB) ListReferencedArtwork(ctx context.Context) (map[string]bool, error) {
	var refs []string
	err := db.SelectContext(ctx, &refs, `
		SELECT artwork_path FROM entries WHERE artwork_path IS NOT NULL
		UNION
		SELECT artwork_path FROM folders WHERE artwork_path IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(refs))
	for _, r := range refs {
		out[r] = true
	}
	return out, nil
}

// Settings operations

func (db *DB) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := db.GetContext(ctx, &setting, "SELECT * FROM settings WHERE key = ?", key)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (db *DB) GetBoolSetting(ctx context.Context, key string, fallback bool) bool {
	s, err := db.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	v, err := strconv.ParseBool(s.Value)
	if err != nil {
		return fallback
	}
	return v
}

func (db *DB) SetSetting(ctx context.Context, setting *models.Setting) error {
	setting.UpdatedAt = time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, type, category, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, setting.Key, setting.Value, setting.Type, setting.Category, setting.UpdatedAt, setting.Value, setting.UpdatedAt)
	return err
}

func (db *DB) ListSettings(ctx context.Context, category string) ([]models.Setting, error) {
	var settings []models.Setting
	query := "SELECT * FROM settings"
	args := []interface{}{}

	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}

	query += " ORDER BY category, key"
	err := db.SelectContext(ctx, &settings, query, args...)
	return settings, err
}

// Stats

type DashboardStats struct {
	TotalEntries  int     `db:"total_entries" json:"totalEntries"`
	TotalFolders  int     `db:"total_folders" json:"totalFolders"`
	TotalSize     int64   `db:"total_size" json:"totalSize"`
	TotalDuration float64 `db:"total_duration" json:"totalDuration"`
	QueuedJobs    int     `db:"queued_jobs" json:"queuedJobs"`
	RecentImports int     `db:"recent_imports" json:"recentImports"`
}

func (db *DB) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := db.GetContext(ctx, &stats.TotalEntries, "SELECT COUNT(*) FROM entries")
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.GetContext(ctx, &stats.TotalFolders, "SELECT COUNT(*) FROM folders")
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.GetContext(ctx, &stats.TotalSize, "SELECT COALESCE(SUM(size), 0) FROM entries")
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.GetContext(ctx, &stats.TotalDuration, "SELECT COALESCE(SUM(duration), 0) FROM entries")
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.GetContext(ctx, &stats.QueuedJobs, "SELECT COUNT(*) FROM jobs WHERE status IN ('queued', 'running')")
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.GetContext(ctx, &stats.RecentImports, `
		SELECT COUNT(*) FROM import_runs WHERE started_at > datetime('now', '-24 hours')
	`)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return stats, nil
}
