package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Folder is an organizational container. It is either derived from a real
// directory on disk (path_key = absolute directory path) or synthesized by
// the pattern grouper (path_key = generated token, synthetic = true).
type Folder struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	PathKey       string         `db:"path_key" json:"pathKey"`
	Synthetic     bool           `db:"synthetic" json:"synthetic"`
	ParentID      sql.NullString `db:"parent_id" json:"parentId,omitempty"`
	EntryCount    int            `db:"entry_count" json:"entryCount"`
	ArtworkPath   sql.NullString `db:"artwork_path" json:"artworkPath,omitempty"`
	ResumeEntryID sql.NullString `db:"resume_entry_id" json:"resumeEntryId,omitempty"`
	ResumeOffset  float64        `db:"resume_offset" json:"resumeOffset"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}

// AudioEntry is one imported audio asset. StoragePath is the generated
// library-relative key the bytes were copied to; it is never derived from
// the original filename.
type AudioEntry struct {
	ID               string         `db:"id" json:"id"`
	FolderID         sql.NullString `db:"folder_id" json:"folderId,omitempty"`
	Title            sql.NullString `db:"title" json:"title,omitempty"`
	Artist           sql.NullString `db:"artist" json:"artist,omitempty"`
	Album            sql.NullString `db:"album" json:"album,omitempty"`
	Genre            sql.NullString `db:"genre" json:"genre,omitempty"`
	Duration         float64        `db:"duration" json:"duration"`
	StoragePath      string         `db:"storage_path" json:"storagePath"`
	OriginalFilename string         `db:"original_filename" json:"originalFilename"`
	Size             int64          `db:"size" json:"size"`
	ArtworkPath      sql.NullString `db:"artwork_path" json:"artworkPath,omitempty"`
	PlayCount        int            `db:"play_count" json:"playCount"`
	PlaybackOffset   float64        `db:"playback_offset" json:"playbackOffset"`
	LastPlayedAt     sql.NullTime   `db:"last_played_at" json:"lastPlayedAt,omitempty"`
	ImportedAt       time.Time      `db:"imported_at" json:"importedAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updatedAt"`
}

// DisplayTitle falls back to the original filename when the container had
// no usable title tag.
func (e *AudioEntry) DisplayTitle() string {
	if e.Title.Valid && e.Title.String != "" {
		return e.Title.String
	}
	return e.OriginalFilename
}

// ImportResult is the per-file outcome of a batch import. Ephemeral: stored
// only as JSON on the owning ImportRun, never as its own row.
type ImportResult struct {
	SourcePath string `json:"sourcePath"`
	Filename   string `json:"filename"`
	Success    bool   `json:"success"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ImportRun records one batch import invocation.
type ImportRun struct {
	ID            string         `db:"id" json:"id"`
	Status        string         `db:"status" json:"status"`
	FilesTotal    int            `db:"files_total" json:"filesTotal"`
	FilesImported int            `db:"files_imported" json:"filesImported"`
	FilesFailed   int            `db:"files_failed" json:"filesFailed"`
	ResultsJSON   string         `db:"results_json" json:"-"`
	ErrorMsg      sql.NullString `db:"error_msg" json:"errorMsg,omitempty"`
	StartedAt     time.Time      `db:"started_at" json:"startedAt"`
	FinishedAt    sql.NullTime   `db:"finished_at" json:"finishedAt,omitempty"`

	Results []ImportResult `db:"-" json:"results,omitempty"`
}

func (r *ImportRun) ParseResults() error {
	if r.ResultsJSON != "" {
		return json.Unmarshal([]byte(r.ResultsJSON), &r.Results)
	}
	return nil
}

// Job is a queued background task, currently only batch imports.
type Job struct {
	ID          string         `db:"id" json:"id"`
	Type        string         `db:"type" json:"type"`
	Status      string         `db:"status" json:"status"`
	PayloadJSON string         `db:"payload_json" json:"-"`
	RunID       sql.NullString `db:"run_id" json:"runId,omitempty"`
	LastError   sql.NullString `db:"last_error" json:"lastError,omitempty"`
	ScheduledAt time.Time      `db:"scheduled_at" json:"scheduledAt"`
	StartedAt   sql.NullTime   `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt  sql.NullTime   `db:"finished_at" json:"finishedAt,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// ImportJobPayload is the payload of a "import" job.
type ImportJobPayload struct {
	Paths []string `json:"paths"`
}

// Setting represents user/app settings
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	Type      string    `db:"type" json:"type"` // string/int/bool/json
	Category  string    `db:"category" json:"category"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Status constants
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"

	JobTypeImport = "import"
)
