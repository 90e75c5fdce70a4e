package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fermata-audio/fermata/internal/artwork"
	"github.com/fermata-audio/fermata/internal/database"
	"github.com/fermata-audio/fermata/internal/jobs"
	"github.com/fermata-audio/fermata/internal/models"
)

type Handler struct {
	db          *database.DB
	worker      *jobs.Worker
	artwork     *artwork.Store
	jobLog      *jobs.Logger
	libraryPath string
}

func New(db *database.DB, worker *jobs.Worker, art *artwork.Store, jobLog *jobs.Logger, libraryPath string) *Handler {
	return &Handler{
		db:          db,
		worker:      worker,
		artwork:     art,
		jobLog:      jobLog,
		libraryPath: libraryPath,
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// Import

type ImportRequest struct {
	Paths []string `json:"paths"`
	Async bool     `json:"async"`
}

// StartImport runs a batch import. Synchronous by default: the response
// carries the full per-file breakdown. With async=true the batch is queued
// for the background worker and the job id is returned instead.
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Paths) == 0 {
		h.respondError(w, http.StatusBadRequest, "At least one path is required")
		return
	}

	if req.Async {
		payload, err := json.Marshal(models.ImportJobPayload{Paths: req.Paths})
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		job := &models.Job{Type: models.JobTypeImport, PayloadJSON: string(payload)}
		if err := h.db.CreateJob(r.Context(), job); err != nil {
			h.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.respondJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
		return
	}

	run, err := h.worker.Execute(r.Context(), req.Paths)
	if err != nil {
		log.Error().Err(err).Msg("Import failed")
		if run != nil {
			h.respondJSON(w, http.StatusInternalServerError, run)
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handler) ListImportRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	runs, err := h.db.ListImportRuns(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, runs)
}

func (h *Handler) GetImportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.db.GetImportRun(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Import run not found")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

// Jobs

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", 50)

	list, err := h.db.ListJobs(r.Context(), status, limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.db.GetJob(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	resp := map[string]interface{}{"job": job}
	if l := h.jobLog.GetLog(id); l != nil {
		resp["log"] = l
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Folders

func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.db.ListRootFolders(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, folders)
}

func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	folder, err := h.db.GetFolder(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Folder not found")
		return
	}

	children, err := h.db.ListChildFolders(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	entries, total, err := h.db.ListEntries(r.Context(), id, limit, offset)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"folder":   folder,
		"children": children,
		"entries":  entries,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// DeleteFolder removes a folder subtree along with the library files and
// artwork its entries own.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.db.GetFolder(r.Context(), id); err != nil {
		h.respondError(w, http.StatusNotFound, "Folder not found")
		return
	}

	entries, err := h.db.ListEntriesUnder(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Rows go first. A failed row delete must not leave entries pointing
	// at files that are already gone.
	if err := h.db.DeleteFolder(r.Context(), id); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for i := range entries {
		h.removeEntryFiles(&entries[i])
	}

	log.Info().Str("folder_id", id).Int("entries", len(entries)).Msg("Folder deleted")
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Entries

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	folderID := r.URL.Query().Get("folder_id")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	entries, total, err := h.db.ListEntries(r.Context(), folderID, limit, offset)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := h.db.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Entry not found")
		return
	}
	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.db.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Entry not found")
		return
	}

	if err := h.db.DeleteEntry(r.Context(), id); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.removeEntryFiles(entry)

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type PlaybackRequest struct {
	Offset    float64 `json:"offset"`
	Completed bool    `json:"completed"`
}

func (h *Handler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.db.UpdatePlayback(r.Context(), id, req.Offset, req.Completed)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Entry not found")
		return
	}

	h.respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) removeEntryFiles(entry *models.AudioEntry) {
	path := filepath.Join(h.libraryPath, entry.StoragePath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove library file")
	}
	if entry.ArtworkPath.Valid {
		if err := h.artwork.Remove(entry.ArtworkPath.String); err != nil {
			log.Warn().Err(err).Str("ref", entry.ArtworkPath.String).Msg("Failed to remove artwork")
		}
	}
}

// Settings

func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	settings, err := h.db.ListSettings(r.Context(), category)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, settings)
}

type UpdateSettingRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
	Category string `json:"category,omitempty"`
}

func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Key == "" {
		h.respondError(w, http.StatusBadRequest, "Key is required")
		return
	}

	setting := &models.Setting{
		Key:      req.Key,
		Value:    req.Value,
		Type:     req.Type,
		Category: req.Category,
	}
	if setting.Type == "" {
		setting.Type = "string"
	}

	if err := h.db.SetSetting(r.Context(), setting); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, setting)
}

// Stats

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetDashboardStats(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
