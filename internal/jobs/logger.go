package jobs

import (
	"sync"
	"time"
)

// LogEntry is a single log line for a job
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, warn, error
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// JobLog holds all log entries for a single job
type JobLog struct {
	JobID     string     `json:"jobId"`
	Status    string     `json:"status"` // running, completed, failed
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Entries   []LogEntry `json:"entries"`
}

// Logger keeps an in-memory window of per-job import logs. Injected into
// the worker and handlers rather than living as a package singleton.
type Logger struct {
	mu      sync.RWMutex
	logs    map[string]*JobLog
	maxJobs int
	order   []string
}

func NewLogger(maxJobs int) *Logger {
	if maxJobs <= 0 {
		maxJobs = 100
	}
	return &Logger{
		logs:    make(map[string]*JobLog),
		maxJobs: maxJobs,
	}
}

// StartJob begins logging for a new job
func (l *Logger) StartJob(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.order) >= l.maxJobs {
		oldID := l.order[0]
		l.order = l.order[1:]
		delete(l.logs, oldID)
	}

	l.logs[jobID] = &JobLog{
		JobID:     jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Entries:   make([]LogEntry, 0),
	}
	l.order = append(l.order, jobID)

	l.addEntryLocked(jobID, "info", "Job started", "")
}

// EndJob marks a job as completed or failed
func (l *Logger) EndJob(jobID string, success bool, errorMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	job, ok := l.logs[jobID]
	if !ok {
		return
	}

	now := time.Now()
	job.EndedAt = &now
	if success {
		job.Status = "completed"
		l.addEntryLocked(jobID, "info", "Job completed successfully", "")
	} else {
		job.Status = "failed"
		l.addEntryLocked(jobID, "error", "Job failed", errorMsg)
	}
}

func (l *Logger) Info(jobID, message string) {
	l.log(jobID, "info", message, "")
}

func (l *Logger) Warn(jobID, message, details string) {
	l.log(jobID, "warn", message, details)
}

func (l *Logger) Error(jobID, message, details string) {
	l.log(jobID, "error", message, details)
}

func (l *Logger) log(jobID, level, message, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addEntryLocked(jobID, level, message, details)
}

func (l *Logger) addEntryLocked(jobID, level, message, details string) {
	if job, ok := l.logs[jobID]; ok {
		job.Entries = append(job.Entries, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
			Details:   details,
		})
	}
}

// GetLog returns a copy of the log for a specific job, or nil.
func (l *Logger) GetLog(jobID string) *JobLog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	job, ok := l.logs[jobID]
	if !ok {
		return nil
	}

	entriesCopy := make([]LogEntry, len(job.Entries))
	copy(entriesCopy, job.Entries)
	return &JobLog{
		JobID:     job.JobID,
		Status:    job.Status,
		StartedAt: job.StartedAt,
		EndedAt:   job.EndedAt,
		Entries:   entriesCopy,
	}
}

// GetRecentJobs returns the most recent job logs, newest first, without
// their entries.
func (l *Logger) GetRecentJobs(limit int) []*JobLog {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.order) {
		limit = len(l.order)
	}

	result := make([]*JobLog, 0, limit)
	for i := len(l.order) - 1; i >= 0 && len(result) < limit; i-- {
		if job, ok := l.logs[l.order[i]]; ok {
			result = append(result, &JobLog{
				JobID:     job.JobID,
				Status:    job.Status,
				StartedAt: job.StartedAt,
				EndedAt:   job.EndedAt,
			})
		}
	}
	return result
}
