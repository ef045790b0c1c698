// Package proclog records the step-by-step trail of a single processing
// session. Entries are kept in memory for the API response and mirrored to
// the structured log as they happen.
package proclog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ytcourse/models"
)

const (
	maxEntries       = 200
	globalMaxEntries = 500
)

// global holds the newest entries across all sessions so operators can see
// recent activity without knowing a session id.
var global struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func appendGlobal(e models.LogEntry) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.entries = append(global.entries, e)
	if len(global.entries) > globalMaxEntries {
		global.entries = global.entries[len(global.entries)-globalMaxEntries:]
	}
}

// Recent returns up to limit of the newest entries across all sessions,
// oldest first.
func Recent(limit int) []models.LogEntry {
	global.mu.Lock()
	defer global.mu.Unlock()
	if limit <= 0 || limit > len(global.entries) {
		limit = len(global.entries)
	}
	out := make([]models.LogEntry, limit)
	copy(out, global.entries[len(global.entries)-limit:])
	return out
}

// Recorder is safe for concurrent use; the download watcher appends to it
// from its own goroutine.
type Recorder struct {
	mu        sync.Mutex
	sessionID string
	entries   []models.LogEntry
	log       zerolog.Logger
}

func NewRecorder(sessionID string, log zerolog.Logger) *Recorder {
	return &Recorder{
		sessionID: sessionID,
		log:       log.With().Str("session_id", sessionID).Logger(),
	}
}

func (r *Recorder) SessionID() string {
	return r.sessionID
}

func (r *Recorder) add(level, step, status, details string) {
	e := models.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: r.sessionID,
		Step:      step,
		Status:    status,
		Details:   details,
		Level:     level,
	}

	r.mu.Lock()
	if len(r.entries) < maxEntries {
		r.entries = append(r.entries, e)
	}
	r.mu.Unlock()
	appendGlobal(e)

	ev := r.log.Info()
	switch level {
	case "warning":
		ev = r.log.Warn()
	case "error":
		ev = r.log.Error()
	}
	ev.Str("step", step).Str("status", status).Msg(details)
}

func (r *Recorder) Step(step, status, details string) {
	r.add("info", step, status, details)
}

func (r *Recorder) Warn(step, details string) {
	r.add("warning", step, "warning", details)
}

func (r *Recorder) Error(step, details string) {
	r.add("error", step, "failed", details)
}

// Entries returns a copy; the recorder may keep receiving appends from the
// download watcher after the response is built.
func (r *Recorder) Entries() []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
