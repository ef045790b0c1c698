package proclog

import (
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder() *Recorder {
	return NewRecorder("sess-1", zerolog.New(io.Discard))
}

func TestRecorderAppendsInOrder(t *testing.T) {
	r := newTestRecorder()
	r.Step("VALIDATE_URL", "started", "checking url")
	r.Warn("DOWNLOAD", "actor unreachable")
	r.Error("EXTRACT_TRANSCRIPT", "all sources failed")

	entries := r.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, "VALIDATE_URL", entries[0].Step)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "warning", entries[1].Level)
	assert.Equal(t, "error", entries[2].Level)
	assert.Equal(t, "failed", entries[2].Status)
	for _, e := range entries {
		assert.Equal(t, "sess-1", e.SessionID)
		assert.NotEmpty(t, e.Timestamp)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	r := newTestRecorder()
	r.Step("a", "ok", "")
	got := r.Entries()
	got[0].Step = "mutated"
	assert.Equal(t, "a", r.Entries()[0].Step)
}

func TestRecorderCapsEntries(t *testing.T) {
	r := newTestRecorder()
	for i := 0; i < maxEntries+50; i++ {
		r.Step("s", "ok", "")
	}
	assert.Len(t, r.Entries(), maxEntries)
}

func TestRecentSeesAllSessions(t *testing.T) {
	a := NewRecorder("ring-a", zerolog.New(io.Discard))
	b := NewRecorder("ring-b", zerolog.New(io.Discard))
	a.Step("VALIDATE_URL", "started", "")
	b.Step("VALIDATE_URL", "started", "")
	a.Step("EXTRACT_METADATA", "completed", "")

	got := Recent(3)
	require.Len(t, got, 3)
	assert.Equal(t, "ring-a", got[0].SessionID)
	assert.Equal(t, "ring-b", got[1].SessionID)
	assert.Equal(t, "ring-a", got[2].SessionID)
	assert.Equal(t, "EXTRACT_METADATA", got[2].Step)
}

func TestRecentIsBounded(t *testing.T) {
	r := newTestRecorder()
	for i := 0; i < globalMaxEntries; i++ {
		r.Warn("DOWNLOAD", "retrying")
	}
	assert.Len(t, Recent(0), globalMaxEntries)
	assert.Len(t, Recent(10), 10)
}

func TestRecorderConcurrentAppend(t *testing.T) {
	r := newTestRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				r.Step("DOWNLOAD", "progress", "chunk")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Entries(), 100)
}
