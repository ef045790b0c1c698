// Package metrics tracks per-request processing outcomes: which fallback
// layer won at each stage, cost, timing, and the two quality scores derived
// from them.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"ytcourse/models"
)

// Layer indices within a stage's fallback chain.
const (
	LayerPrimary = iota
	LayerSecondary
	LayerTertiary
)

type note struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// ProcessingMetrics accumulates one request's stage outcomes. It is owned by
// a single request; the mutex only guards against the detached download
// watcher touching it after the quick-completion window.
type ProcessingMetrics struct {
	mu sync.Mutex

	StartTime      time.Time
	ProcessingTime float64
	TotalCost      float64
	SessionID      string

	// Exactly one of each stage's flags may be true per request: the
	// fallback chain stops at the first success.
	metadata   [3]bool
	transcript [3]bool
	ai         [3]bool

	MP4Success      bool
	MP4DownloadTime float64

	errors   []note
	warnings []note
	retries  int

	// Times the outer pipeline guard converted an unexpected failure into a
	// fallback course. Kept visible instead of silent by design review.
	catchAllFired int
}

func New() *ProcessingMetrics {
	return &ProcessingMetrics{StartTime: time.Now()}
}

func (m *ProcessingMetrics) MarkMetadata(layer int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if layer >= 0 && layer < 3 {
		m.metadata[layer] = ok
	}
}

func (m *ProcessingMetrics) MarkTranscript(layer int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if layer >= 0 && layer < 3 {
		m.transcript[layer] = ok
	}
}

func (m *ProcessingMetrics) MarkAI(layer int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if layer >= 0 && layer < 3 {
		m.ai[layer] = ok
	}
}

func (m *ProcessingMetrics) MarkDownload(ok bool, elapsed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MP4Success = ok
	m.MP4DownloadTime = elapsed
}

func (m *ProcessingMetrics) AddError(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, note{time.Now().UTC().Format(time.RFC3339), text})
}

func (m *ProcessingMetrics) AddWarning(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, note{time.Now().UTC().Format(time.RFC3339), text})
}

func (m *ProcessingMetrics) AddRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *ProcessingMetrics) AddCost(cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalCost += cost
}

// catchAllTotal counts outer-guard activations across the whole process,
// surfaced by the health endpoint.
var catchAllTotal atomic.Int64

func (m *ProcessingMetrics) MarkCatchAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catchAllFired++
	catchAllTotal.Add(1)
}

// CatchAllTotal reports how many times any run's outer guard has fired since
// the process started.
func CatchAllTotal() int64 {
	return catchAllTotal.Load()
}

func (m *ProcessingMetrics) CatchAllCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catchAllFired
}

func (m *ProcessingMetrics) SetProcessingTime(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProcessingTime = seconds
}

func countTrue(flags [3]bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// MetadataSuccessRate is successes over the three attemptable layers.
func (m *ProcessingMetrics) MetadataSuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(countTrue(m.metadata)) / 3
}

func (m *ProcessingMetrics) TranscriptSuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(countTrue(m.transcript)) / 3
}

func (m *ProcessingMetrics) AISuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(countTrue(m.ai)) / 3
}

// OverallSuccessRate weights metadata heaviest: without it the pipeline
// cannot produce anything better than a fallback course.
func (m *ProcessingMetrics) OverallSuccessRate() float64 {
	return m.MetadataSuccessRate()*0.4 + m.TranscriptSuccessRate()*0.3 + m.AISuccessRate()*0.3
}

// ReliabilityGrade is the ratio-based internal grade. It is not the same
// formula as QualityGrade; both are kept deliberately (see DESIGN.md).
func (m *ProcessingMetrics) ReliabilityGrade() string {
	rate := m.OverallSuccessRate()
	switch {
	case rate >= 0.95:
		return "A+"
	case rate >= 0.85:
		return "A"
	case rate >= 0.75:
		return "B"
	case rate >= 0.65:
		return "C"
	default:
		return "D"
	}
}

// QualityGrade is the point-based user-facing letter grade. Higher tiers
// (earlier layers in a chain) score more points, and a well-formed 7-day
// course earns a bonus.
func (m *ProcessingMetrics) QualityGrade(course *models.Course) string {
	m.mu.Lock()
	score := 0

	switch {
	case m.metadata[LayerPrimary]:
		score += 25
	case m.metadata[LayerSecondary]:
		score += 20
	case m.metadata[LayerTertiary]:
		score += 15
	}

	switch {
	case m.transcript[LayerPrimary]:
		score += 25
	case m.transcript[LayerSecondary]:
		score += 20
	case m.transcript[LayerTertiary]:
		score += 15
	}

	switch {
	case m.ai[LayerPrimary]:
		score += 30
	case m.ai[LayerSecondary]:
		score += 25
	case m.ai[LayerTertiary]:
		score += 15
	}
	m.mu.Unlock()

	if course != nil && course.HasSevenDays() {
		score += 20
	}

	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	default:
		return "C"
	}
}

func (m *ProcessingMetrics) CostCategory() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.TotalCost <= 0.75:
		return "Low"
	case m.TotalCost <= 1.50:
		return "Medium"
	default:
		return "High"
	}
}

func (m *ProcessingMetrics) SpeedCategory() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.ProcessingTime <= 60:
		return "Fast"
	case m.ProcessingTime <= 120:
		return "Medium"
	default:
		return "Slow"
	}
}

func tail(notes []note, n int) []note {
	if len(notes) <= n {
		return notes
	}
	return notes[len(notes)-n:]
}

// Snapshot converts the metrics to the persisted/serialized form. The
// metrics must not be mutated after the snapshot is taken for persistence.
func (m *ProcessingMetrics) Snapshot() map[string]interface{} {
	overall := m.OverallSuccessRate()
	metaRate := m.MetadataSuccessRate()
	transRate := m.TranscriptSuccessRate()
	aiRate := m.AISuccessRate()
	reliability := m.ReliabilityGrade()
	cost := m.CostCategory()
	speed := m.SpeedCategory()

	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"processing_time":      m.ProcessingTime,
		"total_cost":           m.TotalCost,
		"cost_category":        cost,
		"speed_category":       speed,
		"reliability_grade":    reliability,
		"overall_success_rate": overall,
		"api_success": map[string]interface{}{
			"youtube_api":           m.metadata[LayerPrimary],
			"backup_api":            m.metadata[LayerSecondary],
			"scraper":               m.metadata[LayerTertiary],
			"metadata_success_rate": metaRate,
		},
		"transcript_success": map[string]interface{}{
			"primary":                 m.transcript[LayerPrimary],
			"backup":                  m.transcript[LayerSecondary],
			"timedtext":               m.transcript[LayerTertiary],
			"transcript_success_rate": transRate,
		},
		"ai_success": map[string]interface{}{
			"openrouter":         m.ai[LayerPrimary],
			"claude":             m.ai[LayerSecondary],
			"fallback_generator": m.ai[LayerTertiary],
			"ai_success_rate":    aiRate,
		},
		"mp4_success":       m.MP4Success,
		"mp4_download_time": m.MP4DownloadTime,
		"quality_metrics": map[string]interface{}{
			"errors_count":    len(m.errors),
			"warnings_count":  len(m.warnings),
			"retries":         m.retries,
			"catch_all_fired": m.catchAllFired,
			"errors":          tail(m.errors, 5),
			"warnings":        tail(m.warnings, 5),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// StageFlags exposes the raw per-layer booleans for persistence.
type StageFlags struct {
	MetadataAPI       bool
	MetadataBackup    bool
	MetadataScrape    bool
	TranscriptPrimary bool
	TranscriptBackup  bool
	TranscriptTimed   bool
	AIPrimary         bool
	AISecondary       bool
	AIFallback        bool
	MP4Success        bool
}

func (m *ProcessingMetrics) Flags() StageFlags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StageFlags{
		MetadataAPI:       m.metadata[LayerPrimary],
		MetadataBackup:    m.metadata[LayerSecondary],
		MetadataScrape:    m.metadata[LayerTertiary],
		TranscriptPrimary: m.transcript[LayerPrimary],
		TranscriptBackup:  m.transcript[LayerSecondary],
		TranscriptTimed:   m.transcript[LayerTertiary],
		AIPrimary:         m.ai[LayerPrimary],
		AISecondary:       m.ai[LayerSecondary],
		AIFallback:        m.ai[LayerTertiary],
		MP4Success:        m.MP4Success,
	}
}

// ErrorsAndWarnings returns the accumulated notes for persistence.
func (m *ProcessingMetrics) ErrorsAndWarnings() (errs, warns []string, retries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.errors {
		errs = append(errs, n.Text)
	}
	for _, n := range m.warnings {
		warns = append(warns, n.Text)
	}
	return errs, warns, m.retries
}
