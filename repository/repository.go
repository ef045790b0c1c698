// Package repository defines the persistence surface for generated courses,
// processing logs and user sessions.
package repository

import (
	"context"
	"time"

	"ytcourse/models"
)

// Course row statuses. Emergency rows record that an outage produced a
// generic course; they are never served to later requests for the same URL.
const (
	CourseStatusCompleted = "completed"
	CourseStatusEmergency = "emergency"
)

// CourseRecord is a stored course plus the run metadata it was produced
// with. The course, video info and metrics are stored as JSON documents.
type CourseRecord struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	YouTubeURL       string    `json:"youtube_url"`
	VideoID          string    `json:"video_id"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	Status           string    `json:"status"`
	CourseJSON       string    `json:"-"`
	VideoInfoJSON    string    `json:"-"`
	MetricsJSON      string    `json:"-"`
	QualityGrade     string    `json:"quality_grade"`
	ReliabilityGrade string    `json:"reliability_grade"`
	CostCategory     string    `json:"cost_category"`
	SpeedCategory    string    `json:"speed_category"`
	ProcessingTime   float64   `json:"processing_time"`
	TotalCost        float64   `json:"total_cost"`
	FallbackUsed     bool      `json:"fallback_used"`
	MP4URL           string    `json:"mp4_url,omitempty"`
	MP4Status        string    `json:"mp4_status,omitempty"`
	MP4FileSize      int64     `json:"mp4_file_size,omitempty"`
	DownloadRunID    string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// MetricsRecord captures one run's per-layer outcome flags and accumulated
// notes, keyed by session. Errors and warnings are stored as JSON arrays.
type MetricsRecord struct {
	SessionID         string
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
	ErrorsJSON        string
	WarningsJSON      string
	Retries           int
	CreatedAt         time.Time
}

// SessionRecord ties a processing session to the requesting client.
type SessionRecord struct {
	SessionID  string
	YouTubeURL string
	ClientIP   string
	UserAgent  string
	CreatedAt  time.Time
}

type Repository interface {
	SaveCourse(ctx context.Context, rec *CourseRecord) (int64, error)
	GetCourse(ctx context.Context, id int64) (*CourseRecord, error)
	// GetCourseByURL returns the most recent completed, non-fallback
	// course for a URL, or a NotFound error when none exists. Fallback and
	// emergency rows are skipped so a degraded run never pins its output
	// to the URL.
	GetCourseByURL(ctx context.Context, youtubeURL string) (*CourseRecord, error)
	ListRecentCourses(ctx context.Context, limit int) ([]*CourseRecord, error)

	SaveLogs(ctx context.Context, entries []models.LogEntry) error
	GetLogsBySession(ctx context.Context, sessionID string) ([]models.LogEntry, error)

	SaveSession(ctx context.Context, rec *SessionRecord) error

	SaveMetrics(ctx context.Context, rec *MetricsRecord) error

	// UpdateDownload patches the download columns of every course row for
	// a video. Used by the background watcher after the response has gone
	// out.
	UpdateDownload(ctx context.Context, videoID string, status models.DownloadStatus, mp4URL string, fileSize int64, runID string) error

	Close() error
}
