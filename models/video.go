package models

// DownloadStatus tracks the MP4 copy of a video through its lifecycle.
type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadRunning   DownloadStatus = "background_processing"
	DownloadCompleted DownloadStatus = "completed"
	DownloadFallback  DownloadStatus = "completed_fallback"
	DownloadFailed    DownloadStatus = "failed"
)

// VideoInfo is built up additively as the pipeline runs: the metadata stage
// fills the descriptive fields, the download stage attaches the MP4 and
// mirror fields. The ID never changes once extracted.
type VideoInfo struct {
	ID           string   `json:"video_id"`
	URL          string   `json:"youtube_url"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	Description  string   `json:"description"`
	Duration     string   `json:"duration"`
	ViewCount    int64    `json:"view_count"`
	PublishedAt  string   `json:"published_at"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Tags         []string `json:"tags,omitempty"`

	// Download outcome, merged in regardless of which path produced it.
	MP4URL        string         `json:"mp4_video_url,omitempty"`
	MP4FileSize   int64          `json:"mp4_file_size,omitempty"`
	MP4Status     DownloadStatus `json:"mp4_download_status,omitempty"`
	DownloadRunID string         `json:"download_run_id,omitempty"`

	// Cloud mirror outcome, empty when the mirror is not configured.
	MirrorURL      string `json:"mirror_url,omitempty"`
	MirrorPublicID string `json:"mirror_public_id,omitempty"`
	MirrorStatus   string `json:"mirror_status,omitempty"`
}
