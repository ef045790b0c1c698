package models

// Result is the structured outcome of one pipeline run, returned to the
// caller whether the run succeeded normally or degraded to a fallback course.
type Result struct {
	Success        bool                   `json:"success"`
	Course         *Course                `json:"course"`
	VideoInfo      *VideoInfo             `json:"video_info"`
	Metrics        map[string]interface{} `json:"metrics"`
	QualityGrade   string                 `json:"quality_score"`
	ProcessingTime float64                `json:"processing_time"`
	CourseID       int64                  `json:"course_id,omitempty"`
	SessionID      string                 `json:"session_id"`
	FallbackUsed   bool                   `json:"fallback_used,omitempty"`
	ErrorReason    string                 `json:"error_reason,omitempty"`
	ProcessingLogs []LogEntry             `json:"processing_logs"`
}

// LogEntry is one human-readable processing-log line for a session.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Step      string `json:"step"`
	Status    string `json:"status"`
	Details   string `json:"details"`
	Level     string `json:"level"`
}
