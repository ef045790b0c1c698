// Package sqlite implements the repository on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"ytcourse/config"
	apperrors "ytcourse/errors"
	"ytcourse/models"
	"ytcourse/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS courses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	youtube_url TEXT NOT NULL,
	video_id TEXT,
	title TEXT,
	author TEXT,
	status TEXT NOT NULL DEFAULT 'completed',
	course_json TEXT NOT NULL,
	video_info_json TEXT,
	metrics_json TEXT,
	quality_grade TEXT,
	reliability_grade TEXT,
	cost_category TEXT,
	speed_category TEXT,
	processing_time REAL,
	total_cost REAL,
	fallback_used INTEGER NOT NULL DEFAULT 0,
	mp4_url TEXT,
	mp4_status TEXT,
	mp4_file_size INTEGER,
	download_run_id TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_courses_youtube_url ON courses(youtube_url);
CREATE INDEX IF NOT EXISTS idx_courses_video_id ON courses(video_id);

CREATE TABLE IF NOT EXISTS processing_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	step TEXT NOT NULL,
	status TEXT,
	details TEXT,
	level TEXT,
	logged_at TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_logs_session ON processing_logs(session_id);

CREATE TABLE IF NOT EXISTS pipeline_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	metadata_api INTEGER NOT NULL DEFAULT 0,
	metadata_backup INTEGER NOT NULL DEFAULT 0,
	metadata_scrape INTEGER NOT NULL DEFAULT 0,
	transcript_primary INTEGER NOT NULL DEFAULT 0,
	transcript_backup INTEGER NOT NULL DEFAULT 0,
	transcript_timedtext INTEGER NOT NULL DEFAULT 0,
	ai_primary INTEGER NOT NULL DEFAULT 0,
	ai_secondary INTEGER NOT NULL DEFAULT 0,
	ai_fallback INTEGER NOT NULL DEFAULT 0,
	mp4_success INTEGER NOT NULL DEFAULT 0,
	errors_json TEXT,
	warnings_json TEXT,
	retries INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_metrics_session ON pipeline_metrics(session_id);

CREATE TABLE IF NOT EXISTS user_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL UNIQUE,
	youtube_url TEXT,
	client_ip TEXT,
	user_agent TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (or creates) the database, applies pragmas and the schema, and
// returns a ready repository.
func New(cfg config.DatabaseConfig, log zerolog.Logger) (*Repository, error) {
	const op = "sqlite.New"

	dsn := cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.Internal(op, err, "opening database")
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Internal(op, err, "connecting to database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Internal(op, err, "applying schema")
	}

	return &Repository{db: db, log: log.With().Str("component", "sqlite").Logger()}, nil
}

// withRetry re-runs fn on transient lock errors. WAL mode makes these rare
// but the background download watcher writes concurrently with requests.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn()
		if err == nil || !isLockError(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func (r *Repository) SaveCourse(ctx context.Context, rec *repository.CourseRecord) (int64, error) {
	const op = "sqlite.SaveCourse"

	var id int64
	err := withRetry(func() error {
		if rec.Status == "" {
			rec.Status = repository.CourseStatusCompleted
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO courses (
				session_id, youtube_url, video_id, title, author, status,
				course_json, video_info_json, metrics_json,
				quality_grade, reliability_grade, cost_category, speed_category,
				processing_time, total_cost, fallback_used,
				mp4_url, mp4_status, mp4_file_size, download_run_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.YouTubeURL, rec.VideoID, rec.Title, rec.Author,
			rec.Status, rec.CourseJSON, rec.VideoInfoJSON, rec.MetricsJSON,
			rec.QualityGrade, rec.ReliabilityGrade, rec.CostCategory, rec.SpeedCategory,
			rec.ProcessingTime, rec.TotalCost, rec.FallbackUsed,
			rec.MP4URL, rec.MP4Status, rec.MP4FileSize, rec.DownloadRunID,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, apperrors.Internal(op, err, "saving course")
	}
	rec.ID = id
	return id, nil
}

const courseColumns = `
	id, session_id, youtube_url, video_id, title, author, status,
	course_json, video_info_json, metrics_json,
	quality_grade, reliability_grade, cost_category, speed_category,
	processing_time, total_cost, fallback_used,
	mp4_url, mp4_status, mp4_file_size, download_run_id, created_at`

func (r *Repository) scanCourse(row interface{ Scan(...interface{}) error }) (*repository.CourseRecord, error) {
	var rec repository.CourseRecord
	var videoID, title, author, videoInfoJSON, metricsJSON sql.NullString
	var quality, reliability, costCat, speedCat sql.NullString
	var procTime, totalCost sql.NullFloat64
	var mp4URL, mp4Status, runID sql.NullString
	var mp4Size sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.YouTubeURL, &videoID, &title, &author,
		&rec.Status, &rec.CourseJSON, &videoInfoJSON, &metricsJSON,
		&quality, &reliability, &costCat, &speedCat,
		&procTime, &totalCost, &rec.FallbackUsed,
		&mp4URL, &mp4Status, &mp4Size, &runID, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.VideoID = videoID.String
	rec.Title = title.String
	rec.Author = author.String
	rec.VideoInfoJSON = videoInfoJSON.String
	rec.MetricsJSON = metricsJSON.String
	rec.QualityGrade = quality.String
	rec.ReliabilityGrade = reliability.String
	rec.CostCategory = costCat.String
	rec.SpeedCategory = speedCat.String
	rec.ProcessingTime = procTime.Float64
	rec.TotalCost = totalCost.Float64
	rec.MP4URL = mp4URL.String
	rec.MP4Status = mp4Status.String
	rec.MP4FileSize = mp4Size.Int64
	rec.DownloadRunID = runID.String
	return &rec, nil
}

func (r *Repository) GetCourse(ctx context.Context, id int64) (*repository.CourseRecord, error) {
	const op = "sqlite.GetCourse"

	row := r.db.QueryRowContext(ctx, `SELECT`+courseColumns+` FROM courses WHERE id = ?`, id)
	rec, err := r.scanCourse(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(op, err, "course not found")
	}
	if err != nil {
		return nil, apperrors.Internal(op, err, "loading course")
	}
	return rec, nil
}

func (r *Repository) GetCourseByURL(ctx context.Context, youtubeURL string) (*repository.CourseRecord, error) {
	const op = "sqlite.GetCourseByURL"

	row := r.db.QueryRowContext(ctx, `
		SELECT`+courseColumns+`
		FROM courses
		WHERE youtube_url = ? AND status = ? AND fallback_used = 0
		ORDER BY id DESC LIMIT 1`,
		youtubeURL, repository.CourseStatusCompleted)
	rec, err := r.scanCourse(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(op, err, "course not found")
	}
	if err != nil {
		return nil, apperrors.Internal(op, err, "loading course")
	}
	return rec, nil
}

func (r *Repository) ListRecentCourses(ctx context.Context, limit int) ([]*repository.CourseRecord, error) {
	const op = "sqlite.ListRecentCourses"

	rows, err := r.db.QueryContext(ctx,
		`SELECT`+courseColumns+` FROM courses ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Internal(op, err, "listing courses")
	}
	defer rows.Close()

	var out []*repository.CourseRecord
	for rows.Next() {
		rec, err := r.scanCourse(rows)
		if err != nil {
			return nil, apperrors.Internal(op, err, "scanning course row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(op, err, "iterating course rows")
	}
	return out, nil
}

func (r *Repository) SaveLogs(ctx context.Context, entries []models.LogEntry) error {
	const op = "sqlite.SaveLogs"

	if len(entries) == 0 {
		return nil
	}

	err := withRetry(func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO processing_logs (session_id, step, status, details, level, logged_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.SessionID, e.Step, e.Status, e.Details, e.Level, e.Timestamp); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return apperrors.Internal(op, err, "saving processing logs")
	}
	return nil
}

func (r *Repository) GetLogsBySession(ctx context.Context, sessionID string) ([]models.LogEntry, error) {
	const op = "sqlite.GetLogsBySession"

	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, step, status, details, level, logged_at
		FROM processing_logs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, apperrors.Internal(op, err, "loading processing logs")
	}
	defer rows.Close()

	var out []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var status, details, level, loggedAt sql.NullString
		if err := rows.Scan(&e.SessionID, &e.Step, &status, &details, &level, &loggedAt); err != nil {
			return nil, apperrors.Internal(op, err, "scanning log row")
		}
		e.Status = status.String
		e.Details = details.String
		e.Level = level.String
		e.Timestamp = loggedAt.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(op, err, "iterating log rows")
	}
	return out, nil
}

func (r *Repository) SaveSession(ctx context.Context, rec *repository.SessionRecord) error {
	const op = "sqlite.SaveSession"

	err := withRetry(func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO user_sessions (session_id, youtube_url, client_ip, user_agent)
			VALUES (?, ?, ?, ?)`,
			rec.SessionID, rec.YouTubeURL, rec.ClientIP, rec.UserAgent)
		return err
	})
	if err != nil {
		return apperrors.Internal(op, err, "saving session")
	}
	return nil
}

func (r *Repository) SaveMetrics(ctx context.Context, rec *repository.MetricsRecord) error {
	const op = "sqlite.SaveMetrics"

	err := withRetry(func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO pipeline_metrics (
				session_id,
				metadata_api, metadata_backup, metadata_scrape,
				transcript_primary, transcript_backup, transcript_timedtext,
				ai_primary, ai_secondary, ai_fallback,
				mp4_success, errors_json, warnings_json, retries
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID,
			rec.MetadataAPI, rec.MetadataBackup, rec.MetadataScrape,
			rec.TranscriptPrimary, rec.TranscriptBackup, rec.TranscriptTimed,
			rec.AIPrimary, rec.AISecondary, rec.AIFallback,
			rec.MP4Success, rec.ErrorsJSON, rec.WarningsJSON, rec.Retries)
		return err
	})
	if err != nil {
		return apperrors.Internal(op, err, "saving pipeline metrics")
	}
	return nil
}

func (r *Repository) UpdateDownload(ctx context.Context, videoID string, status models.DownloadStatus, mp4URL string, fileSize int64, runID string) error {
	const op = "sqlite.UpdateDownload"

	err := withRetry(func() error {
		_, err := r.db.ExecContext(ctx, `
			UPDATE courses
			SET mp4_status = ?, mp4_url = ?, mp4_file_size = ?, download_run_id = ?
			WHERE video_id = ?`,
			string(status), mp4URL, fileSize, runID, videoID)
		return err
	})
	if err != nil {
		return apperrors.Internal(op, err, "updating download state")
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
