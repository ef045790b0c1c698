// Package course runs the full video-to-course pipeline: validation,
// metadata, best-effort download, transcript, AI generation, scoring and
// persistence. Past the URL check the pipeline always produces a course;
// every later stage degrades instead of aborting.
package course

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ytcourse/config"
	apperrors "ytcourse/errors"
	"ytcourse/fallback"
	"ytcourse/metrics"
	"ytcourse/models"
	"ytcourse/proclog"
	"ytcourse/repository"
	"ytcourse/services/download"
	"ytcourse/services/metadata"
	"ytcourse/services/transcript"
	"ytcourse/validation"
)

// SessionMeta identifies the requesting client for the session record.
// SessionID is optional; one is generated when the caller does not supply it.
type SessionMeta struct {
	SessionID string
	ClientIP  string
	UserAgent string
}

type Service interface {
	// GenerateCourse returns an error only for an invalid URL or an
	// exhausted pipeline budget. Every other failure mode degrades into
	// a course carried inside the Result.
	GenerateCourse(ctx context.Context, youtubeURL string, meta SessionMeta) (*models.Result, error)
	GetCourse(ctx context.Context, id int64) (*repository.CourseRecord, *models.Course, error)
	ListRecentCourses(ctx context.Context, limit int) ([]*repository.CourseRecord, error)
	GetLogs(ctx context.Context, sessionID string) ([]models.LogEntry, error)
}

type service struct {
	cfg        *config.Config
	validator  *validation.Validator
	metadata   metadata.Service
	transcript transcript.Service
	downloader download.Service
	repo       repository.Repository
	llms       []courseLLM
	log        zerolog.Logger
}

func NewService(
	cfg *config.Config,
	meta metadata.Service,
	trans transcript.Service,
	dl download.Service,
	repo repository.Repository,
	log zerolog.Logger,
) Service {
	return &service{
		cfg:        cfg,
		validator:  validation.NewValidator(cfg),
		metadata:   meta,
		transcript: trans,
		downloader: dl,
		repo:       repo,
		llms: []courseLLM{
			newOpenRouterClient(cfg.AI),
			newClaudeClient(cfg.AI),
		},
		log: log.With().Str("service", "course").Logger(),
	}
}

func (s *service) GenerateCourse(ctx context.Context, youtubeURL string, meta SessionMeta) (*models.Result, error) {
	const op = "CourseService.GenerateCourse"

	sessionID := meta.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	rec := proclog.NewRecorder(sessionID, s.log)
	m := metrics.New()

	// The URL gate is the only hard abort. Nothing has been spent yet and
	// a fallback course for garbage input would be noise.
	rec.Step("VALIDATE_URL", "started", youtubeURL)
	if err := s.validator.ValidateURL(youtubeURL); err != nil {
		rec.Error("VALIDATE_URL", err.Error())
		return nil, err
	}
	videoID, ok := validation.ExtractVideoID(youtubeURL)
	if !ok {
		rec.Error("VALIDATE_URL", "not a recognizable YouTube URL")
		return nil, apperrors.InvalidInput(op, nil, "invalid YouTube URL")
	}
	rec.Step("VALIDATE_URL", "completed", "video id "+videoID)

	if cached := s.reuseExisting(ctx, youtubeURL, rec, sessionID); cached != nil {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Pipeline.Budget)
	defer cancel()

	result := s.runGuarded(ctx, youtubeURL, videoID, sessionID, rec, m)

	if result == nil {
		// Budget exhausted mid-pipeline. Distinct from degradation: the
		// caller is told to retry with a shorter video rather than handed
		// a half-built fallback.
		rec.Error("PIPELINE", "processing budget exhausted")
		return nil, apperrors.Timeout(op, ctx.Err(), "processing took too long, try a shorter video")
	}

	s.persistSession(youtubeURL, sessionID, meta)
	s.persistLogs(rec)
	s.persistMetrics(sessionID, m)
	return result, nil
}

// runGuarded is the catch-all boundary. A panic or unclassified failure
// anywhere past validation is converted into an emergency course and
// counted; only budget exhaustion returns nil.
func (s *service) runGuarded(ctx context.Context, youtubeURL, videoID, sessionID string, rec *proclog.Recorder, m *metrics.ProcessingMetrics) (result *models.Result) {
	// Tracked so the emergency course can report how far the run got.
	var hadInfo, hadTranscript bool

	defer func() {
		if r := recover(); r != nil {
			m.MarkCatchAll()
			m.AddError(fmt.Sprintf("panic: %v", r))
			s.log.Error().Interface("panic", r).Str("session_id", sessionID).Msg("pipeline panicked")
			rec.Error("PIPELINE", "unexpected failure, emergency fallback engaged")
			result = s.emergencyResult(ctx, youtubeURL, sessionID, rec, m, "internal error", hadInfo, hadTranscript)
		}
	}()

	// EXTRACT_METADATA
	rec.Step("EXTRACT_METADATA", "started", "")
	info, _, err := s.metadata.Extract(ctx, videoID, func(name string, index int, aerr error) {
		m.MarkMetadata(index, aerr == nil)
		if aerr != nil {
			m.AddWarning("metadata " + name + ": " + aerr.Error())
			rec.Warn("EXTRACT_METADATA", name+" failed: "+aerr.Error())
		}
	})
	if err != nil {
		if budgetExpired(ctx) {
			return nil
		}
		// Without metadata nothing downstream can personalize; go straight
		// to the emergency course.
		m.AddError("metadata extraction exhausted")
		return s.emergencyResult(ctx, youtubeURL, sessionID, rec, m, "metadata unavailable", false, false)
	}
	hadInfo = true
	rec.Step("EXTRACT_METADATA", "completed", info.Title)

	// DOWNLOAD (best effort, never fatal)
	dlStart := time.Now()
	if err := s.downloader.Download(ctx, rec, info); err != nil {
		if budgetExpired(ctx) {
			return nil
		}
		m.AddWarning("download failed: " + err.Error())
	}
	m.MarkDownload(info.MP4Status == models.DownloadCompleted || info.MP4Status == models.DownloadFallback,
		time.Since(dlStart).Seconds())

	// EXTRACT_TRANSCRIPT
	rec.Step("EXTRACT_TRANSCRIPT", "started", "")
	transcriptText, _, err := s.transcript.Extract(ctx, videoID, func(name string, index int, aerr error) {
		m.MarkTranscript(index, aerr == nil)
		if aerr != nil {
			m.AddWarning("transcript " + name + ": " + aerr.Error())
			rec.Warn("EXTRACT_TRANSCRIPT", name+" failed: "+aerr.Error())
		}
	})
	if err != nil {
		if budgetExpired(ctx) {
			return nil
		}
		// Description substitution: a long description is a workable stand-in
		// for generation purposes.
		if len(info.Description) >= transcript.MinLength {
			transcriptText = info.Description
			rec.Warn("EXTRACT_TRANSCRIPT", "using video description as transcript substitute")
		} else {
			rec.Warn("EXTRACT_TRANSCRIPT", "no transcript available, generating from metadata only")
		}
	} else {
		hadTranscript = true
		rec.Step("EXTRACT_TRANSCRIPT", "completed", fmt.Sprintf("%d chars", len(transcriptText)))
	}

	// GENERATE_COURSE
	rec.Step("GENERATE_COURSE", "started", "")
	courseObj, aiLayer := s.generate(ctx, info, transcriptText, rec, m)
	if courseObj == nil {
		return nil // budget expired inside the AI chain
	}
	rec.Step("GENERATE_COURSE", "completed", courseObj.Title)

	// SCORE
	m.SetProcessingTime(time.Since(m.StartTime).Seconds())
	grade := m.QualityGrade(courseObj)
	rec.Step("SCORE", "completed", fmt.Sprintf("grade %s, reliability %s", grade, m.ReliabilityGrade()))

	result = &models.Result{
		Success:        true,
		Course:         courseObj,
		VideoInfo:      info,
		Metrics:        m.Snapshot(),
		QualityGrade:   grade,
		ProcessingTime: m.ProcessingTime,
		SessionID:      sessionID,
		FallbackUsed:   aiLayer == metrics.LayerTertiary,
	}

	// PERSIST (failure is non-fatal; the caller still gets the course)
	if id, err := s.persistCourse(ctx, result, m); err != nil {
		m.AddWarning("persistence failed: " + err.Error())
		rec.Warn("PERSIST", "could not store course: "+err.Error())
	} else {
		result.CourseID = id
		rec.Step("PERSIST", "completed", fmt.Sprintf("course id %d", id))
	}

	rec.Step("DONE", "completed", "")
	result.ProcessingLogs = rec.Entries()
	return result
}

// generate runs the hosted models in order and lands on the rule-based
// generator, which cannot fail. Returns nil only when the budget expired.
func (s *service) generate(ctx context.Context, info *models.VideoInfo, transcriptText string, rec *proclog.Recorder, m *metrics.ProcessingMetrics) (*models.Course, int) {
	attempts := make([]fallback.Attempt[*models.Course], len(s.llms))
	for i, llm := range s.llms {
		llm := llm
		attempts[i] = fallback.Attempt[*models.Course]{
			Name: llm.Name(),
			Run: func(ctx context.Context) (*models.Course, error) {
				c, cost, err := llm.Generate(ctx, info, transcriptText)
				m.AddCost(cost)
				return c, err
			},
		}
	}

	outcome, err := fallback.Run(ctx, attempts, func(name string, index int, aerr error) {
		m.MarkAI(index, aerr == nil)
		if aerr != nil {
			m.AddWarning("ai " + name + ": " + aerr.Error())
			rec.Warn("GENERATE_COURSE", name+" failed: "+aerr.Error())
		}
	})
	if err == nil {
		return outcome.Value, outcome.Index
	}
	if budgetExpired(ctx) {
		return nil, -1
	}

	rec.Warn("GENERATE_COURSE", "hosted models unavailable, using rule-based generator")
	m.MarkAI(metrics.LayerTertiary, true)
	return generateRuleBased(info, transcriptText), metrics.LayerTertiary
}

// emergencyResult is the outer guard's output: a generic course with a fixed
// B grade, persisted on a best-effort basis like any other.
func (s *service) emergencyResult(ctx context.Context, youtubeURL, sessionID string, rec *proclog.Recorder, m *metrics.ProcessingMetrics, reason string, hadInfo, hadTranscript bool) *models.Result {
	c := buildEmergencyCourse(youtubeURL, reason, hadInfo, hadTranscript)
	m.SetProcessingTime(time.Since(m.StartTime).Seconds())
	rec.Step("FALLBACK_COURSE", "completed", reason)

	result := &models.Result{
		Success:        true,
		Course:         c,
		Metrics:        m.Snapshot(),
		QualityGrade:   "B",
		ProcessingTime: m.ProcessingTime,
		SessionID:      sessionID,
		FallbackUsed:   true,
		ErrorReason:    reason,
	}

	if id, err := s.persistCourse(ctx, result, m); err == nil {
		result.CourseID = id
	}
	result.ProcessingLogs = rec.Entries()
	return result
}

// reuseExisting short-circuits repeat requests for a URL already processed.
func (s *service) reuseExisting(ctx context.Context, youtubeURL string, rec *proclog.Recorder, sessionID string) *models.Result {
	stored, err := s.repo.GetCourseByURL(ctx, youtubeURL)
	if err != nil || stored == nil {
		return nil
	}
	// The repository already filters these out; guard again so a fallback
	// or emergency row can never pin itself to the URL.
	if stored.FallbackUsed || (stored.Status != "" && stored.Status != repository.CourseStatusCompleted) {
		return nil
	}

	var c models.Course
	if err := json.Unmarshal([]byte(stored.CourseJSON), &c); err != nil {
		s.log.Warn().Err(err).Int64("course_id", stored.ID).Msg("stored course is unreadable, regenerating")
		return nil
	}

	var info *models.VideoInfo
	if stored.VideoInfoJSON != "" {
		info = &models.VideoInfo{}
		if err := json.Unmarshal([]byte(stored.VideoInfoJSON), info); err != nil {
			info = nil
		}
	}
	var metricsMap map[string]interface{}
	if stored.MetricsJSON != "" {
		_ = json.Unmarshal([]byte(stored.MetricsJSON), &metricsMap)
	}

	rec.Step("REUSE", "completed", fmt.Sprintf("returning stored course %d", stored.ID))
	return &models.Result{
		Success:        true,
		Course:         &c,
		VideoInfo:      info,
		Metrics:        metricsMap,
		QualityGrade:   stored.QualityGrade,
		ProcessingTime: stored.ProcessingTime,
		CourseID:       stored.ID,
		SessionID:      sessionID,
		FallbackUsed:   stored.FallbackUsed,
		ProcessingLogs: rec.Entries(),
	}
}

func (s *service) persistCourse(ctx context.Context, result *models.Result, m *metrics.ProcessingMetrics) (int64, error) {
	courseJSON, err := json.Marshal(result.Course)
	if err != nil {
		return 0, err
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return 0, err
	}

	status := repository.CourseStatusCompleted
	if result.ErrorReason != "" {
		status = repository.CourseStatusEmergency
	}

	rec := &repository.CourseRecord{
		SessionID:        result.SessionID,
		YouTubeURL:       result.Course.YouTubeURL,
		Title:            result.Course.Title,
		Status:           status,
		CourseJSON:       string(courseJSON),
		MetricsJSON:      string(metricsJSON),
		QualityGrade:     result.QualityGrade,
		ReliabilityGrade: m.ReliabilityGrade(),
		CostCategory:     m.CostCategory(),
		SpeedCategory:    m.SpeedCategory(),
		ProcessingTime:   result.ProcessingTime,
		TotalCost:        m.TotalCost,
		FallbackUsed:     result.FallbackUsed,
	}
	if result.VideoInfo != nil {
		infoJSON, err := json.Marshal(result.VideoInfo)
		if err == nil {
			rec.VideoInfoJSON = string(infoJSON)
		}
		rec.VideoID = result.VideoInfo.ID
		rec.Author = result.VideoInfo.Author
		rec.MP4URL = result.VideoInfo.MP4URL
		rec.MP4Status = string(result.VideoInfo.MP4Status)
		rec.MP4FileSize = result.VideoInfo.MP4FileSize
		rec.DownloadRunID = result.VideoInfo.DownloadRunID
	}

	// Persistence must survive budget expiry; the course already exists.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	return s.repo.SaveCourse(ctx, rec)
}

func (s *service) persistSession(youtubeURL, sessionID string, meta SessionMeta) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.repo.SaveSession(ctx, &repository.SessionRecord{
		SessionID:  sessionID,
		YouTubeURL: youtubeURL,
		ClientIP:   meta.ClientIP,
		UserAgent:  meta.UserAgent,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("saving session failed")
	}
}

func (s *service) persistLogs(rec *proclog.Recorder) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.SaveLogs(ctx, rec.Entries()); err != nil {
		s.log.Warn().Err(err).Str("session_id", rec.SessionID()).Msg("saving processing logs failed")
	}
}

// persistMetrics flattens the run's per-layer flags into their own table so
// chain health is queryable without unpacking the course row's metrics JSON.
func (s *service) persistMetrics(sessionID string, m *metrics.ProcessingMetrics) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	flags := m.Flags()
	errs, warns, retries := m.ErrorsAndWarnings()
	errsJSON, _ := json.Marshal(errs)
	warnsJSON, _ := json.Marshal(warns)

	rec := &repository.MetricsRecord{
		SessionID:         sessionID,
		MetadataAPI:       flags.MetadataAPI,
		MetadataBackup:    flags.MetadataBackup,
		MetadataScrape:    flags.MetadataScrape,
		TranscriptPrimary: flags.TranscriptPrimary,
		TranscriptBackup:  flags.TranscriptBackup,
		TranscriptTimed:   flags.TranscriptTimed,
		AIPrimary:         flags.AIPrimary,
		AISecondary:       flags.AISecondary,
		AIFallback:        flags.AIFallback,
		MP4Success:        flags.MP4Success,
		ErrorsJSON:        string(errsJSON),
		WarningsJSON:      string(warnsJSON),
		Retries:           retries,
	}
	if err := s.repo.SaveMetrics(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("saving pipeline metrics failed")
	}
}

func (s *service) GetCourse(ctx context.Context, id int64) (*repository.CourseRecord, *models.Course, error) {
	const op = "CourseService.GetCourse"

	stored, err := s.repo.GetCourse(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	var c models.Course
	if err := json.Unmarshal([]byte(stored.CourseJSON), &c); err != nil {
		return nil, nil, apperrors.Internal(op, err, "stored course is unreadable")
	}
	return stored, &c, nil
}

func (s *service) ListRecentCourses(ctx context.Context, limit int) ([]*repository.CourseRecord, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.repo.ListRecentCourses(ctx, limit)
}

func (s *service) GetLogs(ctx context.Context, sessionID string) ([]models.LogEntry, error) {
	return s.repo.GetLogsBySession(ctx, sessionID)
}

func budgetExpired(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
