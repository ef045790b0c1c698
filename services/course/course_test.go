package course

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcourse/config"
	apperrors "ytcourse/errors"
	"ytcourse/fallback"
	"ytcourse/models"
	"ytcourse/proclog"
	"ytcourse/repository"
	"ytcourse/validation"
)

const testURL = "https://www.youtube.com/watch?v=abc123DEF45"

type fakeMetadata struct {
	info   *models.VideoInfo
	err    error
	panics bool
	calls  int
}

func (f *fakeMetadata) Extract(ctx context.Context, videoID string, observe fallback.Observer) (*models.VideoInfo, int, error) {
	f.calls++
	if f.panics {
		panic("metadata blew up")
	}
	if f.err != nil {
		if observe != nil {
			observe("youtube_api", 0, f.err)
			observe("oembed", 1, f.err)
			observe("scraper", 2, f.err)
		}
		return nil, -1, f.err
	}
	if observe != nil {
		observe("youtube_api", 0, nil)
	}
	return f.info, 0, nil
}

type fakeTranscript struct {
	text string
	err  error
}

func (f *fakeTranscript) Extract(ctx context.Context, videoID string, observe fallback.Observer) (string, int, error) {
	if f.err != nil {
		if observe != nil {
			observe("captions_index", 0, f.err)
			observe("backup_source", 1, f.err)
			observe("timedtext", 2, f.err)
		}
		return "", -1, f.err
	}
	if observe != nil {
		observe("captions_index", 0, nil)
	}
	return f.text, 0, nil
}

type fakeDownloader struct {
	err error
}

func (f *fakeDownloader) Download(ctx context.Context, rec *proclog.Recorder, info *models.VideoInfo) error {
	if f.err != nil {
		info.MP4Status = models.DownloadFailed
		return f.err
	}
	info.MP4Status = models.DownloadCompleted
	info.MP4URL = "https://cdn.example.com/v.mp4"
	return nil
}

func (f *fakeDownloader) Wait() {}

type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	saved    []*repository.CourseRecord
	byURL    *repository.CourseRecord
	saveErr  error
	logs     []models.LogEntry
	sessions []*repository.SessionRecord
	metrics  []*repository.MetricsRecord
}

func (f *fakeRepo) SaveCourse(ctx context.Context, rec *repository.CourseRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.nextID++
	rec.ID = f.nextID
	f.saved = append(f.saved, rec)
	return f.nextID, nil
}

func (f *fakeRepo) GetCourse(ctx context.Context, id int64) (*repository.CourseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NotFound("fakeRepo.GetCourse", nil, "course not found")
}

func (f *fakeRepo) GetCourseByURL(ctx context.Context, url string) (*repository.CourseRecord, error) {
	if f.byURL == nil {
		return nil, apperrors.NotFound("fakeRepo.GetCourseByURL", nil, "course not found")
	}
	return f.byURL, nil
}

func (f *fakeRepo) ListRecentCourses(ctx context.Context, limit int) ([]*repository.CourseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func (f *fakeRepo) SaveLogs(ctx context.Context, entries []models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entries...)
	return nil
}

func (f *fakeRepo) GetLogsBySession(ctx context.Context, sessionID string) ([]models.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, nil
}

func (f *fakeRepo) SaveMetrics(ctx context.Context, rec *repository.MetricsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, rec)
	return nil
}

func (f *fakeRepo) SaveSession(ctx context.Context, rec *repository.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, rec)
	return nil
}

func (f *fakeRepo) UpdateDownload(ctx context.Context, videoID string, status models.DownloadStatus, mp4URL string, fileSize int64, runID string) error {
	return nil
}

func (f *fakeRepo) Close() error { return nil }

type fakeLLM struct {
	name       string
	err        error
	cost       float64
	transcript string
}

func (f *fakeLLM) Name() string { return f.name }

func (f *fakeLLM) Generate(ctx context.Context, info *models.VideoInfo, transcript string) (*models.Course, float64, error) {
	f.transcript = transcript
	if f.err != nil {
		return nil, f.cost, f.err
	}
	c := &models.Course{
		Title:      "7-Day Course: " + info.Title,
		YouTubeURL: info.URL,
	}
	c.Normalize()
	return c, f.cost, nil
}

func testInfo() *models.VideoInfo {
	return &models.VideoInfo{
		ID:          "abc123DEF45",
		URL:         testURL,
		Title:       "Go Tutorial for Beginners",
		Author:      "GopherCon",
		Description: strings.Repeat("a detailed description of the video content ", 5),
	}
}

func newTestService(meta *fakeMetadata, trans *fakeTranscript, dl *fakeDownloader, repo *fakeRepo, llms ...courseLLM) *service {
	cfg := &config.Config{}
	cfg.Pipeline.Budget = 5 * time.Second
	return &service{
		cfg:        cfg,
		validator:  validation.NewValidator(cfg),
		metadata:   meta,
		transcript: trans,
		downloader: dl,
		repo:       repo,
		llms:       llms,
		log:        zerolog.Nop(),
	}
}

func TestGenerateCourseHappyPath(t *testing.T) {
	repo := &fakeRepo{}
	primary := &fakeLLM{name: "openrouter", cost: 0.01}
	svc := newTestService(
		&fakeMetadata{info: testInfo()},
		&fakeTranscript{text: strings.Repeat("transcript words ", 20)},
		&fakeDownloader{},
		repo,
		primary,
		&fakeLLM{name: "claude"},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{ClientIP: "1.2.3.4"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, "A+", res.QualityGrade)
	assert.True(t, res.Course.HasSevenDays())
	assert.Equal(t, int64(1), res.CourseID)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.ProcessingLogs)

	require.Len(t, repo.saved, 1)
	assert.Equal(t, "abc123DEF45", repo.saved[0].VideoID)
	assert.InDelta(t, 0.01, repo.saved[0].TotalCost, 1e-9)

	// The per-layer flags land in their own record.
	require.Len(t, repo.metrics, 1)
	assert.True(t, repo.metrics[0].AIPrimary)
	assert.False(t, repo.metrics[0].AIFallback)
	assert.Equal(t, res.SessionID, repo.metrics[0].SessionID)
}

func TestGenerateCourseHonorsCallerSessionID(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(
		&fakeMetadata{info: testInfo()},
		&fakeTranscript{text: strings.Repeat("transcript words ", 20)},
		&fakeDownloader{},
		repo,
		&fakeLLM{name: "openrouter", cost: 0.01},
		&fakeLLM{name: "claude"},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{SessionID: "caller-session-1"})
	require.NoError(t, err)
	assert.Equal(t, "caller-session-1", res.SessionID)
	require.Len(t, repo.sessions, 1)
	assert.Equal(t, "caller-session-1", repo.sessions[0].SessionID)
}

func TestGenerateCourseSecondaryModelWins(t *testing.T) {
	secondary := &fakeLLM{name: "claude", cost: 0.02}
	svc := newTestService(
		&fakeMetadata{info: testInfo()},
		&fakeTranscript{text: strings.Repeat("words ", 30)},
		&fakeDownloader{},
		&fakeRepo{},
		&fakeLLM{name: "openrouter", err: errors.New("rate limited")},
		secondary,
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)
	assert.False(t, res.FallbackUsed)
	// 25 metadata + 25 transcript + 25 secondary AI + 20 structure = 95.
	assert.Equal(t, "A+", res.QualityGrade)
	assert.NotEmpty(t, secondary.transcript)
}

func TestGenerateCourseRuleBasedTerminal(t *testing.T) {
	svc := newTestService(
		&fakeMetadata{info: testInfo()},
		&fakeTranscript{text: strings.Repeat("words ", 30)},
		&fakeDownloader{},
		&fakeRepo{},
		&fakeLLM{name: "openrouter", err: errors.New("down")},
		&fakeLLM{name: "claude", err: errors.New("down")},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.True(t, res.Course.HasSevenDays())
	assert.Nil(t, res.Course.FallbackInfo)
	// 25 + 25 + 15 terminal AI + 20 structure = 85.
	assert.Equal(t, "A", res.QualityGrade)
}

func TestGenerateCourseMetadataExhaustedYieldsEmergency(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(
		&fakeMetadata{err: errors.New("everything down")},
		&fakeTranscript{},
		&fakeDownloader{},
		repo,
		&fakeLLM{name: "openrouter"},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, "B", res.QualityGrade)
	assert.Equal(t, "metadata unavailable", res.ErrorReason)
	require.NotNil(t, res.Course.FallbackInfo)
	assert.Equal(t, "emergency_fallback", res.Course.FallbackInfo.GeneratedBy)
	assert.True(t, res.Course.HasSevenDays())
	require.Len(t, repo.saved, 1)
	assert.Equal(t, repository.CourseStatusEmergency, repo.saved[0].Status)
}

func TestGenerateCourseInvalidURLAborts(t *testing.T) {
	meta := &fakeMetadata{info: testInfo()}
	svc := newTestService(meta, &fakeTranscript{}, &fakeDownloader{}, &fakeRepo{}, &fakeLLM{name: "openrouter"})

	_, err := svc.GenerateCourse(context.Background(), "https://vimeo.com/12345", SessionMeta{})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
	assert.Equal(t, 0, meta.calls)
}

func TestGenerateCoursePanicHitsCatchAll(t *testing.T) {
	svc := newTestService(
		&fakeMetadata{panics: true},
		&fakeTranscript{},
		&fakeDownloader{},
		&fakeRepo{},
		&fakeLLM{name: "openrouter"},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)

	assert.True(t, res.FallbackUsed)
	assert.Equal(t, "internal error", res.ErrorReason)
	qm := res.Metrics["quality_metrics"].(map[string]interface{})
	assert.Equal(t, 1, qm["catch_all_fired"])
}

func TestGenerateCourseDescriptionSubstitution(t *testing.T) {
	llm := &fakeLLM{name: "openrouter"}
	info := testInfo()
	svc := newTestService(
		&fakeMetadata{info: info},
		&fakeTranscript{err: errors.New("no captions anywhere")},
		&fakeDownloader{},
		&fakeRepo{},
		llm,
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, info.Description, llm.transcript)
}

func TestGenerateCourseDownloadFailureIsNonFatal(t *testing.T) {
	svc := newTestService(
		&fakeMetadata{info: testInfo()},
		&fakeTranscript{text: strings.Repeat("words ", 30)},
		&fakeDownloader{err: errors.New("all download paths failed")},
		&fakeRepo{},
		&fakeLLM{name: "openrouter"},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Metrics["mp4_success"].(bool))
}

func TestGenerateCoursePersistenceFailureIsNonFatal(t *testing.T) {
	svc := newTestService(
		&fakeMetadata{info: testInfo()},
		&fakeTranscript{text: strings.Repeat("words ", 30)},
		&fakeDownloader{},
		&fakeRepo{saveErr: errors.New("disk full")},
		&fakeLLM{name: "openrouter"},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.CourseID)
}

func TestGenerateCourseReusesStoredCourse(t *testing.T) {
	meta := &fakeMetadata{info: testInfo()}
	repo := &fakeRepo{
		byURL: &repository.CourseRecord{
			ID:           7,
			YouTubeURL:   testURL,
			CourseJSON:   `{"course_title":"Stored Course","days":[]}`,
			QualityGrade: "A",
		},
	}
	svc := newTestService(meta, &fakeTranscript{}, &fakeDownloader{}, repo, &fakeLLM{name: "openrouter"})

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.CourseID)
	assert.Equal(t, "Stored Course", res.Course.Title)
	assert.Equal(t, "A", res.QualityGrade)
	assert.Equal(t, 0, meta.calls)
}

func TestGenerateCourseDoesNotReuseEmergencyCourse(t *testing.T) {
	meta := &fakeMetadata{info: testInfo()}
	repo := &fakeRepo{
		byURL: &repository.CourseRecord{
			ID:           7,
			YouTubeURL:   testURL,
			Status:       repository.CourseStatusEmergency,
			FallbackUsed: true,
			CourseJSON:   `{"course_title":"Emergency Course","days":[]}`,
			QualityGrade: "B",
		},
	}
	svc := newTestService(
		meta,
		&fakeTranscript{text: strings.Repeat("transcript words ", 20)},
		&fakeDownloader{},
		repo,
		&fakeLLM{name: "openrouter", cost: 0.01},
	)

	res, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.NoError(t, err)

	// The stored emergency row is ignored and a fresh course is generated.
	assert.Equal(t, 1, meta.calls)
	assert.NotEqual(t, "Emergency Course", res.Course.Title)
	assert.False(t, res.FallbackUsed)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, repository.CourseStatusCompleted, repo.saved[0].Status)
}

func TestGenerateCourseBudgetExpiryIsTimeout(t *testing.T) {
	slowMeta := &fakeMetadata{err: context.DeadlineExceeded}
	svc := newTestService(slowMeta, &fakeTranscript{}, &fakeDownloader{}, &fakeRepo{}, &fakeLLM{name: "openrouter"})
	svc.cfg.Pipeline.Budget = time.Nanosecond

	_, err := svc.GenerateCourse(context.Background(), testURL, SessionMeta{})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 504, appErr.Code)
}

func TestRuleBasedGeneratorIsDeterministic(t *testing.T) {
	info := testInfo()
	transcript := strings.Repeat("deterministic transcript text ", 40)

	a := generateRuleBased(info, transcript)
	b := generateRuleBased(info, transcript)
	assert.Equal(t, a, b)
}

func TestRuleBasedGeneratorClassification(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Go Tutorial for Beginners step by step", "tutorial"},
		{"Database internals and architecture", "technical"},
		{"Watercolor painting and drawing basics", "creative"},
		{"Startup marketing strategy", "business"},
		{"The history of Rome explained", "educational"},
		{"My day at the beach", "general"},
	}
	for _, tt := range tests {
		got := classify(&models.VideoInfo{Title: tt.title})
		assert.Equal(t, tt.want, got.name, tt.title)
	}
}

func TestRuleBasedGeneratorAlwaysSevenDays(t *testing.T) {
	c := generateRuleBased(&models.VideoInfo{Title: "x", URL: testURL}, "")
	assert.True(t, c.HasSevenDays())
	for i, d := range c.Days {
		assert.Equal(t, i+1, d.Day)
		assert.NotEmpty(t, d.Title)
		assert.NotEmpty(t, d.Activities)
		assert.NotEmpty(t, d.Homework)
	}
}

func TestParseCourse(t *testing.T) {
	c, err := parseCourse(`Here is your course: {"course_title":"T","days":[{"day":1,"title":"Day 1"}]} enjoy!`)
	require.NoError(t, err)
	assert.Equal(t, "T", c.Title)
	assert.True(t, c.HasSevenDays())

	_, err = parseCourse("no json here")
	assert.Error(t, err)

	_, err = parseCourse(`{"unrelated":true}`)
	assert.Error(t, err)
}
