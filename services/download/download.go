// Package download obtains an MP4 copy of the video. The hosted actor is
// tried first with a short quick-completion window; runs that outlast the
// window are handed to a background watcher so the pipeline never blocks on
// a slow download. yt-dlp is the self-hosted fallback, and a configured
// object-storage mirror receives local files opportunistically.
package download

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ytcourse/config"
	"ytcourse/models"
	"ytcourse/proclog"
	"ytcourse/storage"
)

// Store is the persistence surface the background watcher patches when a
// run finishes after the API response has already been sent.
type Store interface {
	UpdateDownload(ctx context.Context, videoID string, status models.DownloadStatus, mp4URL string, fileSize int64, runID string) error
}

// actorAPI and fetcher exist so tests can stand in for the hosted actor and
// the yt-dlp binary.
type actorAPI interface {
	Submit(ctx context.Context, videoURL string) (*RunInfo, error)
	RunStatus(ctx context.Context, runID string) (*RunInfo, error)
	Result(ctx context.Context, datasetID string) (*ActorResult, error)
	Abort(ctx context.Context, runID string) error
}

type fetcher interface {
	Probe(ctx context.Context, videoURL string) error
	Download(ctx context.Context, videoID, videoURL string) (string, int64, error)
	LocalPath(videoID string) string
}

type Service interface {
	// Download is best effort: it fills the MP4 fields of info and returns
	// an error only when no path produced anything, which the caller treats
	// as a warning.
	Download(ctx context.Context, rec *proclog.Recorder, info *models.VideoInfo) error
	// Wait blocks until all background watchers have finished. Used during
	// shutdown.
	Wait()
}

type service struct {
	cfg    config.DownloaderConfig
	actor  actorAPI
	runner fetcher
	mirror storage.Uploader
	store  Store
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewService wires the real actor client and yt-dlp runner. mirror may be
// nil when object storage is not configured.
func NewService(cfg config.DownloaderConfig, tempDir, videosDir string, store Store, mirror storage.Uploader, log zerolog.Logger) Service {
	return &service{
		cfg:    cfg,
		actor:  NewActorClient(cfg),
		runner: NewYtdlpRunner(cfg, tempDir, videosDir, log),
		mirror: mirror,
		store:  store,
		log:    log.With().Str("service", "download").Logger(),
	}
}

func (s *service) Download(ctx context.Context, rec *proclog.Recorder, info *models.VideoInfo) error {
	rec.Step("DOWNLOAD", "started", "requesting mp4 copy")

	run, err := s.actor.Submit(ctx, info.URL)
	if err != nil {
		rec.Warn("DOWNLOAD", "actor submit failed: "+err.Error())
		return s.ytdlpFallback(ctx, rec, info)
	}
	rec.Step("DOWNLOAD", "submitted", "actor run "+run.ID)
	info.DownloadRunID = run.ID

	// Quick-completion window: short videos often finish within it and the
	// response can carry a final URL instead of a pending status.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.QuickWait):
	}

	state, err := s.actor.RunStatus(ctx, run.ID)
	if err == nil && state.Status == RunStatusSucceeded {
		if res, rerr := s.actor.Result(ctx, state.DatasetID); rerr == nil {
			info.MP4URL = res.DownloadURL
			info.MP4FileSize = res.FileSize
			info.MP4Status = models.DownloadCompleted
			rec.Step("DOWNLOAD", "completed", "actor finished within quick window")
			return nil
		}
	}
	if err == nil && state.Terminal() {
		rec.Warn("DOWNLOAD", "actor run ended "+state.Status)
		return s.ytdlpFallback(ctx, rec, info)
	}

	// Still running: detach. The watcher owns the run from here and patches
	// the stored record when it resolves.
	info.MP4Status = models.DownloadRunning
	rec.Step("DOWNLOAD", "background", "actor run still in progress, watching in background")
	s.wg.Add(1)
	go s.watch(rec, info.ID, info.URL, run.ID)
	return nil
}

func (s *service) ytdlpFallback(ctx context.Context, rec *proclog.Recorder, info *models.VideoInfo) error {
	if err := s.runner.Probe(ctx, info.URL); err != nil {
		rec.Error("DOWNLOAD", "yt-dlp probe failed: "+err.Error())
		info.MP4Status = models.DownloadFailed
		return err
	}

	localURL, size, err := s.runner.Download(ctx, info.ID, info.URL)
	if err != nil {
		rec.Error("DOWNLOAD", "yt-dlp download failed: "+err.Error())
		info.MP4Status = models.DownloadFailed
		return err
	}

	info.MP4URL = localURL
	info.MP4FileSize = size
	info.MP4Status = models.DownloadFallback
	rec.Step("DOWNLOAD", "completed", "downloaded via yt-dlp fallback")

	s.mirrorUpload(ctx, rec, info)
	return nil
}

// mirrorUpload is silent degradation: a mirror failure downgrades nothing.
func (s *service) mirrorUpload(ctx context.Context, rec *proclog.Recorder, info *models.VideoInfo) {
	if s.mirror == nil {
		return
	}

	key := "videos/" + info.ID + ".mp4"
	url, err := s.mirror.UploadVideo(ctx, s.runner.LocalPath(info.ID), key)
	if err != nil {
		rec.Warn("DOWNLOAD", "mirror upload failed: "+err.Error())
		info.MirrorStatus = "failed"
		return
	}
	info.MirrorURL = url
	info.MirrorPublicID = key
	info.MirrorStatus = "uploaded"
	rec.Step("DOWNLOAD", "mirrored", "copy stored in object storage")
}

// watch polls a detached run until it resolves or the watch budget expires,
// then patches the stored video record. It deliberately does not use the
// request context; the request is long gone by the time this matters.
func (s *service) watch(rec *proclog.Recorder, videoID, videoURL, runID string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WatchBudget)
	defer cancel()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rec.Warn("DOWNLOAD", "watch budget expired for run "+runID)
			// The run is abandoned; tell the service to stop billing us.
			abortCtx, abortCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.actor.Abort(abortCtx, runID); err != nil {
				s.log.Warn().Err(err).Str("run_id", runID).Msg("aborting expired run failed")
			}
			abortCancel()
			s.resolveWithFallback(ctx, rec, videoID, videoURL, runID)
			return
		case <-ticker.C:
		}

		state, err := s.actor.RunStatus(ctx, runID)
		if err != nil {
			s.log.Warn().Err(err).Str("run_id", runID).Msg("watcher poll failed")
			continue
		}
		if !state.Terminal() {
			continue
		}

		if state.Status == RunStatusSucceeded {
			if res, err := s.actor.Result(ctx, state.DatasetID); err == nil {
				s.patch(ctx, rec, videoID, models.DownloadCompleted, res.DownloadURL, res.FileSize, runID)
				rec.Step("DOWNLOAD", "completed", "background run finished")
				return
			}
		}
		rec.Warn("DOWNLOAD", "background run ended "+state.Status)
		s.resolveWithFallback(ctx, rec, videoID, videoURL, runID)
		return
	}
}

// resolveWithFallback is the watcher's terminal path: one yt-dlp attempt,
// then the record is patched with whatever happened.
func (s *service) resolveWithFallback(ctx context.Context, rec *proclog.Recorder, videoID, videoURL, runID string) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.YtdlpTimeout)
	defer cancel()

	localURL, size, err := s.runner.Download(ctx, videoID, videoURL)
	if err != nil {
		rec.Error("DOWNLOAD", "background fallback failed: "+err.Error())
		s.patch(ctx, rec, videoID, models.DownloadFailed, "", 0, runID)
		return
	}
	s.patch(ctx, rec, videoID, models.DownloadFallback, localURL, size, runID)
	rec.Step("DOWNLOAD", "completed", "background fallback downloaded via yt-dlp")
}

func (s *service) patch(ctx context.Context, rec *proclog.Recorder, videoID string, status models.DownloadStatus, mp4URL string, size int64, runID string) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateDownload(ctx, videoID, status, mp4URL, size, runID); err != nil {
		s.log.Error().Err(err).Str("video_id", videoID).Msg("patching download record failed")
		rec.Warn("DOWNLOAD", "could not persist download result")
	}
}

func (s *service) Wait() {
	s.wg.Wait()
}
