package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ytcourse/config"
)

// YtdlpRunner drives the local yt-dlp binary as the self-hosted download
// fallback. It probes first so an unavailable video fails fast instead of
// after a long partial download.
type YtdlpRunner struct {
	cfg       config.DownloaderConfig
	tempDir   string
	videosDir string
	log       zerolog.Logger
}

func NewYtdlpRunner(cfg config.DownloaderConfig, tempDir, videosDir string, log zerolog.Logger) *YtdlpRunner {
	return &YtdlpRunner{
		cfg:       cfg,
		tempDir:   tempDir,
		videosDir: videosDir,
		log:       log.With().Str("service", "ytdlp").Logger(),
	}
}

// Probe asks yt-dlp for the video's metadata without downloading anything.
func (r *YtdlpRunner) Probe(ctx context.Context, videoURL string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.YtdlpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.YtdlpPath, "--dump-json", "--no-download", videoURL)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "yt-dlp probe failed: %s", firstLine(out))
	}
	return nil
}

// Download fetches the video capped at 720p, moves it into the served
// videos directory and returns the public path plus file size.
func (r *YtdlpRunner) Download(ctx context.Context, videoID, videoURL string) (string, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.YtdlpTimeout)
	defer cancel()

	tempPath := filepath.Join(r.tempDir, videoID+".mp4")
	defer os.Remove(tempPath)

	cmd := exec.CommandContext(ctx, r.cfg.YtdlpPath,
		"-f", fmt.Sprintf("best[height<=%s]", trimQuality(r.cfg.Quality)),
		"-o", tempPath,
		"--no-playlist",
		videoURL,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", 0, errors.Wrapf(err, "yt-dlp download failed: %s", firstLine(out))
	}

	if err := os.MkdirAll(r.videosDir, 0o755); err != nil {
		return "", 0, errors.Wrap(err, "creating videos dir")
	}

	finalPath := filepath.Join(r.videosDir, videoID+".mp4")
	size, err := moveFile(tempPath, finalPath)
	if err != nil {
		return "", 0, errors.Wrap(err, "placing downloaded file")
	}

	r.log.Info().Str("video_id", videoID).Int64("size", size).Msg("downloaded via yt-dlp")
	return "/videos/" + videoID + ".mp4", size, nil
}

// LocalPath maps a video ID to its on-disk location in the videos dir.
func (r *YtdlpRunner) LocalPath(videoID string) string {
	return filepath.Join(r.videosDir, videoID+".mp4")
}

// trimQuality turns "720p" into "720" for the yt-dlp format selector.
func trimQuality(q string) string {
	if len(q) > 0 && q[len(q)-1] == 'p' {
		return q[:len(q)-1]
	}
	return q
}

// moveFile renames when possible and falls back to copy for cross-device
// temp dirs. Returns the final file size.
func moveFile(src, dst string) (int64, error) {
	if err := os.Rename(src, dst); err == nil {
		info, err := os.Stat(dst)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	size, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return size, nil
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
