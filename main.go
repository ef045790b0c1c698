package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ytcourse/config"
	"ytcourse/handlers/api"
	"ytcourse/logger"
	"ytcourse/repository/sqlite"
	"ytcourse/services/course"
	"ytcourse/services/download"
	"ytcourse/services/metadata"
	"ytcourse/services/transcript"
	"ytcourse/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	accessLog := logger.NewAccessLogger(cfg.LogDir, cfg.Debug)
	serviceLog := logger.NewServiceLogger(cfg.LogDir, cfg.Debug)

	repo, err := sqlite.New(cfg.Database, serviceLog)
	if err != nil {
		serviceLog.Fatal().Err(err).Msg("opening database")
	}
	defer repo.Close()

	var mirror storage.Uploader
	if cfg.Spaces.Configured() {
		spaces, err := storage.NewSpacesClient(context.Background(), cfg.Spaces, serviceLog)
		if err != nil {
			serviceLog.Warn().Err(err).Msg("object storage unavailable, continuing without mirror")
		} else {
			mirror = spaces
		}
	}

	metadataSvc := metadata.NewService(cfg.YouTube, serviceLog)
	transcriptSvc := transcript.NewService(cfg.Transcript, serviceLog)
	downloadSvc := download.NewService(cfg.Downloader, cfg.TempDir, cfg.VideosDir, repo, mirror, serviceLog)
	courseSvc := course.NewService(cfg, metadataSvc, transcriptSvc, downloadSvc, repo, serviceLog)

	server := api.NewServer(cfg, courseSvc, accessLog, api.WithVideoDir(cfg.VideosDir))

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serviceLog.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	serviceLog.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		serviceLog.Error().Err(err).Msg("shutdown error")
	}
	// Let detached download watchers finish patching records.
	downloadSvc.Wait()
}
