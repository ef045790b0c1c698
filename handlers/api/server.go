package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"ytcourse/config"
	"ytcourse/metrics"
	"ytcourse/middleware"
	"ytcourse/proclog"
	"ytcourse/services/course"
	"ytcourse/validation"
)

type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

type ServerOption func(*serverOptions)

type serverOptions struct {
	videosDir string
}

// WithVideoDir serves downloaded MP4 files under /videos/.
func WithVideoDir(dir string) ServerOption {
	return func(o *serverOptions) { o.videosDir = dir }
}

func NewServer(cfg *config.Config, svc course.Service, log *logrus.Logger, opts ...ServerOption) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	validator := validation.NewValidator(cfg)
	courses := NewCourseHandler(svc, validator, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/courses", courses.Generate)
	mux.HandleFunc("GET /api/v1/courses", courses.List)
	mux.HandleFunc("GET /api/v1/courses/{id}", courses.Get)
	mux.HandleFunc("GET /api/v1/logs", recentLogsHandler)
	mux.HandleFunc("GET /api/v1/logs/{session_id}", courses.Logs)
	mux.HandleFunc("GET /health", healthHandler(cfg.Version, cfg.Debug))

	if o.videosDir != "" {
		mux.Handle("GET /videos/", http.StripPrefix("/videos/", http.FileServer(http.Dir(o.videosDir))))
	}

	rl := middleware.NewRateLimiter(cfg.RateLimit)
	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logging(log),
		middleware.CORS(cfg.CORS),
		middleware.Timeout(cfg.RequestTimeout),
		rl.Middleware,
	)

	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func healthHandler(version string, debug bool) http.HandlerFunc {
	started := time.Now()
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":          "ok",
			"version":         version,
			"time":            time.Now().UTC().Format(time.RFC3339),
			"uptime":          time.Since(started).Round(time.Second).String(),
			"catch_all_total": metrics.CatchAllTotal(),
		}
		if debug {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			body["runtime"] = map[string]interface{}{
				"goroutines":  runtime.NumGoroutine(),
				"alloc_bytes": ms.Alloc,
				"num_gc":      ms.NumGC,
			}
		}
		respondJSON(w, r, http.StatusOK, body)
	}
}

// recentLogsHandler serves the in-memory ring of recent processing entries
// across all sessions.
func recentLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	respondJSON(w, r, http.StatusOK, proclog.Recent(limit))
}

func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("server starting")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the composed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
