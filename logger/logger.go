// Package logger builds the two loggers the application uses: a logrus
// logger for the HTTP edge and a zerolog logger for the services. Both write
// to stdout and to a size-rotated file.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func rotatingFile(logDir, name string) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// NewAccessLogger returns the edge logger used by handlers and middleware.
func NewAccessLogger(logDir string, debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(io.MultiWriter(os.Stdout, rotatingFile(logDir, "access.log")))
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// NewServiceLogger returns the structured logger threaded through the
// pipeline services.
func NewServiceLogger(logDir string, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	w := io.MultiWriter(os.Stdout, rotatingFile(logDir, "app.log"))
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
