// Package api exposes the course pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "ytcourse/errors"
	"ytcourse/middleware"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success:   status < 400,
		Data:      data,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status = appErr.Code
		message = appErr.Message
		if status >= 500 {
			log.WithFields(logrus.Fields{
				"op":         appErr.Op,
				"error":      err.Error(),
				"request_id": middleware.GetRequestID(r.Context()),
			}).Error("request failed")
		}
	} else {
		log.WithFields(logrus.Fields{
			"error":      err.Error(),
			"request_id": middleware.GetRequestID(r.Context()),
		}).Error("unclassified error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success:   false,
		Error:     message,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
