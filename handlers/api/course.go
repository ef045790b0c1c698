package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	apperrors "ytcourse/errors"
	"ytcourse/middleware"
	"ytcourse/services/course"
	"ytcourse/validation"
)

type CourseHandler struct {
	service   course.Service
	validator *validation.Validator
	log       *logrus.Logger
}

func NewCourseHandler(svc course.Service, validator *validation.Validator, log *logrus.Logger) *CourseHandler {
	return &CourseHandler{service: svc, validator: validator, log: log}
}

type generateRequest struct {
	YouTubeURL string `json:"youtube_url"`
	SessionID  string `json:"session_id,omitempty"`
}

// Generate handles POST /api/v1/courses.
func (h *CourseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	const op = "CourseHandler.Generate"

	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		AllowedMethods:   []string{http.MethodPost},
		RequireJSON:      true,
		MaxContentLength: 1 << 20,
	}); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, h.log, apperrors.InvalidInput(op, err, "invalid JSON body"))
		return
	}

	result, err := h.service.GenerateCourse(r.Context(), req.YouTubeURL, course.SessionMeta{
		SessionID: req.SessionID,
		ClientIP:  middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondJSON(w, r, http.StatusOK, result)
}

// Get handles GET /api/v1/courses/{id}.
func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "CourseHandler.Get"

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, r, h.log, apperrors.InvalidInput(op, err, "course id must be an integer"))
		return
	}

	record, courseObj, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"record": record,
		"course": courseObj,
	})
}

// List handles GET /api/v1/courses.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	records, err := h.service.ListRecentCourses(r.Context(), limit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"courses": records})
}

// Logs handles GET /api/v1/logs/{session_id}.
func (h *CourseHandler) Logs(w http.ResponseWriter, r *http.Request) {
	const op = "CourseHandler.Logs"

	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		respondError(w, r, h.log, apperrors.InvalidInput(op, nil, "session id is required"))
		return
	}

	entries, err := h.service.GetLogs(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"logs": entries})
}
