package handler

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/renderhub/internal/api/response"
)

const defaultCleanGrace = 24 * time.Hour

// NewQueueStatsHandler returns an http.HandlerFunc for GET /api/v1/queue/stats.
func NewQueueStatsHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.GetStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, st)
	}
}

// NewPauseQueueHandler returns an http.HandlerFunc for POST /api/v1/queue/pause.
func NewPauseQueueHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Pause(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]bool{"paused": true})
	}
}

// NewResumeQueueHandler returns an http.HandlerFunc for POST /api/v1/queue/resume.
func NewResumeQueueHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Resume(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]bool{"paused": false})
	}
}

// NewCleanQueueHandler returns an http.HandlerFunc for POST /api/v1/queue/clean.
// grace_ms defaults to 24 hours.
func NewCleanQueueHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GraceMs *int64 `json:"grace_ms"`
		}
		if !decodeBody(r, &req, true) {
			invalidBody(w)
			return
		}
		grace := defaultCleanGrace
		if req.GraceMs != nil {
			if *req.GraceMs < 0 {
				badRequest(w, "grace_ms must not be negative")
				return
			}
			grace = time.Duration(*req.GraceMs) * time.Millisecond
		}

		removed, err := svc.CleanOldJobs(r.Context(), grace)
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]int{"removed": removed})
	}
}

// NewRetryFailedHandler returns an http.HandlerFunc for POST /api/v1/queue/retry.
func NewRetryFailedHandler(svc QueueService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		retried, err := svc.RetryFailedJobs(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		response.JSON(w, map[string]int{"retried": retried})
	}
}
