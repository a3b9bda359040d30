package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/renderhub/internal/api/response"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// NewDistributeJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// The body is the job submission; userType, duration and urgent drive its
// priority.
func NewDistributeJobHandler(svc Distributor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var data models.JobData
		if !decodeBody(r, &data, false) || data == nil {
			invalidBody(w)
			return
		}

		jobID, err := svc.DistributeJob(r.Context(), data)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Accepted(w, map[string]string{"job_id": jobID})
	}
}

// NewJobProgressHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobProgressHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		rec, found, err := svc.GetJobProgress(r.Context(), jobID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No progress recorded for job "+jobID, nil)
			return
		}
		response.JSON(w, rec)
	}
}

// NewReportProgressHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/progress.
func NewReportProgressHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Progress *int `json:"progress"`
		}
		if !decodeBody(r, &req, false) {
			invalidBody(w)
			return
		}
		if req.Progress == nil {
			badRequest(w, "progress is required")
			return
		}

		if err := svc.ReportProgress(r.Context(), chi.URLParam(r, "jobID"), *req.Progress); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewCompleteJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/complete. The optional result is stored verbatim.
func NewCompleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Result json.RawMessage `json:"result"`
		}
		if !decodeBody(r, &req, true) {
			invalidBody(w)
			return
		}

		if err := svc.CompleteJob(r.Context(), chi.URLParam(r, "jobID"), req.Result); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewFailJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/fail.
func NewFailJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Error string `json:"error"`
		}
		if !decodeBody(r, &req, false) {
			invalidBody(w)
			return
		}
		if req.Error == "" {
			badRequest(w, "error is required")
			return
		}

		if err := svc.FailJob(r.Context(), chi.URLParam(r, "jobID"), req.Error); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}
