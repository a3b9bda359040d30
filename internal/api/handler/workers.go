package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/renderhub/internal/api/response"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// NewListWorkersHandler returns an http.HandlerFunc for GET /api/v1/workers.
func NewListWorkersHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		workers := svc.GetWorkerStats()
		response.List(w, workers, response.ListMeta{Count: len(workers)})
	}
}

// NewRegisterWorkerHandler returns an http.HandlerFunc for POST /api/v1/workers.
func NewRegisterWorkerHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID string `json:"id"`
		}
		if !decodeBody(r, &req, false) {
			invalidBody(w)
			return
		}
		if req.ID == "" {
			badRequest(w, "id is required")
			return
		}

		worker, err := svc.RegisterWorker(req.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, worker)
	}
}

// NewUnregisterWorkerHandler returns an http.HandlerFunc for
// DELETE /api/v1/workers/{workerID}. Removing an unknown worker succeeds.
// Jobs still held by the worker are handed to the rest of the pool.
func NewUnregisterWorkerHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.UnregisterWorker(r.Context(), chi.URLParam(r, "workerID"))
		response.NoContent(w)
	}
}

// NewUpdateWorkerStatusHandler returns an http.HandlerFunc for
// PUT /api/v1/workers/{workerID}/status.
func NewUpdateWorkerStatusHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status models.WorkerStatus `json:"status"`
		}
		if !decodeBody(r, &req, false) {
			invalidBody(w)
			return
		}
		if !req.Status.Valid() {
			badRequest(w, "status must be one of idle, busy, error")
			return
		}

		if err := svc.UpdateWorkerStatus(chi.URLParam(r, "workerID"), req.Status); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewUpdateWorkerJobsHandler returns an http.HandlerFunc for
// PUT /api/v1/workers/{workerID}/jobs.
func NewUpdateWorkerJobsHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CurrentJobs *int `json:"current_jobs"`
		}
		if !decodeBody(r, &req, false) {
			invalidBody(w)
			return
		}
		if req.CurrentJobs == nil {
			badRequest(w, "current_jobs is required")
			return
		}

		if err := svc.UpdateWorkerJobs(chi.URLParam(r, "workerID"), *req.CurrentJobs); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewHeartbeatHandler returns an http.HandlerFunc for
// POST /api/v1/workers/{workerID}/heartbeat.
func NewHeartbeatHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Heartbeat(chi.URLParam(r, "workerID")); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewClaimJobHandler returns an http.HandlerFunc for
// POST /api/v1/workers/{workerID}/claim. A claim counts as a heartbeat;
// 204 means there is nothing to run.
func NewClaimJobHandler(workers WorkerService, jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workerID := chi.URLParam(r, "workerID")
		if err := workers.Heartbeat(workerID); err != nil {
			writeError(w, err)
			return
		}

		job, err := jobs.ClaimJob(r.Context(), workerID)
		if err != nil {
			writeError(w, err)
			return
		}
		if job == nil {
			response.NoContent(w)
			return
		}
		response.JSON(w, job)
	}
}

// NewLoadStatsHandler returns an http.HandlerFunc for GET /api/v1/load.
func NewLoadStatsHandler(svc WorkerService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, svc.GetLoadStats())
	}
}
