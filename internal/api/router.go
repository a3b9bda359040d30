package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/renderhub/internal/api/handler"
	mw "github.com/kiranshivaraju/renderhub/internal/api/middleware"
	"github.com/kiranshivaraju/renderhub/internal/api/response"
	"github.com/kiranshivaraju/renderhub/internal/metrics"
)

// Dependencies holds all services and middleware the router wires together.
// A nil service leaves its routes answering 501.
type Dependencies struct {
	RateLimit *mw.RateLimit
	Recorder  mw.RequestRecorder

	Workers  handler.WorkerService
	Jobs     handler.JobService
	Dispatch handler.Distributor
	Queue    handler.QueueService
	Nodes    handler.NodeService
	Metrics  handler.MetricsService

	HealthHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(deps.Recorder))
	r.Use(mw.Recovery)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", orNotImplemented(deps.HealthHandler))

		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit.Limit)
			}
			routes(r, deps)
		})
	})

	return r
}

// routes registers the rate limited /api/v1 resources.
func routes(r chi.Router, deps Dependencies) {
	r.Get("/load", orNotImplemented(with(deps.Workers, handler.NewLoadStatsHandler)))

	r.Route("/workers", func(r chi.Router) {
		r.Get("/", orNotImplemented(with(deps.Workers, handler.NewListWorkersHandler)))
		r.Post("/", orNotImplemented(with(deps.Workers, handler.NewRegisterWorkerHandler)))
		r.Delete("/{workerID}", orNotImplemented(with(deps.Workers, handler.NewUnregisterWorkerHandler)))
		r.Put("/{workerID}/status", orNotImplemented(with(deps.Workers, handler.NewUpdateWorkerStatusHandler)))
		r.Put("/{workerID}/jobs", orNotImplemented(with(deps.Workers, handler.NewUpdateWorkerJobsHandler)))
		r.Post("/{workerID}/heartbeat", orNotImplemented(with(deps.Workers, handler.NewHeartbeatHandler)))

		var claim http.HandlerFunc
		if deps.Workers != nil && deps.Jobs != nil {
			claim = handler.NewClaimJobHandler(deps.Workers, deps.Jobs)
		}
		r.Post("/{workerID}/claim", orNotImplemented(claim))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", orNotImplemented(with(deps.Dispatch, handler.NewDistributeJobHandler)))
		r.Get("/{jobID}", orNotImplemented(with(deps.Jobs, handler.NewJobProgressHandler)))
		r.Post("/{jobID}/progress", orNotImplemented(with(deps.Jobs, handler.NewReportProgressHandler)))
		r.Post("/{jobID}/complete", orNotImplemented(with(deps.Jobs, handler.NewCompleteJobHandler)))
		r.Post("/{jobID}/fail", orNotImplemented(with(deps.Jobs, handler.NewFailJobHandler)))
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/stats", orNotImplemented(with(deps.Queue, handler.NewQueueStatsHandler)))
		r.Post("/pause", orNotImplemented(with(deps.Queue, handler.NewPauseQueueHandler)))
		r.Post("/resume", orNotImplemented(with(deps.Queue, handler.NewResumeQueueHandler)))
		r.Post("/clean", orNotImplemented(with(deps.Queue, handler.NewCleanQueueHandler)))
		r.Post("/retry", orNotImplemented(with(deps.Queue, handler.NewRetryFailedHandler)))
	})

	r.Route("/metrics", func(r chi.Router) {
		r.Get("/current", orNotImplemented(with(deps.Metrics, handler.NewCurrentMetricsHandler)))
		r.Get("/history", orNotImplemented(with(deps.Metrics, handler.NewMetricsHistoryHandler)))
		r.Get("/health", orNotImplemented(with(deps.Metrics, handler.NewHealthStatusHandler)))
		r.Get("/report", orNotImplemented(with(deps.Metrics, handler.NewPerformanceReportHandler)))
	})

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", orNotImplemented(with(deps.Nodes, handler.NewListNodesHandler)))
		r.Post("/", orNotImplemented(with(deps.Nodes, handler.NewAddNodeHandler)))
		r.Get("/summary", orNotImplemented(with(deps.Nodes, handler.NewClusterSummaryHandler)))
		r.Get("/{nodeID}", orNotImplemented(with(deps.Nodes, handler.NewGetNodeHandler)))
		r.Delete("/{nodeID}", orNotImplemented(with(deps.Nodes, handler.NewRemoveNodeHandler)))
		r.Put("/{nodeID}/metrics", orNotImplemented(with(deps.Nodes, handler.NewUpdateNodeMetricsHandler)))
	})
}

// with builds a handler from svc, or returns nil when svc is unset.
func with[S comparable](svc S, build func(S) http.HandlerFunc) http.HandlerFunc {
	var zero S
	if svc == zero {
		return nil
	}
	return build(svc)
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
