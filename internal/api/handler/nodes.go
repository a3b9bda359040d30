package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/renderhub/internal/api/response"
	"github.com/kiranshivaraju/renderhub/pkg/models"
)

// NewListNodesHandler returns an http.HandlerFunc for GET /api/v1/nodes.
func NewListNodesHandler(svc NodeService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		nodes := svc.GetNodes()
		response.List(w, nodes, response.ListMeta{Count: len(nodes)})
	}
}

// NewAddNodeHandler returns an http.HandlerFunc for POST /api/v1/nodes.
func NewAddNodeHandler(svc NodeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info models.NodeInfo
		if !decodeBody(r, &info, false) {
			invalidBody(w)
			return
		}
		if info.ID == "" {
			badRequest(w, "id is required")
			return
		}

		node, err := svc.AddNode(info)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, node)
	}
}

// NewGetNodeHandler returns an http.HandlerFunc for GET /api/v1/nodes/{nodeID}.
func NewGetNodeHandler(svc NodeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "nodeID")
		node, ok := svc.GetNode(id)
		if !ok {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "node "+id+": not found", nil)
			return
		}
		response.JSON(w, node)
	}
}

// NewRemoveNodeHandler returns an http.HandlerFunc for DELETE /api/v1/nodes/{nodeID}.
func NewRemoveNodeHandler(svc NodeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.RemoveNode(chi.URLParam(r, "nodeID"))
		response.NoContent(w)
	}
}

// NewUpdateNodeMetricsHandler returns an http.HandlerFunc for
// PUT /api/v1/nodes/{nodeID}/metrics.
func NewUpdateNodeMetricsHandler(svc NodeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m models.NodeMetrics
		if !decodeBody(r, &m, false) {
			invalidBody(w)
			return
		}

		if err := svc.UpdateNodeMetrics(chi.URLParam(r, "nodeID"), m); err != nil {
			writeError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewClusterSummaryHandler returns an http.HandlerFunc for GET /api/v1/nodes/summary.
func NewClusterSummaryHandler(svc NodeService) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, svc.ClusterSummary())
	}
}
