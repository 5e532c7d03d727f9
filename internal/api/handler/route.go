package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/devtunnel/internal/api/request"
	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/core"
	"github.com/edvin/devtunnel/internal/model"
)

// Route handles listing, updating, probing and orphan cleanup of routes.
type Route struct {
	publish   *core.PublishService
	reconcile *core.ReconcileService
	health    *core.HealthService
}

func NewRoute(publish *core.PublishService, reconcile *core.ReconcileService, health *core.HealthService) *Route {
	return &Route{publish: publish, reconcile: reconcile, health: health}
}

// List godoc
//
//	@Summary		List routes
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Param			project_id query string false "Filter by project"
//	@Param			status query string false "Filter by status"
//	@Success		200 {array} model.Route
//	@Router			/routes [get]
func (h *Route) List(w http.ResponseWriter, r *http.Request) {
	filter := model.RouteFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		Status:    r.URL.Query().Get("status"),
	}
	if filter.Status != "" && !model.ValidRouteStatus(filter.Status) {
		response.WriteError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	routes, err := h.publish.List(r.Context(), filter)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, routes)
}

func (h *Route) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := request.RequireID(chi.URLParam(r, "projectID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	routes, err := h.publish.List(r.Context(), model.RouteFilter{ProjectID: projectID})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, routes)
}

// Mapped godoc
//
//	@Summary		List routes with their matched project
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Success		200 {array} model.RouteMapping
//	@Router			/routes/mapped [get]
func (h *Route) Mapped(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.reconcile.Mappings(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mappings)
}

func (h *Route) Orphaned(w http.ResponseWriter, r *http.Request) {
	routes, err := h.reconcile.Orphaned(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, routes)
}

// UpdatePort godoc
//
//	@Summary		Point a route at a new local port
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Param			hostname path string true "Hostname"
//	@Param			body body request.UpdatePort true "New origin"
//	@Success		200 {object} core.WorkflowResult
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/routes/{hostname}/port [put]
func (h *Route) UpdatePort(w http.ResponseWriter, r *http.Request) {
	hostname, err := request.RequireHostname(chi.URLParam(r, "hostname"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req request.UpdatePort
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.publish.UpdatePort(r.Context(), hostname, req.LocalPort, req.LocalHost)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Route) UpdateWebsocket(w http.ResponseWriter, r *http.Request) {
	hostname, enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	res, err := h.publish.UpdateWebsocket(r.Context(), hostname, enabled)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Route) UpdateProtection(w http.ResponseWriter, r *http.Request) {
	hostname, enabled, ok := decodeToggle(w, r)
	if !ok {
		return
	}
	res, err := h.publish.SetProtection(r.Context(), hostname, enabled)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// DeleteOrphan godoc
//
//	@Summary		Delete one orphaned route
//	@Description	Rejected with 400 when the route is linked to a project.
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Param			hostname path string true "Hostname"
//	@Success		200 {object} core.WorkflowResult
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/routes/orphaned/{hostname} [delete]
func (h *Route) DeleteOrphan(w http.ResponseWriter, r *http.Request) {
	hostname, err := request.RequireHostname(chi.URLParam(r, "hostname"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.reconcile.DeleteOrphan(r.Context(), hostname)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// DeleteOrphans godoc
//
//	@Summary		Delete every orphaned route
//	@Description	Requires {"confirm": true}. Without it nothing is deleted.
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Param			body body request.DeleteOrphans true "Confirmation"
//	@Success		200 {object} core.BulkDeleteResult
//	@Failure		400 {object} response.ErrorResponse
//	@Router			/routes/orphaned [delete]
func (h *Route) DeleteOrphans(w http.ResponseWriter, r *http.Request) {
	var req request.DeleteOrphans
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.reconcile.DeleteOrphans(r.Context(), req.Confirm)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// Check godoc
//
//	@Summary		Probe a route over its public hostname
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Param			hostname path string true "Hostname"
//	@Success		200 {object} core.CheckResult
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/check-route/{hostname} [post]
func (h *Route) Check(w http.ResponseWriter, r *http.Request) {
	hostname, err := request.RequireHostname(chi.URLParam(r, "hostname"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.health.Check(r.Context(), hostname)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func decodeToggle(w http.ResponseWriter, r *http.Request) (string, bool, bool) {
	hostname, err := request.RequireHostname(chi.URLParam(r, "hostname"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false, false
	}
	var req request.Toggle
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false, false
	}
	return hostname, *req.Enabled, true
}
