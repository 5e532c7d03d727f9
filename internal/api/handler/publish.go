package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/devtunnel/internal/api/request"
	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/core"
)

// Publish handles route publication and teardown.
type Publish struct {
	svc *core.PublishService
}

func NewPublish(svc *core.PublishService) *Publish {
	return &Publish{svc: svc}
}

// Create godoc
//
//	@Summary		Publish a local service
//	@Description	Adds an ingress rule, a DNS record and optionally identity protection for <subdomain>.<zone>, then restarts the tunnel daemon. DNS and protection failures are returned as warnings.
//	@Tags			Publish
//	@Security		ApiKeyAuth
//	@Param			body body request.Publish true "Route details"
//	@Success		201 {object} core.WorkflowResult
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		412 {object} response.ErrorResponse
//	@Failure		502 {object} response.ErrorResponse
//	@Router			/publish [post]
func (h *Publish) Create(w http.ResponseWriter, r *http.Request) {
	var req request.Publish
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Create(r.Context(), core.PublishRequest{
		Subdomain:        req.Subdomain,
		LocalHost:        req.LocalHost,
		LocalPort:        req.LocalPort,
		Scheme:           req.Scheme,
		ZoneName:         req.ZoneName,
		ProjectID:        req.ProjectID,
		Description:      req.Description,
		EnableProtection: req.EnableProtection,
		Websocket:        req.Websocket,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, res)
}

// Teardown godoc
//
//	@Summary		Unpublish a route
//	@Description	Removes the ingress rule, then the DNS record, identity protection and the stored route. Later steps run even when earlier ones fail.
//	@Tags			Publish
//	@Security		ApiKeyAuth
//	@Param			hostname path string true "Hostname"
//	@Success		200 {object} core.WorkflowResult
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/publish/{hostname} [delete]
func (h *Publish) Teardown(w http.ResponseWriter, r *http.Request) {
	hostname, err := request.RequireHostname(chi.URLParam(r, "hostname"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Teardown(r.Context(), hostname)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}
