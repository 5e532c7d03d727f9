package handler

import (
	"net/http"

	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/core"
)

// Tunnel exposes the live tunnel configuration and the local daemon.
type Tunnel struct {
	svc *core.TunnelService
}

func NewTunnel(svc *core.TunnelService) *Tunnel {
	return &Tunnel{svc: svc}
}

// Config godoc
//
//	@Summary		Get the live ingress configuration
//	@Tags			Tunnel
//	@Security		ApiKeyAuth
//	@Success		200 {object} object
//	@Failure		412 {object} response.ErrorResponse
//	@Failure		502 {object} response.ErrorResponse
//	@Router			/tunnel/config [get]
func (h *Tunnel) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Tunnel) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Info(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, info)
}

func (h *Tunnel) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// Restart godoc
//
//	@Summary		Restart the tunnel daemon
//	@Description	Tries the service manager, then sudo, then the service command. Always 200; a failed restart reports method=manual with the command to run.
//	@Tags			Tunnel
//	@Security		ApiKeyAuth
//	@Success		200 {object} daemon.RestartResult
//	@Router			/restart [post]
func (h *Tunnel) Restart(w http.ResponseWriter, r *http.Request) {
	response.WriteJSON(w, http.StatusOK, h.svc.Restart(r.Context()))
}
