package handler

import (
	"net/http"

	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/core"
)

type Sync struct {
	svc *core.ReconcileService
}

func NewSync(svc *core.ReconcileService) *Sync {
	return &Sync{svc: svc}
}

// Run godoc
//
//	@Summary		Reconcile stored routes with the live ingress
//	@Description	Imports live rules, updates drifted routes and disables routes no longer live. Never deletes.
//	@Tags			Routes
//	@Security		ApiKeyAuth
//	@Success		200 {object} core.SyncResult
//	@Failure		412 {object} response.ErrorResponse
//	@Failure		502 {object} response.ErrorResponse
//	@Router			/sync [post]
func (h *Sync) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}
