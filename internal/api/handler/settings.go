package handler

import (
	"net/http"

	"github.com/edvin/devtunnel/internal/api/request"
	"github.com/edvin/devtunnel/internal/api/response"
	"github.com/edvin/devtunnel/internal/core"
	"github.com/edvin/devtunnel/internal/model"
)

// Settings handles the stored tunnel and identity provider settings.
type Settings struct {
	svc *core.SettingsService
}

func NewSettings(svc *core.SettingsService) *Settings {
	return &Settings{svc: svc}
}

// Get godoc
//
//	@Summary		Get tunnel settings
//	@Description	Returns the stored settings with tokens reduced to presence flags.
//	@Tags			Settings
//	@Security		ApiKeyAuth
//	@Success		200 {object} model.RedactedSettings
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/settings [get]
func (h *Settings) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Redacted(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, s)
}

// Save godoc
//
//	@Summary		Save tunnel settings
//	@Description	Stores the settings. Omitted tokens keep their stored value. The API token is verified when the tunnel settings are complete; a failed check is returned as a warning.
//	@Tags			Settings
//	@Security		ApiKeyAuth
//	@Param			body body request.SaveSettings true "Settings"
//	@Success		200 {object} core.SaveResult
//	@Failure		400 {object} response.ErrorResponse
//	@Router			/settings [post]
func (h *Settings) Save(w http.ResponseWriter, r *http.Request) {
	var req request.SaveSettings
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.svc.Save(r.Context(), model.TunnelSettings{
		AccountID:         req.AccountID,
		ZoneID:            req.ZoneID,
		ZoneName:          req.ZoneName,
		TunnelID:          req.TunnelID,
		APIToken:          req.APIToken,
		IdentityURL:       req.IdentityURL,
		IdentityToken:     req.IdentityToken,
		OutpostID:         req.OutpostID,
		AuthorizationFlow: req.AuthorizationFlow,
		InvalidationFlow:  req.InvalidationFlow,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// Delete godoc
//
//	@Summary		Delete tunnel settings
//	@Tags			Settings
//	@Security		ApiKeyAuth
//	@Success		204
//	@Router			/settings [delete]
func (h *Settings) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context()); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
