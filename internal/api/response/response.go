package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edvin/devtunnel/internal/model"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Field   string   `json:"field,omitempty"`
}

// Error codes.
const (
	CodeNotConfigured = "not_configured"
	CodeNotFound      = "not_found"
	CodeValidation    = "validation"
	CodeConflict      = "conflict"
	CodeUpstream      = "upstream"
	CodeTimeout       = "upstream_timeout"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteServiceError maps the engine's error taxonomy onto HTTP statuses.
func WriteServiceError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	WriteJSON(w, status, body)
}

func classify(err error) (int, ErrorResponse) {
	var (
		nc *model.NotConfiguredError
		nf *model.NotFoundError
		ve *model.ValidationError
		ue *model.UpstreamError
	)
	body := ErrorResponse{Error: err.Error()}
	switch {
	case errors.As(err, &nc):
		body.Code, body.Missing = CodeNotConfigured, nc.Missing
		return http.StatusPreconditionFailed, body
	case errors.As(err, &nf):
		body.Code = CodeNotFound
		return http.StatusNotFound, body
	case errors.As(err, &ve):
		body.Field = ve.Field
		if ve.Conflict {
			body.Code = CodeConflict
			return http.StatusConflict, body
		}
		body.Code = CodeValidation
		return http.StatusBadRequest, body
	case errors.As(err, &ue):
		if ue.Timeout {
			body.Code = CodeTimeout
			return http.StatusGatewayTimeout, body
		}
		body.Code = CodeUpstream
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, body
}
