package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	payload := map[string]string{"hello": "world"}

	WriteJSON(w, http.StatusOK, payload)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "world", body["hello"])
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, http.StatusBadRequest, "something went wrong")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "something went wrong", body["error"])
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not configured", &model.NotConfiguredError{Missing: []string{"api_token"}}, http.StatusPreconditionFailed, CodeNotConfigured},
		{"not found", &model.NotFoundError{Kind: "route", Key: "a.example.com"}, http.StatusNotFound, CodeNotFound},
		{"validation", &model.ValidationError{Field: "local_port", Message: "bad"}, http.StatusBadRequest, CodeValidation},
		{"conflict", &model.ValidationError{Field: "hostname", Message: "dup", Conflict: true}, http.StatusConflict, CodeConflict},
		{"upstream", &model.UpstreamError{Provider: "cloudflare", StatusCode: 500}, http.StatusBadGateway, CodeUpstream},
		{"timeout", &model.UpstreamError{Provider: "cloudflare", Timeout: true}, http.StatusGatewayTimeout, CodeTimeout},
		{"wrapped", fmt.Errorf("outer: %w", &model.NotFoundError{Kind: "route", Key: "x"}), http.StatusNotFound, CodeNotFound},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteServiceError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestWriteServiceError_MissingFields(t *testing.T) {
	w := httptest.NewRecorder()
	WriteServiceError(w, &model.NotConfiguredError{Missing: []string{"zone_id", "tunnel_id"}})

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"zone_id", "tunnel_id"}, body.Missing)
}
