package authentik

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/model"
)

func newTestEndpoint(srv *httptest.Server) Endpoint {
	return Endpoint{URL: srv.URL, Token: "ak-token"}
}

// ---------- CreateProxyProvider ----------

func TestClient_CreateProxyProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/providers/proxy/", r.URL.Path)
		assert.Equal(t, "Bearer ak-token", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "proxy", payload["mode"])
		assert.Equal(t, "https://app.example.com", payload["external_host"])
		assert.Equal(t, "http://localhost:3000", payload["internal_host"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"pk": 42, "name": "app.example.com"}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	p, err := client.CreateProxyProvider(context.Background(), newTestEndpoint(srv), ProxyProviderParams{
		Name:              "app.example.com",
		ExternalHost:      "https://app.example.com",
		InternalHost:      "http://localhost:3000",
		AuthorizationFlow: "flow-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, p.PK)
}

func TestClient_CreateProxyProvider_FieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"name": ["provider with this name already exists."]}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	_, err := client.CreateProxyProvider(context.Background(), newTestEndpoint(srv), ProxyProviderParams{Name: "x"})
	require.Error(t, err)
	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Equal(t, "name: provider with this name already exists.", ue.Message)
}

// ---------- applications ----------

func TestClient_CreateApplication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/core/applications/", r.URL.Path)
		var payload ApplicationParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, 42, payload.Provider)
		assert.Equal(t, "app-example-com", payload.Slug)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"pk": "6f1c", "slug": "app-example-com", "name": "app.example.com"}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	app, err := client.CreateApplication(context.Background(), newTestEndpoint(srv), ApplicationParams{
		Name: "app.example.com", Slug: "app-example-com", Provider: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "6f1c", app.PK)
}

func TestClient_DeleteApplication_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v3/core/applications/gone/", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not found."}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	err := client.DeleteApplication(context.Background(), newTestEndpoint(srv), "gone")
	require.Error(t, err)
	assert.True(t, model.IsUpstreamStatus(err, http.StatusNotFound))
	assert.Contains(t, err.Error(), "Not found.")
}

// ---------- outposts ----------

func TestClient_AddProviderToOutpost(t *testing.T) {
	var patched []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/outposts/instances/out-1/", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"pk": "out-1", "name": "embedded", "providers": [7, 3]}`))
		case http.MethodPatch:
			var body struct {
				Providers []int `json:"providers"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			patched = body.Providers
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	require.NoError(t, client.AddProviderToOutpost(context.Background(), newTestEndpoint(srv), "out-1", "42"))
	assert.Equal(t, []int{3, 7, 42}, patched)
}

func TestClient_AddProviderToOutpost_AlreadyBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s", r.Method)
		}
		w.Write([]byte(`{"pk": "out-1", "providers": [42]}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	require.NoError(t, client.AddProviderToOutpost(context.Background(), newTestEndpoint(srv), "out-1", "42"))
}

func TestClient_AddProviderToOutpost_BadID(t *testing.T) {
	client := NewClient(time.Second, nil)
	err := client.AddProviderToOutpost(context.Background(), Endpoint{URL: "http://unused"}, "out-1", "abc")
	require.Error(t, err)
}
