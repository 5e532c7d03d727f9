package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/model"
)

func healthFor(f *fixture, srv *httptest.Server) *HealthService {
	h := f.svc.Health
	h.url = func(string) string { return srv.URL }
	return h
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		healthy bool
		want    string
	}{
		{"ok", http.StatusOK, true, model.RouteStatusActive},
		{"redirect to login", http.StatusFound, true, model.RouteStatusActive},
		{"not found is still reachable", http.StatusNotFound, true, model.RouteStatusActive},
		{"bad gateway", http.StatusBadGateway, false, model.RouteStatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusFound {
					w.Header().Set("Location", "https://auth.example.com/")
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f := newFixture(t)
			f.daemon.fail = true
			f.publish(t, "app", 3000)

			res, err := healthFor(f, srv).Check(context.Background(), "app.example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.healthy, res.Healthy)
			assert.Equal(t, tt.status, res.StatusCode)

			stored := f.store.route(t, "app.example.com")
			assert.Equal(t, tt.want, stored.Status)
			assert.NotNil(t, stored.LastCheckedAt)
			if tt.healthy {
				assert.Nil(t, stored.ErrorMessage)
			} else {
				require.NotNil(t, stored.ErrorMessage)
				assert.Contains(t, *stored.ErrorMessage, "502")
			}
		})
	}
}

func TestHealthCheck_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	f := newFixture(t)
	f.publish(t, "app", 3000)
	res, err := healthFor(f, srv).Check(context.Background(), "app.example.com")
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, model.RouteStatusError, f.store.route(t, "app.example.com").Status)
}

func TestHealthCheck_DisabledKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t)
	f.publish(t, "app", 3000)
	r := f.store.route(t, "app.example.com")
	r.Status = model.RouteStatusDisabled
	require.NoError(t, f.store.UpdateRoute(context.Background(), &r))

	res, err := healthFor(f, srv).Check(context.Background(), "app.example.com")
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	stored := f.store.route(t, "app.example.com")
	assert.Equal(t, model.RouteStatusDisabled, stored.Status)
	assert.NotNil(t, stored.LastCheckedAt)
}

func TestHealthCheck_UnknownRoute(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Health.Check(context.Background(), "nope.example.com")
	assert.True(t, model.IsNotFound(err))
}
