package core

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/model"
)

// CheckResult is the outcome of one route probe.
type CheckResult struct {
	Hostname   string       `json:"hostname"`
	Healthy    bool         `json:"healthy"`
	StatusCode int          `json:"status_code,omitempty"`
	LatencyMS  int64        `json:"latency_ms"`
	Error      string       `json:"error,omitempty"`
	Route      *model.Route `json:"route"`
}

// HealthService probes published routes over their public hostname.
type HealthService struct {
	store  RouteStore
	client *http.Client
	url    func(hostname string) string
	events *Events
	logger zerolog.Logger
}

func NewHealthService(store RouteStore, events *Events, timeout time.Duration, logger zerolog.Logger) *HealthService {
	return &HealthService{
		store: store,
		client: &http.Client{
			Timeout: timeout,
			// A redirect (for example to a login page) already proves the
			// route answers.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		url:    func(hostname string) string { return "https://" + hostname },
		events: events,
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// Check probes hostname and records the result. A transport failure or a 5xx
// moves the route to error, anything else to active. Disabled routes are
// probed but keep their status.
func (s *HealthService) Check(ctx context.Context, hostname string) (*CheckResult, error) {
	hostname = model.NormalizeHostname(hostname)
	route, err := s.store.GetRoute(ctx, hostname)
	if err != nil {
		return nil, err
	}

	res := &CheckResult{Hostname: hostname, Route: route}
	start := time.Now()
	probeErr := s.probe(ctx, hostname, res)
	res.LatencyMS = time.Since(start).Milliseconds()
	res.Healthy = probeErr == nil

	now := time.Now().UTC()
	route.LastCheckedAt = &now
	if route.Status != model.RouteStatusDisabled {
		if res.Healthy {
			route.SetStatus(model.RouteStatusActive)
		} else {
			res.Error = probeErr.Error()
			route.SetError(res.Error)
		}
	} else if probeErr != nil {
		res.Error = probeErr.Error()
	}
	if err := s.store.UpdateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("store route %s: %w", hostname, err)
	}

	s.logger.Debug().Str("hostname", hostname).Bool("healthy", res.Healthy).
		Int("status_code", res.StatusCode).Int64("latency_ms", res.LatencyMS).Msg("route checked")
	s.events.Publish(model.EventRouteChecked, hostname, route.Status)
	return res, nil
}

func (s *HealthService) probe(ctx context.Context, hostname string, res *CheckResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(hostname), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
