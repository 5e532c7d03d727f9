package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/ingress"
	"github.com/edvin/devtunnel/internal/metrics"
	"github.com/edvin/devtunnel/internal/model"
)

const (
	disabledMessage = "route is no longer present in the tunnel ingress"
	cleanupLimit    = 4
)

// SyncResult lists what one reconciliation pass changed.
type SyncResult struct {
	Created   []string        `json:"created"`
	Updated   []string        `json:"updated"`
	Disabled  []string        `json:"disabled"`
	Unchanged int             `json:"unchanged"`
	Warnings  []model.Warning `json:"warnings"`
}

// BulkDeleteResult reports a bulk orphan cleanup.
type BulkDeleteResult struct {
	Deleted  []string              `json:"deleted"`
	Restart  *daemon.RestartResult `json:"restart,omitempty"`
	Warnings []model.Warning       `json:"warnings"`
}

// ReconcileService resolves drift between the live ingress configuration and
// the route store, and links routes to local projects.
type ReconcileService struct {
	store     RouteStore
	settings  *SettingsService
	inventory Inventory
	publish   *PublishService
	events    *Events
	logger    zerolog.Logger
	group     singleflight.Group
}

func NewReconcileService(store RouteStore, settings *SettingsService, inv Inventory, publish *PublishService,
	events *Events, logger zerolog.Logger) *ReconcileService {
	return &ReconcileService{
		store:     store,
		settings:  settings,
		inventory: inv,
		publish:   publish,
		events:    events,
		logger:    logger.With().Str("component", "reconcile").Logger(),
	}
}

// Sync imports live ingress rules into the route store and disables stored
// routes that are no longer live. Routes are never deleted here. Concurrent
// callers share one pass, which runs to completion even if the caller that
// started it goes away.
func (s *ReconcileService) Sync(ctx context.Context) (*SyncResult, error) {
	v, err, shared := s.group.Do("sync", func() (any, error) {
		return s.sync(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug().Msg("joined in-flight sync")
	}
	return v.(*SyncResult), nil
}

func (s *ReconcileService) sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	defer func() { metrics.SyncDuration.Observe(time.Since(start).Seconds()) }()

	settings, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.publish.guard.Read(ctx, acct)
	if err != nil {
		return nil, err
	}
	snap, err := s.inventory.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory snapshot: %w", err)
	}
	stored, err := s.store.ListRoutes(ctx, model.RouteFilter{})
	if err != nil {
		return nil, err
	}
	byHost := make(map[string]*model.Route, len(stored))
	for i := range stored {
		byHost[stored[i].Hostname] = &stored[i]
	}

	res := &SyncResult{Created: []string{}, Updated: []string{}, Disabled: []string{}, Warnings: []model.Warning{}}
	seen := make(map[string]bool)
	for _, h := range cfg.Hosts() {
		hostname := model.NormalizeHostname(h.Hostname)
		if seen[hostname] {
			continue
		}
		seen[hostname] = true

		scheme, host, port, err := model.ParseServiceURL(h.Service)
		if err != nil {
			res.Warnings = append(res.Warnings, model.NewWarning("parse", fmt.Errorf("%s: %w", hostname, err)))
			continue
		}
		var projectID *string
		if p, ok := snap.ProjectByPort(port); ok {
			id := p.ID
			projectID = &id
		}

		if r, ok := byHost[hostname]; ok {
			if !applyLive(r, h, scheme, host, port, projectID) {
				res.Unchanged++
				continue
			}
			if err := s.store.UpdateRoute(ctx, r); err != nil {
				res.Warnings = append(res.Warnings, model.NewWarning(StepStore, fmt.Errorf("%s: %w", hostname, err)))
				continue
			}
			res.Updated = append(res.Updated, hostname)
			continue
		}

		r := &model.Route{
			Hostname:         hostname,
			Subdomain:        model.SubdomainOf(hostname, settings.ZoneName),
			LocalHost:        host,
			LocalPort:        port,
			Scheme:           scheme,
			Service:          h.Service,
			WebsocketEnabled: h.Websocket,
			Status:           model.RouteStatusActive,
			ProjectID:        projectID,
		}
		if rec, err := s.publish.dns.Find(ctx, acct, hostname); err != nil {
			res.Warnings = append(res.Warnings, model.NewWarning(StepDNS, fmt.Errorf("%s: %w", hostname, err)))
		} else if rec != nil {
			id := rec.ID
			r.DNSRecordID = &id
		}
		if err := s.store.CreateRoute(ctx, r); err != nil {
			res.Warnings = append(res.Warnings, model.NewWarning(StepStore, fmt.Errorf("%s: %w", hostname, err)))
			continue
		}
		res.Created = append(res.Created, hostname)
	}

	for _, r := range byHost {
		if seen[r.Hostname] || r.Status == model.RouteStatusDisabled {
			continue
		}
		r.Status = model.RouteStatusDisabled
		msg := disabledMessage
		r.ErrorMessage = &msg
		if err := s.store.UpdateRoute(ctx, r); err != nil {
			res.Warnings = append(res.Warnings, model.NewWarning(StepStore, fmt.Errorf("%s: %w", r.Hostname, err)))
			continue
		}
		res.Disabled = append(res.Disabled, r.Hostname)
	}

	metrics.SyncDrift.WithLabelValues("created").Add(float64(len(res.Created)))
	metrics.SyncDrift.WithLabelValues("updated").Add(float64(len(res.Updated)))
	metrics.SyncDrift.WithLabelValues("disabled").Add(float64(len(res.Disabled)))

	s.logger.Info().Int("created", len(res.Created)).Int("updated", len(res.Updated)).
		Int("disabled", len(res.Disabled)).Int("unchanged", res.Unchanged).
		Dur("took", time.Since(start)).Msg("sync complete")
	s.events.Publish(model.EventSyncCompleted, "",
		fmt.Sprintf("created=%d updated=%d disabled=%d", len(res.Created), len(res.Updated), len(res.Disabled)))
	return res, nil
}

// applyLive copies the live rule's fields onto r and reports whether anything
// changed. A route without a port match keeps its project id. A route whose
// rule is live upstream always ends up active.
func applyLive(r *model.Route, h ingress.HostRoute, scheme, host string, port int, projectID *string) bool {
	changed := false
	if r.Scheme != scheme {
		r.Scheme = scheme
		changed = true
	}
	if r.LocalHost != host {
		r.LocalHost = host
		changed = true
	}
	if r.LocalPort != port {
		r.LocalPort = port
		changed = true
	}
	if r.Service != h.Service {
		r.Service = h.Service
		changed = true
	}
	if r.WebsocketEnabled != h.Websocket {
		r.WebsocketEnabled = h.Websocket
		changed = true
	}
	if projectID != nil && (r.ProjectID == nil || *r.ProjectID != *projectID) {
		r.ProjectID = projectID
		changed = true
	}
	if r.Status != model.RouteStatusActive || r.ErrorMessage != nil {
		r.SetStatus(model.RouteStatusActive)
		changed = true
	}
	return changed
}

// Mappings classifies every stored route against a fresh inventory snapshot.
func (s *ReconcileService) Mappings(ctx context.Context) ([]model.RouteMapping, error) {
	routes, err := s.store.ListRoutes(ctx, model.RouteFilter{})
	if err != nil {
		return nil, err
	}
	snap, err := s.inventory.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory snapshot: %w", err)
	}
	out := make([]model.RouteMapping, 0, len(routes))
	for _, r := range routes {
		m := Classify(r, snap)
		out = append(out, model.RouteMapping{Route: r, Match: m, Orphaned: m == nil})
	}
	return out, nil
}

// Orphaned returns the routes no matcher links to a project.
func (s *ReconcileService) Orphaned(ctx context.Context) ([]model.Route, error) {
	mappings, err := s.Mappings(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.Route{}
	for _, m := range mappings {
		if m.Orphaned {
			out = append(out, m.Route)
		}
	}
	return out, nil
}

// DeleteOrphan tears down hostname if it is orphaned. Linked routes are
// rejected.
func (s *ReconcileService) DeleteOrphan(ctx context.Context, hostname string) (*WorkflowResult, error) {
	hostname = model.NormalizeHostname(hostname)
	route, err := s.store.GetRoute(ctx, hostname)
	if err != nil {
		return nil, err
	}
	snap, err := s.inventory.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory snapshot: %w", err)
	}
	if m := Classify(*route, snap); m != nil {
		return nil, &model.ValidationError{
			Field:   "hostname",
			Message: fmt.Sprintf("%s is linked to project %s by %s", hostname, m.ProjectName, m.Method),
		}
	}
	return s.publish.Teardown(ctx, hostname)
}

// DeleteOrphans tears down every orphaned route. Nothing happens unless
// confirm is set. All ingress rules go in one guarded write, the remaining
// cleanup runs concurrently and the daemon restarts once.
func (s *ReconcileService) DeleteOrphans(ctx context.Context, confirm bool) (*BulkDeleteResult, error) {
	if !confirm {
		return nil, &model.ValidationError{Field: "confirm", Message: "deleting all orphaned routes requires confirm=true"}
	}
	orphans, err := s.Orphaned(ctx)
	if err != nil {
		return nil, err
	}
	res := &BulkDeleteResult{Deleted: []string{}, Warnings: []model.Warning{}}
	if len(orphans) == 0 {
		return res, nil
	}
	settings, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}

	hostnames := make([]string, len(orphans))
	for i, r := range orphans {
		hostnames[i] = r.Hostname
	}
	_, err = s.publish.guard.Mutate(ctx, acct, func(cfg *ingress.Config) error {
		if len(cfg.Remove(hostnames...)) == 0 {
			return ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*WorkflowResult, len(orphans))
	var g errgroup.Group
	g.SetLimit(cleanupLimit)
	for i := range orphans {
		g.Go(func() error {
			r := &orphans[i]
			wr := newWorkflowResult(r)
			s.publish.cleanup(ctx, settings, acct, r.Hostname, r, r.DNSRecordID, wr)
			results[i] = wr
			return nil
		})
	}
	_ = g.Wait()

	for i, wr := range results {
		hostname := orphans[i].Hostname
		res.Deleted = append(res.Deleted, hostname)
		for _, w := range wr.Warnings {
			res.Warnings = append(res.Warnings, model.Warning{Step: w.Step, Message: hostname + ": " + w.Message})
		}
		s.events.Publish(model.EventRouteUnpublished, hostname, "orphan cleanup")
	}
	metrics.RoutesUnpublished.Add(float64(len(res.Deleted)))

	rr := s.publish.daemon.Restart(ctx)
	res.Restart = &rr
	s.logger.Info().Int("deleted", len(res.Deleted)).Int("warnings", len(res.Warnings)).
		Bool("restarted", rr.Success).Msg("orphaned routes deleted")
	return res, nil
}
