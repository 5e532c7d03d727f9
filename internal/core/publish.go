package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/ingress"
	"github.com/edvin/devtunnel/internal/metrics"
	"github.com/edvin/devtunnel/internal/model"
	"github.com/edvin/devtunnel/internal/platform"
)

// Workflow steps, in execution order.
const (
	StepIngress    = "ingress"
	StepDNS        = "dns"
	StepProtection = "protection"
	StepStore      = "store"
	StepRestart    = "restart"
)

// PublishRequest asks for a local service to be published as
// <subdomain>.<zone>.
type PublishRequest struct {
	Subdomain        string
	LocalHost        string
	LocalPort        int
	Scheme           string
	ZoneName         string
	ProjectID        string
	Description      string
	EnableProtection bool
	Websocket        bool
}

// StepResult is the outcome of one workflow step.
type StepResult struct {
	Step    string `json:"step"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// WorkflowResult describes a publish, update or teardown. Success reports the
// ingress outcome; degraded DNS or protection steps show up in Warnings and
// the restart outcome is reported separately.
type WorkflowResult struct {
	Success  bool                  `json:"success"`
	Route    *model.Route          `json:"route,omitempty"`
	Steps    []StepResult          `json:"steps"`
	Restart  *daemon.RestartResult `json:"restart,omitempty"`
	Warnings []model.Warning       `json:"warnings"`
}

func newWorkflowResult(route *model.Route) *WorkflowResult {
	return &WorkflowResult{Route: route, Steps: []StepResult{}, Warnings: []model.Warning{}}
}

func (r *WorkflowResult) ok(step, msg string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Success: true, Message: msg})
}

func (r *WorkflowResult) fail(step string, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Success: false, Message: err.Error()})
	r.Warnings = append(r.Warnings, model.NewWarning(step, err))
}

func (r *WorkflowResult) failWarnings(step string, ws []model.Warning) {
	msg := ""
	if len(ws) > 0 {
		msg = ws[0].Message
	}
	r.Steps = append(r.Steps, StepResult{Step: step, Success: false, Message: msg})
	r.Warnings = append(r.Warnings, ws...)
}

// PublishService runs the create, update and teardown workflows for routes.
type PublishService struct {
	store      RouteStore
	settings   *SettingsService
	tunnel     TunnelAPI
	guard      *IngressGuard
	dns        *DNSManager
	protection *ProtectionManager
	daemon     Restarter
	events     *Events
	logger     zerolog.Logger
}

func NewPublishService(store RouteStore, settings *SettingsService, tunnel TunnelAPI, guard *IngressGuard,
	dns *DNSManager, protection *ProtectionManager, d Restarter, events *Events, logger zerolog.Logger) *PublishService {
	return &PublishService{
		store:      store,
		settings:   settings,
		tunnel:     tunnel,
		guard:      guard,
		dns:        dns,
		protection: protection,
		daemon:     d,
		events:     events,
		logger:     logger.With().Str("component", "publish").Logger(),
	}
}

// Create publishes a new route. Validation and a duplicate hostname are
// rejected before anything upstream changes, and an ingress failure aborts
// the workflow. DNS and protection failures degrade to warnings. The route is
// stored as pending and becomes active once the daemon restart succeeds.
func (s *PublishService) Create(ctx context.Context, req PublishRequest) (*WorkflowResult, error) {
	settings, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}
	zone, err := s.zoneName(ctx, settings, acct, req.ZoneName)
	if err != nil {
		return nil, err
	}
	route, err := newRoute(req, zone)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.FindRoute(ctx, route.Hostname)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, duplicateHostname(route.Hostname)
	}

	log := s.logger.With().Str("hostname", route.Hostname).Logger()
	res := newWorkflowResult(route)

	_, err = s.guard.Mutate(ctx, acct, func(cfg *ingress.Config) error {
		err := cfg.Insert(ingress.HostRoute{
			Hostname:  route.Hostname,
			Service:   route.Service,
			Websocket: route.WebsocketEnabled,
		})
		if errors.Is(err, ingress.ErrDuplicateHost) {
			return duplicateHostname(route.Hostname)
		}
		return err
	})
	if err != nil {
		metrics.RoutesPublished.WithLabelValues("failed").Inc()
		log.Error().Err(err).Msg("ingress insert failed")
		return nil, err
	}
	res.ok(StepIngress, "")

	recordID, err := s.dns.Ensure(ctx, acct, route.Hostname)
	if err != nil {
		log.Warn().Err(err).Msg("dns record not created")
		res.fail(StepDNS, err)
	} else {
		route.DNSRecordID = &recordID
		res.ok(StepDNS, "")
	}

	if req.EnableProtection {
		p, warnings := s.protection.Enable(ctx, settings, route.Hostname, route.Service)
		if p != nil {
			route.SetProtection(*p)
			res.ok(StepProtection, "")
		} else {
			res.failWarnings(StepProtection, warnings)
		}
	}

	if err := s.storeNew(ctx, route); err != nil {
		metrics.RoutesPublished.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("store route %s: %w", route.Hostname, err)
	}
	res.ok(StepStore, "")

	s.restart(ctx, route, res)
	if err := s.store.UpdateRoute(ctx, route); err != nil {
		res.fail(StepStore, err)
	}

	res.Success = true
	metrics.RoutesPublished.WithLabelValues("ok").Inc()
	log.Info().Str("status", route.Status).Int("warnings", len(res.Warnings)).Msg("route published")
	s.events.Publish(model.EventRoutePublished, route.Hostname, route.Service)
	return res, nil
}

// storeNew inserts a freshly published route. The ingress rule is already
// live, so a concurrent sync may have imported the hostname in the meantime;
// that record is overwritten with ours, keeping its created_at.
func (s *PublishService) storeNew(ctx context.Context, route *model.Route) error {
	err := s.store.CreateRoute(ctx, route)
	var ve *model.ValidationError
	if err == nil || !errors.As(err, &ve) || !ve.Conflict {
		return err
	}
	existing, ferr := s.store.FindRoute(ctx, route.Hostname)
	if ferr != nil {
		return ferr
	}
	if existing != nil {
		route.CreatedAt = existing.CreatedAt
	}
	s.logger.Debug().Str("hostname", route.Hostname).Msg("route imported concurrently, overwriting")
	return s.store.UpsertRoute(ctx, route)
}

// UpdatePort points an existing route at a new local port, and optionally a
// new local host.
func (s *PublishService) UpdatePort(ctx context.Context, hostname string, port int, localHost string) (*WorkflowResult, error) {
	if !model.ValidPort(port) {
		return nil, &model.ValidationError{Field: "local_port", Message: fmt.Sprintf("port %d outside %d-%d", port, model.MinPort, model.MaxPort)}
	}
	return s.update(ctx, hostname, func(r *model.Route) {
		if localHost != "" {
			r.LocalHost = localHost
		}
		r.LocalPort = port
		r.Service = model.ServiceURL(r.Scheme, r.LocalHost, r.LocalPort)
	})
}

// UpdateWebsocket toggles websocket support on the route's origin.
func (s *PublishService) UpdateWebsocket(ctx context.Context, hostname string, enabled bool) (*WorkflowResult, error) {
	return s.update(ctx, hostname, func(r *model.Route) {
		r.WebsocketEnabled = enabled
	})
}

// update applies patch to the stored route and mirrors it into the ingress
// rule. A stored route without a live ingress rule is reported as not found
// rather than recreated.
func (s *PublishService) update(ctx context.Context, hostname string, patch func(*model.Route)) (*WorkflowResult, error) {
	hostname = model.NormalizeHostname(hostname)
	route, err := s.store.GetRoute(ctx, hostname)
	if err != nil {
		return nil, err
	}
	_, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}
	patch(route)
	if err := route.Validate(); err != nil {
		return nil, err
	}

	res := newWorkflowResult(route)
	_, err = s.guard.Mutate(ctx, acct, func(cfg *ingress.Config) error {
		err := cfg.Update(hostname, func(h *ingress.HostRoute) {
			h.Service = route.Service
			h.Websocket = route.WebsocketEnabled
		})
		if errors.Is(err, ingress.ErrRuleNotFound) {
			return &model.NotFoundError{Kind: "ingress rule", Key: hostname}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	res.ok(StepIngress, "")

	s.restart(ctx, route, res)
	if err := s.store.UpdateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("store route %s: %w", hostname, err)
	}
	res.ok(StepStore, "")
	res.Success = true

	s.logger.Info().Str("hostname", hostname).Str("service", route.Service).
		Bool("websocket", route.WebsocketEnabled).Msg("route updated")
	s.events.Publish(model.EventRouteUpdated, hostname, route.Service)
	return res, nil
}

// SetProtection enables or disables identity protection for a route. The
// ingress configuration is not touched. The stored protection fields change
// only when the identity provider reached the requested state.
func (s *PublishService) SetProtection(ctx context.Context, hostname string, enabled bool) (*WorkflowResult, error) {
	hostname = model.NormalizeHostname(hostname)
	route, err := s.store.GetRoute(ctx, hostname)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}

	res := newWorkflowResult(route)
	switch {
	case enabled && route.ProtectionEnabled, !enabled && !route.ProtectionEnabled:
		res.ok(StepProtection, "unchanged")
		res.Success = true
		return res, nil
	case enabled:
		p, warnings := s.protection.Enable(ctx, settings, hostname, route.Service)
		if p == nil {
			res.failWarnings(StepProtection, warnings)
			return res, nil
		}
		route.SetProtection(*p)
	default:
		if p := route.Protection(); p != nil {
			if warnings := s.protection.Disable(ctx, settings, *p); len(warnings) > 0 {
				res.failWarnings(StepProtection, warnings)
				return res, nil
			}
		}
		route.ClearProtection()
	}
	res.ok(StepProtection, "")

	if err := s.store.UpdateRoute(ctx, route); err != nil {
		return nil, fmt.Errorf("store route %s: %w", hostname, err)
	}
	res.ok(StepStore, "")
	res.Success = true
	s.events.Publish(model.EventRouteUpdated, hostname, fmt.Sprintf("protection=%t", enabled))
	return res, nil
}

// Teardown unpublishes hostname. Once the ingress rule is gone every later
// step runs even if an earlier one failed. A hostname known only upstream is
// still cleaned up, and NotFound is returned only when nothing exists
// anywhere, so teardown can be repeated after a partial create.
func (s *PublishService) Teardown(ctx context.Context, hostname string) (*WorkflowResult, error) {
	hostname = model.NormalizeHostname(hostname)
	route, err := s.store.FindRoute(ctx, hostname)
	if err != nil {
		return nil, err
	}
	settings, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}

	removed := false
	_, err = s.guard.Mutate(ctx, acct, func(cfg *ingress.Config) error {
		if len(cfg.Remove(hostname)) == 0 {
			return ErrNoChange
		}
		removed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	var recordID *string
	if route != nil {
		recordID = route.DNSRecordID
	}
	if route == nil && !removed {
		rec, err := s.dns.Find(ctx, acct, hostname)
		if err == nil && rec == nil {
			return nil, &model.NotFoundError{Kind: "route", Key: hostname}
		}
		if rec != nil {
			recordID = &rec.ID
		}
	}

	res := newWorkflowResult(route)
	if removed {
		res.ok(StepIngress, "")
	} else {
		res.ok(StepIngress, "rule already absent")
	}
	s.cleanup(ctx, settings, acct, hostname, route, recordID, res)
	s.restart(ctx, nil, res)
	res.Success = true

	metrics.RoutesUnpublished.Inc()
	s.logger.Info().Str("hostname", hostname).Int("warnings", len(res.Warnings)).Msg("route unpublished")
	s.events.Publish(model.EventRouteUnpublished, hostname, "")
	return res, nil
}

// cleanup removes everything but the ingress rule: the DNS record, the
// identity objects and the store record. Failures become warnings on res.
func (s *PublishService) cleanup(ctx context.Context, settings *model.TunnelSettings, acct cloudflare.Account,
	hostname string, route *model.Route, recordID *string, res *WorkflowResult) {
	if found, err := s.dns.Remove(ctx, acct, hostname, recordID); err != nil {
		s.logger.Warn().Err(err).Str("hostname", hostname).Msg("dns record not deleted")
		res.fail(StepDNS, err)
	} else if !found {
		res.ok(StepDNS, "record already absent")
	} else {
		res.ok(StepDNS, "")
	}

	if route == nil {
		return
	}
	if p := route.Protection(); p != nil {
		if warnings := s.protection.Disable(ctx, settings, *p); len(warnings) > 0 {
			res.failWarnings(StepProtection, warnings)
		} else {
			res.ok(StepProtection, "")
		}
	}
	if err := s.store.DeleteRoute(ctx, hostname); err != nil && !model.IsNotFound(err) {
		res.fail(StepStore, err)
	} else {
		res.ok(StepStore, "")
	}
}

// restart restarts the daemon and, when route is given, moves it to active
// on success or leaves it pending with the restart message.
func (s *PublishService) restart(ctx context.Context, route *model.Route, res *WorkflowResult) {
	rr := s.daemon.Restart(ctx)
	res.Restart = &rr
	res.Steps = append(res.Steps, StepResult{Step: StepRestart, Success: rr.Success, Message: rr.Message})
	if route == nil {
		return
	}
	if rr.Success {
		route.SetStatus(model.RouteStatusActive)
		return
	}
	route.Status = model.RouteStatusPending
	msg := rr.Message
	route.ErrorMessage = &msg
}

// zoneName resolves the zone for a new route. A request naming a zone other
// than the configured one is rejected, since DNS records can only be written
// to the configured zone.
func (s *PublishService) zoneName(ctx context.Context, settings *model.TunnelSettings, acct cloudflare.Account, requested string) (string, error) {
	requested = model.NormalizeHostname(requested)
	configured := model.NormalizeHostname(settings.ZoneName)
	switch {
	case requested != "" && configured != "" && requested != configured:
		return "", &model.ValidationError{Field: "zone_name", Message: fmt.Sprintf("zone %q is not the configured zone %q", requested, configured)}
	case requested != "":
		return requested, nil
	case configured != "":
		return configured, nil
	}
	zone, err := s.tunnel.GetZone(ctx, acct)
	if err != nil {
		return "", err
	}
	return model.NormalizeHostname(zone.Name), nil
}

func newRoute(req PublishRequest, zone string) (*model.Route, error) {
	sub := strings.ToLower(strings.TrimSpace(req.Subdomain))
	if sub == "" {
		return nil, &model.ValidationError{Field: "subdomain", Message: "subdomain is required"}
	}
	scheme := req.Scheme
	if scheme == "" {
		scheme = model.DefaultScheme
	}
	if scheme != "http" && scheme != "https" {
		return nil, &model.ValidationError{Field: "scheme", Message: fmt.Sprintf("unsupported scheme %q", scheme)}
	}
	host := req.LocalHost
	if host == "" {
		host = model.DefaultLocalHost
	}
	r := &model.Route{
		Hostname:         model.NormalizeHostname(platform.RouteHostname(sub, zone)),
		Subdomain:        sub,
		LocalHost:        host,
		LocalPort:        req.LocalPort,
		Scheme:           scheme,
		Service:          model.ServiceURL(scheme, host, req.LocalPort),
		WebsocketEnabled: req.Websocket,
		Status:           model.RouteStatusPending,
	}
	if req.Description != "" {
		d := req.Description
		r.Description = &d
	}
	if req.ProjectID != "" {
		p := req.ProjectID
		r.ProjectID = &p
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func duplicateHostname(hostname string) error {
	return &model.ValidationError{Field: "hostname", Message: fmt.Sprintf("%s is already published", hostname), Conflict: true}
}

// List returns stored routes matching filter.
func (s *PublishService) List(ctx context.Context, filter model.RouteFilter) ([]model.Route, error) {
	return s.store.ListRoutes(ctx, filter)
}

// Get returns the stored route for hostname.
func (s *PublishService) Get(ctx context.Context, hostname string) (*model.Route, error) {
	return s.store.GetRoute(ctx, model.NormalizeHostname(hostname))
}
