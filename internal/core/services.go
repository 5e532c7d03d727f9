package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/authentik"
	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/ingress"
	"github.com/edvin/devtunnel/internal/inventory"
	"github.com/edvin/devtunnel/internal/model"
)

// RouteStore is the authoritative local record of published routes.
type RouteStore interface {
	GetRoute(ctx context.Context, hostname string) (*model.Route, error)
	FindRoute(ctx context.Context, hostname string) (*model.Route, error)
	ListRoutes(ctx context.Context, filter model.RouteFilter) ([]model.Route, error)
	CreateRoute(ctx context.Context, r *model.Route) error
	UpdateRoute(ctx context.Context, r *model.Route) error
	UpsertRoute(ctx context.Context, r *model.Route) error
	DeleteRoute(ctx context.Context, hostname string) error
}

// SettingsStore persists the tunnel settings with tokens already sealed.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (*model.TunnelSettings, error)
	SaveSettings(ctx context.Context, s *model.TunnelSettings) error
	DeleteSettings(ctx context.Context) error
}

// ProjectStore holds database-known projects.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateProject(ctx context.Context, p *model.Project) error
}

// Store is everything the engine persists.
type Store interface {
	RouteStore
	SettingsStore
	ProjectStore
	Ping(ctx context.Context) error
}

// TunnelAPI is the tunnel provider's control plane.
type TunnelAPI interface {
	GetTunnelConfig(ctx context.Context, acct cloudflare.Account) (*ingress.Config, error)
	PutTunnelConfig(ctx context.Context, acct cloudflare.Account, cfg *ingress.Config) error
	GetTunnel(ctx context.Context, acct cloudflare.Account) (*cloudflare.Tunnel, error)
	GetZone(ctx context.Context, acct cloudflare.Account) (*cloudflare.Zone, error)
	VerifyToken(ctx context.Context, acct cloudflare.Account) (*cloudflare.TokenStatus, error)
	CreateDNSRecord(ctx context.Context, acct cloudflare.Account, name, target string) (*cloudflare.DNSRecord, error)
	FindDNSRecord(ctx context.Context, acct cloudflare.Account, name string) (*cloudflare.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, acct cloudflare.Account, recordID string) error
}

// IdentityAPI is the identity provider guarding protected routes.
type IdentityAPI interface {
	CreateProxyProvider(ctx context.Context, ep authentik.Endpoint, params authentik.ProxyProviderParams) (*authentik.ProxyProvider, error)
	DeleteProxyProvider(ctx context.Context, ep authentik.Endpoint, providerID string) error
	CreateApplication(ctx context.Context, ep authentik.Endpoint, params authentik.ApplicationParams) (*authentik.Application, error)
	DeleteApplication(ctx context.Context, ep authentik.Endpoint, slug string) error
	AddProviderToOutpost(ctx context.Context, ep authentik.Endpoint, outpostID, providerID string) error
}

// Restarter controls the local tunnel daemon.
type Restarter interface {
	Restart(ctx context.Context) daemon.RestartResult
	Status(ctx context.Context) daemon.Status
}

// Inventory builds per-pass project and socket snapshots.
type Inventory interface {
	Snapshot(ctx context.Context) (*inventory.Snapshot, error)
}

// Deps are the collaborators the services are built from.
type Deps struct {
	Store         Store
	Tunnel        TunnelAPI
	Identity      IdentityAPI
	Daemon        Restarter
	Inventory     Inventory
	SecretKey     []byte
	HealthTimeout time.Duration
	Logger        zerolog.Logger
}

type Services struct {
	Settings   *SettingsService
	Tunnel     *TunnelService
	Publish    *PublishService
	Reconcile  *ReconcileService
	Health     *HealthService
	Project    *ProjectService
	Events     *Events
	Guard      *IngressGuard
	DNS        *DNSManager
	Protection *ProtectionManager
}

func NewServices(d Deps) *Services {
	events := NewEvents(d.Logger)
	settings := NewSettingsService(d.Store, d.Tunnel, d.SecretKey)
	guard := NewIngressGuard(d.Tunnel)
	dns := NewDNSManager(d.Tunnel, d.Logger)
	protection := NewProtectionManager(d.Identity, d.Logger)
	publish := NewPublishService(d.Store, settings, d.Tunnel, guard, dns, protection, d.Daemon, events, d.Logger)

	return &Services{
		Settings:   settings,
		Tunnel:     NewTunnelService(settings, d.Tunnel, d.Daemon, events),
		Publish:    publish,
		Reconcile:  NewReconcileService(d.Store, settings, d.Inventory, publish, events, d.Logger),
		Health:     NewHealthService(d.Store, events, d.HealthTimeout, d.Logger),
		Project:    NewProjectService(d.Store, d.Store, d.Inventory),
		Events:     events,
		Guard:      guard,
		DNS:        dns,
		Protection: protection,
	}
}
