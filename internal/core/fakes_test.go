package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/authentik"
	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/crypto"
	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/ingress"
	"github.com/edvin/devtunnel/internal/inventory"
	"github.com/edvin/devtunnel/internal/model"
)

// ---------- Route store ----------

type memStore struct {
	mu       sync.Mutex
	routes   map[string]model.Route
	settings *model.TunnelSettings
	projects []model.Project
	writes   int

	// beforeCreate runs once, outside the lock, at the start of the next
	// CreateRoute call.
	beforeCreate func()
}

func newMemStore() *memStore {
	return &memStore{routes: make(map[string]model.Route)}
}

func (s *memStore) GetRoute(_ context.Context, hostname string) (*model.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[hostname]
	if !ok {
		return nil, &model.NotFoundError{Kind: "route", Key: hostname}
	}
	return &r, nil
}

func (s *memStore) FindRoute(ctx context.Context, hostname string) (*model.Route, error) {
	r, err := s.GetRoute(ctx, hostname)
	if model.IsNotFound(err) {
		return nil, nil
	}
	return r, err
}

func (s *memStore) ListRoutes(_ context.Context, f model.RouteFilter) ([]model.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Route{}
	for _, r := range s.routes {
		if f.ProjectID != "" && (r.ProjectID == nil || *r.ProjectID != f.ProjectID) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

func (s *memStore) CreateRoute(_ context.Context, r *model.Route) error {
	s.mu.Lock()
	hook := s.beforeCreate
	s.beforeCreate = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[r.Hostname]; ok {
		return &model.ValidationError{Field: "hostname", Message: "exists", Conflict: true}
	}
	r.CreatedAt, r.UpdatedAt = time.Now(), time.Now()
	s.routes[r.Hostname] = *r
	s.writes++
	return nil
}

func (s *memStore) UpdateRoute(_ context.Context, r *model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[r.Hostname]; !ok {
		return &model.NotFoundError{Kind: "route", Key: r.Hostname}
	}
	r.UpdatedAt = time.Now()
	s.routes[r.Hostname] = *r
	s.writes++
	return nil
}

func (s *memStore) UpsertRoute(_ context.Context, r *model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[r.Hostname] = *r
	s.writes++
	return nil
}

func (s *memStore) DeleteRoute(_ context.Context, hostname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[hostname]; !ok {
		return &model.NotFoundError{Kind: "route", Key: hostname}
	}
	delete(s.routes, hostname)
	s.writes++
	return nil
}

func (s *memStore) LoadSettings(context.Context) (*model.TunnelSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, nil
	}
	cp := *s.settings
	return &cp, nil
}

func (s *memStore) SaveSettings(_ context.Context, ts *model.TunnelSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts.UpdatedAt = time.Now()
	cp := *ts
	s.settings = &cp
	return nil
}

func (s *memStore) DeleteSettings(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = nil
	return nil
}

func (s *memStore) ListProjects(context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Project(nil), s.projects...), nil
}

func (s *memStore) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, &model.NotFoundError{Kind: "project", Key: id}
}

func (s *memStore) CreateProject(_ context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, *p)
	return nil
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) route(t *testing.T, hostname string) model.Route {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[hostname]
	require.True(t, ok, "route %s not stored", hostname)
	return r
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ---------- Tunnel provider ----------

const baseIngress = `{"ingress":[{"hostname":"existing.example.com","service":"http://localhost:9000"},{"service":"http_status:404"}],"warp-routing":{"enabled":false}}`

// fakeTunnel keeps the ingress document as JSON so every read returns an
// independent copy, like the real API.
type fakeTunnel struct {
	mu       sync.Mutex
	config   []byte
	records  map[string]cloudflare.DNSRecord
	nextID   int
	zone     string
	getDelay time.Duration

	getErr       error
	putErr       error
	createDNSErr error
	findDNSErr   error
	deleteDNSErr error

	puts int
}

func newFakeTunnel() *fakeTunnel {
	return &fakeTunnel{config: []byte(baseIngress), records: make(map[string]cloudflare.DNSRecord), zone: "example.com"}
}

func (f *fakeTunnel) GetTunnelConfig(context.Context, cloudflare.Account) (*ingress.Config, error) {
	f.mu.Lock()
	data, err, delay := append([]byte(nil), f.config...), f.getErr, f.getDelay
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	time.Sleep(delay)
	return ingress.Parse(data)
}

func (f *fakeTunnel) PutTunnelConfig(_ context.Context, _ cloudflare.Account, cfg *ingress.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.config = data
	f.puts++
	return nil
}

func (f *fakeTunnel) GetTunnel(_ context.Context, acct cloudflare.Account) (*cloudflare.Tunnel, error) {
	return &cloudflare.Tunnel{ID: acct.TunnelID, Name: "dev", Status: "healthy",
		Connections: []cloudflare.TunnelConnection{{ID: "c1", ColoName: "ams01"}}}, nil
}

func (f *fakeTunnel) GetZone(_ context.Context, acct cloudflare.Account) (*cloudflare.Zone, error) {
	return &cloudflare.Zone{ID: acct.ZoneID, Name: f.zone, Status: "active"}, nil
}

func (f *fakeTunnel) VerifyToken(context.Context, cloudflare.Account) (*cloudflare.TokenStatus, error) {
	return &cloudflare.TokenStatus{ID: "tok", Status: "active"}, nil
}

func (f *fakeTunnel) CreateDNSRecord(_ context.Context, _ cloudflare.Account, name, target string) (*cloudflare.DNSRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDNSErr != nil {
		return nil, f.createDNSErr
	}
	if _, ok := f.records[name]; ok {
		return nil, &model.UpstreamError{Provider: "cloudflare", Op: "create_dns_record", StatusCode: http.StatusBadRequest,
			Message: "An A, AAAA, or CNAME record with that host already exists."}
	}
	f.nextID++
	rec := cloudflare.DNSRecord{ID: fmt.Sprintf("rec-%d", f.nextID), Type: "CNAME", Name: name, Content: target, Proxied: true, TTL: 1}
	f.records[name] = rec
	return &rec, nil
}

func (f *fakeTunnel) FindDNSRecord(_ context.Context, _ cloudflare.Account, name string) (*cloudflare.DNSRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findDNSErr != nil {
		return nil, f.findDNSErr
	}
	rec, ok := f.records[name]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeTunnel) DeleteDNSRecord(_ context.Context, _ cloudflare.Account, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteDNSErr != nil {
		return f.deleteDNSErr
	}
	for name, rec := range f.records {
		if rec.ID == recordID {
			delete(f.records, name)
			return nil
		}
	}
	return &model.UpstreamError{Provider: "cloudflare", Op: "delete_dns_record", StatusCode: http.StatusNotFound, Message: "Record not found"}
}

func (f *fakeTunnel) liveIngress(t *testing.T) *ingress.Config {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, err := ingress.Parse(f.config)
	require.NoError(t, err)
	return cfg
}

func (f *fakeTunnel) setIngress(t *testing.T, doc string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = []byte(doc)
}

func (f *fakeTunnel) hasRecord(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[name]
	return ok
}

// ---------- Identity provider ----------

type mockIdentity struct {
	mock.Mock
}

func (m *mockIdentity) CreateProxyProvider(ctx context.Context, ep authentik.Endpoint, params authentik.ProxyProviderParams) (*authentik.ProxyProvider, error) {
	args := m.Called(ctx, ep, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authentik.ProxyProvider), args.Error(1)
}

func (m *mockIdentity) DeleteProxyProvider(ctx context.Context, ep authentik.Endpoint, providerID string) error {
	return m.Called(ctx, ep, providerID).Error(0)
}

func (m *mockIdentity) CreateApplication(ctx context.Context, ep authentik.Endpoint, params authentik.ApplicationParams) (*authentik.Application, error) {
	args := m.Called(ctx, ep, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authentik.Application), args.Error(1)
}

func (m *mockIdentity) DeleteApplication(ctx context.Context, ep authentik.Endpoint, slug string) error {
	return m.Called(ctx, ep, slug).Error(0)
}

func (m *mockIdentity) AddProviderToOutpost(ctx context.Context, ep authentik.Endpoint, outpostID, providerID string) error {
	return m.Called(ctx, ep, outpostID, providerID).Error(0)
}

// ---------- Daemon ----------

type fakeDaemon struct {
	mu       sync.Mutex
	fail     bool
	restarts int
}

func (d *fakeDaemon) Restart(context.Context) daemon.RestartResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restarts++
	if d.fail {
		return daemon.RestartResult{Method: daemon.MethodManual, Message: "run: sudo systemctl restart cloudflared"}
	}
	return daemon.RestartResult{Method: daemon.MethodSystemctl, Success: true, Message: "restarted"}
}

func (d *fakeDaemon) Status(context.Context) daemon.Status {
	return daemon.Status{Unit: "cloudflared", Active: true, State: "active"}
}

func (d *fakeDaemon) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restarts
}

// ---------- Inventory ----------

type fakeInventory struct {
	snap *inventory.Snapshot
}

func (f *fakeInventory) Snapshot(context.Context) (*inventory.Snapshot, error) {
	if f.snap == nil {
		return inventory.NewSnapshot("/home/dev/projects", nil, nil, nil), nil
	}
	return f.snap, nil
}

// ---------- Fixture ----------

type fixture struct {
	svc      *Services
	store    *memStore
	tunnel   *fakeTunnel
	identity *mockIdentity
	daemon   *fakeDaemon
	inv      *fakeInventory
}

func testSettings() model.TunnelSettings {
	return model.TunnelSettings{
		AccountID: "acct-1",
		ZoneID:    "zone-1",
		ZoneName:  "example.com",
		TunnelID:  "6ff42ae2-765d-4adf-8112-31c55c1551ef",
		APIToken:  "cf-token",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := &fixture{
		store:    newMemStore(),
		tunnel:   newFakeTunnel(),
		identity: &mockIdentity{},
		daemon:   &fakeDaemon{},
		inv:      &fakeInventory{},
	}
	f.svc = NewServices(Deps{
		Store:         f.store,
		Tunnel:        f.tunnel,
		Identity:      f.identity,
		Daemon:        f.daemon,
		Inventory:     f.inv,
		SecretKey:     key,
		HealthTimeout: 2 * time.Second,
		Logger:        zerolog.Nop(),
	})
	_, err = f.svc.Settings.Save(context.Background(), testSettings())
	require.NoError(t, err)
	return f
}

func (f *fixture) withIdentity(t *testing.T) {
	t.Helper()
	s := testSettings()
	s.IdentityURL = "https://auth.example.com"
	s.IdentityToken = "ak-token"
	s.OutpostID = "outpost-1"
	s.AuthorizationFlow = "flow-authz"
	_, err := f.svc.Settings.Save(context.Background(), s)
	require.NoError(t, err)
}

func (f *fixture) publish(t *testing.T, sub string, port int) *WorkflowResult {
	t.Helper()
	res, err := f.svc.Publish.Create(context.Background(), PublishRequest{Subdomain: sub, LocalPort: port})
	require.NoError(t, err)
	return res
}
