package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/db"
	"github.com/edvin/devtunnel/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "tunnel.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn, db.DialectSQLite))
	s := New(conn)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRoute(hostname string, port int) *model.Route {
	return &model.Route{
		Hostname:  hostname,
		Subdomain: model.SubdomainOf(hostname, "example.com"),
		LocalHost: model.DefaultLocalHost,
		LocalPort: port,
		Scheme:    model.DefaultScheme,
		Service:   model.ServiceURL("http", "localhost", port),
		Status:    model.RouteStatusPending,
	}
}

func TestRouteCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := newRoute("app.example.com", 3000)
	desc := "storefront"
	r.Description = &desc
	require.NoError(t, s.CreateRoute(ctx, r))

	got, err := s.GetRoute(ctx, "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, 3000, got.LocalPort)
	assert.Equal(t, "storefront", *got.Description)
	assert.Nil(t, got.DNSRecordID)
	assert.Nil(t, got.LastCheckedAt)
	assert.False(t, got.ProtectionEnabled)

	got.LocalPort = 3001
	got.Service = model.ServiceURL("http", "localhost", 3001)
	got.WebsocketEnabled = true
	got.SetProtection(model.Protection{AppID: "a1", AppSlug: "app-example-com", ProviderID: "42"})
	checked := time.Now().UTC().Truncate(time.Second)
	got.LastCheckedAt = &checked
	got.SetStatus(model.RouteStatusActive)
	require.NoError(t, s.UpdateRoute(ctx, got))

	got, err = s.GetRoute(ctx, "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, 3001, got.LocalPort)
	assert.True(t, got.WebsocketEnabled)
	assert.True(t, got.ProtectionConsistent())
	assert.Equal(t, "42", *got.ProviderID)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, checked.Equal(*got.LastCheckedAt))
	assert.Equal(t, model.RouteStatusActive, got.Status)

	require.NoError(t, s.DeleteRoute(ctx, "app.example.com"))
	_, err = s.GetRoute(ctx, "app.example.com")
	assert.True(t, model.IsNotFound(err))
	assert.True(t, model.IsNotFound(s.DeleteRoute(ctx, "app.example.com")))
}

func TestCreateRoute_DuplicateIsConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRoute(ctx, newRoute("app.example.com", 3000)))
	err := s.CreateRoute(ctx, newRoute("app.example.com", 3001))
	require.Error(t, err)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Conflict)
}

func TestProtectionColumnsAreAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := newRoute("app.example.com", 3000)
	slug := "app-example-com"
	r.AppSlug = &slug
	require.Error(t, s.CreateRoute(ctx, r), "partial protection fields must be rejected")
}

func TestUpdateRoute_NotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateRoute(context.Background(), newRoute("gone.example.com", 3000))
	assert.True(t, model.IsNotFound(err))
}

func TestUpsertRoute_KeepsCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := newRoute("app.example.com", 3000)
	require.NoError(t, s.UpsertRoute(ctx, r))
	created := r.CreatedAt

	again := newRoute("app.example.com", 4000)
	again.CreatedAt = created
	require.NoError(t, s.UpsertRoute(ctx, again))

	got, err := s.GetRoute(ctx, "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, 4000, got.LocalPort)
	assert.True(t, created.Equal(got.CreatedAt))
}

func TestListRoutes_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	shop := "p-shop"
	a := newRoute("a.example.com", 3000)
	a.ProjectID = &shop
	b := newRoute("b.example.com", 3001)
	b.ProjectID = &shop
	b.Status = model.RouteStatusDisabled
	c := newRoute("c.example.com", 3002)
	for _, r := range []*model.Route{c, b, a} {
		require.NoError(t, s.CreateRoute(ctx, r))
	}

	all, err := s.ListRoutes(ctx, model.RouteFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a.example.com", all[0].Hostname)

	byProject, err := s.ListRoutes(ctx, model.RouteFilter{ProjectID: "p-shop"})
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	disabled, err := s.ListRoutes(ctx, model.RouteFilter{ProjectID: "p-shop", Status: model.RouteStatusDisabled})
	require.NoError(t, err)
	require.Len(t, disabled, 1)
	assert.Equal(t, "b.example.com", disabled[0].Hostname)
}

func TestListRoutes_EmptyIsNotNil(t *testing.T) {
	s := openTestStore(t)

	routes, err := s.ListRoutes(context.Background(), model.RouteFilter{})
	require.NoError(t, err)
	assert.NotNil(t, routes)
	assert.Empty(t, routes)

	projects, err := s.ListProjects(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, projects)
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	in := &model.TunnelSettings{AccountID: "acct", ZoneID: "zone", ZoneName: "example.com", TunnelID: "tun", APIToken: "sealed"}
	require.NoError(t, s.SaveSettings(ctx, in))
	in.TunnelID = "tun-2"
	require.NoError(t, s.SaveSettings(ctx, in))

	got, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tun-2", got.TunnelID)
	assert.Equal(t, "sealed", got.APIToken)

	require.NoError(t, s.DeleteSettings(ctx))
	got, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &model.Project{ID: "p-shop", Name: "shop", Path: "/home/dev/projects/shop"}))
	err := s.CreateProject(ctx, &model.Project{ID: "p-shop-2", Name: "shop2", Path: "/home/dev/projects/shop"})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	p, err := s.GetProject(ctx, "p-shop")
	require.NoError(t, err)
	assert.Equal(t, "shop", p.Name)
	assert.Equal(t, model.ProjectSourceDatabase, p.Source)

	_, err = s.GetProject(ctx, "nope")
	assert.True(t, model.IsNotFound(err))

	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
