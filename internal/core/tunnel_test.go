package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/model"
)

func TestTunnelService_Config(t *testing.T) {
	f := newFixture(t)
	cfg, err := f.svc.Tunnel.Config(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.CatchAllLast())
	assert.Len(t, cfg.Hosts(), 1)
}

func TestTunnelService_Info(t *testing.T) {
	f := newFixture(t)
	info, err := f.svc.Tunnel.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", info.Tunnel.Status)
	assert.Equal(t, "example.com", info.Zone.Name)
	assert.Equal(t, "6ff42ae2-765d-4adf-8112-31c55c1551ef.cfargotunnel.com", info.CNAMETarget)
}

func TestTunnelService_StatusUnconfigured(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Settings.Delete(context.Background()))

	st, err := f.svc.Tunnel.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Configured)
	assert.True(t, st.Daemon.Active)
}

func TestTunnelService_Status(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Tunnel.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.Equal(t, 1, st.Connections)
}

func TestTunnelService_RestartPublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.svc.Events.Subscribe(ctx)

	rr := f.svc.Tunnel.Restart(context.Background())
	assert.Equal(t, daemon.MethodSystemctl, rr.Method)
	got := <-ch
	assert.Equal(t, model.EventTunnelRestarted, got.Type)
}

func TestProjectService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Project.Create(ctx, &model.Project{Name: "shop", Path: "relative/shop"})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	p := &model.Project{Name: "shop", Path: "/srv/shop/"}
	require.NoError(t, f.svc.Project.Create(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "/srv/shop", p.Path)
	assert.Equal(t, model.ProjectSourceDatabase, p.Source)

	_, err = f.svc.Publish.Create(ctx, PublishRequest{Subdomain: "shop", LocalPort: 3000, ProjectID: p.ID})
	require.NoError(t, err)
	f.publish(t, "other", 3001)

	routes, err := f.svc.Project.Routes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "shop.example.com", routes[0].Hostname)

	list, err := f.svc.Project.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
