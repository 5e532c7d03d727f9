package core

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/ingress"
	"github.com/edvin/devtunnel/internal/model"
)

// ErrNoChange tells IngressGuard.Mutate to skip the write.
var ErrNoChange = errors.New("ingress unchanged")

// IngressGuard serializes every read-modify-write of the tunnel ingress
// configuration. The upstream only offers whole-document GET/PUT with no
// version check, so two interleaved mutations would lose one writer's change.
type IngressGuard struct {
	api TunnelAPI
	sem *semaphore.Weighted
}

func NewIngressGuard(api TunnelAPI) *IngressGuard {
	return &IngressGuard{api: api, sem: semaphore.NewWeighted(1)}
}

// Mutate fetches the ingress configuration, applies fn, restores the
// catch-all to last place and writes the full list back in one request, all
// while holding the guard. Waiting for the guard honours ctx; giving up is
// reported as a timed-out UpstreamError wrapping the context error. If fn returns
// ErrNoChange nothing is written and Mutate returns (cfg, nil).
func (g *IngressGuard) Mutate(ctx context.Context, acct cloudflare.Account, fn func(*ingress.Config) error) (*ingress.Config, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, &model.UpstreamError{Provider: "cloudflare", Op: "wait for ingress lock", Timeout: true, Err: err}
	}
	defer g.sem.Release(1)

	cfg, err := g.api.GetTunnelConfig(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		if errors.Is(err, ErrNoChange) {
			return cfg, nil
		}
		return nil, err
	}
	cfg.Normalize()
	if err := g.api.PutTunnelConfig(ctx, acct, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read fetches the ingress configuration without taking the guard.
func (g *IngressGuard) Read(ctx context.Context, acct cloudflare.Account) (*ingress.Config, error) {
	return g.api.GetTunnelConfig(ctx, acct)
}
