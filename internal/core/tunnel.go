package core

import (
	"context"

	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/daemon"
	"github.com/edvin/devtunnel/internal/ingress"
	"github.com/edvin/devtunnel/internal/model"
	"github.com/edvin/devtunnel/internal/platform"
)

// TunnelInfo is the provider's view of the configured tunnel and zone.
type TunnelInfo struct {
	Tunnel      *cloudflare.Tunnel `json:"tunnel"`
	Zone        *cloudflare.Zone   `json:"zone,omitempty"`
	CNAMETarget string             `json:"cname_target"`
	Warnings    []model.Warning    `json:"warnings"`
}

// TunnelStatus combines the local daemon state with the provider's view.
type TunnelStatus struct {
	Configured   bool            `json:"configured"`
	Daemon       daemon.Status   `json:"daemon"`
	TunnelStatus string          `json:"tunnel_status,omitempty"`
	Connections  int             `json:"connections"`
	Warnings     []model.Warning `json:"warnings"`
}

type TunnelService struct {
	settings *SettingsService
	tunnel   TunnelAPI
	daemon   Restarter
	events   *Events
}

func NewTunnelService(settings *SettingsService, tunnel TunnelAPI, d Restarter, events *Events) *TunnelService {
	return &TunnelService{settings: settings, tunnel: tunnel, daemon: d, events: events}
}

// Config returns the live ingress configuration.
func (s *TunnelService) Config(ctx context.Context) (*ingress.Config, error) {
	_, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}
	return s.tunnel.GetTunnelConfig(ctx, acct)
}

// Info returns the tunnel and its zone. A zone lookup failure is a warning.
func (s *TunnelService) Info(ctx context.Context) (*TunnelInfo, error) {
	_, acct, err := s.settings.Account(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.tunnel.GetTunnel(ctx, acct)
	if err != nil {
		return nil, err
	}
	info := &TunnelInfo{Tunnel: t, CNAMETarget: platform.TunnelCNAMETarget(acct.TunnelID), Warnings: []model.Warning{}}
	if zone, err := s.tunnel.GetZone(ctx, acct); err != nil {
		info.Warnings = append(info.Warnings, model.NewWarning("zone", err))
	} else {
		info.Zone = zone
	}
	return info, nil
}

// Status never fails on an unconfigured or unreachable provider; those are
// reported in the result.
func (s *TunnelService) Status(ctx context.Context) (*TunnelStatus, error) {
	st := &TunnelStatus{Daemon: s.daemon.Status(ctx), Warnings: []model.Warning{}}
	_, acct, err := s.settings.Account(ctx)
	if err != nil {
		if model.IsNotConfigured(err) {
			return st, nil
		}
		return nil, err
	}
	st.Configured = true
	t, err := s.tunnel.GetTunnel(ctx, acct)
	if err != nil {
		st.Warnings = append(st.Warnings, model.NewWarning("tunnel", err))
		return st, nil
	}
	st.TunnelStatus = t.Status
	st.Connections = len(t.Connections)
	return st, nil
}

// Restart restarts the local tunnel daemon.
func (s *TunnelService) Restart(ctx context.Context) daemon.RestartResult {
	rr := s.daemon.Restart(ctx)
	s.events.Publish(model.EventTunnelRestarted, "", rr.Method)
	return rr
}
