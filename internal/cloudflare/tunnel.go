package cloudflare

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/edvin/devtunnel/internal/ingress"
)

// TunnelConnection is one edge connection of the tunnel daemon.
type TunnelConnection struct {
	ID                 string    `json:"id"`
	ColoName           string    `json:"colo_name"`
	OriginIP           string    `json:"origin_ip"`
	OpenedAt           time.Time `json:"opened_at"`
	IsPendingReconnect bool      `json:"is_pending_reconnect"`
}

// Tunnel is the provider's view of a tunnel.
type Tunnel struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	Connections []TunnelConnection `json:"connections"`
}

type tunnelConfigResult struct {
	TunnelID string          `json:"tunnel_id"`
	Version  int             `json:"version"`
	Config   *ingress.Config `json:"config"`
}

func (c *Client) configPath(acct Account) string {
	return fmt.Sprintf("/accounts/%s/cfd_tunnel/%s/configurations", acct.ID, acct.TunnelID)
}

// GetTunnelConfig fetches the tunnel's ingress configuration.
func (c *Client) GetTunnelConfig(ctx context.Context, acct Account) (*ingress.Config, error) {
	var res tunnelConfigResult
	if err := c.do(ctx, acct, "get_tunnel_config", http.MethodGet, c.configPath(acct), nil, &res); err != nil {
		return nil, err
	}
	if res.Config == nil {
		return &ingress.Config{}, nil
	}
	return res.Config, nil
}

// PutTunnelConfig replaces the whole tunnel configuration in one request.
func (c *Client) PutTunnelConfig(ctx context.Context, acct Account, cfg *ingress.Config) error {
	body := map[string]any{"config": cfg}
	return c.do(ctx, acct, "put_tunnel_config", http.MethodPut, c.configPath(acct), body, nil)
}

// GetTunnel returns the tunnel's name, status and active connections.
func (c *Client) GetTunnel(ctx context.Context, acct Account) (*Tunnel, error) {
	var t Tunnel
	path := fmt.Sprintf("/accounts/%s/cfd_tunnel/%s", acct.ID, acct.TunnelID)
	if err := c.do(ctx, acct, "get_tunnel", http.MethodGet, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
