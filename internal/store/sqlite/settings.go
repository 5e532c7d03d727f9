package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edvin/devtunnel/internal/model"
)

// LoadSettings returns the stored settings, or nil when none are saved.
func (s *Store) LoadSettings(ctx context.Context) (*model.TunnelSettings, error) {
	var t model.TunnelSettings
	err := s.db.QueryRowContext(ctx, `
SELECT account_id, zone_id, zone_name, tunnel_id, api_token_enc, identity_url, identity_token_enc,
       outpost_id, authorization_flow, invalidation_flow, updated_at
FROM tunnel_settings WHERE id = 1`,
	).Scan(&t.AccountID, &t.ZoneID, &t.ZoneName, &t.TunnelID, &t.APIToken, &t.IdentityURL,
		&t.IdentityToken, &t.OutpostID, &t.AuthorizationFlow, &t.InvalidationFlow, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return &t, nil
}

// SaveSettings replaces the stored settings.
func (s *Store) SaveSettings(ctx context.Context, t *model.TunnelSettings) error {
	t.UpdatedAt = s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tunnel_settings (id, account_id, zone_id, zone_name, tunnel_id, api_token_enc,
    identity_url, identity_token_enc, outpost_id, authorization_flow, invalidation_flow, updated_at)
VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    account_id = excluded.account_id, zone_id = excluded.zone_id, zone_name = excluded.zone_name,
    tunnel_id = excluded.tunnel_id, api_token_enc = excluded.api_token_enc,
    identity_url = excluded.identity_url, identity_token_enc = excluded.identity_token_enc,
    outpost_id = excluded.outpost_id, authorization_flow = excluded.authorization_flow,
    invalidation_flow = excluded.invalidation_flow, updated_at = excluded.updated_at`,
		t.AccountID, t.ZoneID, t.ZoneName, t.TunnelID, t.APIToken, t.IdentityURL, t.IdentityToken,
		t.OutpostID, t.AuthorizationFlow, t.InvalidationFlow, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// DeleteSettings removes the stored settings.
func (s *Store) DeleteSettings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tunnel_settings WHERE id = 1`); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}
