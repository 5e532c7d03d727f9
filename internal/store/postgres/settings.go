package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/devtunnel/internal/model"
)

// LoadSettings returns the stored settings, or nil when none are saved.
// Token fields hold whatever the caller saved (ciphertext).
func (s *Store) LoadSettings(ctx context.Context) (*model.TunnelSettings, error) {
	var t model.TunnelSettings
	err := s.db.QueryRow(ctx,
		`SELECT account_id, zone_id, zone_name, tunnel_id, api_token_enc, identity_url, identity_token_enc,
		 outpost_id, authorization_flow, invalidation_flow, updated_at
		 FROM tunnel_settings WHERE id = 1`,
	).Scan(&t.AccountID, &t.ZoneID, &t.ZoneName, &t.TunnelID, &t.APIToken, &t.IdentityURL,
		&t.IdentityToken, &t.OutpostID, &t.AuthorizationFlow, &t.InvalidationFlow, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.db.Exec(ctx,
		`INSERT INTO tunnel_settings (id, account_id, zone_id, zone_name, tunnel_id, api_token_enc,
		 identity_url, identity_token_enc, outpost_id, authorization_flow, invalidation_flow, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		 account_id = EXCLUDED.account_id, zone_id = EXCLUDED.zone_id, zone_name = EXCLUDED.zone_name,
		 tunnel_id = EXCLUDED.tunnel_id, api_token_enc = EXCLUDED.api_token_enc,
		 identity_url = EXCLUDED.identity_url, identity_token_enc = EXCLUDED.identity_token_enc,
		 outpost_id = EXCLUDED.outpost_id, authorization_flow = EXCLUDED.authorization_flow,
		 invalidation_flow = EXCLUDED.invalidation_flow, updated_at = EXCLUDED.updated_at`,
		t.AccountID, t.ZoneID, t.ZoneName, t.TunnelID, t.APIToken, t.IdentityURL, t.IdentityToken,
		t.OutpostID, t.AuthorizationFlow, t.InvalidationFlow, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// DeleteSettings removes the stored settings. Deleting nothing is not an error.
func (s *Store) DeleteSettings(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM tunnel_settings WHERE id = 1`); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}
