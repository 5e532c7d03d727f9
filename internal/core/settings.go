package core

import (
	"context"
	"fmt"

	"github.com/edvin/devtunnel/internal/cloudflare"
	"github.com/edvin/devtunnel/internal/crypto"
	"github.com/edvin/devtunnel/internal/model"
)

// SettingsService seals tokens on save and opens them on load. Settings are
// read on every operation so edits apply without a restart.
type SettingsService struct {
	store  SettingsStore
	tunnel TunnelAPI
	key    []byte
}

func NewSettingsService(store SettingsStore, tunnel TunnelAPI, key []byte) *SettingsService {
	return &SettingsService{store: store, tunnel: tunnel, key: key}
}

// SaveResult is returned by Save.
type SaveResult struct {
	Settings    model.RedactedSettings `json:"settings"`
	TokenStatus string                 `json:"token_status,omitempty"`
	Warnings    []model.Warning        `json:"warnings"`
}

// Load returns the decrypted settings, or empty settings when none are saved.
func (s *SettingsService) Load(ctx context.Context) (*model.TunnelSettings, error) {
	stored, err := s.store.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return &model.TunnelSettings{}, nil
	}
	out := *stored
	if out.APIToken, err = s.open(stored.APIToken); err != nil {
		return nil, fmt.Errorf("decrypt api token: %w", err)
	}
	if out.IdentityToken, err = s.open(stored.IdentityToken); err != nil {
		return nil, fmt.Errorf("decrypt identity token: %w", err)
	}
	return &out, nil
}

// Account loads settings and the tunnel provider account, failing with a
// NotConfiguredError when the tunnel part is incomplete.
func (s *SettingsService) Account(ctx context.Context) (*model.TunnelSettings, cloudflare.Account, error) {
	settings, err := s.Load(ctx)
	if err != nil {
		return nil, cloudflare.Account{}, err
	}
	acct, err := cloudflare.AccountFrom(settings)
	if err != nil {
		return nil, cloudflare.Account{}, err
	}
	return settings, acct, nil
}

// Redacted returns the API view of the stored settings.
func (s *SettingsService) Redacted(ctx context.Context) (model.RedactedSettings, error) {
	settings, err := s.Load(ctx)
	if err != nil {
		return model.RedactedSettings{}, err
	}
	return settings.Redact(), nil
}

// Save stores in. Empty token fields keep the stored tokens, so a client can
// resubmit what GET returned without re-entering secrets. When the tunnel
// part is complete the API token is verified; a failed check is a warning.
func (s *SettingsService) Save(ctx context.Context, in model.TunnelSettings) (*SaveResult, error) {
	current, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if in.APIToken == "" {
		in.APIToken = current.APIToken
	}
	if in.IdentityToken == "" {
		in.IdentityToken = current.IdentityToken
	}
	in.ZoneName = model.NormalizeHostname(in.ZoneName)

	res := &SaveResult{Warnings: []model.Warning{}}
	if acct, err := cloudflare.AccountFrom(&in); err == nil {
		ts, err := s.tunnel.VerifyToken(ctx, acct)
		if err != nil {
			res.Warnings = append(res.Warnings, model.NewWarning("verify_token", err))
		} else {
			res.TokenStatus = ts.Status
		}
		if in.ZoneName == "" {
			if zone, err := s.tunnel.GetZone(ctx, acct); err == nil {
				in.ZoneName = zone.Name
			}
		}
	}

	sealed := in
	if sealed.APIToken, err = s.seal(in.APIToken); err != nil {
		return nil, fmt.Errorf("encrypt api token: %w", err)
	}
	if sealed.IdentityToken, err = s.seal(in.IdentityToken); err != nil {
		return nil, fmt.Errorf("encrypt identity token: %w", err)
	}
	if err := s.store.SaveSettings(ctx, &sealed); err != nil {
		return nil, err
	}
	in.UpdatedAt = sealed.UpdatedAt
	res.Settings = in.Redact()
	return res, nil
}

// Delete removes all stored settings.
func (s *SettingsService) Delete(ctx context.Context) error {
	return s.store.DeleteSettings(ctx)
}

func (s *SettingsService) seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return crypto.Encrypt([]byte(plaintext), s.key)
}

func (s *SettingsService) open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	b, err := crypto.Decrypt(sealed, s.key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
