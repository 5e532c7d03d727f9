package model

import "time"

// TunnelSettings holds the credentials and identifiers for the tunnel
// provider and the optional identity provider. Loaded from the settings store
// on every operation so changes take effect without a restart.
type TunnelSettings struct {
	AccountID string `json:"account_id"`
	ZoneID    string `json:"zone_id"`
	ZoneName  string `json:"zone_name"`
	TunnelID  string `json:"tunnel_id"`
	APIToken  string `json:"-"`

	IdentityURL       string `json:"identity_url,omitempty"`
	IdentityToken     string `json:"-"`
	OutpostID         string `json:"outpost_id,omitempty"`
	AuthorizationFlow string `json:"authorization_flow,omitempty"`
	InvalidationFlow  string `json:"invalidation_flow,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Complete returns a NotConfiguredError naming every missing tunnel field.
func (s *TunnelSettings) Complete() error {
	if s == nil {
		return &NotConfiguredError{Missing: []string{"account_id", "zone_id", "tunnel_id", "api_token"}}
	}
	var missing []string
	if s.AccountID == "" {
		missing = append(missing, "account_id")
	}
	if s.ZoneID == "" {
		missing = append(missing, "zone_id")
	}
	if s.TunnelID == "" {
		missing = append(missing, "tunnel_id")
	}
	if s.APIToken == "" {
		missing = append(missing, "api_token")
	}
	if len(missing) > 0 {
		return &NotConfiguredError{Missing: missing}
	}
	return nil
}

// IdentityConfigured reports whether identity protection can be enabled.
func (s *TunnelSettings) IdentityConfigured() bool {
	return s != nil && s.IdentityURL != "" && s.IdentityToken != "" &&
		s.OutpostID != "" && s.AuthorizationFlow != ""
}

// RedactedSettings is the API view of TunnelSettings; secrets are reduced to
// presence flags.
type RedactedSettings struct {
	AccountID          string    `json:"account_id"`
	ZoneID             string    `json:"zone_id"`
	ZoneName           string    `json:"zone_name"`
	TunnelID           string    `json:"tunnel_id"`
	HasAPIToken        bool      `json:"has_api_token"`
	IdentityURL        string    `json:"identity_url,omitempty"`
	HasIdentityToken   bool      `json:"has_identity_token"`
	OutpostID          string    `json:"outpost_id,omitempty"`
	AuthorizationFlow  string    `json:"authorization_flow,omitempty"`
	InvalidationFlow   string    `json:"invalidation_flow,omitempty"`
	Configured         bool      `json:"configured"`
	IdentityConfigured bool      `json:"identity_configured"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Redact builds the API view of s.
func (s *TunnelSettings) Redact() RedactedSettings {
	if s == nil {
		return RedactedSettings{}
	}
	return RedactedSettings{
		AccountID:          s.AccountID,
		ZoneID:             s.ZoneID,
		ZoneName:           s.ZoneName,
		TunnelID:           s.TunnelID,
		HasAPIToken:        s.APIToken != "",
		IdentityURL:        s.IdentityURL,
		HasIdentityToken:   s.IdentityToken != "",
		OutpostID:          s.OutpostID,
		AuthorizationFlow:  s.AuthorizationFlow,
		InvalidationFlow:   s.InvalidationFlow,
		Configured:         s.Complete() == nil,
		IdentityConfigured: s.IdentityConfigured(),
		UpdatedAt:          s.UpdatedAt,
	}
}
