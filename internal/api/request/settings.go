package request

// SaveSettings holds the tunnel settings. Empty token fields keep the stored
// tokens.
type SaveSettings struct {
	AccountID         string `json:"account_id" validate:"required,max=64"`
	ZoneID            string `json:"zone_id" validate:"required,max=64"`
	ZoneName          string `json:"zone_name" validate:"omitempty,fqdn"`
	TunnelID          string `json:"tunnel_id" validate:"required,uuid"`
	APIToken          string `json:"api_token" validate:"omitempty,max=512"`
	IdentityURL       string `json:"identity_url" validate:"omitempty,url"`
	IdentityToken     string `json:"identity_token" validate:"omitempty,max=512"`
	OutpostID         string `json:"outpost_id" validate:"omitempty,max=64"`
	AuthorizationFlow string `json:"authorization_flow" validate:"omitempty,max=64"`
	InvalidationFlow  string `json:"invalidation_flow" validate:"omitempty,max=64"`
}
