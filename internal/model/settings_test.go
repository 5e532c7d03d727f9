package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTunnelSettingsComplete(t *testing.T) {
	var s *TunnelSettings
	err := s.Complete()
	require.Error(t, err)
	assert.True(t, IsNotConfigured(err))

	s = &TunnelSettings{AccountID: "acc", TunnelID: "tun"}
	err = s.Complete()
	var nc *NotConfiguredError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, []string{"zone_id", "api_token"}, nc.Missing)

	s.ZoneID = "zone"
	s.APIToken = "tok"
	assert.NoError(t, s.Complete())
}

func TestTunnelSettingsIdentityConfigured(t *testing.T) {
	s := &TunnelSettings{IdentityURL: "https://auth.example.com", IdentityToken: "t", OutpostID: "o"}
	assert.False(t, s.IdentityConfigured())
	s.AuthorizationFlow = "flow"
	assert.True(t, s.IdentityConfigured())
}

func TestTunnelSettings_SecretsNeverSerialized(t *testing.T) {
	s := &TunnelSettings{AccountID: "acc", APIToken: "super-secret", IdentityToken: "also-secret"}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.NotContains(t, string(data), "also-secret")

	data, err = json.Marshal(s.Redact())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
	assert.Contains(t, string(data), `"has_api_token":true`)
	assert.Contains(t, string(data), `"configured":false`)
}
