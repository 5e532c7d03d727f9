package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	ModeServe   = "serve"
	ModeMigrate = "migrate"
)

type Config struct {
	DatabaseURL       string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string
	ServiceName       string

	// APIKey, when set, is required in the X-API-Key header of every
	// /api/v1 and /mcp request.
	APIKey string
	// SecretsKey is the base64 32-byte key stored credentials are sealed with.
	SecretsKey string

	ProjectsRoot  string
	ManifestFile  string
	TunnelService string
	ProcPath      string

	CloudflareAPIURL   string
	UpstreamTimeout    time.Duration
	HealthCheckTimeout time.Duration

	// TLS material for a self-hosted identity provider behind a private CA.
	IdentityTLSCACert     string
	IdentityTLSCert       string
	IdentityTLSKey        string
	IdentityTLSServerName string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "sqlite://devtunnel.db"),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8095"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServiceName:       getEnv("SERVICE_NAME", "tunnel-api"),
		APIKey:            getEnv("API_KEY", ""),
		SecretsKey:        getEnv("SECRETS_KEY", ""),
		ProjectsRoot:      getEnv("PROJECTS_ROOT", defaultProjectsRoot()),
		ManifestFile:      getEnv("MANIFEST_FILE", "CLAUDE.md"),
		TunnelService:     getEnv("TUNNEL_SERVICE", "cloudflared"),
		ProcPath:          getEnv("PROC_PATH", "/proc"),
		CloudflareAPIURL:  getEnv("CLOUDFLARE_API_URL", "https://api.cloudflare.com/client/v4"),

		IdentityTLSCACert:     getEnv("IDENTITY_TLS_CA_CERT", ""),
		IdentityTLSCert:       getEnv("IDENTITY_TLS_CERT", ""),
		IdentityTLSKey:        getEnv("IDENTITY_TLS_KEY", ""),
		IdentityTLSServerName: getEnv("IDENTITY_TLS_SERVER_NAME", ""),
	}

	var err error
	if cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.HealthCheckTimeout, err = getDuration("HEALTH_CHECK_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required fields are set for the given mode.
// Returns an error listing every missing field.
func (c *Config) Validate(mode string) error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if mode == ModeServe {
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		if c.SecretsKey == "" {
			missing = append(missing, "SECRETS_KEY")
		}
		if c.UpstreamTimeout <= 0 {
			missing = append(missing, "UPSTREAM_TIMEOUT")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if (c.IdentityTLSCert == "") != (c.IdentityTLSKey == "") {
		return fmt.Errorf("IDENTITY_TLS_CERT and IDENTITY_TLS_KEY must both be set")
	}

	return nil
}

func defaultProjectsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "projects"
	}
	return filepath.Join(home, "projects")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
