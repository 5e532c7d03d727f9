package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service name
// and host. Non-empty fields are added automatically.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		ctx = ctx.Str("host", host)
	}
	if cfg.TunnelService != "" {
		ctx = ctx.Str("tunnel_unit", cfg.TunnelService)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
