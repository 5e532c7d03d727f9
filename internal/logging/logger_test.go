package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/edvin/devtunnel/internal/config"
)

func TestNewLogger_Level(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "debug", ServiceName: "tunnel-api"})
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewLogger(&config.Config{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
