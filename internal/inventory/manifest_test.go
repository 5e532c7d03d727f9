package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseManifestPort(t *testing.T) {
	tests := []struct {
		name    string
		content string
		port    int
		ok      bool
	}{
		{"front matter port", "---\nname: shop\nport: 3000\n---\n# Shop\nRuns on localhost:9999\n", 3000, true},
		{"front matter dev_port", "---\ndev_port: \"5173\"\n---\n", 5173, true},
		{"front matter out of range falls through", "---\nport: 70000\n---\nPORT=4000\n", 4000, true},
		{"port line", "# API\n\n- **Port:** 8080\n", 8080, true},
		{"dev port line", "Dev port: 5174\n", 5174, true},
		{"env line", "```\nexport PORT=4321\n```\n", 4321, true},
		{"localhost reference", "Open http://localhost:3001/admin after starting.\n", 3001, true},
		{"loopback reference", "Listens on 127.0.0.1:8787", 8787, true},
		{"port line wins over localhost", "See localhost:1111\nport: 2222\n", 2222, true},
		{"zero port rejected", "port: 0\n", 0, false},
		{"nothing declared", "# Notes\nNothing to see.\n", 0, false},
		{"unterminated front matter", "---\nport: 3000\n", 3000, true},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, ok := ParseManifestPort([]byte(tt.content))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.port, port)
		})
	}
}
