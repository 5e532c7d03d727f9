package platform

import (
	"strings"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// Slug turns a hostname into an identifier safe for identity-provider
// application slugs: lowercase letters, digits and single dashes.
func Slug(hostname string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(hostname) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
