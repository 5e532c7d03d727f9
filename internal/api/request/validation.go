package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/devtunnel/internal/model"
)

var validate = validator.New()

// One or more DNS labels, lowercase.
var subdomainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

func init() {
	validate.RegisterValidation("subdomain", func(fl validator.FieldLevel) bool {
		return subdomainRegex.MatchString(fl.Field().String())
	})
}

// Decode reads a JSON body into v and validates it.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// DecodeOptional is Decode for endpoints where an empty body means the zero
// value.
func DecodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}

// RequireHostname normalizes a hostname path parameter and checks its syntax.
func RequireHostname(s string) (string, error) {
	h := model.NormalizeHostname(s)
	if h == "" {
		return "", fmt.Errorf("missing required hostname")
	}
	if !model.ValidHostname(h) {
		return "", fmt.Errorf("invalid hostname %q", s)
	}
	return h, nil
}
