package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLocalHost = "localhost"
	DefaultScheme    = "http"

	MinPort = 1
	MaxPort = 65535
)

var hostnameRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

// Route is a published hostname -> local service mapping.
type Route struct {
	Hostname          string     `json:"hostname" db:"hostname"`
	Subdomain         string     `json:"subdomain" db:"subdomain"`
	LocalHost         string     `json:"local_host" db:"local_host"`
	LocalPort         int        `json:"local_port" db:"local_port"`
	Scheme            string     `json:"scheme" db:"scheme"`
	Service           string     `json:"service" db:"service"`
	WebsocketEnabled  bool       `json:"websocket_enabled" db:"websocket_enabled"`
	Description       *string    `json:"description,omitempty" db:"description"`
	Status            string     `json:"status" db:"status"`
	DNSRecordID       *string    `json:"dns_record_id,omitempty" db:"dns_record_id"`
	ProjectID         *string    `json:"project_id,omitempty" db:"project_id"`
	ProtectionEnabled bool       `json:"protection_enabled" db:"protection_enabled"`
	AppID             *string    `json:"app_id,omitempty" db:"app_id"`
	AppSlug           *string    `json:"app_slug,omitempty" db:"app_slug"`
	ProviderID        *string    `json:"provider_id,omitempty" db:"provider_id"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	LastCheckedAt     *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Protection identifies the identity-provider objects guarding a route.
type Protection struct {
	AppID      string `json:"app_id"`
	AppSlug    string `json:"app_slug"`
	ProviderID string `json:"provider_id"`
}

// RouteFilter narrows route listings. Empty fields match everything.
type RouteFilter struct {
	ProjectID string
	Status    string
}

// ServiceURL builds the origin URL the tunnel forwards to.
func ServiceURL(scheme, host string, port int) string {
	if scheme == "" {
		scheme = DefaultScheme
	}
	if host == "" {
		host = DefaultLocalHost
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// ParseServiceURL extracts scheme, host and port from an origin URL of the
// form scheme://host:port. A missing port defaults by scheme.
func ParseServiceURL(service string) (scheme, host string, port int, err error) {
	scheme, rest, ok := strings.Cut(service, "://")
	if !ok {
		return "", "", 0, fmt.Errorf("service %q has no scheme", service)
	}
	rest, _, _ = strings.Cut(rest, "/")
	h, p, hasPort := strings.Cut(rest, ":")
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", "", 0, fmt.Errorf("service %q has malformed IPv6 host", service)
		}
		h = rest[1:end]
		p, hasPort = strings.CutPrefix(rest[end+1:], ":")
	}
	if h == "" {
		return "", "", 0, fmt.Errorf("service %q has no host", service)
	}
	if !hasPort {
		switch scheme {
		case "https":
			return scheme, h, 443, nil
		case "http":
			return scheme, h, 80, nil
		}
		return "", "", 0, fmt.Errorf("service %q has no port", service)
	}
	port, err = strconv.Atoi(p)
	if err != nil || !ValidPort(port) {
		return "", "", 0, fmt.Errorf("service %q has invalid port %q", service, p)
	}
	return scheme, h, port, nil
}

// ValidPort reports whether port lies in the TCP port range.
func ValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}

// NormalizeHostname lowercases and strips a trailing dot.
func NormalizeHostname(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}

// ValidHostname reports whether h is a syntactically valid FQDN.
func ValidHostname(h string) bool {
	return len(h) <= 253 && hostnameRegex.MatchString(h)
}

// Validate checks the invariants that must hold before any upstream mutation.
func (r *Route) Validate() error {
	if !ValidHostname(r.Hostname) {
		return &ValidationError{Field: "hostname", Message: fmt.Sprintf("invalid hostname %q", r.Hostname)}
	}
	if !ValidPort(r.LocalPort) {
		return &ValidationError{Field: "local_port", Message: fmt.Sprintf("port %d outside %d-%d", r.LocalPort, MinPort, MaxPort)}
	}
	if r.Status != "" && !ValidRouteStatus(r.Status) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", r.Status)}
	}
	return nil
}

// SetProtection sets all identity-protection fields together.
func (r *Route) SetProtection(p Protection) {
	r.ProtectionEnabled = true
	r.AppID = &p.AppID
	r.AppSlug = &p.AppSlug
	r.ProviderID = &p.ProviderID
}

// ClearProtection clears all identity-protection fields together.
func (r *Route) ClearProtection() {
	r.ProtectionEnabled = false
	r.AppID = nil
	r.AppSlug = nil
	r.ProviderID = nil
}

// Protection returns the stored protection objects, or nil when disabled.
func (r *Route) Protection() *Protection {
	if !r.ProtectionEnabled || r.AppSlug == nil || r.ProviderID == nil {
		return nil
	}
	p := &Protection{AppSlug: *r.AppSlug, ProviderID: *r.ProviderID}
	if r.AppID != nil {
		p.AppID = *r.AppID
	}
	return p
}

// ProtectionConsistent reports whether the protection fields are either all
// set or all cleared.
func (r *Route) ProtectionConsistent() bool {
	set := 0
	for _, f := range []*string{r.AppID, r.AppSlug, r.ProviderID} {
		if f != nil {
			set++
		}
	}
	if r.ProtectionEnabled {
		return set == 3
	}
	return set == 0
}

// SetError records a failure message and moves the route to error.
func (r *Route) SetError(msg string) {
	r.Status = RouteStatusError
	r.ErrorMessage = &msg
}

// SetStatus moves the route to status and clears any previous error.
func (r *Route) SetStatus(status string) {
	r.Status = status
	r.ErrorMessage = nil
}

// SubdomainOf derives the subdomain part of hostname relative to zoneName.
// Hostnames outside the zone fall back to their first label.
func SubdomainOf(hostname, zoneName string) string {
	if zoneName != "" {
		if sub, ok := strings.CutSuffix(hostname, "."+zoneName); ok && sub != "" {
			return sub
		}
	}
	label, _, _ := strings.Cut(hostname, ".")
	return label
}
