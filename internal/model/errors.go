package model

import (
	"errors"
	"fmt"
	"strings"
)

// NotConfiguredError means the tunnel settings are missing or incomplete.
// Callers surface it as a setup problem the user can fix, not as a failure.
type NotConfiguredError struct {
	Missing []string
}

func (e *NotConfiguredError) Error() string {
	if len(e.Missing) == 0 {
		return "tunnel is not configured"
	}
	return "tunnel is not configured: missing " + strings.Join(e.Missing, ", ")
}

// NotFoundError means a route, hostname or project does not exist.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// ValidationError rejects input before any upstream mutation happens.
type ValidationError struct {
	Field   string
	Message string
	// Conflict marks a uniqueness violation such as a duplicate hostname.
	Conflict bool
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// UpstreamError wraps a failed call to the tunnel provider or the identity
// provider. Message carries the provider's own error text.
type UpstreamError struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Timeout {
		b.WriteString(": timed out")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	} else if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Warning is a non-fatal partial failure collected during a workflow.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// NewWarning builds a Warning from an error.
func NewWarning(step string, err error) Warning {
	return Warning{Step: step, Message: err.Error()}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsNotConfigured(err error) bool {
	var nc *NotConfiguredError
	return errors.As(err, &nc)
}

// IsUpstreamStatus reports whether err is an UpstreamError with the given HTTP status.
func IsUpstreamStatus(err error, status int) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.StatusCode == status
}
