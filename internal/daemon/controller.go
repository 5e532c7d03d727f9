// Package daemon restarts and inspects the local tunnel daemon.
package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/platform"
)

// Restart methods, in the order they are attempted.
const (
	MethodSystemctl     = "systemctl"
	MethodSudoSystemctl = "sudo-systemctl"
	MethodService       = "service"
	MethodManual        = "manual"
)

const defaultCommandTimeout = 20 * time.Second

var restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tunnel_daemon_restarts_total",
	Help: "Tunnel daemon restart attempts by method and result",
}, []string{"method", "result"})

// RestartResult reports how the daemon was restarted. Success=false with
// Method=manual means an operator has to run Message's command.
type RestartResult struct {
	Method  string `json:"method"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Status is the daemon's service-manager state.
type Status struct {
	Unit   string `json:"unit"`
	Active bool   `json:"active"`
	State  string `json:"state"`
}

type attempt struct {
	method string
	name   string
	args   []string
}

// Controller restarts the tunnel daemon through a ranked list of OS commands.
type Controller struct {
	unit    string
	runner  platform.CommandRunner
	timeout time.Duration
	logger  zerolog.Logger
}

// NewController creates a Controller for the given service unit.
func NewController(unit string, runner platform.CommandRunner, logger zerolog.Logger) *Controller {
	return &Controller{
		unit:    unit,
		runner:  runner,
		timeout: defaultCommandTimeout,
		logger:  logger.With().Str("component", "daemon").Str("unit", unit).Logger(),
	}
}

func (c *Controller) attempts() []attempt {
	return []attempt{
		{MethodSystemctl, "systemctl", []string{"restart", c.unit}},
		{MethodSudoSystemctl, "sudo", []string{"-n", "systemctl", "restart", c.unit}},
		{MethodService, "service", []string{c.unit, "restart"}},
	}
}

// Restart tries each method in turn and reports the first that succeeds.
// It never returns an error.
func (c *Controller) Restart(ctx context.Context) RestartResult {
	var failures []string
	for _, a := range c.attempts() {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err().Error())
			break
		}
		out, err := c.run(ctx, a.name, a.args...)
		if err == nil {
			restartsTotal.WithLabelValues(a.method, "success").Inc()
			c.logger.Info().Str("method", a.method).Msg("tunnel daemon restarted")
			return RestartResult{
				Method:  a.method,
				Success: true,
				Message: fmt.Sprintf("restarted %s via %s", c.unit, a.method),
			}
		}
		restartsTotal.WithLabelValues(a.method, "failure").Inc()
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		c.logger.Debug().Str("method", a.method).Str("output", detail).Msg("restart attempt failed")
		failures = append(failures, a.method+": "+detail)
	}

	restartsTotal.WithLabelValues(MethodManual, "failure").Inc()
	c.logger.Warn().Strs("failures", failures).Msg("tunnel daemon restart requires manual intervention")
	return RestartResult{
		Method:  MethodManual,
		Success: false,
		Message: fmt.Sprintf("could not restart %s automatically; run: sudo systemctl restart %s", c.unit, c.unit),
	}
}

// Status reports whether the unit is active according to systemctl.
func (c *Controller) Status(ctx context.Context) Status {
	out, _ := c.run(ctx, "systemctl", "is-active", c.unit)
	state := strings.TrimSpace(string(out))
	if state == "" {
		state = "unknown"
	}
	return Status{Unit: c.unit, Active: state == "active", State: state}
}

func (c *Controller) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.runner.Run(ctx, name, args...)
}
