package platform

import (
	"context"
	"os/exec"
)

// CommandRunner runs host commands. Tests substitute a fake.
type CommandRunner interface {
	// Run executes name with args and returns combined stdout and stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
