package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/datallboy/sheetflow/internal/domain"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusUnknown Status = "error"
)

// psTimeout bounds the process listing so a hung daemon cannot stall callers.
const psTimeout = 5 * time.Second

// Runtime drives the n8n container through the runtime CLI and the project's
// start/stop scripts.
type Runtime struct {
	Binary      string
	Name        string
	StartScript string
	StopScript  string
}

// NewRuntime resolves the scripts inside dockerDir.
func NewRuntime(binary, name, dockerDir, startScript, stopScript string) *Runtime {
	return &Runtime{
		Binary:      binary,
		Name:        name,
		StartScript: scriptPath(dockerDir, startScript),
		StopScript:  scriptPath(dockerDir, stopScript),
	}
}

func scriptPath(dir, script string) string {
	if filepath.IsAbs(script) {
		return script
	}
	return filepath.Join(dir, script)
}

// IsRunning lists container names and looks for ours. A listing failure is
// returned as an error; callers guarding destructive work should treat that
// as "not safe to proceed" only when they can tell the user why.
func (r *Runtime) IsRunning(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, psTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.Binary, "ps", "--format", "{{.Names}}").Output()
	if err != nil {
		return false, fmt.Errorf("%s ps failed: %w", r.Binary, err)
	}
	return strings.Contains(string(out), r.Name), nil
}

func (r *Runtime) Status(ctx context.Context) (Status, error) {
	running, err := r.IsRunning(ctx)
	if err != nil {
		return StatusUnknown, err
	}
	if running {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

func (r *Runtime) Start(ctx context.Context) error { return r.runScript(ctx, r.StartScript) }
func (r *Runtime) Stop(ctx context.Context) error  { return r.runScript(ctx, r.StopScript) }

// runScript executes a lifecycle script from its own directory.
func (r *Runtime) runScript(ctx context.Context, script string) error {
	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = filepath.Dir(script)

	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with code %d: %s", domain.ErrScriptFailed, filepath.Base(script), exitErr.ExitCode(), strings.TrimSpace(string(output)))
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrScriptFailed, filepath.Base(script), err)
}
