// Package hooks runs user-configured commands around a session.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Hook is a single command run at a lifecycle point.
type Hook struct {
	Command          string `yaml:"command"`
	WorkingDirectory string `yaml:"working_directory,omitempty"`
	ExitCodes        []int  `yaml:"exit_codes,omitempty"`
	ErrorOnFail      bool   `yaml:"error_on_fail,omitempty"`
}

// Config holds the hooks of every lifecycle point.
type Config struct {
	BeforeSession []Hook `yaml:"before_session,omitempty"`
	AfterSession  []Hook `yaml:"after_session,omitempty"`
}

// Lifecycle point names, used in logs and errors.
const (
	BeforeSession = "before_session"
	AfterSession  = "after_session"
)

// Runner executes hook commands. Hooks without a working_directory run in
// Dir. Env is added to the environment of every command.
type Runner struct {
	Dir string
	Env map[string]string
}

// Run executes hooks in order. A failing hook stops the run only when its
// error_on_fail is set; otherwise the failure is logged.
func (r *Runner) Run(ctx context.Context, point string, hooks []Hook) error {
	for i, h := range hooks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hook %s: context canceled: %w", point, err)
		}

		if err := r.runHook(ctx, point, i, h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runHook(ctx context.Context, point string, index int, h Hook) error {
	args, err := shellwords.Parse(h.Command)
	if err != nil {
		return fmt.Errorf("hook %s[%d]: parsing command: %w", point, index, err)
	}
	if len(args) == 0 {
		return fmt.Errorf("hook %s[%d]: empty command", point, index)
	}

	//nolint:gosec // hook commands come from the user's own configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	if h.WorkingDirectory != "" {
		cmd.Dir = h.WorkingDirectory
	}
	cmd.Env = append(os.Environ(), r.environ()...)

	output, err := cmd.CombinedOutput()
	if len(output) > 0 {
		slog.Debug("Hook output", "hook", point, "index", index, "output", strings.TrimRight(string(output), "\n"))
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// the command never ran
			if h.ErrorOnFail {
				return fmt.Errorf("hook %s[%d]: %w", point, index, err)
			}
			slog.Warn("Hook failed, continuing", "hook", point, "index", index, "error", err)
			return nil
		}
		exitCode = exitErr.ExitCode()
	}

	if isAcceptableExit(exitCode, h.ExitCodes) {
		return nil
	}
	if h.ErrorOnFail {
		return fmt.Errorf("hook %s[%d]: command exited with code %d", point, index, exitCode)
	}
	slog.Warn("Hook exited with an unexpected code, continuing", "hook", point, "index", index, "exit_code", exitCode)
	return nil
}

func (r *Runner) environ() []string {
	env := make([]string, 0, len(r.Env))
	for k, v := range r.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// isAcceptableExit reports whether exitCode is allowed. An empty list allows
// only 0.
func isAcceptableExit(exitCode int, allowedCodes []int) bool {
	if len(allowedCodes) == 0 {
		return exitCode == 0
	}
	return slices.Contains(allowedCodes, exitCode)
}
