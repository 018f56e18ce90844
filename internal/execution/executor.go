// Package execution runs generated code blocks as local processes inside a
// session workspace.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"slices"
	"time"

	"github.com/spboyer/codeloop/internal/codeblock"
	"github.com/spboyer/codeloop/internal/models"
	"github.com/spboyer/codeloop/internal/workspace"
)

// Executor runs a single code block. Failures of the code itself (non-zero
// exit, stderr, timeouts) come back as an ExecutionResult; the error return
// is reserved for infrastructure problems and host cancellation.
type Executor interface {
	Run(ctx context.Context, block models.CodeBlock, ws *workspace.Workspace, timeout time.Duration) (models.ExecutionResult, error)
}

const (
	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes = 16 * 1024

	// waitDelay bounds how long Run waits for output pipes after the
	// process has been killed.
	waitDelay = 2 * time.Second
)

var errNoCommand = errors.New("no interpreter command configured")

// LocalExecutor runs code with interpreters found on the host PATH.
type LocalExecutor struct {
	languages map[string]Language
	env       []string
	maxOutput int
	lookPath  func(file string) (string, error)
}

// Option configures a LocalExecutor.
type Option func(*LocalExecutor)

// WithLanguage registers or replaces a language.
func WithLanguage(l Language) Option {
	return func(e *LocalExecutor) {
		e.languages[codeblock.NormalizeLanguage(l.Name)] = l
	}
}

// WithEnv adds environment variables to every process.
func WithEnv(env map[string]string) Option {
	return func(e *LocalExecutor) {
		for _, k := range slices.Sorted(maps.Keys(env)) {
			e.env = append(e.env, k+"="+env[k])
		}
	}
}

// WithMaxOutputBytes caps stdout and stderr separately. Non-positive values
// keep the default.
func WithMaxOutputBytes(n int) Option {
	return func(e *LocalExecutor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// NewLocalExecutor creates an executor with the default language table.
func NewLocalExecutor(opts ...Option) *LocalExecutor {
	e := &LocalExecutor{
		languages: DefaultLanguages(),
		maxOutput: DefaultMaxOutputBytes,
		lookPath:  exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Languages returns the registered language names, sorted.
func (e *LocalExecutor) Languages() []string {
	return slices.Sorted(maps.Keys(e.languages))
}

// Run writes block to a new script in ws and executes it with a wall-clock
// limit of timeout.
func (e *LocalExecutor) Run(ctx context.Context, block models.CodeBlock, ws *workspace.Workspace, timeout time.Duration) (models.ExecutionResult, error) {
	if ws == nil {
		return models.ExecutionResult{}, fmt.Errorf("nil workspace was passed to LocalExecutor.Run")
	}
	if timeout <= 0 {
		return models.ExecutionResult{}, fmt.Errorf("positive timeout is required")
	}

	name := codeblock.NormalizeLanguage(block.Language)
	lang, ok := e.languages[name]
	if !ok {
		// the generator asked for something we can't run; it gets told and can retry
		return models.ExecutionResult{
			Status:   models.StatusFailed,
			ExitCode: 1,
			Stderr:   "unknown language " + block.Language,
			Language: name,
		}, nil
	}

	if len(lang.Command) == 0 {
		return models.ExecutionResult{}, &InfrastructureError{Op: "find interpreter for", Language: name, Err: errNoCommand}
	}
	bin, err := e.lookPath(lang.Command[0])
	if err != nil {
		return models.ExecutionResult{}, &InfrastructureError{Op: "find interpreter for", Language: name, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return models.ExecutionResult{}, err
	}

	script, err := ws.NewScript(lang.Extension, block.Code)
	if err != nil {
		return models.ExecutionResult{}, &InfrastructureError{Op: "write", Language: name, Err: err}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(slices.Clone(lang.Command[1:]), script)
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = ws.Dir()
	cmd.Env = append(cmd.Environ(), e.env...)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	stdout := newCappedBuffer(e.maxOutput)
	stderr := newCappedBuffer(e.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	slog.Debug("Running code block", "language", name, "script", script, "timeout", timeout)

	start := time.Now()
	runErr := cmd.Run()

	result := models.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Language: name,
		Script:   script,
	}

	if err := classify(&result, runErr, ctx.Err(), runCtx.Err()); err != nil {
		return result, err
	}

	slog.Debug("Code block finished", "script", script, "status", result.Status, "exitCode", result.ExitCode, "duration", result.Duration)
	return result, nil
}

// classify sets the status of a finished run. hostErr and runCtxErr are the
// errors of the caller's context and of the timeout context, read after the
// process returned.
func classify(result *models.ExecutionResult, runErr, hostErr, runCtxErr error) error {
	var exitErr *exec.ExitError

	switch {
	case runErr == nil:
		// exited on its own, even if the deadline fired right after
		result.Status = models.StatusSucceeded
	case hostErr != nil:
		return hostErr
	case errors.Is(runCtxErr, context.DeadlineExceeded):
		result.Status = models.StatusTimedOut
		result.ExitCode = models.TimedOutExitCode
	case errors.As(runErr, &exitErr):
		result.Status = models.StatusFailed
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(runErr, exec.ErrWaitDelay):
		// the process exited but something it spawned kept the pipes open
		result.Status = models.StatusSucceeded
	default:
		return &InfrastructureError{Op: "run", Language: result.Language, Err: runErr}
	}
	return nil
}
