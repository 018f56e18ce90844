package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spboyer/codeloop/internal/approval"
	"github.com/spboyer/codeloop/internal/execution"
	"github.com/spboyer/codeloop/internal/generator"
	"github.com/spboyer/codeloop/internal/hooks"
	"github.com/spboyer/codeloop/internal/models"
	"github.com/spboyer/codeloop/internal/projectconfig"
	"github.com/spboyer/codeloop/internal/proxy"
	"github.com/spboyer/codeloop/internal/session"
	"github.com/spboyer/codeloop/internal/spinner"
	"github.com/spboyer/codeloop/internal/tracing"
	"github.com/spboyer/codeloop/internal/transcript"
	"github.com/spboyer/codeloop/internal/utils"
	"github.com/spboyer/codeloop/internal/workspace"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// defaultMessage is the task used when "codeloop chat" gets no message.
const defaultMessage = "Plot a chart of NVDA and TESLA stock price change YTD."

// sessionRequest describes one session. Zero fields fall back to the
// project configuration.
type sessionRequest struct {
	Name     string
	Message  string
	WorkDir  string
	MaxTurns int
	Engine   string
	Model    string
	Options  map[string]any
}

// sessionReport is what a finished session leaves behind.
type sessionReport struct {
	Name           string
	SessionID      string
	WorkDir        string
	Outcome        *proxy.Outcome
	TranscriptPath string
	SessionLogPath string
	BlobName       string
}

type transcriptUploader interface {
	Upload(ctx context.Context, file string) (string, error)
}

// newUploader is a test hook for replacing the Azure Storage client.
var newUploader = func(cfg projectconfig.UploadConfig) (transcriptUploader, error) {
	u, err := transcript.NewBlobUploader(cfg.AccountURL, cfg.Container, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// lookupEnv is a test hook for the credential lookup.
var lookupEnv = os.LookupEnv

// runner holds what the sessions of one command invocation share.
type runner struct {
	cfg     *projectconfig.ProjectConfig
	baseDir string

	approve approval.Mode
	in      io.Reader
	// out receives every transcript message as it is appended. Nil
	// disables streaming.
	out   io.Writer
	width int

	// progress, when set, shows a spinner while the generator works.
	progress io.Writer

	limiter  *rate.Limiter
	uploader transcriptUploader
}

func newRunner(cfg *projectconfig.ProjectConfig, in io.Reader, out io.Writer) (*runner, error) {
	mode, err := approval.ParseMode(cfg.Session.Approve)
	if err != nil {
		return nil, err
	}

	r := &runner{
		cfg:     cfg,
		baseDir: configBaseDir(cfg),
		approve: mode,
		in:      in,
		out:     out,
		width:   terminalWidth(out),
	}

	if cfg.Upload.AccountURL != "" {
		u, err := newUploader(cfg.Upload)
		if err != nil {
			return nil, fmt.Errorf("creating transcript uploader: %w", err)
		}
		r.uploader = u
	}
	return r, nil
}

// configBaseDir is the directory relative paths in the configuration are
// resolved against: the config file's directory, or the current directory.
func configBaseDir(cfg *projectconfig.ProjectConfig) string {
	if cfg.Path != "" {
		return filepath.Dir(cfg.Path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return transcript.DefaultWidth
}

func withSpinner(g generator.Generator, w io.Writer, message string) generator.Generator {
	return generator.Func(func(ctx context.Context, transcript []models.Message) (models.Message, error) {
		stop := spinner.Start(w, message)
		defer stop()
		return g.Next(ctx, transcript)
	})
}

func (r *runner) generatorConfig(req sessionRequest) generator.Config {
	g := withEngine(r.cfg.Generator, req.Engine)
	if req.Model != "" {
		g.Model = req.Model
	}
	if req.Options != nil {
		g.Options = req.Options
	}

	retry := generator.RetryPolicy{MaxRetries: -1}
	if g.MaxRetries == nil {
		retry.MaxRetries = projectconfig.DefaultMaxRetries
	} else if *g.MaxRetries > 0 {
		retry.MaxRetries = *g.MaxRetries
	}

	return generator.Config{
		Engine:            g.Engine,
		Model:             g.Model,
		BaseURL:           g.BaseURL,
		Timeout:           time.Duration(g.Timeout) * time.Second,
		APIKeyEnv:         g.APIKeyEnv,
		Retry:             retry,
		RequestsPerMinute: g.RequestsPerMinute,
		Limiter:           r.limiter,
		Options:           g.Options,
	}
}

// withEngine switches g to engine. The configured model, credential variable
// and options belong to the configured engine and are dropped on a switch.
func withEngine(g projectconfig.GeneratorConfig, engine string) projectconfig.GeneratorConfig {
	if engine == "" || engine == g.Engine {
		return g
	}
	g.Engine = engine
	g.Model, g.APIKeyEnv, g.Options = "", "", nil
	if engine == projectconfig.DefaultEngine {
		g.Model, g.APIKeyEnv = projectconfig.DefaultModel, projectconfig.DefaultAPIKeyEnv
	}
	return g
}

func (r *runner) newExecutor() (*execution.LocalExecutor, error) {
	ex := r.cfg.Executor
	opts := []execution.Option{
		execution.WithEnv(ex.Env),
		execution.WithMaxOutputBytes(ex.MaxOutputBytes),
	}
	for name, lc := range ex.Languages {
		lang, err := execution.NewLanguage(name, lc.Extension, lc.Command)
		if err != nil {
			return nil, fmt.Errorf("executor language %q: %w", name, err)
		}
		opts = append(opts, execution.WithLanguage(lang))
	}
	return execution.NewLocalExecutor(opts...), nil
}

// runSession runs one session end to end. The report is nil only when the
// session could not start; otherwise it is returned together with the error
// from proxy.Run.
func (r *runner) runSession(ctx context.Context, req sessionRequest) (*sessionReport, error) {
	sc := r.cfg.Session

	genCfg := r.generatorConfig(req)
	if err := generator.ResolveCredential(&genCfg, lookupEnv); err != nil {
		return nil, err
	}

	workDir := req.WorkDir
	if workDir == "" {
		workDir = sc.WorkDir
	}
	ws, err := workspace.Ensure(utils.ResolvePath(workDir, r.baseDir))
	if err != nil {
		return nil, err
	}

	exec, err := r.newExecutor()
	if err != nil {
		return nil, err
	}
	genCfg.Prompt = generator.PromptData{
		TerminationMarker: sc.TerminationMarker,
		Languages:         exec.Languages(),
	}

	gen, closeGen, err := generator.New(genCfg)
	if err != nil {
		return nil, err
	}
	if r.progress != nil {
		gen = withSpinner(gen, r.progress, "waiting for "+genCfg.Engine)
	}
	defer func() {
		if err := closeGen(); err != nil {
			slog.Warn("Failed to close generator", "engine", genCfg.Engine, "error", err)
		}
	}()

	maxTurns := req.MaxTurns
	if maxTurns == 0 {
		maxTurns = sc.MaxTurns
	}
	pcfg := proxy.Config{
		MaxTurns:          maxTurns,
		TerminationMarker: sc.TerminationMarker,
		ExecTimeout:       time.Duration(sc.ExecTimeout) * time.Second,
	}

	report := &sessionReport{
		Name:      req.Name,
		SessionID: uuid.NewString(),
		WorkDir:   ws.Dir(),
	}

	hookRunner := &hooks.Runner{
		Dir: ws.Dir(),
		Env: map[string]string{
			"CODELOOP_SESSION_ID": report.SessionID,
			"CODELOOP_WORK_DIR":   ws.Dir(),
		},
	}
	if err := hookRunner.Run(ctx, hooks.BeforeSession, r.cfg.Hooks.BeforeSession); err != nil {
		return nil, err
	}

	var logger session.Logger = session.NopLogger{}
	if sc.SessionLog == nil || *sc.SessionLog {
		path := session.DefaultLogPath(utils.ResolvePath(sc.LogDir, r.baseDir), report.SessionID)
		jl, err := session.NewJSONLogger(path)
		if err != nil {
			return nil, fmt.Errorf("opening session log: %w", err)
		}
		defer jl.Close() //nolint:errcheck
		logger = jl
		report.SessionLogPath = path
	}

	opts := []proxy.Option{
		proxy.WithApprover(approval.New(r.approve, r.in, r.out)),
		proxy.WithSessionLogger(logger),
		proxy.WithSessionID(report.SessionID),
		proxy.WithGeneratorInfo(genCfg.Engine, genCfg.Model),
	}
	if r.out != nil {
		opts = append(opts, proxy.WithObserver(func(m models.Message) {
			transcript.RenderMessage(r.out, m, r.width)
		}))
	}

	p, err := proxy.New(pcfg, gen, exec, ws, opts...)
	if err != nil {
		return nil, err
	}

	slog.Debug("Starting session", "id", report.SessionID, "name", req.Name, "engine", genCfg.Engine, "dir", ws.Dir())
	outcome, runErr := p.Run(ctx, req.Message)
	report.Outcome = outcome

	t := transcript.Build(outcome, transcript.Meta{
		Name:    sessionName(req),
		Engine:  genCfg.Engine,
		Model:   genCfg.Model,
		WorkDir: ws.Dir(),
	}, runErr)

	compress := sc.CompressTranscripts != nil && *sc.CompressTranscripts
	path, err := transcript.Write(utils.ResolvePath(sc.TranscriptDir, r.baseDir), t, compress)
	if err != nil {
		return report, errors.Join(runErr, fmt.Errorf("saving transcript: %w", err))
	}
	report.TranscriptPath = path

	// the session is over; an interrupt must not cancel the upload or hooks
	after := context.WithoutCancel(ctx)
	if r.uploader != nil {
		name, err := r.uploader.Upload(after, path)
		if err != nil {
			slog.Warn("Transcript upload failed", "file", path, "error", err)
		} else {
			report.BlobName = name
		}
	}

	hookRunner.Env["CODELOOP_REASON"] = string(outcome.Reason)
	hookRunner.Env["CODELOOP_TRANSCRIPT"] = path
	if err := hookRunner.Run(after, hooks.AfterSession, r.cfg.Hooks.AfterSession); err != nil {
		return report, errors.Join(runErr, err)
	}

	return report, runErr
}

func sessionName(req sessionRequest) string {
	if req.Name != "" {
		return req.Name
	}
	return "chat"
}

func telemetryConfig(cfg *projectconfig.ProjectConfig) tracing.Config {
	t := cfg.Telemetry
	return tracing.Config{
		Enabled:     t.Enabled != nil && *t.Enabled,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure != nil && *t.Insecure,
		ServiceName: t.ServiceName,
		Version:     version,
		Headers:     t.Headers,
	}
}

// startTracing initializes trace export and returns a function that flushes
// it within a bounded time.
func startTracing(ctx context.Context, cfg *projectconfig.ProjectConfig) (func(), error) {
	shutdown, err := tracing.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return func() {}, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}, nil
}

// printSummary writes the one-line result of a session.
func printSummary(w io.Writer, rep *sessionReport) {
	o := rep.Outcome
	label := rep.Name
	if label == "" {
		label = rep.SessionID
	}
	fmt.Fprintf(w, "%s: %s after %d turn(s), %d execution(s) in %s\n",
		label, o.Reason, o.Turns, o.Executions, o.Duration().Round(time.Millisecond))
	if rep.TranscriptPath != "" {
		fmt.Fprintf(w, "  transcript:  %s\n", rep.TranscriptPath)
	}
	if rep.BlobName != "" {
		fmt.Fprintf(w, "  uploaded:    %s\n", rep.BlobName)
	}
	if rep.SessionLogPath != "" {
		fmt.Fprintf(w, "  session log: %s\n", rep.SessionLogPath)
	}
}
