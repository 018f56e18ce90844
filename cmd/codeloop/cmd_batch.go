package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spboyer/codeloop/internal/approval"
	"github.com/spboyer/codeloop/internal/generator"
	"github.com/spboyer/codeloop/internal/projectconfig"
	"github.com/spboyer/codeloop/internal/proxy"
	"github.com/spboyer/codeloop/internal/transcript"
	"github.com/spboyer/codeloop/internal/utils"
	"github.com/spboyer/codeloop/internal/validation"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// BatchFile is the document read by "codeloop batch".
type BatchFile struct {
	Sessions []BatchSession `yaml:"sessions"`
}

// BatchSession is one entry of a batch file.
type BatchSession struct {
	Name     string         `yaml:"name"`
	Message  string         `yaml:"message"`
	WorkDir  string         `yaml:"work_dir,omitempty"`
	MaxTurns int            `yaml:"max_turns,omitempty"`
	Engine   string         `yaml:"engine,omitempty"`
	Model    string         `yaml:"model,omitempty"`
	Options  map[string]any `yaml:"options,omitempty"`
}

func loadBatchFile(path string) (*BatchFile, error) {
	errs, err := validation.ValidateBatchFile(path)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid batch file %s:\n  %s", path, strings.Join(errs, "\n  "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing batch file %s: %w", path, err)
	}
	return &bf, nil
}

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// batchRequests turns the batch entries into session requests. Sessions
// without a work_dir get a subdirectory of defaultDir named after them.
// Relative work_dir values are resolved against the batch file's directory.
// Two sessions may not share a name, the file-safe form of a name, or a work
// directory.
func batchRequests(bf *BatchFile, batchDir, defaultDir string) ([]sessionRequest, error) {
	reqs := make([]sessionRequest, 0, len(bf.Sessions))
	owners := make(map[string]string, len(bf.Sessions))
	names := make(map[string]string, len(bf.Sessions))

	for _, s := range bf.Sessions {
		// transcripts are named after the session
		key := transcript.SanitizeName(s.Name)
		if other, ok := names[key]; ok {
			if other == s.Name {
				return nil, fmt.Errorf("session name %q is used more than once", s.Name)
			}
			return nil, fmt.Errorf("session names %q and %q are not distinct as file names", other, s.Name)
		}
		names[key] = s.Name

		dir := utils.ResolvePath(s.WorkDir, batchDir)
		if s.WorkDir == "" {
			name := strings.Trim(unsafeDirChars.ReplaceAllString(strings.ToLower(s.Name), "-"), "-")
			if name == "" {
				name = "session"
			}
			dir = filepath.Join(defaultDir, name)
		}
		dir = filepath.Clean(dir)

		if other, ok := owners[dir]; ok {
			return nil, fmt.Errorf("sessions %q and %q share work directory %s", other, s.Name, dir)
		}
		owners[dir] = s.Name

		reqs = append(reqs, sessionRequest{
			Name:     s.Name,
			Message:  s.Message,
			WorkDir:  dir,
			MaxTurns: s.MaxTurns,
			Engine:   s.Engine,
			Model:    s.Model,
			Options:  s.Options,
		})
	}
	return reqs, nil
}

func newBatchCommand() *cobra.Command {
	var (
		flags   sessionFlags
		workers int
	)

	cmd := &cobra.Command{
		Use:   "batch <sessions.yaml>",
		Short: "Run several independent sessions in parallel",
		Long: `Run every session listed in a batch file. Each session has its own work
directory and transcript; sessions never share state. A generator rate limit
from the configuration is shared by all sessions.

Exit codes: 0 when every session reached the termination marker, 1 when at
least one reached its turn limit, 2 when any session failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			bf, err := loadBatchFile(batchPath)
			if err != nil {
				return err
			}

			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			if cfg.Session.Approve == string(approval.ModePrompt) {
				return fmt.Errorf("approval mode %q cannot be used with batch; use auto or deny", approval.ModePrompt)
			}
			if workers <= 0 {
				workers = cfg.Batch.Workers
			}

			out := cmd.OutOrStdout()
			// messages of concurrent sessions are not streamed
			r, err := newRunner(cfg, cmd.InOrStdin(), nil)
			if err != nil {
				return err
			}
			if rpm := cfg.Generator.RequestsPerMinute; rpm > 0 {
				r.limiter = generator.NewLimiter(rpm)
			}

			reqs, err := batchRequests(bf, filepath.Dir(batchPath), utils.ResolvePath(cfg.Session.WorkDir, r.baseDir))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			flush, err := startTracing(ctx, cfg)
			if err != nil {
				return err
			}
			defer flush()

			reports, errs := runBatch(ctx, r, reqs, workers)
			return summarizeBatch(out, reqs, reports, errs)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of sessions run at the same time (default from config)")

	return cmd
}

// runBatch runs reqs with at most workers sessions in flight. A failing
// session does not stop the others.
func runBatch(ctx context.Context, r *runner, reqs []sessionRequest, workers int) ([]*sessionReport, []error) {
	reports := make([]*sessionReport, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, req := range reqs {
		g.Go(func() error {
			slog.Info("Session started", "name", req.Name, "dir", req.WorkDir)
			reports[i], errs[i] = r.runSession(ctx, req)
			if errs[i] != nil {
				slog.Warn("Session failed", "name", req.Name, "error", errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports, errs
}

func summarizeBatch(w io.Writer, reqs []sessionRequest, reports []*sessionReport, errs []error) error {
	var terminated, exhausted, failed int
	for i, req := range reqs {
		rep := reports[i]
		if rep != nil {
			printSummary(w, rep)
		}
		switch {
		case errs[i] != nil:
			failed++
			if rep == nil {
				fmt.Fprintf(w, "%s: failed to start\n", req.Name)
			}
			fmt.Fprintf(w, "  error: %v\n", errs[i])
		case rep.Outcome.Reason == proxy.ReasonTurnsExhausted:
			exhausted++
		default:
			terminated++
		}
	}

	fmt.Fprintf(w, "\n%d session(s): %d terminated, %d turns exhausted, %d failed\n",
		len(reqs), terminated, exhausted, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d session(s) failed", failed, len(reqs))
	}
	if exhausted > 0 {
		return &TurnsExhaustedError{
			Message: fmt.Sprintf("%d of %d session(s) reached the turn limit", exhausted, len(reqs)),
		}
	}
	return nil
}
