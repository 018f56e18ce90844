package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spboyer/codeloop/internal/approval"
	"github.com/spboyer/codeloop/internal/projectconfig"
	"github.com/spboyer/codeloop/internal/proxy"
	"github.com/spboyer/codeloop/internal/spinner"
	"github.com/spboyer/codeloop/internal/utils"
	"github.com/spf13/cobra"
)

// sessionFlags are the flags shared by chat and batch. Zero values leave the
// project configuration untouched.
type sessionFlags struct {
	engine        string
	model         string
	maxTurns      int
	marker        string
	execTimeout   int
	approve       string
	transcriptDir string
	compress      bool
	noSessionLog  bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.engine, "engine", "", "Generator engine (openai, copilot, mock)")
	cmd.Flags().StringVar(&f.model, "model", "", "Model name passed to the generator")
	cmd.Flags().IntVar(&f.maxTurns, "max-turns", 0, "Maximum generator turns per session")
	cmd.Flags().StringVar(&f.marker, "marker", "", "Termination marker that ends a session")
	cmd.Flags().IntVar(&f.execTimeout, "exec-timeout", 0, "Per-block execution timeout in seconds")
	cmd.Flags().StringVar(&f.approve, "approve", "", "Approval mode for code blocks (auto, prompt, deny)")
	cmd.Flags().StringVar(&f.transcriptDir, "transcript-dir", "", "Directory transcripts are written to")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "Write zstd-compressed transcripts")
	cmd.Flags().BoolVar(&f.noSessionLog, "no-session-log", false, "Do not write the NDJSON session event log")
}

// apply overlays the flags onto cfg.
func (f *sessionFlags) apply(cfg *projectconfig.ProjectConfig) error {
	if f.maxTurns < 0 {
		return fmt.Errorf("--max-turns must be positive, got %d", f.maxTurns)
	}
	if f.execTimeout < 0 {
		return fmt.Errorf("--exec-timeout must be positive, got %d", f.execTimeout)
	}
	if f.approve != "" {
		if _, err := approval.ParseMode(f.approve); err != nil {
			return err
		}
		cfg.Session.Approve = f.approve
	}
	cfg.Generator = withEngine(cfg.Generator, f.engine)
	if f.model != "" {
		cfg.Generator.Model = f.model
	}
	if f.maxTurns > 0 {
		cfg.Session.MaxTurns = f.maxTurns
	}
	if f.marker != "" {
		cfg.Session.TerminationMarker = f.marker
	}
	if f.execTimeout > 0 {
		cfg.Session.ExecTimeout = f.execTimeout
	}
	if f.transcriptDir != "" {
		// flag paths are relative to the current directory, not the config file
		cfg.Session.TranscriptDir = absPath(f.transcriptDir)
	}
	if f.compress {
		cfg.Session.CompressTranscripts = utils.Ptr(true)
	}
	if f.noSessionLog {
		cfg.Session.SessionLog = utils.Ptr(false)
	}
	return nil
}

func newChatCommand() *cobra.Command {
	var (
		flags   sessionFlags
		workDir string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one code-writing session",
		Long: `Run one session: the message is sent to the generator, code blocks in
its replies are executed in the work directory, and their output is sent back
until the generator replies with the termination marker or the turn limit is
reached.

Without a message a stock-chart plotting task is used.

Exit codes: 0 when the termination marker was reached, 1 when the turn limit
was reached first, 2 on any error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := defaultMessage
			if len(args) == 1 {
				message = args[0]
			}
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("message must not be empty")
			}

			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			if workDir != "" {
				cfg.Session.WorkDir = absPath(workDir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			flush, err := startTracing(ctx, cfg)
			if err != nil {
				return err
			}
			defer flush()

			out := cmd.OutOrStdout()
			r, err := newRunner(cfg, cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if errOut := cmd.ErrOrStderr(); spinner.Enabled(errOut) {
				r.progress = errOut
			}

			rep, err := r.runSession(ctx, sessionRequest{Message: message})
			if rep == nil {
				return err
			}
			fmt.Fprintln(out)
			printSummary(out, rep)
			if err != nil {
				return fmt.Errorf("session %s: %w", rep.Outcome.Reason, err)
			}
			if rep.Outcome.Reason == proxy.ReasonTurnsExhausted {
				return &TurnsExhaustedError{
					Message: fmt.Sprintf("turn limit of %d reached before %q", cfg.Session.MaxTurns, cfg.Session.TerminationMarker),
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Directory code blocks are written to and run in")

	return cmd
}

func absPath(p string) string {
	wd, err := os.Getwd()
	if err != nil {
		return p
	}
	return utils.ResolvePath(p, wd)
}
