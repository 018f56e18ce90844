package main

import (
	"fmt"
	"path/filepath"

	"github.com/spboyer/codeloop/internal/projectconfig"
	"github.com/spboyer/codeloop/internal/session"
	"github.com/spboyer/codeloop/internal/utils"
	"github.com/spf13/cobra"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "View and manage session logs",
		Long: `View and manage session event logs.

Session logs are NDJSON files written by chat and batch unless --no-session-log
is given. They record every state change of a session: its start, each
generator reply, each executed or skipped code block, and how it ended.`,
	}

	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionViewCommand())

	return cmd
}

func newSessionListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded session logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := projectconfig.Load(".")
				if err != nil {
					return err
				}
				dir = utils.ResolvePath(cfg.Session.LogDir, configBaseDir(cfg))
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files, err := session.ListSessions(absDir)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No session logs found.")
				return nil
			}

			fmt.Fprintf(out, "%-48s %-8s %s\n", "File", "Events", "Modified")
			fmt.Fprintln(out, "─────────────────────────────────────────────────────────────────────────")
			for _, f := range files {
				fmt.Fprintf(out, "%-48s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to search for session logs (default: session.log_dir)")

	return cmd
}

func newSessionViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <session-file>",
		Short: "View a session timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}

			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	return cmd
}
