package main

import (
	"fmt"

	"github.com/spboyer/codeloop/internal/transcript"
	"github.com/spf13/cobra"
)

func newTranscriptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect saved session transcripts",
	}

	cmd.AddCommand(newTranscriptViewCommand())

	return cmd
}

func newTranscriptViewCommand() *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "view <transcript-file>",
		Short: "Print every message of a transcript",
		Long: `Print a transcript written by chat or batch. Compressed transcripts
(.json.zst) are decompressed automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := transcript.Read(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if width <= 0 {
				width = terminalWidth(out)
			}
			transcript.Render(out, t, width)
			if t.ErrorMsg != "" {
				return fmt.Errorf("session %s ended with an error: %s", t.SessionID, t.ErrorMsg)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "Output width in columns (default: terminal width)")

	return cmd
}
