package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codeloop",
		Short: "codeloop - let a model write code and run it until the task is done",
		Long: `codeloop runs a conversation between a code-writing model and a local
executor. Code blocks in each reply are saved to a work directory and run; their
output is sent back to the model. The session ends when the model replies with
the termination marker or when the turn limit is reached.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newChatCommand())
	cmd.AddCommand(newBatchCommand())
	cmd.AddCommand(newSessionCommand())
	cmd.AddCommand(newTranscriptCommand())
	cmd.AddCommand(newInitCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
