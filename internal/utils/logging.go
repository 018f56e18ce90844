package utils

import (
	"context"
	"log/slog"

	copilot "github.com/github/copilot-sdk/go"
)

// CopilotEventLogger returns a session event handler that forwards copilot
// events to slog. Errors are logged at warn level, everything else only when
// debug logging is enabled.
func CopilotEventLogger(sessionID string) copilot.SessionEventHandler {
	return func(event copilot.SessionEvent) {
		level := slog.LevelDebug
		if event.Type == copilot.SessionError {
			level = slog.LevelWarn
		}
		if !slog.Default().Enabled(context.Background(), level) {
			return
		}

		attrs := []any{
			"session", sessionID,
			"type", event.Type,
		}
		attrs = addIf(attrs, "content", event.Data.Content)
		attrs = addIf(attrs, "deltaContent", event.Data.DeltaContent)
		attrs = addIf(attrs, "message", event.Data.Message)
		attrs = addIf(attrs, "toolName", event.Data.ToolName)
		attrs = addIf(attrs, "toolCallID", event.Data.ToolCallID)

		slog.Log(context.Background(), level, "Copilot event", attrs...)
	}
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name, *v)
	}
	return attrs
}
