package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart     EventType = "session_start"
	EventSessionEnd       EventType = "session_complete"
	EventGeneratorReply   EventType = "generator_reply"
	EventExecutionResult  EventType = "execution_result"
	EventExecutionSkipped EventType = "execution_skipped"
	EventError            EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(sessionID, engine, model, workDir string, maxTurns int, marker string) map[string]any {
	return map[string]any{
		"session_id":         sessionID,
		"engine":             engine,
		"model":              model,
		"work_dir":           workDir,
		"max_turns":          maxTurns,
		"termination_marker": marker,
	}
}

// SessionCompleteData returns event data for a session end.
func SessionCompleteData(reason string, turns, executions int, durationMs int64) map[string]any {
	return map[string]any{
		"reason":      reason,
		"turns":       turns,
		"executions":  executions,
		"duration_ms": durationMs,
	}
}

// GeneratorReplyData returns event data for a generator message.
func GeneratorReplyData(turn, codeBlocks int, terminated bool, chars int) map[string]any {
	return map[string]any{
		"turn":        turn,
		"code_blocks": codeBlocks,
		"terminated":  terminated,
		"chars":       chars,
	}
}

// ExecutionResultData returns event data for one executed code block.
func ExecutionResultData(turn, block int, language, status string, exitCode int, durationMs int64, script string) map[string]any {
	return map[string]any{
		"turn":        turn,
		"block":       block,
		"language":    language,
		"status":      status,
		"exit_code":   exitCode,
		"duration_ms": durationMs,
		"script":      script,
	}
}

// ExecutionSkippedData returns event data for a block that was not run.
func ExecutionSkippedData(turn, block int, language, reason string) map[string]any {
	return map[string]any{
		"turn":     turn,
		"block":    block,
		"language": language,
		"reason":   reason,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
