package proxy

import (
	"time"

	"github.com/spboyer/codeloop/internal/models"
)

// State is a position in the session state machine.
type State string

const (
	StateAwaitingGenerator State = "AWAITING_GENERATOR"
	StateAwaitingExecution State = "AWAITING_EXECUTION"
	StateDone              State = "DONE"
)

// Reason explains why a session reached StateDone.
type Reason string

const (
	// ReasonTerminated means the generator sent the termination marker.
	ReasonTerminated Reason = "terminated"
	// ReasonTurnsExhausted is a normal stop once MaxTurns generator calls
	// have been made.
	ReasonTurnsExhausted Reason = "turns_exhausted"

	ReasonGeneratorUnavailable Reason = "generator_unavailable"
	ReasonExecutionFailed      Reason = "execution_failed"
	ReasonCanceled             Reason = "canceled"
)

// Outcome summarises a finished session.
type Outcome struct {
	SessionID string
	Reason    Reason
	// Turns counts generator calls, including a failed final call.
	Turns int
	// Executions counts code blocks handed to the executor.
	Executions  int
	Transcript  []models.Message
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration is the wall-clock length of the session.
func (o *Outcome) Duration() time.Duration {
	return o.CompletedAt.Sub(o.StartedAt)
}
