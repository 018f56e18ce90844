package models

import "time"

// Transcript is the append-only message log of one session. It is owned by a
// single proxy and is not safe for concurrent use.
type Transcript struct {
	messages []Message
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append stores a copy of m. A zero timestamp is replaced with the current time.
func (t *Transcript) Append(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	t.messages = append(t.messages, m.Clone())
}

// Messages returns a copy of the transcript in append order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

// Last returns the most recently appended message.
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1].Clone(), true
}

// SessionTranscript is the JSON document written for a finished session.
type SessionTranscript struct {
	SessionID   string    `json:"session_id"`
	Name        string    `json:"name"`
	Engine      string    `json:"engine"`
	Model       string    `json:"model,omitempty"`
	WorkDir     string    `json:"work_dir"`
	Reason      string    `json:"reason"`
	Turns       int       `json:"turns"`
	Executions  int       `json:"executions"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Prompt      string    `json:"prompt"`
	Messages    []Message `json:"messages"`
	ErrorMsg    string    `json:"error_msg,omitempty"`
}
