package models

import (
	"slices"
	"time"
)

// Role identifies who authored a message in a session transcript.
type Role string

const (
	// RoleUser is the caller-supplied instruction that seeds the session.
	RoleUser      Role = "user"
	RoleGenerator Role = "generator"
	RoleExecutor  Role = "executor"
	// RoleTerminator is appended once, when the session reaches its final state.
	RoleTerminator Role = "terminator"
)

// CodeBlock is an executable attachment extracted from a generator message.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Message is one entry in a transcript.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Attachments are the code blocks found in a generator message, in
	// document order.
	Attachments []CodeBlock `json:"attachments,omitempty"`

	// Results holds one entry per executed attachment. Only set on executor
	// messages.
	Results []ExecutionResult `json:"results,omitempty"`
}

// HasCode reports whether the message carries at least one executable block.
func (m Message) HasCode() bool {
	return len(m.Attachments) > 0
}

// Clone returns a copy of m that shares no slices with the original.
func (m Message) Clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.Results = slices.Clone(m.Results)
	return m
}
