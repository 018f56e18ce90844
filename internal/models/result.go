package models

import "time"

// ExecStatus is the outcome of running a single code block.
type ExecStatus string

const (
	StatusSucceeded ExecStatus = "succeeded"
	StatusFailed    ExecStatus = "failed"
	StatusTimedOut  ExecStatus = "timed_out"
)

// TimedOutExitCode is reported for runs killed by the executor timeout.
const TimedOutExitCode = -1

// ExecutionResult describes one process run. Non-zero exits and stderr
// output are ordinary results that get fed back to the generator.
type ExecutionResult struct {
	Status   ExecStatus    `json:"status"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration_ns"`
	Language string        `json:"language"`

	// Script is the generated source file, relative to the workspace.
	Script string `json:"script,omitempty"`
}

// Succeeded reports whether the process ran to completion with exit code 0.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}
