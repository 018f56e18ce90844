package proxy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfiguration is returned when a Proxy is constructed with incomplete
// settings.
var ErrConfiguration = errors.New("invalid proxy configuration")

// Config holds the loop limits. There are no defaults at this level: callers
// decide the turn budget and the termination convention.
type Config struct {
	// MaxTurns bounds the number of generator calls in one session.
	MaxTurns int
	// TerminationMarker is the substring that ends the session when it
	// appears in a generator message.
	TerminationMarker string
	// ExecTimeout is passed to the executor for every code block.
	ExecTimeout time.Duration
}

// Validate reports every missing or out-of-range field at once.
func (c Config) Validate() error {
	var missing []string
	if c.MaxTurns <= 0 {
		missing = append(missing, "max_turns")
	}
	if strings.TrimSpace(c.TerminationMarker) == "" {
		missing = append(missing, "termination_marker")
	}
	if c.ExecTimeout <= 0 {
		missing = append(missing, "exec_timeout")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
