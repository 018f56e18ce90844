// Package generator produces the next message of a session from a language
// model backend.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spboyer/codeloop/internal/codeblock"
	"github.com/spboyer/codeloop/internal/models"
)

// Generator returns the next message given the full transcript so far. It
// keeps no conversation state of its own.
type Generator interface {
	Next(ctx context.Context, transcript []models.Message) (models.Message, error)
}

// ErrUnavailable is matched by every failure to get a reply from a backend.
var ErrUnavailable = errors.New("generator unavailable")

// UnavailableError wraps a backend failure. Temporary failures (transport
// errors, 5xx, rate limiting) may be retried by a decorator.
type UnavailableError struct {
	Backend   string
	Temporary bool
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s generator unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// NewReply builds a generator message from raw model output, extracting any
// fenced code blocks as attachments.
func NewReply(content string) models.Message {
	return models.Message{
		Role:        models.RoleGenerator,
		Content:     content,
		Timestamp:   time.Now().UTC(),
		Attachments: codeblock.Extract(content),
	}
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, transcript []models.Message) (models.Message, error)

func (f Func) Next(ctx context.Context, transcript []models.Message) (models.Message, error) {
	return f(ctx, transcript)
}
