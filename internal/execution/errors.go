package execution

import (
	"errors"
	"fmt"
)

// ErrInfrastructure is matched by failures of the host environment itself:
// missing interpreters, processes that cannot be started, scripts that cannot
// be written. Failures of the generated code are never reported this way.
var ErrInfrastructure = errors.New("execution infrastructure failure")

// InfrastructureError carries the failed operation and the language being run.
type InfrastructureError struct {
	Op       string
	Language string
	Err      error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("cannot %s %s code: %v", e.Op, e.Language, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func (e *InfrastructureError) Is(target error) bool { return target == ErrInfrastructure }
