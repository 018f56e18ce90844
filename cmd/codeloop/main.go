package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different session outcomes
const (
	ExitSuccess        = 0 // Every session reached the termination marker
	ExitTurnsExhausted = 1 // A session stopped at its turn limit
	ExitError          = 2 // Configuration or runtime error
)

// TurnsExhaustedError indicates that the sessions ran without errors, but at
// least one of them stopped at max_turns before the generator finished.
type TurnsExhaustedError struct {
	Message string
}

func (e *TurnsExhaustedError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var exhausted *TurnsExhaustedError
		if errors.As(err, &exhausted) {
			os.Exit(ExitTurnsExhausted)
		}

		os.Exit(ExitError)
	}
}
