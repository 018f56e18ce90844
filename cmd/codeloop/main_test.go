package main

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnsExhaustedError(t *testing.T) {
	err := &TurnsExhaustedError{Message: "turn limit of 10 reached before \"TERMINATE\""}
	assert.Equal(t, "turn limit of 10 reached before \"TERMINATE\"", err.Error())
}

func TestErrorTypeDetection(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantExhausted bool
	}{
		{"TurnsExhaustedError", &TurnsExhaustedError{Message: "limit"}, true},
		{"regular error", errors.New("config error"), false},
		{"wrapped TurnsExhaustedError", fmt.Errorf("batch: %w", &TurnsExhaustedError{Message: "limit"}), true},
		{"joined TurnsExhaustedError", errors.Join(&TurnsExhaustedError{Message: "limit"}, errors.New("more")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exhausted *TurnsExhaustedError
			assert.Equal(t, tt.wantExhausted, errors.As(tt.err, &exhausted))
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"chat", "batch", "session", "transcript", "init"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommand_Version(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
}
