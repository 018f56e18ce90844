package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCommands_ListAndView(t *testing.T) {
	dir := setupProject(t, []string{doneReply}, nil)

	chat := newChatCommand()
	chat.SetOut(io.Discard)
	chat.SetArgs([]string{"say done"})
	require.NoError(t, chat.Execute())

	var out bytes.Buffer
	list := newSessionListCommand()
	list.SetOut(&out)
	list.SetArgs([]string{})
	require.NoError(t, list.Execute())
	assert.Contains(t, out.String(), "-session.jsonl")

	logFile := globOne(t, filepath.Join(dir, ".codeloop", "sessions", "*-session.jsonl"))

	out.Reset()
	view := newSessionViewCommand()
	view.SetOut(&out)
	view.SetArgs([]string{logFile})
	require.NoError(t, view.Execute())
	assert.Contains(t, out.String(), "engine=mock")
	assert.Contains(t, out.String(), "termination marker")
	assert.Contains(t, out.String(), "reason=terminated")
}

func TestSessionListCommand_Empty(t *testing.T) {
	var out bytes.Buffer
	cmd := newSessionListCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dir", t.TempDir()})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "No session logs found.")
}

func TestSessionViewCommand_MissingFile(t *testing.T) {
	cmd := newSessionViewCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "nope.jsonl")})
	assert.Error(t, cmd.Execute())
}
