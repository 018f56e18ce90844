package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spboyer/codeloop/internal/generator"
	"github.com/spboyer/codeloop/internal/projectconfig"
	"github.com/stretchr/testify/require"
)

const (
	echoReply   = "Run this:\n\n```sh\necho 2\n```\n"
	doneReply   = "The answer is 2.\n\nTERMINATE"
	touchAndEnd = "```sh\ntouch ran.txt\n```\nTERMINATE"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests run generated sh blocks")
	}
}

// setupProject writes a .codeloop.yaml using the mock engine with replies,
// changes into its directory and returns the directory. mutate may adjust
// the configuration before it is written.
func setupProject(t *testing.T, replies []string, mutate func(*projectconfig.ProjectConfig)) string {
	t.Helper()
	dir := t.TempDir()

	cfg := projectconfig.New()
	cfg.Generator = withEngine(cfg.Generator, generator.EngineMock)
	cfg.Generator.Options = map[string]any{"replies": replies}
	cfg.Session.ExecTimeout = 10
	if mutate != nil {
		mutate(cfg)
	}

	data, err := projectconfig.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, projectconfig.FileName), data, 0o644))

	t.Chdir(dir)
	return dir
}

// globOne returns the single file matching pattern.
func globOne(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(pattern)
	require.NoError(t, err)
	require.Len(t, matches, 1, "files matching %s", pattern)
	return matches[0]
}
