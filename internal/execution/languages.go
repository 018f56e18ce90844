package execution

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// Language describes how to run a source file of one language. The script
// name is appended to Command.
type Language struct {
	Name      string
	Extension string
	Command   []string
}

// NewLanguage builds a Language from a shell-style command line such as
// "python3 -u" or "deno run --allow-read".
func NewLanguage(name, extension, commandLine string) (Language, error) {
	args, err := shellwords.Parse(commandLine)
	if err != nil {
		return Language{}, fmt.Errorf("parsing command for language %q: %w", name, err)
	}
	if len(args) == 0 {
		return Language{}, fmt.Errorf("command for language %q is empty", name)
	}
	if extension == "" {
		return Language{}, fmt.Errorf("extension for language %q is empty", name)
	}

	return Language{
		Name:      name,
		Extension: strings.TrimPrefix(extension, "."),
		Command:   args,
	}, nil
}

// DefaultLanguages returns the built-in language table.
func DefaultLanguages() map[string]Language {
	return map[string]Language{
		"python":     {Name: "python", Extension: "py", Command: []string{pythonBin(), "-u"}},
		"sh":         {Name: "sh", Extension: "sh", Command: []string{"sh"}},
		"javascript": {Name: "javascript", Extension: "js", Command: []string{"node"}},
		"go":         {Name: "go", Extension: "go", Command: []string{"go", "run"}},
		"pwsh":       {Name: "pwsh", Extension: "ps1", Command: []string{"pwsh", "-NoProfile", "-File"}},
	}
}

var pythonBin = sync.OnceValue(resolvePythonBin)

func resolvePythonBin() string {
	// Prefer python3, but verify it actually works. On Windows the
	// Microsoft Store registers a python3.exe stub that only prints
	// "Python was not found" and exits 9009.
	if path, err := exec.LookPath("python3"); err == nil {
		cmd := exec.Command(path, "--version")
		if cmd.Run() == nil {
			return "python3"
		}
	}
	return "python"
}
