//go:build windows

package execution

import "os/exec"

// configureProcess keeps the default behaviour on Windows, where
// exec.CommandContext already kills the process on cancellation.
func configureProcess(cmd *exec.Cmd) {}
