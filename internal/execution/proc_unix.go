//go:build !windows

package execution

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the child in its own process group so a timeout
// kills anything it spawned as well.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
