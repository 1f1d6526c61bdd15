//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// configureDetached places the child in its own process group so signals
// aimed at the host (Ctrl-C in a dev terminal, shell job control) do not
// propagate to the managed services.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate kills the whole process group; SeaweedFS forks helpers that must
// not outlive their parent.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
