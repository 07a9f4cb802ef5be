//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr sets platform-specific attributes for Unix-like
// systems. Detached children get a new session (setsid) so they survive the
// launcher's exit and are free of its controlling terminal; foreground
// children get a new process group for group signaling.
func configureSysProcAttr(cmd *exec.Cmd, detached bool) {
	attrs := &syscall.SysProcAttr{}
	if detached {
		attrs.Setsid = true
	} else {
		attrs.Setpgid = true
	}
	cmd.SysProcAttr = attrs
}
