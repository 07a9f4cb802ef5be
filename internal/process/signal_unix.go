//go:build !windows

package process

import (
	"os"
	"syscall"
)

// terminateGroup asks the process group to shut down.
func terminateGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGTERM)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// killGroup forcibly kills the process group.
func killGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}

// forwardSignal relays an os.Signal from the launcher to the child's group.
func forwardSignal(pid int, sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGTERM
	}
	_ = syscall.Kill(-pid, s)
}
