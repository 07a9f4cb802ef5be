//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// Windows creation flags
const (
	CREATE_NEW_PROCESS_GROUP = 0x00000200
	CREATE_NEW_CONSOLE       = 0x00000010
)

// configureSysProcAttr sets platform-specific attributes for Windows.
// Detached children additionally get their own console window, matching the
// monitor program's interactive-console contract.
func configureSysProcAttr(cmd *exec.Cmd, detached bool) {
	attrs := &syscall.SysProcAttr{}
	flags := uint32(CREATE_NEW_PROCESS_GROUP)
	if detached {
		flags |= CREATE_NEW_CONSOLE
	}
	attrs.CreationFlags = flags
	cmd.SysProcAttr = attrs
}
