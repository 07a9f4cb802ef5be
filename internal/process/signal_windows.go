//go:build windows

package process

import (
	"os"
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const PROCESS_TERMINATE = 0x0001

// terminateGroup terminates the process on Windows. There is no group
// semantics equivalent to SIGTERM; TerminateProcess is the only option.
func terminateGroup(pid int) error {
	return terminate(pid)
}

// killGroup is identical to terminateGroup on Windows.
func killGroup(pid int) error {
	return terminate(pid)
}

// forwardSignal terminates the child; console control events are not
// reliably deliverable across consoles.
func forwardSignal(pid int, _ os.Signal) {
	_ = terminate(pid)
}

func terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	ret, _, err := procOpenProcess.Call(uintptr(uint32(PROCESS_TERMINATE)), uintptr(0), uintptr(uint32(pid)))
	if ret == 0 {
		// Process likely already gone; treat as terminated.
		return nil
	}
	handle := syscall.Handle(ret)
	defer func() { _, _, _ = procCloseHandle.Call(uintptr(handle)) }()
	r, _, callErr := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if r == 0 {
		if callErr != nil {
			return callErr
		}
		return err
	}
	return nil
}
