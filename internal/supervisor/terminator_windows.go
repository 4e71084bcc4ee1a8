//go:build windows

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// platformTerminator sends CTRL_BREAK_EVENT to the console process group the
// service was started in. uvicorn treats it like SIGINT.
type platformTerminator struct{}

func (platformTerminator) Interrupt(p *os.Process) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid))
}

func (platformTerminator) Kill(p *os.Process) error {
	return p.Kill()
}

func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
