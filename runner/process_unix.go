//go:build unix

package runner

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// prepareCommand places the child in its own process group so a timeout kills its descendants too
func prepareCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess signals the child's process group. SIGABRT lets the OS write a
// core dump for post-mortem analysis.
func killProcess(p *os.Process, abort bool) {
	sig := unix.SIGTERM
	if abort {
		sig = unix.SIGABRT
	}
	if err := unix.Kill(-p.Pid, sig); err != nil {
		_ = p.Signal(sig)
	}
}

// exitCode reports a signalled child as the negated signal number
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
