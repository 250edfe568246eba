//go:build windows

package runner

import (
	"os"
	"os/exec"

	"github.com/shirou/gopsutil/v4/process"
)

func prepareCommand(*exec.Cmd) {}

// killProcess terminates the child and all of its descendants
func killProcess(p *os.Process, _ bool) {
	proc, err := process.NewProcess(int32(p.Pid))
	if err != nil {
		_ = p.Kill()
		return
	}
	killTree(proc)
}

func killTree(proc *process.Process) {
	children, _ := proc.Children()
	for _, c := range children {
		killTree(c)
	}
	_ = proc.Kill()
}

// exitCode keeps the full unsigned NTSTATUS value so crash codes can be recognised
func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
