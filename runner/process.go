package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// outputDrainDelay bounds how long Wait keeps reading output held open by
// grandchildren after the child itself has exited
const outputDrainDelay = 5 * time.Second

// processSpec describes one child process execution
type processSpec struct {
	Args             []string
	Env              []string
	Dir              string
	Timeout          time.Duration
	AbortOnTimeout   bool
	DisableCoreFiles bool
	OutputLimit      int
}

// childEnv returns the parent environment without NODE_PATH, extended with extra
func childEnv(parent []string, extra map[string]string) []string {
	env := make([]string, 0, len(parent)+len(extra))
	for _, kv := range parent {
		key, _, _ := strings.Cut(kv, "=")
		if key == "NODE_PATH" {
			continue
		}
		if _, overridden := extra[key]; overridden {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// runProcess runs spec to completion. A child still running when the timeout
// fires is killed and reported as timed out. When ctx is cancelled the child
// is killed and ctx.Err() is returned.
func runProcess(ctx context.Context, clk clock.Clock, spec processSpec) (types.CommandOutput, error) {
	if len(spec.Args) == 0 {
		return types.CommandOutput{}, errors.New("empty command")
	}
	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	stdout := newTailBuffer(spec.OutputLimit)
	stderr := newTailBuffer(spec.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = outputDrainDelay
	prepareCommand(cmd)

	if err := cmd.Start(); err != nil {
		return types.CommandOutput{}, fmt.Errorf("failed to start %s: %w", spec.Args[0], err)
	}
	if spec.DisableCoreFiles {
		disableCoreFiles(cmd.Process.Pid)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var expired <-chan time.Time
	if spec.Timeout > 0 {
		timer := clk.NewTimer(spec.Timeout)
		defer timer.Stop()
		expired = timer.C()
	}

	timedOut := false
	var waitErr error
	select {
	case waitErr = <-done:
	case <-expired:
		timedOut = true
		killProcess(cmd.Process, spec.AbortOnTimeout)
		waitErr = <-done
	case <-ctx.Done():
		killProcess(cmd.Process, false)
		<-done
		return types.CommandOutput{}, ctx.Err()
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return types.CommandOutput{}, fmt.Errorf("failed to wait for %s: %w", spec.Args[0], waitErr)
	}

	return types.CommandOutput{
		ExitCode: exitCode(cmd.ProcessState),
		TimedOut: timedOut,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// processEnviron is swapped in tests
var processEnviron = os.Environ
