package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// simpleIndicator announces the run and prints every failure at the end
type simpleIndicator struct {
	state   *types.RunState
	out     io.Writer
	windows bool
}

func newSimple(state *types.RunState, opts Options) simpleIndicator {
	return simpleIndicator{state: state, out: opts.Out, windows: opts.Windows}
}

func (s *simpleIndicator) Starting() {
	fmt.Fprintf(s.out, "Running %d tests\n", len(s.state.Cases))
}

func (s *simpleIndicator) AboutToRun(*types.TestCase) {}

func (s *simpleIndicator) HasRun(*types.TestOutput) {}

func (s *simpleIndicator) Done() {
	fmt.Fprintln(s.out)
	for _, failed := range s.state.Failed {
		writeFailureHeader(s.out, failed.Test)
		if stderr := strings.TrimSpace(failed.Output.Stderr); stderr != "" {
			fmt.Fprintln(s.out, "--- stderr ---")
			fmt.Fprintln(s.out, stderr)
		}
		if stdout := strings.TrimSpace(failed.Output.Stdout); stdout != "" {
			fmt.Fprintln(s.out, "--- stdout ---")
			fmt.Fprintln(s.out, stdout)
		}
		writeFailureTrailer(s.out, failed, s.windows)
	}
	writeSummary(s.out, s.state)
}

// verboseIndicator prints a line before and after every test
type verboseIndicator struct {
	simpleIndicator
}

func (v *verboseIndicator) AboutToRun(tc *types.TestCase) {
	fmt.Fprintf(v.out, "Starting %s...\n", tc.Label())
}

func (v *verboseIndicator) HasRun(out *types.TestOutput) {
	outcome := "pass"
	if out.UnexpectedOutput() {
		outcome = "FAIL"
		if out.HasCrashed() {
			outcome = "CRASH"
		}
	}
	fmt.Fprintf(v.out, "Done running %s: %s\n", out.Test.Label(), outcome)
}

// dotsIndicator prints one character per test, fifty to a line
type dotsIndicator struct {
	simpleIndicator
}

func (d *dotsIndicator) HasRun(out *types.TestOutput) {
	total := d.state.Succeeded + len(d.state.Failed)
	if total > 1 && total%50 == 1 {
		fmt.Fprintln(d.out)
	}
	mark := "."
	if out.UnexpectedOutput() {
		switch {
		case out.HasCrashed():
			mark = "C"
		case out.HasTimedOut():
			mark = "T"
		default:
			mark = "F"
		}
	}
	fmt.Fprint(d.out, mark)
}
