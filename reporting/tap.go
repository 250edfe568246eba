package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testrunner/suite"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

var skipRegex = regexp.MustCompile(`(?i)# SKIP\S*\s+(.*)`)

const flakyDirective = " # TODO : Fix flaky test"

// tapIndicator writes TAP version 13 with a YAML block per test
type tapIndicator struct {
	state    *types.RunState
	out      io.Writer
	testRoot string
	done     int
}

func newTap(state *types.RunState, opts Options) *tapIndicator {
	out := opts.Out
	if opts.LogFile != nil {
		out = io.MultiWriter(opts.Out, opts.LogFile)
	}
	return &tapIndicator{state: state, out: out, testRoot: opts.TestRoot}
}

// testName is the last command argument relative to the test root, e.g. parallel/test-assert
func testName(command []string, testRoot string) string {
	if len(command) == 0 {
		return ""
	}
	prefix := ""
	if testRoot != "" {
		prefix = strings.TrimSuffix(testRoot, "/") + "/"
	}
	return suite.NormalizePath(command[len(command)-1], prefix)
}

func (t *tapIndicator) Starting() {
	fmt.Fprintln(t.out, "TAP version 13")
	fmt.Fprintf(t.out, "1..%d\n", len(t.state.Cases))
	t.done = 0
}

func (t *tapIndicator) AboutToRun(*types.TestCase) {}

func (t *tapIndicator) HasRun(out *types.TestOutput) {
	t.done++
	name := testName(out.Command, t.testRoot)
	flaky := out.Test.Outcomes.Has(types.OutcomeFlaky)
	severity := "ok"
	exitCode := 0
	traceback := ""

	if out.UnexpectedOutput() {
		line := fmt.Sprintf("not ok %d %s", t.done, name)
		severity = "fail"
		exitCode = out.Output.ExitCode
		traceback = out.Output.Stdout + out.Output.Stderr
		if flaky && t.state.FlakyMode == types.FlakyDontCare {
			line += flakyDirective
			severity = "flaky"
		}
		fmt.Fprintln(t.out, line)
		if out.HasCrashed() {
			severity = "crashed"
		}
	} else {
		if skip := skipRegex.FindStringSubmatch(out.Output.Stdout); skip != nil {
			fmt.Fprintf(t.out, "ok %d %s # skip %s\n", t.done, name, skip[1])
		} else {
			line := fmt.Sprintf("ok %d %s", t.done, name)
			if flaky {
				line += flakyDirective
			}
			fmt.Fprintln(t.out, line)
		}
		if len(out.Diagnostic) > 0 {
			traceback = strings.Join(out.Diagnostic, "\n")
		}
	}

	fmt.Fprintln(t.out, "  ---")
	fmt.Fprintf(t.out, "  duration_ms: %s\n", formatTapDuration(out.Test.Duration))
	if severity != "ok" || traceback != "" {
		if out.HasTimedOut() {
			traceback = "timeout\n" + out.Output.Stdout + out.Output.Stderr
		}
		fmt.Fprintf(t.out, "  severity: %s\n", severity)
		if exitCode != 0 {
			fmt.Fprintf(t.out, "  exitcode: %d\n", exitCode)
		}
		fmt.Fprintln(t.out, "  stack: |-")
		for _, l := range strings.Split(strings.TrimRight(traceback, "\n"), "\n") {
			fmt.Fprintf(t.out, "    %s\n", l)
		}
	}
	fmt.Fprintln(t.out, "  ...")
}

func (t *tapIndicator) Done() {}

// formatTapDuration renders seconds with milliseconds, e.g. 1.005. TAP
// consumers read duration_ms as a duration in seconds.
func formatTapDuration(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}
