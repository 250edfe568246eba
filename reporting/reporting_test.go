package reporting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

func testCase(name string, outcomes ...types.Outcome) *types.TestCase {
	if len(outcomes) == 0 {
		outcomes = []types.Outcome{types.OutcomePass}
	}
	return &types.TestCase{
		Path:     []string{"parallel", name},
		File:     "/repo/test/parallel/" + name + ".js",
		Suite:    "parallel",
		Mode:     "release",
		Command:  []string{"out/Release/node", "/repo/test/parallel/" + name + ".js"},
		Outcomes: types.NewOutcomeSet(outcomes...),
	}
}

func output(tc *types.TestCase, out types.CommandOutput) *types.TestOutput {
	return &types.TestOutput{Test: tc, Command: tc.Command, Output: out}
}

// record applies the scheduler's accounting for out and forwards it to p
func record(state *types.RunState, p runner.ProgressIndicator, out *types.TestOutput) {
	p.AboutToRun(out.Test)
	switch {
	case !out.UnexpectedOutput():
		state.Succeeded++
	case out.Test.Outcomes.Has(types.OutcomeFlaky) && state.FlakyMode == types.FlakyDontCare:
		state.FlakyFailed = append(state.FlakyFailed, out)
	default:
		state.Failed = append(state.Failed, out)
		if out.HasCrashed() {
			state.Crashed++
		}
	}
	state.Remaining--
	p.HasRun(out)
}

func newIndicator(t *testing.T, style Style, state *types.RunState, opts Options) (runner.ProgressIndicator, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Out = &buf
	opts.Log = log.NewLogger(log.DiscardHandler())
	if opts.Clock == nil {
		opts.Clock = fakeclock.NewFakeClock(time.Unix(0, 0))
	}
	if opts.TestRoot == "" {
		opts.TestRoot = "/repo/test"
	}
	factory, err := New(style, opts)
	require.NoError(t, err)
	return factory(state), &buf
}

func TestParseStyle(t *testing.T) {
	for _, s := range Styles {
		style, err := ParseStyle(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, style)

		factory, err := New(style, Options{Out: &bytes.Buffer{}, Log: log.NewLogger(log.DiscardHandler())})
		require.NoError(t, err)
		assert.NotNil(t, factory(types.NewRunState(nil, types.FlakyRun)))
	}
	_, err := ParseStyle("fancy")
	require.Error(t, err)
	_, err = New("fancy", Options{})
	require.Error(t, err)
}

func TestEscapeCommand(t *testing.T) {
	assert.Equal(t, `node --flag "a b.js"`, EscapeCommand([]string{"node", "--flag", "a b.js"}))
	assert.Equal(t, "", EscapeCommand(nil))
}

func TestVerboseIndicator(t *testing.T) {
	pass, fail, crash := testCase("test-a"), testCase("test-b"), testCase("test-c")
	fail.Negative = true
	state := types.NewRunState([]*types.TestCase{pass, fail, crash}, types.FlakyRun)
	p, buf := newIndicator(t, StyleVerbose, state, Options{})

	p.Starting()
	record(state, p, output(pass, types.CommandOutput{}))
	record(state, p, output(fail, types.CommandOutput{Stdout: "out\n", Stderr: "err\n"}))
	record(state, p, output(crash, types.CommandOutput{ExitCode: -11}))
	p.Done()

	want := strings.Join([]string{
		"Running 3 tests",
		"Starting release parallel/test-a...",
		"Done running release parallel/test-a: pass",
		"Starting release parallel/test-b...",
		"Done running release parallel/test-b: FAIL",
		"Starting release parallel/test-c...",
		"Done running release parallel/test-c: CRASH",
		"",
		"=== release parallel/test-b [negative] ===",
		"Path: parallel/test-b",
		"--- stderr ---",
		"err",
		"--- stdout ---",
		"out",
		"Command: out/Release/node /repo/test/parallel/test-b.js",
		"=== release parallel/test-c ===",
		"Path: parallel/test-c",
		"Command: out/Release/node /repo/test/parallel/test-c.js",
		"--- CRASHED (Signal: 11) ---",
		"",
		"===",
		"=== 2 tests failed",
		"=== 1 tests CRASHED",
		"===",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestSimpleSummaryAllPassed(t *testing.T) {
	tc := testCase("test-a")
	state := types.NewRunState([]*types.TestCase{tc}, types.FlakyRun)
	p, buf := newIndicator(t, StyleDots, state, Options{})

	p.Starting()
	record(state, p, output(tc, types.CommandOutput{}))
	p.Done()

	assert.Equal(t, "Running 1 tests\n.\n===\n=== All tests succeeded\n===\n", buf.String())
}

func TestDotsIndicator(t *testing.T) {
	var cases []*types.TestCase
	for i := 0; i < 53; i++ {
		cases = append(cases, testCase("test"))
	}
	state := types.NewRunState(cases, types.FlakyRun)
	p, buf := newIndicator(t, StyleDots, state, Options{})

	for i, tc := range cases {
		out := types.CommandOutput{}
		switch i {
		case 50:
			out.ExitCode = 1
		case 51:
			out.TimedOut = true
			out.ExitCode = -15
		case 52:
			out.ExitCode = -6
		}
		record(state, p, output(tc, out))
	}

	assert.Equal(t, strings.Repeat(".", 50)+"\nFTC", buf.String())
}

func TestMonoIndicator(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))
	a, b := testCase("test-a"), testCase("test-b")
	state := types.NewRunState([]*types.TestCase{a, b}, types.FlakyRun)
	p, buf := newIndicator(t, StyleMono, state, Options{Clock: clk, Width: 78})

	p.Starting()
	clk.Increment(65 * time.Second)
	record(state, p, output(a, types.CommandOutput{}))
	first := "[01:05|%   0|+   0|-   0]: release parallel/test-a"
	assert.Equal(t, "\r\r"+first, buf.String())

	buf.Reset()
	record(state, p, output(b, types.CommandOutput{ExitCode: 1, Stdout: "boom\n"}))
	second := "[01:05|%  50|+   1|-   0]: release parallel/test-b"
	assert.Equal(t, strings.Join([]string{
		"\r" + strings.Repeat(" ", len(first)) + "\r" + second +
			"\r" + strings.Repeat(" ", len(second)) + "\r=== release parallel/test-b ===",
		"Path: parallel/test-b",
		"boom",
		"Command: out/Release/node /repo/test/parallel/test-b.js",
		"",
	}, "\n"), buf.String())

	buf.Reset()
	p.Done()
	assert.True(t, strings.HasSuffix(buf.String(), "[01:05|% 100|+   1|-   1]: Done\n"))
}

func TestCompactTruncation(t *testing.T) {
	tc := testCase("test-" + strings.Repeat("x", 100))
	state := types.NewRunState([]*types.TestCase{tc}, types.FlakyRun)
	p, buf := newIndicator(t, StyleMono, state, Options{Width: 40})

	p.AboutToRun(tc)
	status := strings.TrimLeft(buf.String(), "\r")
	assert.Len(t, status, 40)
	assert.True(t, strings.HasSuffix(status, "..."))
}

func TestColorIndicator(t *testing.T) {
	text.EnableColors()
	a := testCase("test-a")
	state := types.NewRunState([]*types.TestCase{a}, types.FlakyRun)
	p, buf := newIndicator(t, StyleColor, state, Options{Width: 78})

	record(state, p, output(a, types.CommandOutput{ExitCode: 1, Stderr: "bad"}))
	got := buf.String()
	assert.Contains(t, got, "\033[1K\r")
	assert.Contains(t, got, "\x1b[34m%   0\x1b[0m")
	assert.Contains(t, got, "\x1b[31mbad\x1b[0m")
}

func TestTapIndicator(t *testing.T) {
	pass := testCase("test-pass")
	pass.Duration = 1005 * time.Millisecond
	fail := testCase("test-fail")
	skip := testCase("test-skip")
	flaky := testCase("test-flaky", types.OutcomePass, types.OutcomeFlaky)
	timeout := testCase("test-timeout")
	crash := testCase("test-crash")
	cases := []*types.TestCase{pass, fail, skip, flaky, timeout, crash}
	state := types.NewRunState(cases, types.FlakyDontCare)

	var logFile bytes.Buffer
	p, buf := newIndicator(t, StyleTap, state, Options{LogFile: &logFile})

	p.Starting()
	record(state, p, output(pass, types.CommandOutput{}))
	record(state, p, output(fail, types.CommandOutput{ExitCode: 1, Stdout: "assertion\n", Stderr: "at x\n"}))
	record(state, p, output(skip, types.CommandOutput{Stdout: "1..0 # Skipped: no crypto\n"}))
	record(state, p, output(flaky, types.CommandOutput{ExitCode: 1}))
	record(state, p, output(timeout, types.CommandOutput{ExitCode: -15, TimedOut: true, Stdout: "partial\n"}))
	record(state, p, output(crash, types.CommandOutput{ExitCode: -11}))
	p.Done()

	want := strings.Join([]string{
		"TAP version 13",
		"1..6",
		"ok 1 parallel/test-pass",
		"  ---",
		"  duration_ms: 1.005",
		"  ...",
		"not ok 2 parallel/test-fail",
		"  ---",
		"  duration_ms: 0.000",
		"  severity: fail",
		"  exitcode: 1",
		"  stack: |-",
		"    assertion",
		"    at x",
		"  ...",
		"ok 3 parallel/test-skip # skip no crypto",
		"  ---",
		"  duration_ms: 0.000",
		"  ...",
		"not ok 4 parallel/test-flaky # TODO : Fix flaky test",
		"  ---",
		"  duration_ms: 0.000",
		"  severity: flaky",
		"  exitcode: 1",
		"  stack: |-",
		"    ",
		"  ...",
		"not ok 5 parallel/test-timeout",
		"  ---",
		"  duration_ms: 0.000",
		"  severity: fail",
		"  exitcode: -15",
		"  stack: |-",
		"    timeout",
		"    partial",
		"  ...",
		"not ok 6 parallel/test-crash",
		"  ---",
		"  duration_ms: 0.000",
		"  severity: crashed",
		"  exitcode: -11",
		"  stack: |-",
		"    ",
		"  ...",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
	assert.Equal(t, want, logFile.String())
}

func TestTapFlakyPassAndDiagnostic(t *testing.T) {
	tc := testCase("test-net", types.OutcomePass, types.OutcomeFlaky)
	state := types.NewRunState([]*types.TestCase{tc}, types.FlakyRun)
	p, buf := newIndicator(t, StyleTap, state, Options{})

	out := output(tc, types.CommandOutput{})
	out.Diagnostic = []string{"ECONNREFUSED received, test retried"}
	record(state, p, out)

	assert.Equal(t, strings.Join([]string{
		"ok 1 parallel/test-net # TODO : Fix flaky test",
		"  ---",
		"  duration_ms: 0.000",
		"  severity: ok",
		"  stack: |-",
		"    ECONNREFUSED received, test retried",
		"  ...",
		"",
	}, "\n"), buf.String())
}

func TestDeoptsIndicator(t *testing.T) {
	clean, deopt := testCase("test-clean"), testCase("test-deopt")
	state := types.NewRunState([]*types.TestCase{clean, deopt}, types.FlakyRun)
	p, buf := newIndicator(t, StyleDeopts, state, Options{})

	p.Starting()
	record(state, p, output(clean, types.CommandOutput{Stdout: "[optimizing foo]\n"}))
	record(state, p, output(deopt, types.CommandOutput{ExitCode: 0, Stdout: strings.Join([]string{
		"[aborted optimizing 0x1 <JSFunction f> because: Function is being debugged]",
		"[disabled optimization for g, reason: eval]",
		"[aborted optimizing h]",
	}, "\n")}))
	p.Done()

	assert.Equal(t, strings.Join([]string{
		"==== parallel/test-deopt ====",
		"  [aborted optimizing 0x1 <JSFunction f> because: Function is being debugged]",
		"  [disabled optimization for g, reason: eval]",
		"",
	}, "\n"), buf.String())
	require.Len(t, state.Failed, 1)
	assert.Same(t, deopt, state.Failed[0].Test)
}

func TestDeoptsIndicatorCountsFailedOutputOnce(t *testing.T) {
	tc := testCase("test-deopt")
	state := types.NewRunState([]*types.TestCase{tc}, types.FlakyRun)
	p, buf := newIndicator(t, StyleDeopts, state, Options{})

	p.Starting()
	record(state, p, output(tc, types.CommandOutput{ExitCode: 1, Stdout: "[aborted optimizing f]"}))
	p.Done()

	assert.Contains(t, buf.String(), "==== parallel/test-deopt ====")
	require.Len(t, state.Failed, 1)
	assert.Same(t, tc, state.Failed[0].Test)
}

func TestActionsIndicator(t *testing.T) {
	tc := testCase("test-fs")
	state := types.NewRunState([]*types.TestCase{tc}, types.FlakyRun)
	p, buf := newIndicator(t, StyleActions, state, Options{})

	stderr := "AssertionError: 100% wrong\n    at Object.<anonymous> (/repo/test/parallel/test-fs.js:12:3)\n"
	p.Starting()
	record(state, p, output(tc, types.CommandOutput{ExitCode: 1, Stderr: stderr}))
	p.Done()

	got := buf.String()
	assert.Contains(t, got, "Running 1 tests\nF\n")
	assert.Contains(t, got, "::error file=test/parallel/test-fs.js,line=12,col=3::AssertionError: 100%25 wrong%0A    at Object.<anonymous> (/repo/test/parallel/test-fs.js:12:3)%0A\n")
	assert.Contains(t, got, "=== 1 tests failed")
}

func TestStackPosition(t *testing.T) {
	line, col := stackPosition("no frames here", "/repo/test/a.js")
	assert.Zero(t, line)
	assert.Zero(t, col)

	line, col = stackPosition("    at /repo/test/a.js:4:9\n", "/repo/test/a.js")
	assert.Equal(t, 4, line)
	assert.Equal(t, 9, col)

	assert.Equal(t, "/elsewhere/a.js", relativeFile("/elsewhere/a.js", "/repo/test"))
	assert.Equal(t, "x.js", relativeFile("x.js", ""))
}

func TestCrashLabel(t *testing.T) {
	assert.Equal(t, "CRASHED (Signal: 6)", crashLabel(-6, false))
	assert.Equal(t, "CRASHED", crashLabel(-1073741819, true))
}
