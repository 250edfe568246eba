package types

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"
)

// FlakyMode decides how unexpected results of FLAKY tests are treated
type FlakyMode string

const (
	FlakyRun          FlakyMode = "run"
	FlakySkip         FlakyMode = "skip"
	FlakyDontCare     FlakyMode = "dontcare"
	FlakyKeepRetrying FlakyMode = "keep_retrying"
)

// FlakyModes lists the accepted values, in help-text order
var FlakyModes = []FlakyMode{FlakyRun, FlakySkip, FlakyDontCare, FlakyKeepRetrying}

// ParseFlakyMode validates a flaky mode name
func ParseFlakyMode(s string) (FlakyMode, error) {
	m := FlakyMode(s)
	if !slices.Contains(FlakyModes, m) {
		return "", fmt.Errorf("unknown flaky-tests mode %s", s)
	}
	return m, nil
}

// TestCase is one runnable unit
type TestCase struct {
	Path    []string // hierarchical name, e.g. ["parallel", "test-assert"]
	File    string   // source file on disk
	Suite   string   // suite the case was listed from, used for timeout scaling
	Arch    string
	Mode    string
	Command []string

	Outcomes         OutcomeSet // set by classification
	Parallel         bool
	Negative         bool
	DisableCoreFiles bool

	// Written by the worker currently running the case
	Started  bool
	Duration time.Duration
	SerialID int
	ThreadID int
}

// Name returns the slash-joined path
func (t *TestCase) Name() string {
	return strings.Join(t.Path, "/")
}

// Label returns the name prefixed with the build mode
func (t *TestCase) Label() string {
	return fmt.Sprintf("%s %s", t.Mode, t.Name())
}

// Clone returns an independent copy of the case, used when a run repeats the case list
func (t *TestCase) Clone() *TestCase {
	c := *t
	c.Path = slices.Clone(t.Path)
	c.Command = slices.Clone(t.Command)
	if t.Outcomes != nil {
		c.Outcomes = t.Outcomes.Clone()
	}
	return &c
}

// CommandOutput is the raw result of one process execution
type CommandOutput struct {
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
}

// TestOutput is produced once per execution attempt
type TestOutput struct {
	Test       *TestCase
	Command    []string
	Output     CommandOutput
	Diagnostic []string
}

// IsCrash applies the platform crash rules to a command output.
// On Windows a crash is an exit code with the high bit set and an empty facility field.
// Elsewhere a signalled (negative) exit code is a crash unless the process was killed for timing out.
func IsCrash(out CommandOutput, windows bool) bool {
	if windows {
		code := uint32(out.ExitCode)
		return code&0x80000000 != 0 && code&0x3FFFFF00 == 0
	}
	if out.TimedOut {
		return false
	}
	return out.ExitCode < 0
}

// HasCrashed reports whether the process crashed on the running platform
func (o *TestOutput) HasCrashed() bool {
	return IsCrash(o.Output, runtime.GOOS == "windows")
}

// HasTimedOut reports whether the process was killed for exceeding its timeout
func (o *TestOutput) HasTimedOut() bool {
	return o.Output.TimedOut
}

// HasFailed reports a failing exit code, inverted for negative tests
func (o *TestOutput) HasFailed() bool {
	failed := o.Output.ExitCode != 0
	if o.Test.Negative {
		return !failed
	}
	return failed
}

// Outcome returns the single actual outcome: crash, then timeout, then fail, then pass
func (o *TestOutput) Outcome() Outcome {
	switch {
	case o.HasCrashed():
		return OutcomeCrash
	case o.HasTimedOut():
		return OutcomeTimeout
	case o.HasFailed():
		return OutcomeFail
	default:
		return OutcomePass
	}
}

// UnexpectedOutput reports whether the actual outcome is outside the expected set
func (o *TestOutput) UnexpectedOutput() bool {
	return !o.Test.Outcomes.Has(o.Outcome())
}

// RunState holds the counters of one scheduler run.
// It is mutated only under the scheduler lock, and progress indicators read it from their callbacks.
type RunState struct {
	Cases       []*TestCase
	FlakyMode   FlakyMode
	Total       int
	Remaining   int
	Succeeded   int
	Crashed     int
	Failed      []*TestOutput
	FlakyFailed []*TestOutput
}

// NewRunState creates the state for a run over cases
func NewRunState(cases []*TestCase, mode FlakyMode) *RunState {
	return &RunState{
		Cases:     cases,
		FlakyMode: mode,
		Total:     len(cases),
		Remaining: len(cases),
	}
}
