package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCrash(t *testing.T) {
	tests := []struct {
		name    string
		out     CommandOutput
		windows bool
		want    bool
	}{
		{name: "clean exit", out: CommandOutput{ExitCode: 0}, want: false},
		{name: "plain failure", out: CommandOutput{ExitCode: 1}, want: false},
		{name: "sigterm without timeout", out: CommandOutput{ExitCode: -15}, want: true},
		{name: "sigterm after timeout", out: CommandOutput{ExitCode: -15, TimedOut: true}, want: false},
		{name: "sigsegv", out: CommandOutput{ExitCode: -11}, want: true},
		{name: "windows access violation", out: CommandOutput{ExitCode: int(int32(-1073741819))}, windows: true, want: true},
		{name: "windows unsigned access violation", out: CommandOutput{ExitCode: 0xC0000005}, windows: true, want: true},
		{name: "windows large application code", out: CommandOutput{ExitCode: 0xC0100005}, windows: true, want: false},
		{name: "windows ordinary failure", out: CommandOutput{ExitCode: 1}, windows: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCrash(tt.out, tt.windows))
		})
	}
}

func TestOutcomePrecedence(t *testing.T) {
	tc := &TestCase{Path: []string{"suite", "a"}, Mode: "release", Outcomes: NewOutcomeSet(OutcomePass)}

	timedOut := &TestOutput{Test: tc, Output: CommandOutput{ExitCode: -15, TimedOut: true}}
	assert.Equal(t, OutcomeTimeout, timedOut.Outcome())
	assert.True(t, timedOut.UnexpectedOutput())

	failed := &TestOutput{Test: tc, Output: CommandOutput{ExitCode: 1}}
	assert.Equal(t, OutcomeFail, failed.Outcome())

	passed := &TestOutput{Test: tc, Output: CommandOutput{ExitCode: 0}}
	assert.Equal(t, OutcomePass, passed.Outcome())
	assert.False(t, passed.UnexpectedOutput())
}

func TestNegativeTestInvertsFailure(t *testing.T) {
	tc := &TestCase{Path: []string{"message", "bad"}, Negative: true, Outcomes: NewOutcomeSet(OutcomePass)}

	succeeded := &TestOutput{Test: tc, Output: CommandOutput{ExitCode: 0}}
	assert.True(t, succeeded.HasFailed())
	assert.True(t, succeeded.UnexpectedOutput())

	failed := &TestOutput{Test: tc, Output: CommandOutput{ExitCode: 3}}
	assert.False(t, failed.HasFailed())
	assert.False(t, failed.UnexpectedOutput())
}

func TestLabelAndClone(t *testing.T) {
	tc := &TestCase{
		Path:     []string{"parallel", "test-assert"},
		Mode:     "debug",
		Command:  []string{"node", "test-assert.js"},
		Outcomes: NewOutcomeSet(OutcomePass),
	}
	assert.Equal(t, "parallel/test-assert", tc.Name())
	assert.Equal(t, "debug parallel/test-assert", tc.Label())

	c := tc.Clone()
	c.Path[0] = "sequential"
	c.Command[0] = "other"
	c.Outcomes.Add(OutcomeFlaky)
	assert.Equal(t, "parallel", tc.Path[0])
	assert.Equal(t, "node", tc.Command[0])
	assert.False(t, tc.Outcomes.Has(OutcomeFlaky))
}

func TestParseFlakyMode(t *testing.T) {
	for _, m := range FlakyModes {
		got, err := ParseFlakyMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseFlakyMode("sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flaky-tests mode sometimes")
}

func TestOutcomeSet(t *testing.T) {
	a := NewOutcomeSet(OutcomePass, OutcomeFail)
	b := NewOutcomeSet(OutcomeFail, OutcomeCrash)

	assert.True(t, a.Union(b).Equal(NewOutcomeSet(OutcomePass, OutcomeFail, OutcomeCrash)))
	assert.True(t, a.Intersect(b).Equal(NewOutcomeSet(OutcomeFail)))
	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(NewOutcomeSet(OutcomeSkip)))
	assert.Equal(t, "{fail, pass}", a.String())
	assert.Equal(t, []Outcome{OutcomeFail, OutcomePass}, a.Sorted())

	var empty OutcomeSet
	assert.False(t, empty.Has(OutcomePass))
	assert.Equal(t, 0, empty.Union(nil).Len())
}
