package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

func failingOutput(name string, out types.CommandOutput) *types.TestOutput {
	tc := &types.TestCase{
		Path:     []string{"parallel", name},
		Mode:     "release",
		Outcomes: types.NewOutcomeSet(types.OutcomePass),
		Command:  []string{"node", name + ".js"},
	}
	return &types.TestOutput{Test: tc, Command: tc.Command, Output: out}
}

func TestNewFileLogger(t *testing.T) {
	_, err := NewFileLogger("")
	require.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l, err := NewFileLogger(dir)
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "testrun-abc"), l.RunDir("abc"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "release_parallel_test-fs.log", FileName("release parallel/test-fs"))
	assert.Equal(t, "debug_a_b.c.log", FileName("debug a:b.c"))
}

func TestRecordFailure(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)

	out := failingOutput("test-fs", types.CommandOutput{
		ExitCode: 1,
		Stdout:   "\x1b[31mred text\x1b[0m\n",
		Stderr:   "Error: boom\n",
	})
	out.Diagnostic = []string{"ECONNREFUSED received, test retried"}
	require.NoError(t, l.RecordFailure("run1", out))
	require.NoError(t, l.RecordFailure("run1", out))

	files := l.Files("run1")
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(l.RunDir("run1"), "release_parallel_test-fs.log"), files[0])

	content, err := os.ReadFile(files[0])
	require.NoError(t, err)
	text := string(content)
	assert.Equal(t, 2, strings.Count(text, "=== release parallel/test-fs ==="))
	assert.Contains(t, text, "Outcome: fail (expected {pass})")
	assert.Contains(t, text, "--- stdout ---\nred text\n")
	assert.Contains(t, text, "--- stderr ---\nError: boom\n")
	assert.Contains(t, text, "--- diagnostic ---\nECONNREFUSED received, test retried\n")
	assert.NotContains(t, text, "\x1b[")
	assert.Empty(t, l.Files("other"))
}

func TestComplete(t *testing.T) {
	l, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)

	failed := failingOutput("test-a", types.CommandOutput{ExitCode: -11})
	flaky := failingOutput("test-b", types.CommandOutput{ExitCode: 1})
	state := types.NewRunState([]*types.TestCase{failed.Test, flaky.Test, {Path: []string{"parallel", "test-c"}}}, types.FlakyDontCare)
	state.Failed = []*types.TestOutput{failed}
	state.FlakyFailed = []*types.TestOutput{flaky}
	state.Crashed = 1
	state.Remaining = 1

	require.NoError(t, l.Complete(&runner.Result{RunID: "run2", State: state, Interrupted: true}))

	content, err := os.ReadFile(filepath.Join(l.RunDir("run2"), SummaryFilename))
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "Run ID: run2\n")
	assert.Contains(t, text, "Total: 3\n")
	assert.Contains(t, text, "Crashed: 1\n")
	assert.Contains(t, text, "Interrupted: 1 tests did not run\n")
	assert.Contains(t, text, "Failed tests:\n  release parallel/test-a (crash)\n")
	assert.Contains(t, text, "Flaky tests:\n  release parallel/test-b (fail)\n")
}
