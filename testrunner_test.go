//go:build unix

package testrunner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testrunner/logging"
)

// makeRunRoot creates a parallel suite of shell scripts, one of which fails
func makeRunRoot(t *testing.T, failing bool) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "parallel", "testcfg.yaml"), "parallel: true\n")
	writeFile(t, filepath.Join(root, "parallel", "test-ok-one.js"), "exit 0\n")
	writeFile(t, filepath.Join(root, "parallel", "test-ok-two.js"), "exit 0\n")
	writeFile(t, filepath.Join(root, "sequential", "testcfg.yaml"), "parallel: false\n")
	if failing {
		writeFile(t, filepath.Join(root, "sequential", "test-broken.js"), "echo broken >&2\nexit 1\n")
	} else {
		writeFile(t, filepath.Join(root, "sequential", "test-serial.js"), "exit 0\n")
	}
	return root
}

func startRunner(t *testing.T, cfg *Config) (<-chan error, error) {
	t.Helper()
	done := make(chan error, 1)
	r, err := New(context.Background(), cfg, "test", func(err error) { done <- err })
	require.NoError(t, err)
	err = r.Start(context.Background())
	require.NoError(t, r.Stop(context.Background()))
	assert.True(t, r.Stopped())
	return done, err
}

func output(cfg *Config) string {
	return cfg.Out.(*bytes.Buffer).String()
}

func TestRunnerAllPass(t *testing.T) {
	cfg := testConfig(makeRunRoot(t, false))

	done, err := startRunner(t, cfg)
	require.NoError(t, err)

	out := output(cfg)
	assert.Contains(t, out, "Done running release parallel/test-ok-one: pass")
	assert.Contains(t, out, "Done running release sequential/test-serial: pass")
	assert.Contains(t, out, "=== All tests succeeded")
	assert.Contains(t, out, "Test Results")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown callback was not called")
	}
}

func TestRunnerFailure(t *testing.T) {
	cfg := testConfig(makeRunRoot(t, true))
	cfg.LogDir = t.TempDir()
	cfg.Time = true

	done, err := startRunner(t, cfg)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Contains(t, err.Error(), "1 tests failed")

	out := output(cfg)
	assert.Contains(t, out, "=== 1 tests failed")
	assert.Contains(t, out, "broken")
	assert.Contains(t, cfg.ErrOut.(*bytes.Buffer).String(), "--- Total time:")

	summaries, globErr := filepath.Glob(filepath.Join(cfg.LogDir, logging.RunDirectoryPrefix+"*", logging.SummaryFilename))
	require.NoError(t, globErr)
	require.Len(t, summaries, 1)
	summary, readErr := os.ReadFile(summaries[0])
	require.NoError(t, readErr)
	assert.Contains(t, string(summary), "release sequential/test-broken (fail)")

	select {
	case <-done:
		t.Fatal("shutdown callback called after a failed run")
	default:
	}
}

func TestRunnerExpectedFailurePasses(t *testing.T) {
	root := makeRunRoot(t, true)
	writeFile(t, filepath.Join(root, "sequential", "sequential.status"), "prefix sequential\ntest-broken: FAIL\n")
	cfg := testConfig(root)

	_, err := startRunner(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, output(cfg), "=== All tests succeeded")
}

func TestRunnerNoTests(t *testing.T) {
	cfg := testConfig(makeRunRoot(t, false))
	cfg.Args = []string{"doesnotexist"}
	cfg.Report = true

	_, err := startRunner(t, cfg)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Contains(t, output(cfg), "Total: 0 tests")
	assert.Contains(t, output(cfg), "No tests to run.")
}

func TestRunnerBadTestRoot(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))

	_, err := startRunner(t, cfg)
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestRunnerCat(t *testing.T) {
	cfg := testConfig(makeRunRoot(t, false))
	cfg.Args = []string{"sequential"}
	cfg.Cat = true

	_, err := startRunner(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, "--- begin source: release sequential/test-serial ---\nexit 0\n--- end source: release sequential/test-serial ---\n", output(cfg))
}

func TestRunnerRepeatUntilFailures(t *testing.T) {
	cfg := testConfig(makeRunRoot(t, true))
	cfg.Args = []string{"sequential"}
	cfg.RepeatUntil = &RepeatUntilSpec{TargetFailures: 2, MaxIterations: 5}

	_, err := startRunner(t, cfg)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))

	out := output(cfg)
	assert.Contains(t, out, "Iteration 2/5: 1 failures (total 2/2)")
	assert.Contains(t, out, "Stopped after 2 iterations: target reached (2 failures)")
	assert.NotContains(t, out, "Iteration 3/5")
}

func TestRunnerInterrupted(t *testing.T) {
	cfg := testConfig(makeRunRoot(t, false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(ctx, cfg, "test", func(error) {})
	require.NoError(t, err)
	err = r.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Contains(t, output(cfg), "Interrupted")
}
