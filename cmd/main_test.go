package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"

	testrunner "github.com/ethereum-optimism/infra/op-testrunner"
	"github.com/ethereum-optimism/infra/op-testrunner/exitcodes"
)

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, exitcodes.Success},
		{"test failure", testrunner.NewTestFailureError("2 tests failed"), exitcodes.TestFailure},
		{"wrapped test failure", errors.Join(fmt.Errorf("failed to start: %w", testrunner.NewTestFailureError("interrupted")), errors.New("interrupted")), exitcodes.TestFailure},
		{"runtime error", testrunner.NewRuntimeError(testrunner.StageSelection, errors.New("bad status file")), exitcodes.RuntimeErr},
		{"wrapped runtime error", fmt.Errorf("failed to setup: %w", testrunner.NewRuntimeError(testrunner.StageConfig, errors.New("bad flag"))), exitcodes.RuntimeErr},
		{"explicit exit coder", cli.Exit("boom", 3), 3},
		{"unclassified", errors.New("flag provided but not defined"), exitcodes.RuntimeErr},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, exitCode(tc.err))
		})
	}
}

func TestNewApp(t *testing.T) {
	app := newApp()
	assert.Equal(t, "op-testrunner", app.Name)
	assert.NotEmpty(t, app.Flags)
	assert.NotNil(t, app.ExitErrHandler)
}
