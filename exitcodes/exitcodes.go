// Package exitcodes defines the exit codes used by op-testrunner.
package exitcodes

// Exit code constants used by op-testrunner:
//
// * Success (0): every test ran with an expected outcome
// * TestFailure (1): an unexpected outcome, an interrupted run or an empty selection
// * RuntimeErr (2): bad configuration, unreadable status files or a worker fault
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
