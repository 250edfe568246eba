package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// EscapeCommand joins a command line for display, quoting arguments with spaces
func EscapeCommand(command []string) string {
	parts := make([]string, 0, len(command))
	for _, part := range command {
		if strings.Contains(part, " ") {
			part = `"` + part + `"`
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// crashLabel describes a crashed exit code
func crashLabel(exitCode int, windows bool) string {
	if windows {
		return "CRASHED"
	}
	return fmt.Sprintf("CRASHED (Signal: %d)", -exitCode)
}

func writeFailureHeader(w io.Writer, tc *types.TestCase) {
	negative := ""
	if tc.Negative {
		negative = "[negative] "
	}
	fmt.Fprintf(w, "=== %s %s===\n", tc.Label(), negative)
	fmt.Fprintf(w, "Path: %s\n", strings.Join(tc.Path, "/"))
}

// writeFailureTrailer prints the command and the crash or timeout marker
func writeFailureTrailer(w io.Writer, out *types.TestOutput, windows bool) {
	fmt.Fprintf(w, "Command: %s\n", EscapeCommand(out.Command))
	if out.HasCrashed() {
		fmt.Fprintf(w, "--- %s ---\n", crashLabel(out.Output.ExitCode, windows))
	}
	if out.HasTimedOut() {
		fmt.Fprintln(w, "--- TIMEOUT ---")
	}
}

// writeSummary prints the closing banner of a run
func writeSummary(w io.Writer, state *types.RunState) {
	if len(state.Failed) == 0 {
		fmt.Fprintln(w, "===")
		fmt.Fprintln(w, "=== All tests succeeded")
		fmt.Fprintln(w, "===")
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "===")
	fmt.Fprintf(w, "=== %d tests failed\n", len(state.Failed))
	if state.Crashed > 0 {
		fmt.Fprintf(w, "=== %d tests CRASHED\n", state.Crashed)
	}
	fmt.Fprintln(w, "===")
}
