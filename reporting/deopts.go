package reporting

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// deoptsIndicator ignores exit codes and reports optimizer bailouts found in
// stdout. A test with bailouts is added to the failed list.
type deoptsIndicator struct {
	state    *types.RunState
	out      io.Writer
	testRoot string
}

func (d *deoptsIndicator) Starting()                  {}
func (d *deoptsIndicator) AboutToRun(*types.TestCase) {}
func (d *deoptsIndicator) Done()                      {}

func (d *deoptsIndicator) HasRun(out *types.TestOutput) {
	printed := false
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimSpace(out.Output.Stdout)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !isDeopt(line) {
			continue
		}
		if !printed {
			printed = true
			fmt.Fprintf(d.out, "==== %s ====\n", testName(out.Command, d.testRoot))
			// an unexpected exit was already counted by the scheduler
			if !slices.Contains(d.state.Failed, out) {
				d.state.Failed = append(d.state.Failed, out)
			}
		}
		fmt.Fprintf(d.out, "  %s\n", line)
	}
}

func isDeopt(line string) bool {
	if !strings.HasPrefix(line, "[aborted optimiz") && !strings.HasPrefix(line, "[disabled optimiz") {
		return false
	}
	return strings.Contains(line, "because:") || strings.Contains(line, "reason:")
}
