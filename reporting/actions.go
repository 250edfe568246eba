package reporting

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// actionsIndicator behaves like dots while running and emits one CI error
// annotation per failure when the run is done
type actionsIndicator struct {
	dotsIndicator
	testRoot string
}

func (a *actionsIndicator) Done() {
	fmt.Fprintln(a.out)
	for _, failed := range a.state.Failed {
		fmt.Fprintln(a.out, a.annotation(failed))
	}
	writeSummary(a.out, a.state)
}

func (a *actionsIndicator) annotation(out *types.TestOutput) string {
	traceback := out.Output.Stdout + out.Output.Stderr
	line, col := stackPosition(traceback, out.Test.File)
	return fmt.Sprintf("::error file=%s,line=%d,col=%d::%s",
		relativeFile(out.Test.File, a.testRoot), line, col, escapeAnnotation(traceback))
}

// stackPosition finds the line and column of the first stack frame in file
func stackPosition(traceback, file string) (int, int) {
	if file == "" {
		return 0, 0
	}
	frame := regexp.MustCompile(` +at .*\(?` + regexp.QuoteMeta(file) + `:([0-9]+):([0-9]+)`)
	m := frame.FindStringSubmatch(traceback)
	if m == nil {
		return 0, 0
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	return line, col
}

// relativeFile makes file relative to the repository holding the test root
func relativeFile(file, testRoot string) string {
	if testRoot == "" {
		return file
	}
	rel, err := filepath.Rel(filepath.Dir(filepath.Clean(testRoot)), file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return filepath.ToSlash(rel)
}

var annotationEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")

func escapeAnnotation(s string) string {
	return annotationEscaper.Replace(s)
}
