package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// compactTemplates holds the styling differences between color and mono output
type compactTemplates struct {
	percent, passed, failed func(string) string
	stdout, stderr          func(string) string
	clearLine               func(lastWidth int) string
}

func plain(s string) string { return s }

var monoTemplates = compactTemplates{
	percent: plain,
	passed:  plain,
	failed:  plain,
	stdout:  plain,
	stderr:  plain,
	clearLine: func(lastWidth int) string {
		return "\r" + strings.Repeat(" ", lastWidth) + "\r"
	},
}

var colorTemplates = compactTemplates{
	percent: func(s string) string { return text.FgBlue.Sprint(s) },
	passed:  func(s string) string { return text.FgGreen.Sprint(s) },
	failed:  func(s string) string { return text.FgRed.Sprint(s) },
	stdout:  func(s string) string { return text.Bold.Sprint(s) },
	stderr:  func(s string) string { return text.FgRed.Sprint(s) },
	clearLine: func(int) string {
		return "\033[1K\r"
	},
}

// compactIndicator redraws a single status line and prints failures as they happen
type compactIndicator struct {
	state     *types.RunState
	out       io.Writer
	clock     clock.Clock
	templates compactTemplates
	width     int
	windows   bool

	start     time.Time
	lastWidth int
}

func newCompact(state *types.RunState, opts Options, templates compactTemplates) *compactIndicator {
	return &compactIndicator{
		state:     state,
		out:       opts.Out,
		clock:     opts.Clock,
		templates: templates,
		width:     opts.Width,
		windows:   opts.Windows,
		start:     opts.Clock.Now(),
	}
}

func (c *compactIndicator) Starting() {}

func (c *compactIndicator) Done() {
	c.printProgress("Done")
	fmt.Fprintln(c.out)
}

func (c *compactIndicator) AboutToRun(tc *types.TestCase) {
	c.printProgress(tc.Label())
}

func (c *compactIndicator) HasRun(out *types.TestOutput) {
	if !out.UnexpectedOutput() {
		return
	}
	fmt.Fprint(c.out, c.templates.clearLine(c.lastWidth))
	writeFailureHeader(c.out, out.Test)
	if stdout := strings.TrimSpace(out.Output.Stdout); stdout != "" {
		fmt.Fprintln(c.out, c.templates.stdout(stdout))
	}
	if stderr := strings.TrimSpace(out.Output.Stderr); stderr != "" {
		fmt.Fprintln(c.out, c.templates.stderr(stderr))
	}
	writeFailureTrailer(c.out, out, c.windows)
}

func (c *compactIndicator) statusLine(name string) string {
	elapsed := int(c.clock.Since(c.start).Seconds())
	percent := 0
	if c.state.Total > 0 {
		percent = (c.state.Total - c.state.Remaining) * 100 / c.state.Total
	}
	prefix := fmt.Sprintf("[%02d:%02d|%s|%s|%s]: ",
		elapsed/60, elapsed%60,
		c.templates.percent(fmt.Sprintf("%%% 4d", percent)),
		c.templates.passed(fmt.Sprintf("+% 4d", c.state.Succeeded)),
		c.templates.failed(fmt.Sprintf("-% 4d", len(c.state.Failed))),
	)
	room := c.width - runewidth.StringWidth(stripansi.Strip(prefix))
	if room < 4 {
		room = 4
	}
	return prefix + runewidth.Truncate(name, room, "...")
}

func (c *compactIndicator) printProgress(name string) {
	fmt.Fprint(c.out, c.templates.clearLine(c.lastWidth))
	status := c.statusLine(name)
	c.lastWidth = runewidth.StringWidth(stripansi.Strip(status))
	fmt.Fprint(c.out, status)
}
