package testrunner

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// slowestShown bounds the --time table
const slowestShown = 20

// selectionReport counts what a run is about to do
type selectionReport struct {
	Total   int
	Skipped int
	Pass    int
	FailOK  int
	Fail    int
}

func newSelectionReport(sel *selection) selectionReport {
	failOK := types.NewOutcomeSet(types.OutcomeFail, types.OutcomeOkay)
	fail := types.NewOutcomeSet(types.OutcomeFail)
	r := selectionReport{Total: len(sel.all), Skipped: len(sel.all) - len(sel.toRun)}
	for _, tc := range sel.toRun {
		switch {
		case tc.Outcomes.Has(types.OutcomePass):
			r.Pass++
		case tc.Outcomes.Equal(failOK):
			r.FailOK++
		case tc.Outcomes.Equal(fail):
			r.Fail++
		}
	}
	return r
}

// printReport renders the expectations of the selected cases
func printReport(w io.Writer, r selectionReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Total: %d tests", r.Total))
	t.AppendHeader(table.Row{"Expectation", "Tests"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Tests", Align: text.AlignRight},
	})
	t.AppendRows([]table.Row{
		{"will be skipped", r.Skipped},
		{"expected to pass", r.Pass},
		{"expected to fail that we won't fix", r.FailOK},
		{"expected to fail that we should fix", r.Fail},
	})
	t.Render()
}

// suiteStats aggregates one suite's cases for the results table
type suiteStats struct {
	Name    string
	Tests   int
	NotRun  int
	Failed  int
	Flaky   int
	Crashed int
}

func (s suiteStats) Passed() int {
	return s.Tests - s.NotRun - s.Failed - s.Flaky
}

func (s suiteStats) status() string {
	switch {
	case s.Failed > 0:
		return "fail"
	case s.NotRun > 0:
		return "incomplete"
	default:
		return "pass"
	}
}

// collectSuiteStats groups a run's cases by suite, in first-seen order
func collectSuiteStats(state *types.RunState, windows bool) []*suiteStats {
	var order []*suiteStats
	bySuite := make(map[string]*suiteStats)
	get := func(name string) *suiteStats {
		s, ok := bySuite[name]
		if !ok {
			s = &suiteStats{Name: name}
			bySuite[name] = s
			order = append(order, s)
		}
		return s
	}
	for _, tc := range state.Cases {
		s := get(tc.Suite)
		s.Tests++
		if !tc.Started {
			s.NotRun++
		}
	}
	for _, out := range state.Failed {
		s := get(out.Test.Suite)
		s.Failed++
		if types.IsCrash(out.Output, windows) {
			s.Crashed++
		}
	}
	for _, out := range state.FlakyFailed {
		get(out.Test.Suite).Flaky++
	}
	return order
}

// printResultsTable prints a per-suite summary of a completed run
func printResultsTable(w io.Writer, result *runner.Result, windows bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(result.Duration)))
	t.AppendHeader(table.Row{"Suite", "Tests", "Passed", "Failed", "Flaky", "Crashed", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Flaky", Align: text.AlignRight},
		{Name: "Crashed", Align: text.AlignRight},
	})

	var total suiteStats
	for _, s := range collectSuiteStats(result.State, windows) {
		t.AppendRow(table.Row{s.Name, s.Tests, s.Passed(), s.Failed, s.Flaky, s.Crashed, getResultString(s.status())})
		total.Tests += s.Tests
		total.NotRun += s.NotRun
		total.Failed += s.Failed
		total.Flaky += s.Flaky
		total.Crashed += s.Crashed
	}

	if total.status() == "pass" {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.AppendFooter(table.Row{"TOTAL", total.Tests, total.Passed(), total.Failed, total.Flaky, total.Crashed, getResultString(total.status())})
	t.Render()
}

// printTimes writes the total time and the slowest cases
func printTimes(w io.Writer, cases []*types.TestCase, duration time.Duration) {
	fmt.Fprintf(w, "--- Total time: %s ---\n", formatTime(duration))

	var timed []*types.TestCase
	for _, tc := range cases {
		if tc.Started {
			timed = append(timed, tc)
		}
	}
	slices.SortStableFunc(timed, func(a, b *types.TestCase) int {
		return cmp.Compare(b.Duration, a.Duration)
	})
	if len(timed) > slowestShown {
		timed = timed[:slowestShown]
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Duration", "Test"})
	for i, tc := range timed {
		t.AppendRow(table.Row{i + 1, formatTime(tc.Duration), tc.Label()})
	}
	t.Render()
}

// formatTime renders d as MM:SS.mmm
func formatTime(d time.Duration) string {
	ms := d.Round(time.Millisecond).Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000%60, ms/1000%60, ms%1000)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func getResultString(status string) string {
	switch status {
	case "pass":
		return "✓ pass"
	case "fail":
		return "✗ fail"
	default:
		return "- " + status
	}
}
