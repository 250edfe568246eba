package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// Stop reasons of the repeat driver
const (
	StopTargetReached       = "target reached"
	StopIterationsExhausted = "iterations exhausted"
)

// RepeatConfig configures the repeat-until-n-failures driver
type RepeatConfig struct {
	Log            log.Logger
	Out            io.Writer
	TargetFailures int
	MaxIterations  int
	// Scheduler is the template for every iteration; each iteration gets a
	// fresh Scheduler and progress indicator built from it
	Scheduler Config
}

// RepeatCaseResult aggregates one case's failures over all iterations
type RepeatCaseResult struct {
	Label    string
	Runs     int
	Failures int
	PassRate float64
}

// RepeatResult is the outcome of a repeat-until-n-failures run
type RepeatResult struct {
	Iterations    int
	TotalFailures int
	StopReason    string
	// Failures holds every unexpected output of every iteration, in order
	Failures    []*types.TestOutput
	Cases       []RepeatCaseResult
	Interrupted bool
	// AllPassed is true only if no iteration produced an unexpected output
	AllPassed bool
}

// RepeatUntilFailures reruns cases until TargetFailures failures have
// accumulated or MaxIterations iterations have run
func RepeatUntilFailures(ctx context.Context, cfg RepeatConfig, cases []*types.TestCase, tasks int) (*RepeatResult, error) {
	if cfg.TargetFailures < 1 {
		return nil, fmt.Errorf("target failures must be positive, got %d", cfg.TargetFailures)
	}
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	logger := cfg.Log.New("component", "repeat")
	logger.Info("Starting repeat-until-failures", "target", cfg.TargetFailures, "maxIterations", cfg.MaxIterations)

	result := &RepeatResult{StopReason: StopIterationsExhausted}
	runs := make(map[string]int)
	failures := make(map[string]int)

	for i := 1; i <= cfg.MaxIterations; i++ {
		sched, err := NewScheduler(cfg.Scheduler)
		if err != nil {
			return nil, err
		}
		iter, err := sched.Run(ctx, cases, tasks)
		if err != nil {
			return result, fmt.Errorf("iteration %d: %w", i, err)
		}
		result.Iterations = i

		iterFailures := len(iter.State.Failed)
		result.TotalFailures += iterFailures
		result.Failures = append(result.Failures, iter.State.Failed...)
		for _, tc := range cases {
			runs[tc.Label()]++
		}
		for _, out := range iter.State.Failed {
			failures[out.Test.Label()]++
		}

		fmt.Fprintf(cfg.Out, "Iteration %d/%d: %d failures (total %d/%d)\n",
			i, cfg.MaxIterations, iterFailures, result.TotalFailures, cfg.TargetFailures)
		logger.Debug("Iteration complete", "iteration", i, "failures", iterFailures, "total", result.TotalFailures)

		if iter.Interrupted {
			result.Interrupted = true
			break
		}
		if result.TotalFailures >= cfg.TargetFailures {
			result.StopReason = StopTargetReached
			break
		}
	}

	for label, n := range runs {
		failed := failures[label]
		result.Cases = append(result.Cases, RepeatCaseResult{
			Label:    label,
			Runs:     n,
			Failures: failed,
			PassRate: float64(n-failed) / float64(n) * 100,
		})
	}
	sort.Slice(result.Cases, func(i, j int) bool {
		if result.Cases[i].Failures != result.Cases[j].Failures {
			return result.Cases[i].Failures > result.Cases[j].Failures
		}
		return result.Cases[i].Label < result.Cases[j].Label
	})
	result.AllPassed = result.TotalFailures == 0

	logger.Info("Repeat-until-failures finished", "iterations", result.Iterations,
		"failures", result.TotalFailures, "reason", result.StopReason)
	return result, nil
}

// ErrNoIterations is returned when formatting a result that never ran
var ErrNoIterations = errors.New("no iterations ran")

// FormatRepeatResult renders the aggregate table of cases that failed at least once
func FormatRepeatResult(r *RepeatResult) (string, error) {
	if r == nil || r.Iterations == 0 {
		return "", ErrNoIterations
	}
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(fmt.Sprintf("Repeat until %s: %d iterations", r.StopReason, r.Iterations))
	t.AppendHeader(table.Row{"Test", "Runs", "Failures", "Pass Rate"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Runs", Align: text.AlignRight},
		{Name: "Failures", Align: text.AlignRight},
		{Name: "Pass Rate", Align: text.AlignRight},
	})
	for _, c := range r.Cases {
		if c.Failures == 0 {
			continue
		}
		t.AppendRow(table.Row{c.Label, c.Runs, c.Failures, fmt.Sprintf("%.1f%%", c.PassRate)})
	}

	if r.AllPassed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.AppendFooter(table.Row{"TOTAL", "", r.TotalFailures, ""})

	t.Render()
	return buf.String(), nil
}
