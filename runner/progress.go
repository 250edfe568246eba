package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// ProgressIndicator receives scheduler events. The scheduler calls it only
// while holding its lock, so implementations need no synchronisation of
// their own and must not call back into the scheduler.
type ProgressIndicator interface {
	Starting()
	AboutToRun(tc *types.TestCase)
	HasRun(out *types.TestOutput)
	Done()
}

// IndicatorFactory creates the indicator for one scheduler run over state
type IndicatorFactory func(state *types.RunState) ProgressIndicator

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator(*types.RunState) ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) Starting()                  {}
func (n *noOpProgressIndicator) AboutToRun(*types.TestCase) {}
func (n *noOpProgressIndicator) HasRun(*types.TestOutput)   {}
func (n *noOpProgressIndicator) Done()                      {}

// multiProgressIndicator fans events out to several indicators in order
type multiProgressIndicator []ProgressIndicator

// Multi combines factories so every indicator sees every event
func Multi(factories ...IndicatorFactory) IndicatorFactory {
	return func(state *types.RunState) ProgressIndicator {
		m := make(multiProgressIndicator, 0, len(factories))
		for _, f := range factories {
			m = append(m, f(state))
		}
		return m
	}
}

func (m multiProgressIndicator) Starting() {
	for _, p := range m {
		p.Starting()
	}
}

func (m multiProgressIndicator) AboutToRun(tc *types.TestCase) {
	for _, p := range m {
		p.AboutToRun(tc)
	}
}

func (m multiProgressIndicator) HasRun(out *types.TestOutput) {
	for _, p := range m {
		p.HasRun(out)
	}
}

func (m multiProgressIndicator) Done() {
	for _, p := range m {
		p.Done()
	}
}

// logProgressIndicator reports through the structured logger and emits a
// periodic progress summary while the run is in flight
type logProgressIndicator struct {
	logger   log.Logger
	clock    clock.Clock
	interval time.Duration
	state    *types.RunState

	mu           sync.Mutex // guards runningTests and the periodic reporter's reads
	runningTests map[string]time.Time
	startTime    time.Time
	stopCh       chan struct{}
	stopped      chan struct{}
}

// NewLogProgressIndicator returns a factory for log-based indicators
func NewLogProgressIndicator(logger log.Logger, clk clock.Clock, updateInterval time.Duration) IndicatorFactory {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return func(state *types.RunState) ProgressIndicator {
		return &logProgressIndicator{
			logger:       logger,
			clock:        clk,
			interval:     updateInterval,
			state:        state,
			runningTests: make(map[string]time.Time),
		}
	}
}

func (c *logProgressIndicator) Starting() {
	c.mu.Lock()
	c.startTime = c.clock.Now()
	c.stopCh = make(chan struct{})
	c.stopped = make(chan struct{})
	c.mu.Unlock()

	c.logger.Info("Starting test run", "total", c.state.Total)
	go c.progressReporter(c.clock.NewTicker(c.interval))
}

func (c *logProgressIndicator) AboutToRun(tc *types.TestCase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runningTests[tc.Label()] = c.clock.Now()
	c.logger.Debug("Test started", "test", tc.Label(), "runningTests", len(c.runningTests))
}

func (c *logProgressIndicator) HasRun(out *types.TestOutput) {
	c.mu.Lock()
	delete(c.runningTests, out.Test.Label())
	c.mu.Unlock()

	if out.UnexpectedOutput() {
		c.logger.Warn("Test failed", "test", out.Test.Label(), "outcome", out.Outcome(), "expected", out.Test.Outcomes, "exitCode", out.Output.ExitCode)
		return
	}
	c.logger.Debug("Test completed", "test", out.Test.Label(), "outcome", out.Outcome(), "remaining", c.state.Remaining)
}

func (c *logProgressIndicator) Done() {
	close(c.stopCh)
	<-c.stopped

	c.mu.Lock()
	duration := c.clock.Since(c.startTime).Truncate(time.Millisecond)
	c.runningTests = make(map[string]time.Time)
	c.mu.Unlock()

	c.logger.Info("Completed test run",
		"total", c.state.Total,
		"succeeded", c.state.Succeeded,
		"failed", len(c.state.Failed),
		"flakyFailed", len(c.state.FlakyFailed),
		"crashed", c.state.Crashed,
		"duration", duration)
}

// progressReporter runs in a goroutine and periodically reports progress
func (c *logProgressIndicator) progressReporter(ticker clock.Ticker) {
	defer close(c.stopped)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *logProgressIndicator) reportProgress() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Progress update",
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, c.clock.Now(), 3),
		"elapsed", c.clock.Since(c.startTime).Truncate(time.Second))
}

// formatRunningTests lists up to maxShow of the longest-running tests
func formatRunningTests(runningTests map[string]time.Time, now time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	running := make([]runningTest, 0, len(runningTests))
	for name, start := range runningTests {
		running = append(running, runningTest{name: name, duration: now.Sub(start)})
	}
	sort.Slice(running, func(i, j int) bool {
		if running[i].duration != running[j].duration {
			return running[i].duration > running[j].duration
		}
		return running[i].name < running[j].name
	})

	var parts []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}
	if len(running) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(running)-maxShow))
	}
	return strings.Join(parts, ", ")
}
