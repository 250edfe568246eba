// Package runner executes classified test cases concurrently and reconciles
// their results against expectations.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testrunner/metrics"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// KeepRetryingAttempts is the number of extra executions a FLAKY case gets
// under the keep_retrying policy before its failure becomes a hard failure
const KeepRetryingAttempts = 99

// Retry reasons, used as metric labels
const (
	RetryECONNREFUSED     = "econnrefused"
	RetryKeepRetrying     = "keep_retrying"
	RetryMeasureFlakiness = "measure_flakiness"
)

// ResultSink receives every output that did not match its expectation
type ResultSink interface {
	RecordFailure(runID string, out *types.TestOutput) error
}

// Config configures a Scheduler
type Config struct {
	Log              log.Logger
	Clock            clock.Clock
	Executor         Executor
	Progress         IndicatorFactory
	FlakyMode        types.FlakyMode
	MeasureFlakiness int
	// Out receives the measure-flakiness lines
	Out  io.Writer
	Sink ResultSink
	// GOOS selects platform workarounds, defaulting to runtime.GOOS
	GOOS string
}

// Result is the outcome of one scheduler run
type Result struct {
	RunID       string
	State       *types.RunState
	AllPassed   bool
	Interrupted bool
	Duration    time.Duration
	// Executions counts every process run, retries included
	Executions int
}

// Scheduler runs a case list once. Create a new Scheduler for every run.
type Scheduler struct {
	cfg    Config
	log    log.Logger
	tracer trace.Tracer

	mu          sync.Mutex // guards state, serialID, executions and every indicator callback
	state       *types.RunState
	indicator   ProgressIndicator
	serialID    int
	executions  int
	runID       string
	shutdown    atomic.Bool
	interrupted atomic.Bool

	parallelQueue   chan *types.TestCase
	sequentialQueue chan *types.TestCase
}

// NewScheduler validates cfg and returns a Scheduler
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator
	}
	if cfg.FlakyMode == "" {
		cfg.FlakyMode = types.FlakyRun
	}
	if cfg.MeasureFlakiness < 0 {
		return nil, fmt.Errorf("measure-flakiness must be non-negative, got %d", cfg.MeasureFlakiness)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	return &Scheduler{
		cfg:    cfg,
		log:    cfg.Log.New("component", "scheduler"),
		tracer: otel.Tracer("test runner"),
	}, nil
}

// Run executes cases with tasks workers and returns the accumulated results.
//
// The calling goroutine is worker 0 and the only one that drains the
// sequential queue, so tasks == 1 never starts another goroutine. A
// cancelled ctx stops dispatch and returns the partial results with
// Interrupted set. Any other worker fault stops dispatch and is returned.
func (s *Scheduler) Run(ctx context.Context, cases []*types.TestCase, tasks int) (*Result, error) {
	if tasks < 1 {
		tasks = 1
	}
	s.runID = uuid.New().String()
	start := s.cfg.Clock.Now()

	ctx, span := s.tracer.Start(ctx, "test run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", s.runID),
		attribute.Int("cases", len(cases)),
		attribute.Int("tasks", tasks),
	)

	s.state = types.NewRunState(cases, s.cfg.FlakyMode)
	s.indicator = s.cfg.Progress(s.state)
	s.parallelQueue = make(chan *types.TestCase, len(cases))
	s.sequentialQueue = make(chan *types.TestCase, len(cases))
	for _, tc := range cases {
		if tc.Parallel {
			s.parallelQueue <- tc
		} else {
			s.sequentialQueue <- tc
		}
	}
	close(s.parallelQueue)
	close(s.sequentialQueue)

	s.log.Info("Starting test run", "runID", s.runID, "cases", len(cases), "tasks", tasks,
		"parallel", len(s.parallelQueue), "sequential", len(s.sequentialQueue))

	s.mu.Lock()
	s.indicator.Starting()
	s.mu.Unlock()

	var g errgroup.Group
	for i := 1; i < tasks; i++ {
		threadID := i
		g.Go(func() error {
			return s.worker(ctx, true, threadID)
		})
	}
	primaryErr := s.worker(ctx, false, 0)
	err := errors.Join(primaryErr, g.Wait())

	s.mu.Lock()
	s.indicator.Done()
	s.mu.Unlock()

	result := &Result{
		RunID:       s.runID,
		State:       s.state,
		AllPassed:   len(s.state.Failed) == 0,
		Interrupted: s.interrupted.Load(),
		Duration:    s.cfg.Clock.Since(start),
		Executions:  s.executions,
	}
	s.log.Info("Test run finished", "runID", s.runID, "succeeded", s.state.Succeeded,
		"failed", len(s.state.Failed), "flakyFailed", len(s.state.FlakyFailed),
		"crashed", s.state.Crashed, "interrupted", result.Interrupted, "duration", result.Duration)
	if err != nil {
		span.RecordError(err)
		metrics.RecordErrorDetails("scheduler", err)
		return result, err
	}
	return result, nil
}

// next pops the next case. Non-primary workers stop when the parallel queue
// is empty; the primary worker moves on to the sequential queue.
func (s *Scheduler) next(parallel bool) (*types.TestCase, bool) {
	if tc, ok := <-s.parallelQueue; ok {
		return tc, true
	}
	if parallel {
		return nil, false
	}
	tc, ok := <-s.sequentialQueue
	return tc, ok
}

func (s *Scheduler) worker(ctx context.Context, parallel bool, threadID int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.shutdown.Store(true)
			err = fmt.Errorf("worker %d panicked: %v", threadID, r)
		}
	}()

	for !s.shutdown.Load() {
		if ctx.Err() != nil {
			s.interrupt()
			return nil
		}
		tc, ok := s.next(parallel)
		if !ok {
			return nil
		}

		s.dispatch(tc, threadID)

		if err := s.runCase(ctx, tc); err != nil {
			if ctx.Err() != nil {
				s.interrupt()
				return nil
			}
			s.shutdown.Store(true)
			return fmt.Errorf("worker %d: %s: %w", threadID, tc.Label(), err)
		}
	}
	return nil
}

// dispatch assigns the serial and thread ids and announces tc
func (s *Scheduler) dispatch(tc *types.TestCase, threadID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc.ThreadID = threadID
	tc.SerialID = s.serialID
	tc.Started = true
	s.serialID++
	s.indicator.AboutToRun(tc)
}

func (s *Scheduler) interrupt() {
	s.interrupted.Store(true)
	s.shutdown.Store(true)
}

// execute runs one attempt and counts it
func (s *Scheduler) execute(ctx context.Context, tc *types.TestCase) (*types.TestOutput, error) {
	out, err := s.cfg.Executor.Run(ctx, tc)
	s.mu.Lock()
	s.executions++
	s.mu.Unlock()
	return out, err
}

// runCase executes tc, applies the retry policies outside the lock and then
// records the reconciled result under it
func (s *Scheduler) runCase(ctx context.Context, tc *types.TestCase) error {
	start := s.cfg.Clock.Now()
	out, err := s.execute(ctx, tc)
	if err != nil {
		return err
	}
	// SmartOS can fail connections with a spurious ECONNREFUSED, see
	// https://smartos.org/bugview/OS-2767. Such a failure is retried once.
	if out.UnexpectedOutput() && s.isSolaris() && strings.Contains(out.Output.Stderr, "ECONNREFUSED") {
		metrics.RecordRetry(s.runID, RetryECONNREFUSED)
		out, err = s.execute(ctx, tc)
		if err != nil {
			return err
		}
		out.Diagnostic = append(out.Diagnostic, "ECONNREFUSED received, test retried")
	}
	tc.Duration = s.cfg.Clock.Since(start)
	if s.shutdown.Load() {
		return nil
	}

	unexpected := out.UnexpectedOutput()
	flaky := tc.Outcomes.Has(types.OutcomeFlaky)
	verdict := verdictFailed
	var measured []bool
	switch {
	case !unexpected:
		verdict = verdictSucceeded
	case flaky && s.cfg.FlakyMode == types.FlakyDontCare:
		verdict = verdictFlaky
	case flaky && s.cfg.FlakyMode == types.FlakyKeepRetrying:
		for i := 0; i < KeepRetryingAttempts; i++ {
			metrics.RecordRetry(s.runID, RetryKeepRetrying)
			retry, err := s.execute(ctx, tc)
			if err != nil {
				return err
			}
			if !retry.UnexpectedOutput() {
				verdict = verdictFlaky
				break
			}
		}
	case s.cfg.MeasureFlakiness > 0:
		for i := 0; i < s.cfg.MeasureFlakiness; i++ {
			metrics.RecordRetry(s.runID, RetryMeasureFlakiness)
			retry, err := s.execute(ctx, tc)
			if err != nil {
				return err
			}
			measured = append(measured, retry.UnexpectedOutput())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch verdict {
	case verdictSucceeded:
		s.state.Succeeded++
	case verdictFlaky:
		s.state.FlakyFailed = append(s.state.FlakyFailed, out)
	default:
		s.state.Failed = append(s.state.Failed, out)
		if out.HasCrashed() {
			s.state.Crashed++
		}
		if measured != nil {
			failures := 1 // the first attempt already failed
			for _, failed := range measured {
				if failed {
					failures++
				}
			}
			fmt.Fprintf(s.cfg.Out, " failed %d out of %d\n", failures, s.cfg.MeasureFlakiness+1)
		}
	}
	s.state.Remaining--
	metrics.RecordOutcome(s.runID, tc.Suite, out.Outcome())
	if verdict != verdictSucceeded && s.cfg.Sink != nil {
		if err := s.cfg.Sink.RecordFailure(s.runID, out); err != nil {
			s.log.Warn("Failed to record unexpected output", "test", tc.Label(), "err", err)
		}
	}
	s.indicator.HasRun(out)
	return nil
}

func (s *Scheduler) isSolaris() bool {
	return s.cfg.GOOS == "solaris" || s.cfg.GOOS == "illumos"
}

type verdict int

const (
	verdictFailed verdict = iota
	verdictSucceeded
	verdictFlaky
)
