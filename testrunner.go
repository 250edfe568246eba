// Package testrunner wires test discovery, classification, scheduling and
// reporting into a cliapp.Lifecycle service.
package testrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-testrunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-testrunner/logging"
	"github.com/ethereum-optimism/infra/op-testrunner/metrics"
	"github.com/ethereum-optimism/infra/op-testrunner/reporting"
	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/service"
)

// testRunner implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &testRunner{}

// testRunner runs one test-harness invocation: select, schedule, report.
type testRunner struct {
	config   *Config
	version  string
	executor runner.Executor
	sink     *logging.FileLogger
	service  *service.Service // nil unless metrics are enabled

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*testRunner, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	config.Out = writerOrDiscard(config.Out)
	config.ErrOut = writerOrDiscard(config.ErrOut)

	config.Log.Debug("Creating test runner with config",
		"testRoot", config.TestRoot,
		"modes", config.Modes,
		"archs", config.Archs,
		"jobs", config.Jobs,
		"progress", config.Progress,
		"flakyMode", config.FlakyMode)

	executor := runner.NewProcessExecutor(runner.ExecutorConfig{
		Log:            config.Log,
		Timeout:        config.Timeout,
		ArchGuess:      runner.ArchGuess,
		AbortOnTimeout: config.AbortOnTimeout,
		Processor:      config.SpecialCommand,
		TempDir:        config.TempDir,
	})

	var sink *logging.FileLogger
	if config.LogDir != "" {
		var err error
		sink, err = logging.NewFileLogger(config.LogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
	}

	var svc *service.Service
	if config.MetricsEnabled {
		svc = service.New(config.Log, config.Service)
	}

	return &testRunner{
		config:           config,
		version:          version,
		executor:         executor,
		sink:             sink,
		service:          svc,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the selected tests once and then asks the app to shut down.
// Start implements the cliapp.Lifecycle interface.
func (r *testRunner) Start(ctx context.Context) error {
	defer func() {
		if rec := recover(); rec != nil {
			r.config.Log.Error("Runtime error occurred", "error", rec)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	r.running.Store(true)
	r.config.Log.Info("Starting op-testrunner", "version", r.version)
	if r.service != nil {
		r.service.Start(ctx)
	}

	if err := r.run(ctx); err != nil {
		return err
	}

	go func() {
		r.shutdownCallback(nil)
	}()
	return nil
}

// run performs the whole invocation and returns a typed error for every non-zero exit
func (r *testRunner) run(ctx context.Context) error {
	cfg := r.config

	sel, err := selectCases(cfg)
	if err != nil {
		return NewRuntimeError(StageSelection, err)
	}

	if cfg.Cat {
		if err := printSources(cfg.Out, sel.listed); err != nil {
			return NewRuntimeError(StageSelection, err)
		}
		return nil
	}

	if cfg.WarnUnused {
		printUnusedRules(cfg.Out, sel.unused)
	}

	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
			return NewRuntimeError(StageSetup, fmt.Errorf("could not create the temporary directory %s: %w", cfg.TempDir, err))
		}
	}

	if cfg.Report {
		printReport(cfg.Out, newSelectionReport(sel))
	}

	if len(sel.toRun) == 0 {
		fmt.Fprintln(cfg.Out, "No tests to run.")
		return NewTestFailureError("no tests to run")
	}

	progress, closeLogFile, err := r.progress()
	if err != nil {
		return NewRuntimeError(StageSetup, err)
	}
	defer closeLogFile()

	schedCfg := runner.Config{
		Log:              cfg.Log,
		Executor:         r.executor,
		Progress:         progress,
		FlakyMode:        cfg.FlakyMode,
		MeasureFlakiness: cfg.MeasureFlakiness,
		Out:              cfg.Out,
	}
	if r.sink != nil {
		schedCfg.Sink = r.sink
	}

	if cfg.RepeatUntil != nil {
		return r.repeatUntilFailures(ctx, schedCfg, sel)
	}
	return r.runOnce(ctx, schedCfg, sel)
}

// progress builds the indicator factory, opening --logfile for the tap style
func (r *testRunner) progress() (runner.IndicatorFactory, func(), error) {
	cfg := r.config
	opts := reporting.Options{
		Out:              cfg.Out,
		Log:              cfg.Log,
		TestRoot:         cfg.TestRoot,
		Windows:          runtime.GOOS == "windows",
		ProgressInterval: cfg.ProgressInterval,
	}
	closeFn := func() {}
	if cfg.LogFile != "" && cfg.Progress == reporting.StyleTap {
		f, err := os.Create(cfg.LogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		opts.LogFile = f
		closeFn = func() {
			if err := f.Close(); err != nil {
				cfg.Log.Warn("Failed to close log file", "file", cfg.LogFile, "error", err)
			}
		}
	}
	factory, err := reporting.New(cfg.Progress, opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return factory, closeFn, nil
}

func (r *testRunner) runOnce(ctx context.Context, schedCfg runner.Config, sel *selection) error {
	cfg := r.config
	sched, err := runner.NewScheduler(schedCfg)
	if err != nil {
		return NewRuntimeError(StageSetup, err)
	}
	result, err := sched.Run(ctx, sel.toRun, cfg.Jobs)
	if err != nil {
		return NewRuntimeError(StageRun, err)
	}

	if r.sink != nil {
		if err := r.sink.Complete(result); err != nil {
			cfg.Log.Warn("Failed to write run summary", "error", err)
		}
	}
	r.recordMetrics(result)

	if cfg.Progress != reporting.StyleTap {
		printResultsTable(cfg.Out, result, runtime.GOOS == "windows")
	}
	if cfg.Time {
		fmt.Fprintln(cfg.Out)
		printTimes(cfg.ErrOut, sel.toRun, result.Duration)
	}

	cfg.Log.Info("Test run completed", "run_id", result.RunID, "passed", result.AllPassed, "interrupted", result.Interrupted)
	switch {
	case result.Interrupted:
		fmt.Fprintln(cfg.Out, "Interrupted")
		return newInterruptedError()
	case !result.AllPassed:
		return newFailedRunError(len(result.State.Failed), result.State.Crashed)
	}
	return nil
}

func (r *testRunner) repeatUntilFailures(ctx context.Context, schedCfg runner.Config, sel *selection) error {
	cfg := r.config
	result, err := runner.RepeatUntilFailures(ctx, runner.RepeatConfig{
		Log:            cfg.Log,
		Out:            cfg.Out,
		TargetFailures: cfg.RepeatUntil.TargetFailures,
		MaxIterations:  cfg.RepeatUntil.MaxIterations,
		Scheduler:      schedCfg,
	}, sel.toRun, cfg.Jobs)
	if err != nil {
		return NewRuntimeError(StageRun, fmt.Errorf("repeat-until-n-failures: %w", err))
	}

	if result.Iterations > 0 {
		summary, err := runner.FormatRepeatResult(result)
		if err != nil {
			return NewRuntimeError(StageRun, err)
		}
		fmt.Fprint(cfg.Out, summary)
	}
	fmt.Fprintf(cfg.Out, "Stopped after %d iterations: %s (%d failures)\n",
		result.Iterations, result.StopReason, result.TotalFailures)

	switch {
	case result.Interrupted:
		fmt.Fprintln(cfg.Out, "Interrupted")
		return newInterruptedError()
	case !result.AllPassed:
		return &TestFailureError{
			Failed:  result.TotalFailures,
			Message: fmt.Sprintf("%d failures in %d iterations (%s)", result.TotalFailures, result.Iterations, result.StopReason),
		}
	}
	return nil
}

func (r *testRunner) recordMetrics(result *runner.Result) {
	state := result.State
	status := "pass"
	if !result.AllPassed {
		status = "fail"
	}
	if result.Interrupted {
		status = "interrupted"
	}
	metrics.RecordRun(
		result.RunID,
		status,
		state.Total,
		state.Succeeded,
		len(state.Failed),
		len(state.FlakyFailed),
		state.Crashed,
		result.Duration,
	)
}

// Stop stops the op-testrunner service.
// Stop implements the cliapp.Lifecycle interface.
func (r *testRunner) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping op-testrunner")
	if !r.running.Load() {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	r.running.Store(false)
	if r.service != nil {
		r.service.Shutdown()
	}
	r.config.Log.Info("op-testrunner stopped successfully")
	return nil
}

// Stopped returns true if the op-testrunner service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (r *testRunner) Stopped() bool {
	return !r.running.Load()
}

// writerOrDiscard returns io.Discard for a nil writer
func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
