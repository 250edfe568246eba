package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// Environment variables exported to every child
const (
	EnvSerialID = "TEST_SERIAL_ID"
	EnvThreadID = "TEST_THREAD_ID"
	EnvParallel = "TEST_PARALLEL"
	EnvTestDir  = "NODE_TEST_DIR"
)

var _ Executor = (*processExecutor)(nil)

// Executor runs a single attempt of a test case. Implementations must allow
// concurrent calls for different cases.
type Executor interface {
	Run(ctx context.Context, tc *types.TestCase) (*types.TestOutput, error)
}

// ExecutorConfig configures the process-backed executor
type ExecutorConfig struct {
	Log            log.Logger
	Clock          clock.Clock
	Timeout        time.Duration // base timeout, scaled per case
	ArchGuess      string
	AbortOnTimeout bool
	Processor      CommandProcessor
	TempDir        string
	WorkDir        string
	OutputLimit    int
}

type processExecutor struct {
	cfg    ExecutorConfig
	log    log.Logger
	tracer trace.Tracer
}

// NewProcessExecutor returns an Executor that runs case commands as child processes
func NewProcessExecutor(cfg ExecutorConfig) Executor {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Processor == nil {
		cfg.Processor = identityCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &processExecutor{
		cfg:    cfg,
		log:    cfg.Log.New("component", "executor"),
		tracer: otel.Tracer("test executor"),
	}
}

func (e *processExecutor) Run(ctx context.Context, tc *types.TestCase) (*types.TestOutput, error) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("test %s", tc.Name()))
	defer span.End()

	command := e.cfg.Processor(tc.Command)
	extra := map[string]string{
		EnvSerialID: strconv.Itoa(tc.SerialID),
		EnvThreadID: strconv.Itoa(tc.ThreadID),
		EnvParallel: boolToFlag(tc.Parallel),
	}
	if e.cfg.TempDir != "" {
		extra[EnvTestDir] = e.cfg.TempDir
	}
	env := telemetry.InstrumentEnvironment(ctx, childEnv(processEnviron(), extra))

	timeout := GetTimeout(e.cfg.Timeout, e.cfg.ArchGuess, tc.Mode, tc.Suite)
	e.log.Debug("Running test", "test", tc.Label(), "timeout", timeout, "serial", tc.SerialID, "thread", tc.ThreadID)

	out, err := runProcess(ctx, e.cfg.Clock, processSpec{
		Args:             command,
		Env:              env,
		Dir:              e.cfg.WorkDir,
		Timeout:          timeout,
		AbortOnTimeout:   e.cfg.AbortOnTimeout,
		DisableCoreFiles: tc.DisableCoreFiles,
		OutputLimit:      e.cfg.OutputLimit,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("exit_code", out.ExitCode),
		attribute.Bool("timed_out", out.TimedOut),
	)
	return &types.TestOutput{Test: tc, Command: command, Output: out}, nil
}

func boolToFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
