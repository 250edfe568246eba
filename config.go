package testrunner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testrunner/flags"
	"github.com/ethereum-optimism/infra/op-testrunner/reporting"
	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/service"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// DefaultMaxIterations bounds --repeat-until-n-failures when no maximum is given
const DefaultMaxIterations = 100

// deoptsNodeArgs are appended to the vm args by --check-deopts
var deoptsNodeArgs = []string{"--trace-opt", "--trace-file-names", "--always-opt"}

// ShardSpec selects every M-th case starting at N
type ShardSpec struct {
	N int
	M int
}

// RepeatUntilSpec configures the repeat-until-n-failures driver
type RepeatUntilSpec struct {
	TargetFailures int
	MaxIterations  int
}

// Config holds the application configuration
type Config struct {
	TestRoot         string   // absolute path of the suite directory
	Args             []string // positional test selectors
	VM               string
	NodeArgs         []string
	Modes            []string
	Archs            []string
	Type             string
	ExtraEnv         map[string]string // merged into the classification environment
	Jobs             int
	Progress         reporting.Style
	ProgressInterval time.Duration
	FlakyMode        types.FlakyMode
	MeasureFlakiness int
	Repeat           int
	RepeatUntil      *RepeatUntilSpec // nil unless --repeat-until-n-failures is set
	Timeout          time.Duration
	AbortOnTimeout   bool
	WarnUnused       bool
	Shard            *ShardSpec // nil unless --run is set
	SkipTests        []string
	SpecialCommand   runner.CommandProcessor
	ExpectFail       bool
	LogFile          string
	TempDir          string
	Report           bool
	Time             bool
	Cat              bool
	LogDir           string // failure log directory, disabled when empty
	MetricsEnabled   bool
	Service          service.Config

	Out    io.Writer
	ErrOut io.Writer
	Log    log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	testRoot := ctx.String(flags.TestRoot.Name)
	if testRoot == "" {
		return nil, errors.New("test root is required")
	}
	absTestRoot, err := filepath.Abs(testRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test root '%s': %w", testRoot, err)
	}

	flakyMode, err := types.ParseFlakyMode(ctx.String(flags.FlakyTests.Name))
	if err != nil {
		return nil, err
	}

	shard, err := parseShard(ctx.String(flags.Run.Name))
	if err != nil {
		return nil, err
	}

	repeatUntil, err := parseRepeatUntil(ctx.String(flags.RepeatUntilNFailures.Name))
	if err != nil {
		return nil, err
	}

	extraEnv, err := parseEnv(ctx.StringSlice(flags.Env.Name))
	if err != nil {
		return nil, err
	}

	jobs := ctx.Int(flags.Jobs.Name)
	if jobs < 0 {
		return nil, fmt.Errorf("jobs must be non-negative, got %d", jobs)
	}
	if jobs == 0 || ctx.Bool(flags.AllCores.Name) {
		jobs, err = allCores(os.Getenv("JOBS"))
		if err != nil {
			return nil, err
		}
	}

	repeat := ctx.Int(flags.Repeat.Name)
	if repeat < 1 {
		return nil, fmt.Errorf("repeat must be at least 1, got %d", repeat)
	}

	measure := ctx.Int(flags.MeasureFlakiness.Name)
	if measure < 0 {
		return nil, fmt.Errorf("measure-flakiness must be non-negative, got %d", measure)
	}

	timeout := ctx.Int(flags.Timeout.Name)
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %d", timeout)
	}

	nodeArgs := ctx.StringSlice(flags.NodeArgs.Name)
	progress, err := reporting.ParseStyle(ctx.String(flags.Progress.Name))
	if err != nil {
		return nil, err
	}
	if ctx.Bool(flags.CheckDeopts.Name) {
		nodeArgs = append(nodeArgs, deoptsNodeArgs...)
		progress = reporting.StyleDeopts
	}

	processor, err := runner.ParseSpecialCommand(ctx.String(flags.SpecialCommand.Name))
	if err != nil {
		return nil, err
	}

	tempDir := os.Getenv(runner.EnvTestDir)
	if tempDir == "" {
		tempDir = ctx.String(flags.TempDir.Name)
	}
	if tempDir != "" {
		if tempDir, err = filepath.Abs(tempDir); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for temp dir: %w", err)
		}
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		if logDir, err = filepath.Abs(logDir); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
		}
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	svcCfg := service.Config{
		MetricsAddr: metricsCfg.ListenAddr,
		MetricsPort: metricsCfg.ListenPort,
		HealthzPort: ctx.Int(flags.HealthzPort.Name),
	}

	out, errOut := io.Writer(os.Stdout), io.Writer(os.Stderr)
	if ctx.App != nil {
		if ctx.App.Writer != nil {
			out = ctx.App.Writer
		}
		if ctx.App.ErrWriter != nil {
			errOut = ctx.App.ErrWriter
		}
	}

	return &Config{
		TestRoot:         absTestRoot,
		Args:             ctx.Args().Slice(),
		VM:               ctx.String(flags.VM.Name),
		NodeArgs:         nodeArgs,
		Modes:            splitList(ctx.String(flags.Mode.Name)),
		Archs:            splitList(ctx.String(flags.Arch.Name)),
		Type:             ctx.String(flags.Type.Name),
		ExtraEnv:         extraEnv,
		Jobs:             jobs,
		Progress:         progress,
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		FlakyMode:        flakyMode,
		MeasureFlakiness: measure,
		Repeat:           repeat,
		RepeatUntil:      repeatUntil,
		Timeout:          time.Duration(timeout) * time.Second,
		AbortOnTimeout:   ctx.Bool(flags.AbortOnTimeout.Name),
		WarnUnused:       ctx.Bool(flags.WarnUnused.Name),
		Shard:            shard,
		SkipTests:        splitList(ctx.String(flags.SkipTests.Name)),
		SpecialCommand:   processor,
		ExpectFail:       ctx.Bool(flags.ExpectFail.Name),
		LogFile:          ctx.String(flags.LogFile.Name),
		TempDir:          tempDir,
		Report:           ctx.Bool(flags.Report.Name),
		Time:             ctx.Bool(flags.Time.Name),
		Cat:              ctx.Bool(flags.Cat.Name),
		LogDir:           logDir,
		MetricsEnabled:   metricsCfg.Enabled,
		Service:          svcCfg,
		Out:              out,
		ErrOut:           errOut,
		Log:              log,
	}, nil
}

// splitList splits a comma-separated value and drops empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseShard(s string) (*ShardSpec, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, errors.New("the run argument must be two comma-separated integers")
	}
	n, errN := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errN != nil || errM != nil {
		return nil, errors.New("could not parse the integers from the run argument")
	}
	if n < 0 || m < 0 {
		return nil, errors.New("the run argument cannot have negative integers")
	}
	if n >= m {
		return nil, errors.New("the test group to run (n) must be smaller than number of groups (m)")
	}
	return &ShardSpec{N: n, M: m}, nil
}

func parseRepeatUntil(s string) (*RepeatUntilSpec, error) {
	if s == "" {
		return nil, nil
	}
	target, maxIter, hasMax := strings.Cut(s, ",")
	spec := &RepeatUntilSpec{MaxIterations: DefaultMaxIterations}
	var err error
	if spec.TargetFailures, err = strconv.Atoi(strings.TrimSpace(target)); err != nil {
		return nil, fmt.Errorf("invalid repeat-until-n-failures target %q: %w", target, err)
	}
	if hasMax {
		if spec.MaxIterations, err = strconv.Atoi(strings.TrimSpace(maxIter)); err != nil {
			return nil, fmt.Errorf("invalid repeat-until-n-failures max iterations %q: %w", maxIter, err)
		}
	}
	if spec.TargetFailures < 1 || spec.MaxIterations < 1 {
		return nil, fmt.Errorf("repeat-until-n-failures values must be at least 1, got %q", s)
	}
	return spec, nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env value %q, expected key=value", p)
		}
		env[k] = strings.TrimSpace(v)
	}
	return env, nil
}

// allCores returns $JOBS when set, since virtualised hosts tend to
// exaggerate their core count, and the logical core count otherwise
func allCores(jobsEnv string) (int, error) {
	if jobsEnv != "" {
		n, err := strconv.Atoi(jobsEnv)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid JOBS value %q", jobsEnv)
		}
		return n, nil
	}
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU(), nil
	}
	return n, nil
}
