package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTRUNNER"

var (
	TestRoot = &cli.StringFlag{
		Name:    "test-root",
		Value:   "test",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_ROOT"),
		Usage:   "Directory containing the test suites (each with a testcfg.yaml)",
	}
	VM = &cli.StringFlag{
		Name:    "vm",
		Value:   "node",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VM"),
		Usage:   "Executable that runs each test file",
	}
	NodeArgs = &cli.StringSliceFlag{
		Name:    "node-args",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NODE_ARGS"),
		Usage:   "Args to pass through to the vm, before the suite flags (repeatable)",
	}
	Mode = &cli.StringFlag{
		Name:    "mode",
		Aliases: []string{"m"},
		Value:   "release",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MODE"),
		Usage:   "The test modes in which to run (comma-separated)",
	}
	Arch = &cli.StringFlag{
		Name:    "arch",
		Value:   "none",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARCH"),
		Usage:   "The architectures to run tests for (comma-separated). 'none' uses the host architecture",
	}
	Type = &cli.StringFlag{
		Name:    "type",
		Value:   "simple",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TYPE"),
		Usage:   "Type of build (simple, fips, coverage), exposed to status files as $type",
	}
	Env = &cli.StringSliceFlag{
		Name:    "env",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENV"),
		Usage:   "Extra key=value variables for status-file conditions (repeatable)",
	}
	Jobs = &cli.IntFlag{
		Name:    "jobs",
		Aliases: []string{"j"},
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JOBS"),
		Usage:   "The number of parallel tasks to run. 0 uses all cores (or $JOBS)",
	}
	AllCores = &cli.BoolFlag{
		Name:    "all-cores",
		Aliases: []string{"J"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALL_CORES"),
		Usage:   "Run tasks in parallel on all cores (or $JOBS)",
	}
	Progress = &cli.StringFlag{
		Name:    "progress",
		Aliases: []string{"p"},
		Value:   "mono",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS"),
		Usage:   "The style of progress indicator (verbose, dots, color, tap, mono, deopts, actions, log)",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates for the log progress style",
	}
	FlakyTests = &cli.StringFlag{
		Name:    "flaky-tests",
		Value:   "run",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FLAKY_TESTS"),
		Usage:   "Regard tests marked as flaky (run|skip|dontcare|keep_retrying)",
	}
	MeasureFlakiness = &cli.IntFlag{
		Name:    "measure-flakiness",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MEASURE_FLAKINESS"),
		Usage:   "When a test fails, re-run it this many times and report the failure ratio",
	}
	Repeat = &cli.IntFlag{
		Name:    "repeat",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPEAT"),
		Usage:   "Number of times to repeat given tests",
	}
	RepeatUntilNFailures = &cli.StringFlag{
		Name:    "repeat-until-n-failures",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPEAT_UNTIL_N_FAILURES"),
		Usage:   "Re-run the selection until n failures accumulate: n[,max_iterations]",
	}
	Timeout = &cli.IntFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Value:   120,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Base timeout in seconds, scaled per architecture, mode and suite",
	}
	AbortOnTimeout = &cli.BoolFlag{
		Name:    "abort-on-timeout",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ABORT_ON_TIMEOUT"),
		Usage:   "Send SIGABRT instead of SIGTERM to kill processes that time out",
	}
	WarnUnused = &cli.BoolFlag{
		Name:    "warn-unused",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WARN_UNUSED"),
		Usage:   "Report status-file rules that matched no test",
	}
	Run = &cli.StringFlag{
		Name:    "run",
		Aliases: []string{"r"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN"),
		Usage:   "Divide the tests in m groups (interleaved) and run tests from group n (--run=n,m with n < m)",
	}
	SkipTests = &cli.StringFlag{
		Name:    "skip-tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SKIP_TESTS"),
		Usage:   "Tests that should not be executed (comma-separated substrings of the file path)",
	}
	SpecialCommand = &cli.StringFlag{
		Name:    "special-command",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SPECIAL_COMMAND"),
		Usage:   "Wrap every command as prefix@suffix (URL-escaped)",
	}
	ExpectFail = &cli.BoolFlag{
		Name:    "expect-fail",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXPECT_FAIL"),
		Usage:   "Expect test cases to fail",
	}
	CheckDeopts = &cli.BoolFlag{
		Name:    "check-deopts",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CHECK_DEOPTS"),
		Usage:   "Check tests for permanent deoptimizations",
	}
	LogFile = &cli.StringFlag{
		Name:    "logfile",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGFILE"),
		Usage:   "Write test output to file. Only applies to the tap progress indicator",
	}
	TempDir = &cli.StringFlag{
		Name:    "temp-dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEMP_DIR"),
		Usage:   "Directory exported to tests as NODE_TEST_DIR, created if missing",
	}
	Report = &cli.BoolFlag{
		Name:    "report",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT"),
		Usage:   "Print a summary of the tests to be run",
	}
	Time = &cli.BoolFlag{
		Name:    "time",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIME"),
		Usage:   "Print timing information after running",
	}
	Cat = &cli.BoolFlag{
		Name:    "cat",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAT"),
		Usage:   "Print the source of the selected tests instead of running them",
	}
	LogDir = &cli.StringFlag{
		Name:    "log.dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory to store logs of unexpected test outputs. Disabled when empty",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Port for the healthz server, started together with the metrics server",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	TestRoot,
	VM,
	NodeArgs,
	Mode,
	Arch,
	Type,
	Env,
	Jobs,
	AllCores,
	Progress,
	ProgressInterval,
	FlakyTests,
	MeasureFlakiness,
	Repeat,
	RepeatUntilNFailures,
	Timeout,
	AbortOnTimeout,
	WarnUnused,
	Run,
	SkipTests,
	SpecialCommand,
	ExpectFail,
	CheckDeopts,
	LogFile,
	TempDir,
	Report,
	Time,
	Cat,
	LogDir,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
