package testrunner

import (
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/status"
	"github.com/ethereum-optimism/infra/op-testrunner/suite"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// archNone selects the host architecture
const archNone = "none"

// selection is the result of discovery, classification and filtering
type selection struct {
	// listed holds every case before classification, for --cat
	listed []*types.TestCase
	// all holds every classified case, repeats included
	all []*types.TestCase
	// toRun is all minus filtered cases, sharded when requested
	toRun  []*types.TestCase
	unused []*status.Rule
}

// systemName maps GOOS to the names status files use for $system
func systemName(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "windows":
		return "win32"
	case "solaris", "illumos":
		return "solaris"
	default:
		return goos
	}
}

// hostArch maps GOARCH to the vm's architecture names
func hostArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	case "ppc64", "ppc64le":
		return "ppc64"
	default:
		return goarch
	}
}

func (c *Config) archs() []string {
	if len(c.Archs) == 0 {
		return []string{hostArch(runtime.GOARCH)}
	}
	out := make([]string, len(c.Archs))
	for i, a := range c.Archs {
		if a == archNone {
			a = hostArch(runtime.GOARCH)
		}
		out[i] = a
	}
	return out
}

func (c *Config) modes() []string {
	if len(c.Modes) == 0 {
		return []string{"release"}
	}
	return c.Modes
}

// environment returns the variables status-file conditions see for one combination
func (c *Config) environment(arch, mode string) status.Env {
	env := status.Env{
		"mode":   mode,
		"system": systemName(runtime.GOOS),
		"arch":   arch,
		"type":   c.Type,
	}
	maps.Copy(env, c.ExtraEnv)
	return env
}

// selectCases discovers suites, lists and classifies cases for every
// (path, arch, mode) combination, then filters and shards them
func selectCases(cfg *Config) (*selection, error) {
	logger := cfg.Log.New("component", "selection")

	suites, err := suite.Discover(cfg.TestRoot, cfg.Log)
	if err != nil {
		return nil, err
	}
	paths, err := suite.ArgsToTestPaths(cfg.Args, suite.Names(suites))
	if err != nil {
		return nil, err
	}

	statusCfg := status.NewConfiguration()
	if err := suite.LoadStatus(cfg.TestRoot, suites, statusCfg); err != nil {
		return nil, err
	}

	sel := &selection{}
	var unused status.UnusedRules
	for _, path := range paths {
		for _, arch := range cfg.archs() {
			for _, mode := range cfg.modes() {
				opts := suite.ListOptions{Arch: arch, Mode: mode, VM: cfg.VM, NodeArgs: cfg.NodeArgs}
				var listed []*types.TestCase
				for _, s := range suites {
					cases, err := s.ListTests(path, opts)
					if err != nil {
						return nil, err
					}
					listed = append(listed, cases...)
				}
				listed = runner.Repeat(listed, cfg.Repeat)
				sel.listed = append(sel.listed, listed...)

				classified, rules := statusCfg.ClassifyTests(listed, cfg.environment(arch, mode))
				unused.Observe(rules)
				sel.all = append(sel.all, classified...)
			}
		}
	}
	sel.unused = unused.Rules()

	for _, tc := range sel.all {
		tc.Negative = cfg.ExpectFail
	}
	sel.toRun = runner.Filter(sel.all, cfg.SkipTests, cfg.FlakyMode)
	if cfg.Shard != nil {
		if sel.toRun, err = runner.Shard(sel.toRun, cfg.Shard.N, cfg.Shard.M); err != nil {
			return nil, err
		}
	}

	logger.Info("Selected tests", "suites", len(suites), "listed", len(sel.all),
		"toRun", len(sel.toRun), "unusedRules", len(sel.unused))
	return sel, nil
}

// printUnusedRules reports rules that matched no case in any combination
func printUnusedRules(w io.Writer, rules []*status.Rule) {
	for _, r := range rules {
		fmt.Fprintf(w, "Rule for '%s' was not used.\n", r.String())
	}
}

// printSources writes each listed case's source once
func printSources(w io.Writer, cases []*types.TestCase) error {
	visited := make(map[string]bool)
	for _, tc := range cases {
		key := tc.Name()
		if visited[key] {
			continue
		}
		visited[key] = true
		source, err := os.ReadFile(tc.File)
		if err != nil {
			return fmt.Errorf("failed to read source of %s: %w", tc.Label(), err)
		}
		fmt.Fprintf(w, "--- begin source: %s ---\n", tc.Label())
		fmt.Fprintln(w, strings.TrimSpace(string(source)))
		fmt.Fprintf(w, "--- end source: %s ---\n", tc.Label())
	}
	return nil
}
