// Package suite discovers test suites under a test root and lists their cases.
package suite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testrunner/status"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// RootStatusFile is read from the test root before any suite status file
const RootStatusFile = "root.status"

var flagsPattern = regexp.MustCompile(`//\s+Flags:(.*)`)

// Suite is a directory of tests described by a testcfg.yaml
type Suite struct {
	Name   string
	Dir    string
	Config *Config
}

// ListOptions carries the per-combination values used to build commands
type ListOptions struct {
	Arch     string
	Mode     string
	VM       string
	NodeArgs []string
}

// Discover returns every suite directly under root, sorted by name
func Discover(root string, logger log.Logger) ([]*Suite, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read test root: %w", err)
	}

	var suites []*Suite
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		ok, err := hasConfig(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", dir, err)
		}
		if !ok {
			continue
		}
		cfg, err := loadConfig(filepath.Join(dir, ConfigFileName))
		if err != nil {
			return nil, err
		}
		suites = append(suites, &Suite{Name: e.Name(), Dir: dir, Config: cfg})
	}
	slices.SortFunc(suites, func(a, b *Suite) int { return strings.Compare(a.Name, b.Name) })
	logger.Debug("Discovered suites", "root", root, "count", len(suites))
	return suites, nil
}

// Names returns the suite names in order
func Names(suites []*Suite) []string {
	names := make([]string, len(suites))
	for i, s := range suites {
		names[i] = s.Name
	}
	return names
}

// StatusFile is the path of the suite's own status file
func (s *Suite) StatusFile() string {
	return filepath.Join(s.Dir, s.Name+".status")
}

// files lists the suite's test files relative to its directory, using '/' separators
func (s *Suite) files() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Dir && !s.Config.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.matches(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func (s *Suite) matches(name string) bool {
	if ok, _ := filepath.Match(s.Config.Pattern, name); !ok {
		return false
	}
	return slices.Contains(s.Config.Extensions, filepath.Ext(name))
}

// ListTests returns the cases whose name matches path. The first pattern
// segment is matched against the suite name.
func (s *Suite) ListTests(path []*status.Pattern, opts ListOptions) ([]*types.TestCase, error) {
	if len(path) > 0 && !path[0].Match(s.Name) {
		return nil, nil
	}
	files, err := s.files()
	if err != nil {
		return nil, fmt.Errorf("failed to list suite %s: %w", s.Name, err)
	}

	var cases []*types.TestCase
	for _, rel := range files {
		segs := strings.Split(rel, "/")
		last := len(segs) - 1
		segs[last] = strings.TrimSuffix(segs[last], filepath.Ext(segs[last]))
		name := append([]string{s.Name}, segs...)
		if !contains(path, name) {
			continue
		}

		file := filepath.Join(s.Dir, filepath.FromSlash(rel))
		fileFlags, err := readFlags(file)
		if err != nil {
			return nil, err
		}
		cmd := []string{opts.VM}
		cmd = append(cmd, opts.NodeArgs...)
		cmd = append(cmd, s.Config.Flags...)
		cmd = append(cmd, fileFlags...)
		cmd = append(cmd, file)

		cases = append(cases, &types.TestCase{
			Path:             name,
			File:             file,
			Suite:            s.Name,
			Arch:             opts.Arch,
			Mode:             opts.Mode,
			Command:          cmd,
			Parallel:         s.Config.Parallel,
			DisableCoreFiles: s.Config.DisableCoreFiles,
		})
	}
	slices.SortStableFunc(cases, func(a, b *types.TestCase) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return cases, nil
}

func contains(path []*status.Pattern, name []string) bool {
	if len(path) > len(name) {
		return false
	}
	for i, p := range path {
		if !p.Match(name[i]) {
			return false
		}
	}
	return true
}

// readFlags returns the arguments of a "// Flags:" line in the test source
func readFlags(file string) ([]string, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read test %s: %w", file, err)
	}
	m := flagsPattern.FindSubmatch(src)
	if m == nil {
		return nil, nil
	}
	return strings.Fields(string(m[1])), nil
}

// LoadStatus reads root.status from the test root followed by each suite's
// status file into cfg. Missing files are skipped; malformed ones are fatal.
func LoadStatus(root string, suites []*Suite, cfg *status.Configuration) error {
	files := []string{filepath.Join(root, RootStatusFile)}
	for _, s := range suites {
		files = append(files, s.StatusFile())
	}
	for _, f := range files {
		err := status.ReadConfigurationInto(f, cfg)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
