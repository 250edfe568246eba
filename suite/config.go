package suite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName marks a directory under the test root as a suite
const ConfigFileName = "testcfg.yaml"

var (
	defaultPattern    = "test-*"
	defaultExtensions = []string{".js", ".mjs"}
)

// Config is the per-suite testcfg.yaml
type Config struct {
	// Parallel makes the suite's cases eligible for the worker pool
	Parallel bool `yaml:"parallel"`
	// Pattern is a filepath.Match glob applied to file names
	Pattern    string   `yaml:"pattern"`
	Extensions []string `yaml:"extensions"`
	// Flags are placed before the test file on every command line
	Flags            []string `yaml:"flags"`
	Recursive        bool     `yaml:"recursive"`
	DisableCoreFiles bool     `yaml:"disable_core_files"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = defaultPattern
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q in %s: %w", cfg.Pattern, path, err)
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaultExtensions
	}
	return &cfg, nil
}

// hasConfig reports whether dir holds a testcfg.yaml
func hasConfig(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
