// Package logging writes the output of unexpected test results to a per-run
// log directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.log"
)

var _ runner.ResultSink = (*FileLogger)(nil)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileLogger writes one log file per unexpected test output
type FileLogger struct {
	baseDir string

	mu      sync.Mutex // Protects concurrent file operations
	created map[string]bool
	files   map[string][]string // run ID to written files
}

// NewFileLogger creates a FileLogger rooted at baseDir
func NewFileLogger(baseDir string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", baseDir, err)
	}
	return &FileLogger{
		baseDir: baseDir,
		created: make(map[string]bool),
		files:   make(map[string][]string),
	}, nil
}

// RunDir returns the directory holding the logs of runID
func (l *FileLogger) RunDir(runID string) string {
	return filepath.Join(l.baseDir, RunDirectoryPrefix+runID)
}

func (l *FileLogger) ensureRunDir(runID string) (string, error) {
	dir := l.RunDir(runID)
	if l.created[runID] {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	l.created[runID] = true
	return dir, nil
}

// FileName maps a test label to its log file name
func FileName(label string) string {
	return strings.Trim(unsafeFileChars.ReplaceAllString(label, "_"), "_") + ".log"
}

// RecordFailure appends out to the log file of its test. A test that fails
// more than once in a run, e.g. with --repeat, gets every attempt in one file.
func (l *FileLogger) RecordFailure(runID string, out *types.TestOutput) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir, err := l.ensureRunDir(runID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, FileName(out.Test.Label()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", out.Test.Label())
	fmt.Fprintf(&b, "Path: %s\n", out.Test.Name())
	fmt.Fprintf(&b, "Outcome: %s (expected %s)\n", out.Outcome(), out.Test.Outcomes)
	fmt.Fprintf(&b, "Exit code: %d\n", out.Output.ExitCode)
	fmt.Fprintf(&b, "Duration: %s\n", out.Test.Duration)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(out.Command, " "))
	writeBlock(&b, "stdout", out.Output.Stdout)
	writeBlock(&b, "stderr", out.Output.Stderr)
	writeBlock(&b, "diagnostic", strings.Join(out.Diagnostic, "\n"))
	b.WriteString("\n")

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write log file %s: %w", path, err)
	}
	if !contains(l.files[runID], path) {
		l.files[runID] = append(l.files[runID], path)
	}
	return nil
}

func writeBlock(b *strings.Builder, name, content string) {
	content = strings.TrimSpace(stripansi.Strip(content))
	if content == "" {
		return
	}
	fmt.Fprintf(b, "--- %s ---\n%s\n", name, content)
}

// Complete writes the summary of a finished run
func (l *FileLogger) Complete(result *runner.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir, err := l.ensureRunDir(result.RunID)
	if err != nil {
		return err
	}
	st := result.State

	var b strings.Builder
	fmt.Fprintf(&b, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(&b, "Duration: %s\n", result.Duration)
	fmt.Fprintf(&b, "Total: %d\n", st.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", st.Succeeded)
	fmt.Fprintf(&b, "Failed: %d\n", len(st.Failed))
	fmt.Fprintf(&b, "Flaky failed: %d\n", len(st.FlakyFailed))
	fmt.Fprintf(&b, "Crashed: %d\n", st.Crashed)
	if result.Interrupted {
		fmt.Fprintf(&b, "Interrupted: %d tests did not run\n", st.Remaining)
	}
	if len(st.Failed) > 0 {
		b.WriteString("\nFailed tests:\n")
		for _, out := range st.Failed {
			fmt.Fprintf(&b, "  %s (%s)\n", out.Test.Label(), out.Outcome())
		}
	}
	if len(st.FlakyFailed) > 0 {
		b.WriteString("\nFlaky tests:\n")
		for _, out := range st.FlakyFailed {
			fmt.Fprintf(&b, "  %s (%s)\n", out.Test.Label(), out.Outcome())
		}
	}

	path := filepath.Join(dir, SummaryFilename)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// Files returns the log files written for runID
func (l *FileLogger) Files(runID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.files[runID]...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
