// Package reporting renders scheduler progress in the supported output styles.
package reporting

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/term"

	"github.com/ethereum-optimism/infra/op-testrunner/runner"
	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// Style names a progress indicator
type Style string

const (
	StyleVerbose Style = "verbose"
	StyleDots    Style = "dots"
	StyleColor   Style = "color"
	StyleTap     Style = "tap"
	StyleMono    Style = "mono"
	StyleDeopts  Style = "deopts"
	StyleActions Style = "actions"
	StyleLog     Style = "log"
)

// DefaultStyle is used when no style is requested
const DefaultStyle = StyleMono

// Styles lists every supported style
var Styles = []Style{StyleVerbose, StyleDots, StyleColor, StyleTap, StyleMono, StyleDeopts, StyleActions, StyleLog}

// defaultStatusWidth bounds the compact status line when the output is not a terminal
const defaultStatusWidth = 78

// ParseStyle validates a style name
func ParseStyle(s string) (Style, error) {
	style := Style(s)
	if !slices.Contains(Styles, style) {
		return "", fmt.Errorf("unknown progress style %q, expected one of %v", s, Styles)
	}
	return style, nil
}

// Options configures the indicators
type Options struct {
	Out   io.Writer
	Log   log.Logger
	Clock clock.Clock
	// TestRoot is stripped from test file names in tap, deopts and actions output
	TestRoot string
	// Windows selects the Windows crash label
	Windows bool
	// Width bounds the compact status line. Zero detects the terminal width.
	Width int
	// LogFile, when set, receives a copy of the tap output
	LogFile io.Writer
	// ProgressInterval is the log style's periodic update interval
	ProgressInterval time.Duration
}

// New returns the indicator factory for style
func New(style Style, opts Options) (runner.IndicatorFactory, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewClock()
	}
	if opts.Log == nil {
		opts.Log = log.New()
	}
	if opts.Width <= 0 {
		opts.Width = terminalWidth(opts.Out)
	}

	switch style {
	case StyleVerbose:
		return func(state *types.RunState) runner.ProgressIndicator {
			return &verboseIndicator{simpleIndicator: newSimple(state, opts)}
		}, nil
	case StyleDots:
		return func(state *types.RunState) runner.ProgressIndicator {
			return &dotsIndicator{simpleIndicator: newSimple(state, opts)}
		}, nil
	case StyleColor:
		return func(state *types.RunState) runner.ProgressIndicator {
			return newCompact(state, opts, colorTemplates)
		}, nil
	case StyleMono, "":
		return func(state *types.RunState) runner.ProgressIndicator {
			return newCompact(state, opts, monoTemplates)
		}, nil
	case StyleTap:
		return func(state *types.RunState) runner.ProgressIndicator {
			return newTap(state, opts)
		}, nil
	case StyleDeopts:
		return func(state *types.RunState) runner.ProgressIndicator {
			return &deoptsIndicator{state: state, out: opts.Out, testRoot: opts.TestRoot}
		}, nil
	case StyleActions:
		return func(state *types.RunState) runner.ProgressIndicator {
			return &actionsIndicator{dotsIndicator: dotsIndicator{simpleIndicator: newSimple(state, opts)}, testRoot: opts.TestRoot}
		}, nil
	case StyleLog:
		return runner.NewLogProgressIndicator(opts.Log, opts.Clock, opts.ProgressInterval), nil
	default:
		return nil, fmt.Errorf("unknown progress style %q", style)
	}
}

// terminalWidth returns the column count of out when it is a terminal
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultStatusWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 1 {
		return defaultStatusWidth
	}
	return width - 1
}
