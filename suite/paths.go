package suite

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/status"
)

// IgnoredSuites are left out of a default run and only run when named explicitly
var IgnoredSuites = []string{
	"addons",
	"benchmark",
	"doctool",
	"internet",
	"js-native-api",
	"node-api",
	"pummel",
	"tick-processor",
	"v8-updates",
}

var subsystemPattern = regexp.MustCompile(`^[a-zA-Z-]*$`)

// NormalizePath strips prefix and a trailing .js or .mjs from path.
// Backslashes are treated as separators.
func NormalizePath(path, prefix string) string {
	prefix = strings.ReplaceAll(prefix, `\`, "/")
	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.TrimPrefix(path, prefix)
	if s, ok := strings.CutSuffix(path, ".js"); ok {
		return s
	}
	if s, ok := strings.CutSuffix(path, ".mjs"); ok {
		return s
	}
	return path
}

// ArgsToTestPaths turns positional arguments into path patterns.
//
// No arguments, or the word "default", selects every suite except the ignored
// ones. A bare word that is not a suite name selects that subsystem's tests
// in every suite, so "fs" becomes "*/test*-fs-*".
func ArgsToTestPaths(args []string, suites []string) ([][]*status.Pattern, error) {
	if len(args) == 0 || slices.Contains(args, "default") {
		var expanded []string
		for _, a := range args {
			if a != "default" {
				expanded = append(expanded, a)
			}
		}
		for _, s := range suites {
			if !slices.Contains(IgnoredSuites, s) {
				expanded = append(expanded, s)
			}
		}
		args = expanded
	}

	paths := make([][]*status.Pattern, 0, len(args))
	for _, arg := range args {
		if subsystemPattern.MatchString(arg) && !slices.Contains(suites, arg) {
			arg = fmt.Sprintf("*/test*-%s-*", arg)
		}
		p, err := status.SplitPath(NormalizePath(arg, "test/"))
		if err != nil {
			return nil, fmt.Errorf("invalid test argument %q: %w", arg, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
