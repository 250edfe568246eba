package runner

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// CommandProcessor rewrites a test command line before it is executed
type CommandProcessor func(args []string) []string

func identityCommand(args []string) []string { return args }

// ParseSpecialCommand builds a processor from a "prefix@suffix" template. The
// command is placed where the '@' is. Both halves are URL-unescaped and split
// on whitespace. A value without '@' leaves commands untouched.
func ParseSpecialCommand(value string) (CommandProcessor, error) {
	prefix, suffix, ok := strings.Cut(value, "@")
	if !ok {
		return identityCommand, nil
	}
	pre, err := url.PathUnescape(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid special command prefix: %w", err)
	}
	post, err := url.PathUnescape(suffix)
	if err != nil {
		return nil, fmt.Errorf("invalid special command suffix: %w", err)
	}
	preArgs, postArgs := strings.Fields(pre), strings.Fields(post)
	return func(args []string) []string {
		return slices.Concat(preArgs, args, postArgs)
	}, nil
}
