package status

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern matches a single path segment. The only wildcard is '*', which
// matches any run of characters; the whole segment must match.
type Pattern struct {
	glob     string
	compiled *regexp.Regexp
}

// NewPattern compiles a glob segment
func NewPattern(glob string) (*Pattern, error) {
	re, err := regexp.Compile("^" + strings.ReplaceAll(glob, "*", ".*") + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", glob, err)
	}
	return &Pattern{glob: glob, compiled: re}, nil
}

// Match reports whether the segment s matches the pattern
func (p *Pattern) Match(s string) bool {
	return p.compiled.MatchString(s)
}

func (p *Pattern) String() string {
	return p.glob
}

// SplitPath splits a rule path on '/' into compiled segment patterns.
// Segments are trimmed and empty segments are dropped.
func SplitPath(path string) ([]*Pattern, error) {
	var out []*Pattern
	for _, seg := range strings.Split(path, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		p, err := NewPattern(seg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// JoinPatterns renders a pattern path back into its slash-separated form
func JoinPatterns(path []*Pattern) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = p.glob
	}
	return strings.Join(parts, "/")
}
