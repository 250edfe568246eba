package status

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"
)

var (
	headerPattern = regexp.MustCompile(`^\[([^\]]+)\]`)
	rulePattern   = regexp.MustCompile(`^\s*([^: ]*)\s*:(.*)`)
	defPattern    = regexp.MustCompile(`^def\s*(\w+)\s*=(.*)$`)
	prefixPattern = regexp.MustCompile(`^\s*prefix\s+([\w_.\-/]+)$`)
)

type line struct {
	number int
	text   string
}

// readLines strips comments and surrounding space, dropping lines left empty
func readLines(r io.Reader) ([]line, error) {
	var lines []line
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		lines = append(lines, line{number: n, text: text})
	}
	return lines, sc.Err()
}

// ReadConfigurationInto reads the status file at path and appends its sections and defs to cfg
func ReadConfigurationInto(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open status file: %w", err)
	}
	defer f.Close()
	return ParseInto(f, path, cfg)
}

// ParseInto parses status-file text from r into cfg. name is used in error messages.
// Every file opens with an implicit section whose condition is true, and a
// prefix declared in one file does not carry over to the next.
func ParseInto(r io.Reader, name string, cfg *Configuration) error {
	lines, err := readLines(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if cfg.Defs == nil {
		cfg.Defs = make(Defs)
	}

	current := NewSection(&Constant{Value: true})
	cfg.Sections = append(cfg.Sections, current)
	var prefix []*Pattern

	fail := func(l line, err error) error {
		return &ParseError{File: name, Line: l.number, Text: l.text, Err: err}
	}

	for _, l := range lines {
		if m := headerPattern.FindStringSubmatch(l.text); m != nil {
			cond, err := ParseCondition(strings.TrimSpace(m[1]))
			if err != nil {
				return fail(l, err)
			}
			current = NewSection(cond)
			cfg.Sections = append(cfg.Sections, current)
			continue
		}
		if m := rulePattern.FindStringSubmatch(l.text); m != nil {
			raw := strings.TrimSpace(m[1])
			segs, err := SplitPath(raw)
			if err != nil {
				return fail(l, err)
			}
			value, err := ParseCondition(strings.TrimSpace(m[2]))
			if err != nil {
				return fail(l, err)
			}
			path := append(slices.Clone(prefix), segs...)
			current.AddRule(&Rule{RawPath: m[1], Path: path, Value: value})
			continue
		}
		if m := defPattern.FindStringSubmatch(l.text); m != nil {
			defName := strings.ToLower(m[1])
			value, err := ParseCondition(strings.TrimSpace(m[2]))
			if err != nil {
				return fail(l, err)
			}
			cfg.Defs[defName] = value
			if cyclic(defName, cfg.Defs) {
				delete(cfg.Defs, defName)
				return fail(l, fmt.Errorf("def %s refers to itself", defName))
			}
			continue
		}
		if m := prefixPattern.FindStringSubmatch(l.text); m != nil {
			prefix, err = SplitPath(strings.TrimSpace(m[1]))
			if err != nil {
				return fail(l, err)
			}
			continue
		}
		return fail(l, ErrMalformedLine)
	}
	return nil
}

// cyclic reports whether the def name can reach itself through other defs
func cyclic(name string, defs Defs) bool {
	seen := make(map[string]bool)
	var visit func(string) bool
	visit = func(n string) bool {
		def, ok := defs[n]
		if !ok {
			return false
		}
		for _, ref := range references(def) {
			if ref == name {
				return true
			}
			if seen[ref] {
				continue
			}
			seen[ref] = true
			if visit(ref) {
				return true
			}
		}
		return false
	}
	return visit(name)
}

// Format writes cfg back out as status-file text. Reading the output again
// yields a configuration that classifies every path the same way.
func Format(w io.Writer, cfg *Configuration) error {
	bw := bufio.NewWriter(w)
	names := make([]string, 0, len(cfg.Defs))
	for n := range cfg.Defs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(bw, "def %s = %s\n", n, cfg.Defs[n])
	}
	for _, s := range cfg.Sections {
		if len(s.Rules) == 0 {
			continue
		}
		fmt.Fprintf(bw, "\n[%s]\n", s.Condition)
		for _, r := range s.Rules {
			fmt.Fprintf(bw, "%s: %s\n", JoinPatterns(r.Path), r.Value)
		}
	}
	return bw.Flush()
}
