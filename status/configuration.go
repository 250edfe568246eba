package status

import (
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// Rule maps a path pattern to an outcome expression
type Rule struct {
	RawPath string
	Path    []*Pattern
	Value   Expression
}

// Contains reports whether the rule applies to a test path. The rule path
// may be shorter than the test path, in which case it matches as a prefix.
func (r *Rule) Contains(path []string) bool {
	if len(r.Path) > len(path) {
		return false
	}
	for i, p := range r.Path {
		if !p.Match(path[i]) {
			return false
		}
	}
	return true
}

// Outcomes evaluates the rule value in set context
func (r *Rule) Outcomes(env Env, defs Defs) types.OutcomeSet {
	return r.Value.Outcomes(env, defs)
}

func (r *Rule) String() string {
	return JoinPatterns(r.Path)
}

// Section is a group of rules enabled by a condition
type Section struct {
	Condition Expression
	Rules     []*Rule
}

// NewSection creates an empty section gated by condition
func NewSection(condition Expression) *Section {
	return &Section{Condition: condition}
}

func (s *Section) AddRule(r *Rule) {
	s.Rules = append(s.Rules, r)
}

// Configuration is the merged content of every status file read for a run
type Configuration struct {
	Sections []*Section
	Defs     Defs
}

// NewConfiguration returns an empty configuration
func NewConfiguration() *Configuration {
	return &Configuration{Defs: make(Defs)}
}

// ActiveRules returns, in declaration order, the rules of every section whose condition holds in env
func (c *Configuration) ActiveRules(env Env) []*Rule {
	var rules []*Rule
	for _, s := range c.Sections {
		if s.Condition.Evaluate(env, c.Defs) {
			rules = append(rules, s.Rules...)
		}
	}
	return rules
}

// Classify computes the expected outcome set for a single test path
func (c *Configuration) Classify(path []string, env Env) types.OutcomeSet {
	outcomes, _ := c.classify(path, env, c.ActiveRules(env))
	return outcomes
}

func (c *Configuration) classify(path []string, env Env, rules []*Rule) (types.OutcomeSet, []*Rule) {
	outcomes := types.NewOutcomeSet()
	var matched []*Rule
	for _, r := range rules {
		if r.Contains(path) {
			matched = append(matched, r)
			outcomes = outcomes.Union(r.Outcomes(env, c.Defs))
		}
	}
	if outcomes.Len() == 0 {
		outcomes.Add(types.OutcomePass)
	}
	// slow tests may also just pass
	if outcomes.Has(types.OutcomeSlow) {
		outcomes.Add(types.OutcomePass)
	}
	return outcomes, matched
}

// ClassifyTests sets the Outcomes of every case and returns the active rules
// that matched none of them.
func (c *Configuration) ClassifyTests(cases []*types.TestCase, env Env) ([]*types.TestCase, RuleSet) {
	rules := c.ActiveRules(env)
	unused := NewRuleSet(rules...)
	for _, tc := range cases {
		outcomes, matched := c.classify(tc.Path, env, rules)
		for _, r := range matched {
			unused.Remove(r)
		}
		tc.Outcomes = outcomes
	}
	return cases, unused
}

// RuleSet is a set of rules keyed by identity
type RuleSet map[*Rule]struct{}

func NewRuleSet(rules ...*Rule) RuleSet {
	s := make(RuleSet, len(rules))
	for _, r := range rules {
		s[r] = struct{}{}
	}
	return s
}

func (s RuleSet) Remove(r *Rule) {
	delete(s, r)
}

func (s RuleSet) Has(r *Rule) bool {
	_, ok := s[r]
	return ok
}

// Intersect returns the rules present in both sets
func (s RuleSet) Intersect(other RuleSet) RuleSet {
	out := make(RuleSet)
	for r := range s {
		if other.Has(r) {
			out[r] = struct{}{}
		}
	}
	return out
}

// Sorted returns the rules ordered by their rendered path
func (s RuleSet) Sorted() []*Rule {
	out := make([]*Rule, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b *Rule) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}

// UnusedRules accumulates unused rules across several classification passes.
// A rule is reported only if it went unused in every pass.
type UnusedRules struct {
	set RuleSet
}

// Observe intersects the rules left unused by one pass into the accumulated set
func (u *UnusedRules) Observe(unused RuleSet) {
	if u.set == nil {
		u.set = NewRuleSet()
		for r := range unused {
			u.set[r] = struct{}{}
		}
		return
	}
	u.set = u.set.Intersect(unused)
}

// Rules returns the globally unused rules
func (u *UnusedRules) Rules() []*Rule {
	return u.set.Sorted()
}
