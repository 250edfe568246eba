// Package types contains shared types used across the test runner
package types

import (
	"slices"
	"strings"
)

// Outcome is a tag describing an expected or actual test result category
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeSkip    Outcome = "skip"
	OutcomeOkay    Outcome = "okay"
	OutcomeTimeout Outcome = "timeout"
	OutcomeCrash   Outcome = "crash"
	OutcomeSlow    Outcome = "slow"
	OutcomeFlaky   Outcome = "flaky"
)

// String implements the Stringer interface for Outcome
func (o Outcome) String() string {
	return string(o)
}

// OutcomeSet is an unordered set of outcome tags.
// The zero value is an empty, read-only set; use NewOutcomeSet to build one.
type OutcomeSet map[Outcome]struct{}

// NewOutcomeSet creates a set holding the given outcomes
func NewOutcomeSet(outcomes ...Outcome) OutcomeSet {
	s := make(OutcomeSet, len(outcomes))
	for _, o := range outcomes {
		s[o] = struct{}{}
	}
	return s
}

// Add inserts o into the set
func (s OutcomeSet) Add(o Outcome) {
	s[o] = struct{}{}
}

// Has reports whether o is a member of the set
func (s OutcomeSet) Has(o Outcome) bool {
	_, ok := s[o]
	return ok
}

// Len returns the number of members
func (s OutcomeSet) Len() int {
	return len(s)
}

// Union returns a new set with the members of both sets
func (s OutcomeSet) Union(other OutcomeSet) OutcomeSet {
	out := make(OutcomeSet, len(s)+len(other))
	for o := range s {
		out[o] = struct{}{}
	}
	for o := range other {
		out[o] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the members present in both sets
func (s OutcomeSet) Intersect(other OutcomeSet) OutcomeSet {
	out := make(OutcomeSet)
	for o := range s {
		if other.Has(o) {
			out[o] = struct{}{}
		}
	}
	return out
}

// Intersects reports whether the two sets share at least one member
func (s OutcomeSet) Intersects(other OutcomeSet) bool {
	for o := range s {
		if other.Has(o) {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold exactly the same members
func (s OutcomeSet) Equal(other OutcomeSet) bool {
	if len(s) != len(other) {
		return false
	}
	for o := range s {
		if !other.Has(o) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the set
func (s OutcomeSet) Clone() OutcomeSet {
	return s.Union(nil)
}

// Sorted returns the members in lexical order
func (s OutcomeSet) Sorted() []Outcome {
	out := make([]Outcome, 0, len(s))
	for o := range s {
		out = append(out, o)
	}
	slices.Sort(out)
	return out
}

func (s OutcomeSet) String() string {
	parts := make([]string, 0, len(s))
	for _, o := range s.Sorted() {
		parts = append(parts, string(o))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
