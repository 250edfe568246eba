package runner

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-testrunner/types"
)

// ShouldKeep reports whether a classified case is scheduled at all
func ShouldKeep(tc *types.TestCase, skipTests []string, mode types.FlakyMode) bool {
	for _, s := range skipTests {
		if s != "" && strings.Contains(tc.File, s) {
			return false
		}
	}
	if tc.Outcomes.Has(types.OutcomeSkip) {
		return false
	}
	if mode == types.FlakySkip && (tc.Outcomes.Has(types.OutcomeSlow) || tc.Outcomes.Has(types.OutcomeFlaky)) {
		return false
	}
	return true
}

// Filter returns the cases ShouldKeep accepts, preserving order
func Filter(cases []*types.TestCase, skipTests []string, mode types.FlakyMode) []*types.TestCase {
	out := make([]*types.TestCase, 0, len(cases))
	for _, tc := range cases {
		if ShouldKeep(tc, skipTests, mode) {
			out = append(out, tc)
		}
	}
	return out
}

// Shard selects every m-th case starting at n. Cases are first stably sorted
// by architecture, mode and file so that every machine in a sharded run
// agrees on the order.
func Shard(cases []*types.TestCase, n, m int) ([]*types.TestCase, error) {
	if n < 0 || m < 0 {
		return nil, fmt.Errorf("the run argument cannot have negative integers")
	}
	if n >= m {
		return nil, fmt.Errorf("the test group to run (n) must be smaller than number of groups (m)")
	}
	sorted := slices.Clone(cases)
	slices.SortStableFunc(sorted, func(a, b *types.TestCase) int {
		return cmp.Or(
			cmp.Compare(a.Arch, b.Arch),
			cmp.Compare(a.Mode, b.Mode),
			cmp.Compare(a.File, b.File),
		)
	})
	var out []*types.TestCase
	for i := n; i < len(sorted); i += m {
		out = append(out, sorted[i])
	}
	return out, nil
}

// Repeat returns the case list duplicated n times. Each copy is independent.
func Repeat(cases []*types.TestCase, n int) []*types.TestCase {
	if n <= 1 {
		return cases
	}
	out := make([]*types.TestCase, 0, len(cases)*n)
	for i := 0; i < n; i++ {
		for _, tc := range cases {
			if i == 0 {
				out = append(out, tc)
				continue
			}
			out = append(out, tc.Clone())
		}
	}
	return out
}
