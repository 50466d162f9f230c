package executor

import "sort"

// Aggregate produces the deterministic final ordering: hosts ascending
// by hostname, outcomes within each host ascending by command index.
// Completion timing never affects the result, and running Aggregate
// again on its own output is a no-op.
func Aggregate(outcomes []HostOutcome) []HostOutcome {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Host.Host < outcomes[j].Host.Host
	})
	for i := range outcomes {
		sortOutcomes(outcomes[i].Outcomes)
	}
	return outcomes
}

// sortOutcomes re-asserts ascending index order. The host runner
// already constructs outcomes in index order; this guards the invariant
// against any restructuring upstream. Outcomes without a command index
// (connection and close errors) compare equal to everything, so the
// stable sort leaves them in place and a trailing close error stays
// last.
func sortOutcomes(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		a, b := outcomes[i], outcomes[j]
		if a.Index == NoIndex || b.Index == NoIndex {
			return false
		}
		return a.Index < b.Index
	})
}
