// Package reconcile carries continuity metadata from the previously
// published resource list onto a freshly generated one.
package reconcile

import "ResourceCurator/internal/domain"

// Stats counts how a generation matched the previous list.
type Stats struct {
	Previous  int
	Generated int
	Matched   int
	New       int
}

// Reconcile annotates generated with weeks_on_list values derived from
// previous. Membership and order come from generated alone; entries only
// present in previous are dropped.
func Reconcile(previous, generated []domain.Resource) []domain.Resource {
	merged, _ := ReconcileWithStats(previous, generated)
	return merged
}

// ReconcileWithStats is Reconcile plus match counts. Neither input is modified.
func ReconcileWithStats(previous, generated []domain.Resource) ([]domain.Resource, Stats) {
	lookup := make(map[domain.ResourceKey]domain.Resource, len(previous))
	for _, res := range previous {
		// later duplicates win
		lookup[res.Key()] = res
	}

	stats := Stats{Previous: len(previous), Generated: len(generated)}
	merged := make([]domain.Resource, len(generated))
	for i, res := range generated {
		prev, ok := lookup[res.Key()]
		if ok && matchable(res) {
			weeks := prev.WeeksOnList
			if weeks < 1 {
				weeks = 1
			}
			res.WeeksOnList = weeks + 1
			stats.Matched++
		} else {
			res.WeeksOnList = 1
			stats.New++
		}
		merged[i] = res
	}

	return merged, stats
}

// matchable rejects resources without a title or source; they are always new.
func matchable(res domain.Resource) bool {
	return res.Title != "" && res.Source != ""
}
