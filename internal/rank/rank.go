// Package rank orders approved issues and partitions them into lanes.
package rank

import (
	"cmp"
	"slices"

	"ResourceCurator/internal/domain"
)

// LaneCapacity bounds at bat, on deck and in the hole.
const LaneCapacity = 3

var activeLanes = []domain.Lane{domain.LaneAtBat, domain.LaneOnDeck, domain.LaneInTheHole}

// Compare orders issues by score desc, independence first, smaller size,
// older creation time and finally lower number. It never returns 0 for
// distinct issue numbers.
func Compare(a, b domain.Issue) int {
	if c := cmp.Compare(domain.ClampScore(b.Score), domain.ClampScore(a.Score)); c != 0 {
		return c
	}
	if a.Independent != b.Independent {
		if a.Independent {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Size, b.Size); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Number, b.Number)
}

// Sort returns a sorted copy of issues.
func Sort(issues []domain.Issue) []domain.Issue {
	sorted := slices.Clone(issues)
	slices.SortFunc(sorted, Compare)
	return sorted
}

// Ranking is the desired lane assignment for a set of issues.
type Ranking struct {
	// Ordered holds the approved issues, best first.
	Ordered []domain.Issue
	// Lanes covers every input issue.
	Lanes map[int]domain.Lane
}

// Rank computes lanes: the top approved issues fill the active lanes in
// order, everything else goes to the bench.
func Rank(issues []domain.Issue) Ranking {
	approved := make([]domain.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.Approved {
			issue.Score = domain.ClampScore(issue.Score)
			approved = append(approved, issue)
		}
	}
	slices.SortFunc(approved, Compare)

	lanes := make(map[int]domain.Lane, len(issues))
	for _, issue := range issues {
		lanes[issue.Number] = domain.LaneOnBench
	}
	for pos, issue := range approved {
		lanes[issue.Number] = laneForPosition(pos)
	}

	return Ranking{Ordered: approved, Lanes: lanes}
}

func laneForPosition(pos int) domain.Lane {
	bucket := pos / LaneCapacity
	if bucket < len(activeLanes) {
		return activeLanes[bucket]
	}
	return domain.LaneOnBench
}

// Lane returns the desired lane for an issue number, bench if unknown.
func (r Ranking) Lane(number int) domain.Lane {
	if lane, ok := r.Lanes[number]; ok {
		return lane
	}
	return domain.LaneOnBench
}

// Count returns how many issues are assigned to lane.
func (r Ranking) Count(lane domain.Lane) int {
	n := 0
	for _, l := range r.Lanes {
		if l == lane {
			n++
		}
	}
	return n
}

// Members lists the approved issue numbers in lane, in rank order.
func (r Ranking) Members(lane domain.Lane) []int {
	var out []int
	for _, issue := range r.Ordered {
		if r.Lanes[issue.Number] == lane {
			out = append(out, issue.Number)
		}
	}
	return out
}

// Move is a lane change the tracker needs to apply.
type Move struct {
	Issue domain.Issue
	From  domain.Lane
	To    domain.Lane
}

// Moves lists issues whose current lane differs from the ranking.
func (r Ranking) Moves(issues []domain.Issue) []Move {
	var moves []Move
	for _, issue := range issues {
		want := r.Lane(issue.Number)
		if issue.Lane != want {
			moves = append(moves, Move{Issue: issue, From: issue.Lane, To: want})
		}
	}
	return moves
}
