package domain

import (
	"testing"
	"time"
)

func TestNewIssueDecodesLabels(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		labels      []string
		score       int
		independent bool
		size        Size
		approved    bool
		lane        Lane
	}{
		{name: "defaults", labels: nil, score: 0, size: SizeMedium, lane: LaneOnBench},
		{name: "priority", labels: []string{"priority:85"}, score: 85, size: SizeMedium, lane: LaneOnBench},
		{name: "score with space", labels: []string{"Score: 42"}, score: 42, size: SizeMedium, lane: LaneOnBench},
		{name: "max of several", labels: []string{"score:40", "priority:77"}, score: 77, size: SizeMedium, lane: LaneOnBench},
		{name: "clamped", labels: []string{"priority:150"}, score: 100, size: SizeMedium, lane: LaneOnBench},
		{name: "four digits ignored", labels: []string{"priority:1500"}, score: 0, size: SizeMedium, lane: LaneOnBench},
		{name: "independent", labels: []string{"independent"}, independent: true, size: SizeMedium, lane: LaneOnBench},
		{name: "independence high", labels: []string{"Independence:High"}, independent: true, size: SizeMedium, lane: LaneOnBench},
		{name: "independence low", labels: []string{"independence:low"}, size: SizeMedium, lane: LaneOnBench},
		{name: "small", labels: []string{"size:small"}, size: SizeSmall, lane: LaneOnBench},
		{name: "large", labels: []string{"size: Large"}, size: SizeLarge, lane: LaneOnBench},
		{name: "unknown size", labels: []string{"size:xl"}, size: SizeMedium, lane: LaneOnBench},
		{name: "approved", labels: []string{"Implementation Ready"}, approved: true, size: SizeMedium, lane: LaneOnBench},
		{name: "lane", labels: []string{" on deck "}, size: SizeMedium, lane: LaneOnDeck},
		{name: "first lane in priority order", labels: []string{"in the hole", "at bat"}, size: SizeMedium, lane: LaneAtBat},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			issue := NewIssue(7, "I_7", "title", created, tc.labels)
			if issue.Score != tc.score {
				t.Fatalf("score: want %d got %d", tc.score, issue.Score)
			}
			if issue.Independent != tc.independent {
				t.Fatalf("independent: want %v got %v", tc.independent, issue.Independent)
			}
			if issue.Size != tc.size {
				t.Fatalf("size: want %s got %s", tc.size, issue.Size)
			}
			if issue.Approved != tc.approved {
				t.Fatalf("approved: want %v got %v", tc.approved, issue.Approved)
			}
			if issue.Lane != tc.lane {
				t.Fatalf("lane: want %s got %s", tc.lane, issue.Lane)
			}
		})
	}
}

func TestAssignLaneKeepsExactlyOneLaneLabel(t *testing.T) {
	t.Parallel()

	issue := NewIssue(1, "", "t", time.Time{}, []string{"at bat", "On Deck", "bug", "priority:80"})
	issue.AssignLane(LaneInTheHole)

	if issue.Lane != LaneInTheHole {
		t.Fatalf("lane not updated: %s", issue.Lane)
	}

	lanes := 0
	for _, label := range issue.Labels {
		if IsLaneLabel(label) {
			lanes++
			if label != "in the hole" {
				t.Fatalf("unexpected lane label %q", label)
			}
		}
	}
	if lanes != 1 {
		t.Fatalf("expected exactly one lane label, got %d in %v", lanes, issue.Labels)
	}
	if !HasLabel(issue.Labels, "bug") || !HasLabel(issue.Labels, "priority:80") {
		t.Fatalf("non-lane labels dropped: %v", issue.Labels)
	}
}

func TestParseLane(t *testing.T) {
	t.Parallel()

	for _, lane := range Lanes {
		got, ok := ParseLane(lane.String())
		if !ok || got != lane {
			t.Fatalf("round trip failed for %s", lane)
		}
	}
	if _, ok := ParseLane("backlog"); ok {
		t.Fatal("backlog is not a lane")
	}
	var zero Lane
	if zero != LaneOnBench {
		t.Fatal("zero lane must be the bench")
	}
}
