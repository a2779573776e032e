package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Label vocabulary shared by intake and rebalancing.
const (
	LabelImplementationReady = "implementation ready"
	LabelNeedsApproval       = "needs-approval"
	LabelIndependent         = "independent"
)

// Lane is the work-queue bucket of an issue. The zero value is the bench.
type Lane int

const (
	LaneOnBench Lane = iota
	LaneAtBat
	LaneOnDeck
	LaneInTheHole
)

// Lanes lists every lane in priority order, bench last.
var Lanes = []Lane{LaneAtBat, LaneOnDeck, LaneInTheHole, LaneOnBench}

// String returns the label text used on the tracker.
func (l Lane) String() string {
	switch l {
	case LaneAtBat:
		return "at bat"
	case LaneOnDeck:
		return "on deck"
	case LaneInTheHole:
		return "in the hole"
	default:
		return "on the bench"
	}
}

// ParseLane matches lane label text case-insensitively.
func ParseLane(label string) (Lane, bool) {
	name := strings.ToLower(strings.TrimSpace(label))
	for _, lane := range Lanes {
		if lane.String() == name {
			return lane, true
		}
	}
	return LaneOnBench, false
}

// IsLaneLabel reports whether label names any lane.
func IsLaneLabel(label string) bool {
	_, ok := ParseLane(label)
	return ok
}

// Size is the estimated effort of an issue; smaller ranks first.
type Size int

const (
	SizeSmall Size = iota
	SizeMedium
	SizeLarge
)

func (s Size) String() string {
	switch s {
	case SizeSmall:
		return "small"
	case SizeLarge:
		return "large"
	default:
		return "medium"
	}
}

// Issue is an open tracker issue with its labels decoded into typed fields.
type Issue struct {
	Number    int
	NodeID    string
	Title     string
	CreatedAt time.Time
	Labels    []string

	// Body, URL and Author are filled by trackers that fetch them; ranking ignores them.
	Body   string
	URL    string
	Author string

	Score       int
	Independent bool
	Size        Size
	Approved    bool
	Lane        Lane
}

// NewIssue builds an Issue and decodes priority, independence, size,
// approval and current lane from its labels.
func NewIssue(number int, nodeID, title string, createdAt time.Time, labels []string) Issue {
	cleaned := make([]string, 0, len(labels))
	for _, label := range labels {
		if label = strings.TrimSpace(label); label != "" {
			cleaned = append(cleaned, label)
		}
	}

	return Issue{
		Number:      number,
		NodeID:      nodeID,
		Title:       title,
		CreatedAt:   createdAt,
		Labels:      cleaned,
		Score:       scoreFromLabels(cleaned),
		Independent: independenceFromLabels(cleaned),
		Size:        sizeFromLabels(cleaned),
		Approved:    HasLabel(cleaned, LabelImplementationReady),
		Lane:        laneFromLabels(cleaned),
	}
}

// AssignLane sets the lane and rewrites the labels so exactly one lane label remains.
func (i *Issue) AssignLane(lane Lane) {
	i.Labels = append(WithoutLaneLabels(i.Labels), lane.String())
	i.Lane = lane
}

// HasLaneLabels reports whether any lane label is attached.
func (i Issue) HasLaneLabels() bool {
	for _, label := range i.Labels {
		if IsLaneLabel(label) {
			return true
		}
	}
	return false
}

// HasLabel compares label names case-insensitively.
func HasLabel(labels []string, name string) bool {
	target := strings.ToLower(name)
	for _, label := range labels {
		if strings.ToLower(label) == target {
			return true
		}
	}
	return false
}

// WithoutLaneLabels returns a copy of labels with every lane label removed.
func WithoutLaneLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		if IsLaneLabel(label) {
			continue
		}
		out = append(out, label)
	}
	return out
}

// ClampScore bounds a priority score to [0, 100].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

var scoreExpr = regexp.MustCompile(`^(?:priority|score):\s*(\d{1,3})$`)

func scoreFromLabels(labels []string) int {
	score := 0
	for _, label := range labels {
		match := scoreExpr.FindStringSubmatch(strings.ToLower(label))
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		score = max(score, ClampScore(n))
	}
	return score
}

func independenceFromLabels(labels []string) bool {
	for _, label := range labels {
		if strings.ToLower(label) == LabelIndependent {
			return true
		}
	}
	for _, label := range labels {
		value, ok := labelValue(label, "independence")
		if !ok {
			continue
		}
		return value == "high" || value == "yes" || value == "true"
	}
	return false
}

func sizeFromLabels(labels []string) Size {
	for _, label := range labels {
		value, ok := labelValue(label, "size")
		if !ok {
			continue
		}
		switch value {
		case "small":
			return SizeSmall
		case "large":
			return SizeLarge
		default:
			return SizeMedium
		}
	}
	return SizeMedium
}

func laneFromLabels(labels []string) Lane {
	for _, lane := range Lanes {
		if HasLabel(labels, lane.String()) {
			return lane
		}
	}
	return LaneOnBench
}

// labelValue splits "prefix:value" labels, lowercasing the value.
func labelValue(label, prefix string) (string, bool) {
	lower := strings.ToLower(label)
	if !strings.HasPrefix(lower, prefix+":") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(lower, prefix+":")), true
}
