package domain

// LabelNeedsReview marks a parent issue that was split into sub-issues.
const LabelNeedsReview = "needs-review"

// SubIssue is one piece of a split proposed by a review.
type SubIssue struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Review is a model's triage decision for an issue plus the report shown to
// its author. Label changes are applied as returned.
type Review struct {
	Ready           bool
	Size            string
	AddLabels       []string
	RemoveLabels    []string
	NeedsSplit      bool
	SubIssues       []SubIssue
	ReformattedBody string

	// Report is the human-readable review posted as a comment.
	Report string
}

// ApplyLabels returns labels with the review's additions and removals
// applied. Additions already present (case-insensitive) are not repeated.
func (r Review) ApplyLabels(labels []string) []string {
	out := make([]string, 0, len(labels)+len(r.AddLabels))
	for _, label := range labels {
		if HasLabel(r.RemoveLabels, label) {
			continue
		}
		out = append(out, label)
	}
	for _, label := range r.AddLabels {
		if label == "" || HasLabel(out, label) || HasLabel(r.RemoveLabels, label) {
			continue
		}
		out = append(out, label)
	}
	return out
}
