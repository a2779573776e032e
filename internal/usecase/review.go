package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

const (
	reviewLabelColor = "d4c5f9"

	reviewHeader       = "### PM review: automated checklist assessment"
	reviewFooter       = "_(Authored by the project manager review automation)_"
	reviewSkippedText  = "PM review skipped: no model provider is configured. Configure an API key and re-run to enable the review."
	reviewSkippedHint  = "_(Set ANTHROPIC_API_KEY to enable the review.)_"
	reformattedComment = "The issue description has been automatically reformatted to conform to the appropriate template structure for better clarity and consistency."
)

// ReviewReport describes what a review changed.
type ReviewReport struct {
	Skipped     bool
	Review      domain.Review
	Labels      []string
	SubIssues   []domain.Issue
	Reformatted bool
}

// Review asks a model to triage a newly opened issue, posts its report and
// applies its label decisions. Large items are split into sub-issues.
type Review struct {
	tracker  ports.IssueTracker
	reviewer ports.IssueReviewer
	logger   *slog.Logger
	lock     sync.Locker
}

// NewReview wires the tracker and reviewer. A nil reviewer posts a skip notice.
func NewReview(tracker ports.IssueTracker, reviewer ports.IssueReviewer, logger *slog.Logger) *Review {
	if logger == nil {
		logger = slog.Default()
	}
	return &Review{tracker: tracker, reviewer: reviewer, logger: logger, lock: &sync.Mutex{}}
}

// UseLock makes label rewrites share lock with intake and rebalancing.
func (r *Review) UseLock(lock sync.Locker) {
	if lock != nil {
		r.lock = lock
	}
}

// Run reviews issue number.
func (r *Review) Run(ctx context.Context, number int) (ReviewReport, error) {
	if number <= 0 {
		return ReviewReport{}, fmt.Errorf("invalid issue number %d", number)
	}
	logger := r.logger.With("issue", number)

	if r.reviewer == nil {
		if err := r.tracker.AddComment(ctx, number, reviewHeader+"\n\n"+reviewSkippedText+"\n\n"+reviewSkippedHint); err != nil {
			return ReviewReport{}, fmt.Errorf("comment on issue #%d: %w", number, err)
		}
		logger.Warn("review skipped, no reviewer configured")
		return ReviewReport{Skipped: true}, nil
	}

	issue, err := r.tracker.GetIssue(ctx, number)
	if err != nil {
		return ReviewReport{}, fmt.Errorf("get issue #%d: %w", number, err)
	}

	review, err := r.reviewer.Review(ctx, issue)
	if err != nil {
		return ReviewReport{}, fmt.Errorf("review issue #%d: %w", number, err)
	}
	report := ReviewReport{Review: review}

	if err := r.tracker.AddComment(ctx, number, ReviewComment(review.Report)); err != nil {
		return report, fmt.Errorf("comment on issue #%d: %w", number, err)
	}

	for _, name := range review.AddLabels {
		if name == "" || domain.HasLabel(issue.Labels, name) {
			continue
		}
		if err := r.tracker.EnsureLabel(ctx, name, reviewLabelColor, ""); err != nil {
			return report, fmt.Errorf("ensure label %q: %w", name, err)
		}
	}
	labels, err := r.relabel(ctx, number, review.ApplyLabels)
	if err != nil {
		return report, err
	}
	report.Labels = labels

	if review.NeedsSplit {
		created, err := r.split(ctx, number, review.SubIssues)
		report.SubIssues = created
		if err != nil {
			return report, err
		}
	}

	if review.ReformattedBody != "" {
		if err := r.tracker.SetBody(ctx, number, review.ReformattedBody); err != nil {
			return report, fmt.Errorf("reformat issue #%d: %w", number, err)
		}
		if err := r.tracker.AddComment(ctx, number, reformattedComment); err != nil {
			return report, fmt.Errorf("comment on issue #%d: %w", number, err)
		}
		report.Reformatted = true
	}

	logger.Info("review applied", "ready", review.Ready, "labels", report.Labels,
		"sub_issues", len(report.SubIssues), "reformatted", report.Reformatted)
	return report, nil
}

// relabel rereads the issue under the shared lock so concurrent label writers
// are not overwritten, then writes edit(labels) when it differs.
func (r *Review) relabel(ctx context.Context, number int, edit func([]string) []string) ([]string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	current, err := r.tracker.GetIssue(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get issue #%d: %w", number, err)
	}
	labels := edit(current.Labels)
	if slices.Equal(labels, current.Labels) {
		return labels, nil
	}
	if err := r.tracker.SetLabels(ctx, number, labels); err != nil {
		return nil, fmt.Errorf("label issue #%d: %w", number, err)
	}
	return labels, nil
}

func (r *Review) split(ctx context.Context, parent int, parts []domain.SubIssue) ([]domain.Issue, error) {
	created := make([]domain.Issue, 0, len(parts))
	for _, part := range parts {
		body := fmt.Sprintf("%s\n\n---\n\n**Parent Issue:** #%d", part.Body, parent)
		issue, err := r.tracker.CreateIssue(ctx, part.Title, body, part.Labels)
		if err != nil {
			return created, fmt.Errorf("create sub-issue of #%d: %w", parent, err)
		}
		r.logger.Info("sub-issue created", "parent", parent, "issue", issue.Number, "title", issue.Title)
		created = append(created, issue)
	}

	if err := r.tracker.AddComment(ctx, parent, SplitComment(created)); err != nil {
		return created, fmt.Errorf("comment on issue #%d: %w", parent, err)
	}
	_, err := r.relabel(ctx, parent, func(labels []string) []string {
		if domain.HasLabel(labels, domain.LabelNeedsReview) {
			return labels
		}
		return append(slices.Clone(labels), domain.LabelNeedsReview)
	})
	return created, err
}

// ReviewComment wraps a model report for posting.
func ReviewComment(report string) string {
	return reviewHeader + "\n\n" + report + "\n\n" + reviewFooter
}

// SplitComment lists the sub-issues a parent was split into.
func SplitComment(created []domain.Issue) string {
	var b strings.Builder
	b.WriteString("This issue has been split into the following sub-issues:\n\n")
	for _, issue := range created {
		fmt.Fprintf(&b, "- #%d: %s\n", issue.Number, issue.Title)
	}
	b.WriteString("\nPlease implement each sub-issue separately. This parent issue will remain open for tracking purposes and is labeled `")
	b.WriteString(domain.LabelNeedsReview)
	b.WriteString("`.")
	return b.String()
}
