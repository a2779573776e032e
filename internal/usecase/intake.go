package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

const (
	needsApprovalColor       = "7d8590"
	needsApprovalDescription = "Pending human review; not approved for implementation"
)

// Intake prepares a freshly opened issue: bench lane, approval gate, checklist.
type Intake struct {
	tracker ports.IssueTracker
	logger  *slog.Logger
	lock    sync.Locker
}

// NewIntake wires the issue tracker.
func NewIntake(tracker ports.IssueTracker, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{tracker: tracker, logger: logger, lock: &sync.Mutex{}}
}

// UseLock makes the label read-modify-write share lock with other workflows.
func (i *Intake) UseLock(lock sync.Locker) {
	if lock != nil {
		i.lock = lock
	}
}

// Run initializes issue number.
func (i *Intake) Run(ctx context.Context, number int) error {
	if number <= 0 {
		return fmt.Errorf("invalid issue number %d", number)
	}

	if err := i.tracker.EnsureLabel(ctx, domain.LabelNeedsApproval, needsApprovalColor, needsApprovalDescription); err != nil {
		return fmt.Errorf("ensure %s label: %w", domain.LabelNeedsApproval, err)
	}

	issue, err := i.label(ctx, number)
	if err != nil {
		return err
	}
	if err := i.tracker.AddComment(ctx, number, IntakeComment(number)); err != nil {
		return fmt.Errorf("comment on issue #%d: %w", number, err)
	}

	i.logger.Info("issue initialized", "issue", number, "lane", domain.LaneOnBench.String(), "approved", issue.Approved)
	return nil
}

func (i *Intake) label(ctx context.Context, number int) (domain.Issue, error) {
	i.lock.Lock()
	defer i.lock.Unlock()

	issue, err := i.tracker.GetIssue(ctx, number)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("get issue #%d: %w", number, err)
	}

	issue.AssignLane(domain.LaneOnBench)
	if !issue.Approved && !domain.HasLabel(issue.Labels, domain.LabelNeedsApproval) {
		issue.Labels = append(issue.Labels, domain.LabelNeedsApproval)
	}

	if err := i.tracker.SetLabels(ctx, number, issue.Labels); err != nil {
		return domain.Issue{}, fmt.Errorf("label issue #%d: %w", number, err)
	}
	return issue, nil
}

// IntakeComment is the review checklist posted on new issues.
func IntakeComment(number int) string {
	return fmt.Sprintf(`Thanks for opening this issue!

PM intake checklist (baseline):
- [ ] Scope is clear and testable (acceptance criteria provided)
- [ ] Dependencies identified and minimal (or resolved)
- [ ] Risk acceptable
- [ ] Independent enough to run in parallel (label 'independent' or 'independence:high' when true)
- [ ] Priority score provided (label 'priority:NN' or 'score:NN')
- [ ] Size estimated (label 'size:small|medium'). Items labeled size:large will not be approved; please split into smaller sub-issues.

If this issue includes a prompt, please include a short prompt packet: Objective, Inputs, Tools/permissions, Constraints, Steps/strategy, Acceptance criteria, Evaluation, Priority score, Size, Independence, Risks, Links.

Type-specific checklists are documented in .github/prompts/modes/project-manager.md under "Approval criteria by type".

If approved, mark it 'implementation ready' and assign a contributor.

Quick commands (replace placeholders):

- Approve:
  - gh issue comment %[1]d --body "Approved: implementation ready. Rationale: <one-line>"
  - gh issue edit %[1]d --add-label "implementation ready" --remove-label "needs-approval"

This issue has been placed on the bench initially. Lanes are rebalanced only when issues are closed.`, number)
}
