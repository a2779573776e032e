package ports

import (
	"context"
	"errors"
	"time"

	"ResourceCurator/internal/domain"
)

// ResourceStore holds the published resource document (a Gist in production).
type ResourceStore interface {
	Fetch(ctx context.Context) (domain.ResourceDocument, error)
	// Publish writes the current document and its dated archive copy.
	Publish(ctx context.Context, doc domain.ResourceDocument, day time.Time) error
}

// ResourceGenerator produces this week's candidate resource document.
type ResourceGenerator interface {
	Generate(ctx context.Context) (domain.ResourceDocument, error)
}

// LinkChecker checks resource sources and returns human-readable warnings.
type LinkChecker interface {
	Check(ctx context.Context, resources []domain.Resource) []string
}

// IssueTracker reads and relabels repository issues.
type IssueTracker interface {
	ListOpenIssues(ctx context.Context) ([]domain.Issue, error)
	GetIssue(ctx context.Context, number int) (domain.Issue, error)
	SetLabels(ctx context.Context, number int, labels []string) error
	AddComment(ctx context.Context, number int, body string) error
	EnsureLabel(ctx context.Context, name, color, description string) error
	CreateIssue(ctx context.Context, title, body string, labels []string) (domain.Issue, error)
	SetBody(ctx context.Context, number int, body string) error
}

// IssueReviewer asks a model for a triage assessment of one issue.
type IssueReviewer interface {
	Review(ctx context.Context, issue domain.Issue) (domain.Review, error)
}

// ErrLaneUnavailable means the board cannot represent a lane; callers skip the issue.
var ErrLaneUnavailable = errors.New("lane not available on board")

// LaneBoard mirrors lanes onto a project board status field.
type LaneBoard interface {
	SetLane(ctx context.Context, issue domain.Issue, lane domain.Lane) error
}

// Notifier streams cycle digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// RunRepository persists the history of weekly cycles.
type RunRepository interface {
	SaveRun(ctx context.Context, run domain.CycleRun) error
	RecentRuns(ctx context.Context, limit int) ([]domain.CycleRun, error)
}

// Scheduler controls when cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
