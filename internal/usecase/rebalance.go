package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
	"ResourceCurator/internal/rank"
)

// RebalanceOptions controls a rebalance pass.
type RebalanceOptions struct {
	// ListOnly prints the priority ordering and makes no changes.
	ListOnly bool
	// DryRun logs intended changes without writing them.
	DryRun bool
}

// RebalanceReport summarizes a pass.
type RebalanceReport struct {
	Ranking rank.Ranking
	Updated []int
	Skipped []int
	Totals  map[domain.Lane]int
}

// Rebalancer recomputes lanes for every open issue and applies them to the
// project board, or to lane labels when no board is configured.
type Rebalancer struct {
	tracker ports.IssueTracker
	board   ports.LaneBoard
	out     io.Writer
	logger  *slog.Logger

	// lock serializes read-compute-write so concurrent triggers cannot interleave.
	lock sync.Locker
}

// NewRebalancer wires the tracker and optional board. Listing output goes to out.
func NewRebalancer(tracker ports.IssueTracker, board ports.LaneBoard, out io.Writer, logger *slog.Logger) *Rebalancer {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebalancer{tracker: tracker, board: board, out: out, logger: logger, lock: &sync.Mutex{}}
}

// UseLock replaces the rebalancer's lock, typically with one shared by every
// workflow that rewrites issue labels.
func (r *Rebalancer) UseLock(lock sync.Locker) {
	if lock != nil {
		r.lock = lock
	}
}

// Run performs one rebalance pass.
func (r *Rebalancer) Run(ctx context.Context, opts RebalanceOptions) (RebalanceReport, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	issues, err := r.tracker.ListOpenIssues(ctx)
	if err != nil {
		return RebalanceReport{}, fmt.Errorf("list open issues: %w", err)
	}

	ranking := rank.Rank(issues)
	report := RebalanceReport{Ranking: ranking, Totals: make(map[domain.Lane]int, len(domain.Lanes))}
	for _, lane := range domain.Lanes {
		report.Totals[lane] = ranking.Count(lane)
	}

	if opts.ListOnly {
		r.printPriority(issues, ranking)
		return report, nil
	}

	for _, issue := range issues {
		lane := ranking.Lane(issue.Number)
		var updated bool
		if r.board != nil {
			updated, err = r.applyToBoard(ctx, issue, lane, opts.DryRun)
		} else {
			updated, err = r.applyLabels(ctx, issue, lane, opts.DryRun)
		}
		if errors.Is(err, ports.ErrLaneUnavailable) {
			r.logger.Warn("lane not on board, skipping", "issue", issue.Number, "lane", lane.String(), "error", err)
			report.Skipped = append(report.Skipped, issue.Number)
			continue
		}
		if err != nil {
			return report, err
		}
		if updated {
			report.Updated = append(report.Updated, issue.Number)
		}
	}

	fmt.Fprintf(r.out, "Rebalanced: at bat=%d, on deck=%d, in the hole=%d, bench=%d\n",
		report.Totals[domain.LaneAtBat], report.Totals[domain.LaneOnDeck],
		report.Totals[domain.LaneInTheHole], report.Totals[domain.LaneOnBench])
	r.logger.Info("rebalance complete",
		"issues", len(issues), "updated", len(report.Updated), "skipped", len(report.Skipped), "dry_run", opts.DryRun)

	return report, nil
}

// applyToBoard sets the project status, then strips legacy lane labels.
func (r *Rebalancer) applyToBoard(ctx context.Context, issue domain.Issue, lane domain.Lane, dryRun bool) (bool, error) {
	if dryRun {
		r.logger.Info("dry run: would set project status", "issue", issue.Number, "lane", lane.String())
	} else if err := r.board.SetLane(ctx, issue, lane); err != nil {
		if errors.Is(err, ports.ErrLaneUnavailable) {
			return false, err
		}
		return false, fmt.Errorf("set lane of #%d: %w", issue.Number, err)
	}

	if issue.HasLaneLabels() {
		if dryRun {
			r.logger.Info("dry run: would remove legacy lane labels", "issue", issue.Number)
		} else if err := r.tracker.SetLabels(ctx, issue.Number, domain.WithoutLaneLabels(issue.Labels)); err != nil {
			return false, fmt.Errorf("strip lane labels of #%d: %w", issue.Number, err)
		}
	}

	if !dryRun {
		r.logger.Info("issue moved", "issue", issue.Number, "lane", lane.String())
	}
	return !dryRun, nil
}

// applyLabels writes the single lane label when it differs from the current set.
func (r *Rebalancer) applyLabels(ctx context.Context, issue domain.Issue, lane domain.Lane, dryRun bool) (bool, error) {
	if issue.Lane == lane && laneLabelCount(issue.Labels) == 1 {
		return false, nil
	}

	if dryRun {
		r.logger.Info("dry run: would relabel", "issue", issue.Number, "from", issue.Lane.String(), "to", lane.String())
		return false, nil
	}

	next := issue
	next.AssignLane(lane)
	if err := r.tracker.SetLabels(ctx, issue.Number, next.Labels); err != nil {
		return false, fmt.Errorf("relabel #%d: %w", issue.Number, err)
	}
	r.logger.Info("issue moved", "issue", issue.Number, "from", issue.Lane.String(), "to", lane.String())
	return true, nil
}

func (r *Rebalancer) printPriority(issues []domain.Issue, ranking rank.Ranking) {
	var others []domain.Issue
	for _, issue := range issues {
		if !issue.Approved {
			others = append(others, issue)
		}
	}
	others = rank.Sort(others)

	fmt.Fprintf(r.out, "Priority: implementation ready (%d):\n", len(ranking.Ordered))
	for _, issue := range ranking.Ordered {
		fmt.Fprintf(r.out, "  %s\n", formatIssue(issue))
	}
	fmt.Fprintf(r.out, "\nPriority: others (%d):\n", len(others))
	for _, issue := range others {
		fmt.Fprintf(r.out, "  %s\n", formatIssue(issue))
	}
}

func formatIssue(issue domain.Issue) string {
	return fmt.Sprintf("#%d [score=%d, indep=%t, size=%s, created=%s] %s",
		issue.Number, issue.Score, issue.Independent, issue.Size, issue.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), issue.Title)
}

func laneLabelCount(labels []string) int {
	n := 0
	for _, label := range labels {
		if domain.IsLaneLabel(label) {
			n++
		}
	}
	return n
}
