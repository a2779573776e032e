package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/generator"
	"ResourceCurator/internal/ports"
)

// BaselineReviewPrompt is the system prompt used when no prompt file exists.
const BaselineReviewPrompt = "You are the project manager for this repository. Review the issue for a clear, testable scope, " +
	"minimal dependencies, acceptable risk and independence. First reply with strict JSON only: " +
	`{"ready": bool, "size": "small|medium|large", "labels": {"add": [], "remove": []}, ` +
	`"needsSplit": bool, "subIssues": [{"title": "", "body": "", "labels": []}], "reformattedBody": null}. ` +
	"Use labels priority:NN, size:small|medium|large and independence:high|low. Items sized large must be split."

const reportInstruction = "Now provide the concise report for the author (no JSON)."

// ReviewerConfig selects the provider and prompt used for issue reviews.
type ReviewerConfig struct {
	Provider        string
	PromptPath      string
	MaxTokens       int
	ReportMaxTokens int
}

// IssueReviewer implements ports.IssueReviewer with two completions: a JSON
// decision, then a prose report that sees the decision.
type IssueReviewer struct {
	registry *generator.Registry
	cfg      ReviewerConfig
	logger   *slog.Logger
}

var _ ports.IssueReviewer = (*IssueReviewer)(nil)

func NewIssueReviewer(reg *generator.Registry, cfg ReviewerConfig, logger *slog.Logger) *IssueReviewer {
	return &IssueReviewer{registry: reg, cfg: cfg, logger: loggerOr(logger)}
}

type reviewReply struct {
	Ready  bool   `json:"ready"`
	Size   string `json:"size"`
	Labels struct {
		Add    []string `json:"add"`
		Remove []string `json:"remove"`
	} `json:"labels"`
	NeedsSplit      *bool             `json:"needsSplit"`
	SubIssues       []domain.SubIssue `json:"subIssues"`
	ReformattedBody *string           `json:"reformattedBody"`
}

// Review asks the configured provider to assess issue.
func (r *IssueReviewer) Review(ctx context.Context, issue domain.Issue) (domain.Review, error) {
	if r.registry == nil {
		return domain.Review{}, errors.New("provider registry is not configured")
	}
	provider, err := r.registry.Resolve(r.cfg.Provider)
	if err != nil {
		return domain.Review{}, err
	}

	system := r.systemPrompt()
	prompt := ReviewPrompt(issue)

	reply, err := provider.Complete(ctx, generator.Request{System: system, Prompt: prompt, MaxTokens: r.cfg.MaxTokens})
	if err != nil {
		return domain.Review{}, fmt.Errorf("%s review: %w", provider.Name(), err)
	}
	decision, err := cleanReply(reply)
	if err != nil {
		return domain.Review{}, fmt.Errorf("parse review: %w", err)
	}
	review, err := decodeReview(decision)
	if err != nil {
		return domain.Review{}, err
	}
	r.logger.Info("review decision", "issue", issue.Number, "ready", review.Ready,
		"add", review.AddLabels, "remove", review.RemoveLabels, "split", len(review.SubIssues))

	report, err := provider.Complete(ctx, generator.Request{
		System:    system,
		Prompt:    prompt + "\n\nYour assessment:\n" + decision + "\n\n" + reportInstruction,
		MaxTokens: r.cfg.ReportMaxTokens,
	})
	if err != nil {
		return domain.Review{}, fmt.Errorf("%s review report: %w", provider.Name(), err)
	}
	review.Report = strings.TrimSpace(report)
	if review.Report == "" {
		review.Report = "(No content)"
	}
	return review, nil
}

func (r *IssueReviewer) systemPrompt() string {
	if r.cfg.PromptPath == "" {
		return BaselineReviewPrompt
	}
	raw, err := os.ReadFile(r.cfg.PromptPath)
	if err != nil {
		r.logger.Debug("review prompt not found, using baseline", "path", r.cfg.PromptPath)
		return BaselineReviewPrompt
	}
	return string(raw)
}

// ReviewPrompt renders the issue as the user turn of a review.
func ReviewPrompt(issue domain.Issue) string {
	body := issue.Body
	if strings.TrimSpace(body) == "" {
		body = "(no body)"
	}
	return fmt.Sprintf("Issue to review:\nTitle: %s\nURL: %s\nLabels: %s\n\nBody:\n%s",
		issue.Title, issue.URL, strings.Join(issue.Labels, ", "), body)
}

// decodeReview parses the JSON decision. A large item with no explicit split
// flag is split; a split without sub-issues is dropped.
func decodeReview(raw string) (domain.Review, error) {
	var reply reviewReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return domain.Review{}, fmt.Errorf("parse review JSON: %w", err)
	}

	needsSplit := false
	switch {
	case reply.NeedsSplit != nil:
		needsSplit = *reply.NeedsSplit
	case strings.EqualFold(reply.Size, "large"):
		needsSplit = true
	}
	if needsSplit && len(reply.SubIssues) == 0 {
		needsSplit = false
	}

	review := domain.Review{
		Ready:        reply.Ready,
		Size:         reply.Size,
		AddLabels:    reply.Labels.Add,
		RemoveLabels: reply.Labels.Remove,
		NeedsSplit:   needsSplit,
	}
	if needsSplit {
		review.SubIssues = reply.SubIssues
	}
	if reply.ReformattedBody != nil {
		review.ReformattedBody = strings.TrimSpace(*reply.ReformattedBody)
	}
	return review, nil
}
