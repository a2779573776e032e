package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
	"ResourceCurator/internal/reconcile"
	"ResourceCurator/internal/summary"
	"ResourceCurator/internal/validate"
)

// CycleDeps wires the driven adapters into the weekly cycle.
type CycleDeps struct {
	Store     ports.ResourceStore
	Generator ports.ResourceGenerator
	Validator *validate.Validator
	Links     ports.LinkChecker
	Runs      ports.RunRepository
	Notifier  ports.Notifier
	// StepSummaryPath receives the Markdown summary when set (GITHUB_STEP_SUMMARY).
	StepSummaryPath string
	Logger          *slog.Logger
	Now             func() time.Time
}

// CycleOptions controls a single run.
type CycleOptions struct {
	DryRun bool
}

// CycleReport describes what a run produced.
type CycleReport struct {
	RunID        string
	Day          time.Time
	Status       domain.CycleStatus
	Stats        reconcile.Stats
	Document     domain.ResourceDocument
	Validation   validate.Result
	LinkWarnings []string
	Summary      summary.Summary
}

// Cycle implements the weekly fetch, generate, reconcile and publish workflow.
type Cycle struct {
	store       ports.ResourceStore
	generator   ports.ResourceGenerator
	validator   *validate.Validator
	links       ports.LinkChecker
	runs        ports.RunRepository
	notifier    ports.Notifier
	stepSummary string
	logger      *slog.Logger
	now         func() time.Time
}

// NewCycle constructs the weekly cycle. Store, Generator and Validator are required.
func NewCycle(deps CycleDeps) (*Cycle, error) {
	if deps.Store == nil || deps.Generator == nil || deps.Validator == nil {
		return nil, errors.New("cycle requires a store, a generator and a validator")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Cycle{
		store:       deps.Store,
		generator:   deps.Generator,
		validator:   deps.Validator,
		links:       deps.Links,
		runs:        deps.Runs,
		notifier:    deps.Notifier,
		stepSummary: deps.StepSummaryPath,
		logger:      deps.Logger,
		now:         deps.Now,
	}, nil
}

// Run executes one cycle for day. Nothing is published unless the merged
// document passes validation.
func (c *Cycle) Run(ctx context.Context, day time.Time, opts CycleOptions) (CycleReport, error) {
	report := CycleReport{RunID: uuid.NewString(), Day: day}
	started := c.now()
	logger := c.logger.With("run", report.RunID)

	previous, err := c.store.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch previous resources: %w", err)
	}
	logger.Info("fetched previous resources", "count", len(previous.Resources))

	generated, err := c.generator.Generate(ctx)
	if err != nil {
		return report, fmt.Errorf("generate resources: %w", err)
	}
	if len(generated.Resources) == 0 {
		return report, domain.ErrEmptyGeneration
	}

	merged, stats := MergeDocuments(previous, generated)
	report.Stats = stats
	report.Document = merged
	logger.Info("reconciled resources",
		"previous", stats.Previous, "generated", stats.Generated, "matched", stats.Matched, "new", stats.New)

	report.Validation = c.validator.ValidateDocument(merged)
	for _, warning := range report.Validation.Warnings {
		logger.Warn("resource quality", "warning", warning)
	}
	if err := report.Validation.Err(); err != nil {
		report.Status = domain.StatusRejected
		c.record(ctx, logger, report, started)
		return report, fmt.Errorf("validate merged resources: %w", err)
	}

	if c.links != nil {
		report.LinkWarnings = c.links.Check(ctx, merged.Resources)
		for _, warning := range report.LinkWarnings {
			logger.Warn("link check", "warning", warning)
		}
	}

	if opts.DryRun {
		report.Status = domain.StatusDryRun
		logger.Info("dry run, skipping publish")
	} else {
		if err := c.store.Publish(ctx, merged, day); err != nil {
			return report, fmt.Errorf("publish resources: %w", err)
		}
		report.Status = domain.StatusPublished
	}

	report.Summary = summary.Build(c.now(), previous.Resources, generated.Resources, merged.Resources)
	if err := c.appendStepSummary(report.Summary.Markdown()); err != nil {
		logger.Warn("write step summary", "path", c.stepSummary, "error", err)
	}

	c.record(ctx, logger, report, started)

	if c.notifier != nil && report.Status == domain.StatusPublished {
		if err := c.notifier.PublishDigest(ctx, report.Summary.Digest()); err != nil {
			logger.Warn("publish digest", "error", err)
		}
	}

	return report, nil
}

// MergeDocuments reconciles generated against previous and keeps the
// generated document's other sections.
func MergeDocuments(previous, generated domain.ResourceDocument) (domain.ResourceDocument, reconcile.Stats) {
	resources, stats := reconcile.ReconcileWithStats(previous.Resources, generated.Resources)
	merged := generated
	merged.Resources = resources
	return merged, stats
}

func (c *Cycle) record(ctx context.Context, logger *slog.Logger, report CycleReport, started time.Time) {
	if c.runs == nil {
		return
	}
	run := domain.CycleRun{
		ID:        report.RunID,
		Day:       report.Day,
		StartedAt: started,
		Status:    report.Status,
		Previous:  report.Stats.Previous,
		Generated: report.Stats.Generated,
		Matched:   report.Stats.Matched,
		New:       report.Stats.New,
		Warnings:  len(report.Validation.Warnings) + len(report.LinkWarnings),
	}
	snapshot := runSnapshot{
		Errors:       report.Validation.Errors,
		Warnings:     report.Validation.Warnings,
		LinkWarnings: report.LinkWarnings,
	}
	if report.Status == domain.StatusRejected {
		run.Summary = fmt.Sprint(report.Validation.Errors)
	} else {
		run.Summary = report.Summary.Digest()
		snapshot.Summary = &report.Summary
	}
	if raw, err := json.Marshal(snapshot); err != nil {
		logger.Warn("encode run snapshot", "error", err)
	} else {
		run.Snapshot = string(raw)
	}
	if err := c.runs.SaveRun(ctx, run); err != nil {
		logger.Warn("record run", "error", err)
	}
}

// runSnapshot is the JSON stored with each run.
type runSnapshot struct {
	Summary      *summary.Summary `json:"summary,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
	Warnings     []string         `json:"warnings,omitempty"`
	LinkWarnings []string         `json:"link_warnings,omitempty"`
}

func (c *Cycle) appendStepSummary(markdown string) error {
	if c.stepSummary == "" {
		return nil
	}
	f, err := os.OpenFile(c.stepSummary, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(markdown + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
