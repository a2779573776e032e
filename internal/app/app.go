package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"ResourceCurator/internal/config"
	"ResourceCurator/internal/generator"
	"ResourceCurator/internal/infrastructure/github"
	"ResourceCurator/internal/infrastructure/linkcheck"
	"ResourceCurator/internal/infrastructure/llm"
	"ResourceCurator/internal/infrastructure/scheduler"
	"ResourceCurator/internal/infrastructure/storage"
	"ResourceCurator/internal/infrastructure/telegram"
	"ResourceCurator/internal/infrastructure/webhook"
	"ResourceCurator/internal/logging"
	"ResourceCurator/internal/ports"
	"ResourceCurator/internal/usecase"
	"ResourceCurator/internal/validate"
)

// Application wires configs to use cases. Adapters are built on demand so
// each command only needs the settings it uses.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	runs *storage.SQLiteRepository
}

// New builds an application instance. Command output goes to out.
func New(cfg config.Config, baseLogger *slog.Logger, out io.Writer) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if out == nil {
		out = os.Stdout
	}
	return &Application{cfg: cfg, logger: baseLogger, out: out}
}

// Close releases the run-history database when it was opened.
func (a *Application) Close() error {
	if a.runs == nil {
		return nil
	}
	return a.runs.Close()
}

// Cycle assembles the weekly cycle from config.
func (a *Application) Cycle() (*usecase.Cycle, error) {
	if err := a.cfg.RequireGist(); err != nil {
		return nil, err
	}

	gistClient := github.NewClient(github.StaticToken(a.cfg.Gist.Token), a.githubOptions("gist")...)
	store := github.NewGistStore(gistClient, a.cfg.Gist.ID, a.logger.With("component", "gist"))

	validator, err := validate.FromFile(a.cfg.Validation.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	runs, err := a.Runs()
	if err != nil {
		return nil, err
	}

	deps := usecase.CycleDeps{
		Store:           store,
		Generator:       a.generator(),
		Validator:       validator,
		Runs:            runs,
		Notifier:        a.notifier(),
		StepSummaryPath: a.cfg.Summary.StepSummaryPath,
		Logger:          a.logger.With("component", "cycle"),
	}
	if a.cfg.LinkCheck.Enabled {
		deps.Links = linkcheck.NewChecker(
			&http.Client{Timeout: a.cfg.LinkCheck.Timeout},
			a.cfg.LinkCheck.Concurrency,
			a.logger.With("component", "linkcheck"),
		)
	}

	return usecase.NewCycle(deps)
}

// RunCycle runs a single cycle for the current day in the schedule timezone.
func (a *Application) RunCycle(ctx context.Context, opts usecase.CycleOptions) (usecase.CycleReport, error) {
	cycle, err := a.Cycle()
	if err != nil {
		return usecase.CycleReport{}, err
	}
	return cycle.Run(ctx, time.Now().In(a.cfg.Schedule.Location()), opts)
}

// Schedule runs the cycle on the configured interval until ctx is done.
func (a *Application) Schedule(ctx context.Context, opts usecase.CycleOptions) error {
	cycle, err := a.Cycle()
	if err != nil {
		return err
	}

	driver := scheduler.NewIntervalScheduler(a.cfg.Schedule.Interval, a.cfg.Schedule.Location(), a.cfg.Schedule.RunOnStart)
	sched := usecase.NewScheduler(driver, cycle, opts, a.logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "interval", a.cfg.Schedule.Interval, "timezone", a.cfg.Schedule.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Rebalancer assembles the lane rebalancer; the project board is used when enabled.
func (a *Application) Rebalancer() (*usecase.Rebalancer, error) {
	client, issues, err := a.issueTracker()
	if err != nil {
		return nil, err
	}

	var board ports.LaneBoard
	if a.cfg.Project.Enabled {
		board = github.NewProjectBoard(client, github.ProjectConfig{
			Owner:       a.cfg.Project.Owner,
			Number:      a.cfg.Project.Number,
			StatusField: a.cfg.Project.StatusField,
			LaneStatus:  a.cfg.Project.LaneStatus,
		}, a.logger.With("component", "project"))
	}

	return usecase.NewRebalancer(issues, board, a.out, a.logger.With("component", "rebalance")), nil
}

// Intake assembles the issue intake workflow.
func (a *Application) Intake() (*usecase.Intake, error) {
	_, issues, err := a.issueTracker()
	if err != nil {
		return nil, err
	}
	return usecase.NewIntake(issues, a.logger.With("component", "intake")), nil
}

// Review assembles the model review of new issues. Without credentials for
// the review provider it posts a skip notice instead.
func (a *Application) Review() (*usecase.Review, error) {
	_, issues, err := a.issueTracker()
	if err != nil {
		return nil, err
	}

	var reviewer ports.IssueReviewer
	if a.providerConfigured(a.cfg.Review.Provider) {
		reviewer = llm.NewIssueReviewer(a.registry(), llm.ReviewerConfig{
			Provider:        a.cfg.Review.Provider,
			PromptPath:      a.cfg.Review.PromptPath,
			MaxTokens:       a.cfg.Review.MaxTokens,
			ReportMaxTokens: a.cfg.Review.ReportMaxTokens,
		}, a.logger.With("component", "reviewer"))
	}
	return usecase.NewReview(issues, reviewer, a.logger.With("component", "review")), nil
}

// WebhookRouter wires the issue workflows behind the webhook endpoint. Opened
// issues get intake and, when enabled, a review; closed issues trigger a
// rebalance. Every workflow shares one label lock.
func (a *Application) WebhookRouter(opts usecase.RebalanceOptions) (*webhook.Router, error) {
	intake, err := a.Intake()
	if err != nil {
		return nil, err
	}
	rebalancer, err := a.Rebalancer()
	if err != nil {
		return nil, err
	}
	var review *usecase.Review
	if a.cfg.Review.Enabled {
		if review, err = a.Review(); err != nil {
			return nil, err
		}
	}

	lock := &sync.Mutex{}
	intake.UseLock(lock)
	rebalancer.UseLock(lock)
	if review != nil {
		review.UseLock(lock)
	}

	return webhook.NewRouter(a.cfg.Server.WebhookSecret, webhook.Handlers{
		Opened: func(ctx context.Context, number int) error {
			if err := intake.Run(ctx, number); err != nil {
				return err
			}
			if review == nil {
				return nil
			}
			_, err := review.Run(ctx, number)
			return err
		},
		Closed: func(ctx context.Context) error {
			_, err := rebalancer.Run(ctx, opts)
			return err
		},
	}, a.logger.With("component", "webhook"), webhook.WithJobTimeout(a.cfg.Server.JobTimeout)), nil
}

// Serve runs the webhook server until ctx is done, then waits for
// in-flight workflows.
func (a *Application) Serve(ctx context.Context, opts usecase.RebalanceOptions) error {
	router, err := a.WebhookRouter(opts)
	if err != nil {
		return err
	}

	err = webhook.Serve(ctx, a.cfg.Server.Addr, router, a.logger.With("component", "server"))
	router.Wait()
	return err
}

// Runs opens the run-history store once. It returns nil when storage is disabled.
func (a *Application) Runs() (ports.RunRepository, error) {
	if a.cfg.Storage.Path == "" {
		return nil, nil
	}
	if a.runs == nil {
		runs, err := storage.OpenSQLite(a.cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		a.runs = runs
	}
	return a.runs, nil
}

func (a *Application) issueTracker() (*github.Client, *github.Issues, error) {
	if err := a.cfg.RequireRepository(); err != nil {
		return nil, nil, err
	}
	repo, err := github.ParseRepository(a.cfg.GitHub.Repository)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := a.tokenSource()
	if err != nil {
		return nil, nil, err
	}

	client := github.NewClient(tokens, a.githubOptions("github")...)
	return client, github.NewIssues(client, repo), nil
}

func (a *Application) tokenSource() (github.TokenSource, error) {
	if !a.cfg.App.Enabled() {
		return github.StaticToken(a.cfg.GitHub.Token), nil
	}
	key, err := os.ReadFile(a.cfg.App.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read app private key: %w", err)
	}
	return github.NewAppTokenSource(a.cfg.App.ID, a.cfg.App.InstallationID, key, github.WithAppBaseURL(a.cfg.GitHub.APIURL))
}

func (a *Application) githubOptions(component string) []github.Option {
	return []github.Option{
		github.WithBaseURL(a.cfg.GitHub.APIURL),
		github.WithGraphQLURL(a.cfg.GitHub.GraphQLURL),
		github.WithLogger(a.logger.With("component", component)),
	}
}

func (a *Application) registry() *generator.Registry {
	registry := generator.NewRegistry()
	registry.Register(llm.NewAnthropicClient(a.cfg.Anthropic, a.logger.With("component", "llm.anthropic")))
	registry.Register(llm.NewOpenAIClient(a.cfg.OpenAI, a.logger.With("component", "llm.openai")))
	return registry
}

func (a *Application) providerConfigured(name string) bool {
	switch name {
	case "anthropic":
		return a.cfg.Anthropic.APIKey != ""
	case "openai":
		return a.cfg.OpenAI.APIKey != ""
	default:
		return false
	}
}

func (a *Application) generator() ports.ResourceGenerator {
	return llm.NewResourceSource(a.registry(), llm.SourceConfig{
		Provider:        a.cfg.Generator.Provider,
		PromptPath:      a.cfg.Generator.PromptPath,
		RawResponsePath: a.cfg.Generator.RawResponsePath,
		MaxTokens:       a.cfg.Generator.MaxTokens,
	}, a.logger.With("component", "generator"))
}

func (a *Application) notifier() ports.Notifier {
	tg := a.cfg.Notifications.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		return nil
	}
	return telegram.NewNotifier(tg.BotToken, tg.ChatID,
		telegram.WithAPIURL(tg.APIURL),
		telegram.WithLogger(a.logger.With("component", "telegram")),
	)
}
