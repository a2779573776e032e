package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "CURATOR_CONFIG"

	githubTokenEnv       = "GITHUB_TOKEN"
	githubTokenFallback  = "TOKEN"
	githubRepositoryEnv  = "GITHUB_REPOSITORY"
	githubAPIURLEnv      = "GITHUB_API_URL"
	githubGraphQLURLEnv  = "GITHUB_GRAPHQL_URL"
	gistIDEnv            = "GIST_ID"
	gistTokenEnv         = "GIST_TOKEN"
	gistTokenFallback    = "GITHUB_GIST_TOKEN"
	anthropicAPIKeyEnv   = "ANTHROPIC_API_KEY"
	openAIAPIKeyEnv      = "OPENAI_API_KEY"
	projectOwnerEnv      = "PROJECT_OWNER"
	projectNumberEnv     = "PROJECT_NUMBER"
	projectStatusEnv     = "PROJECT_STATUS_FIELD_NAME"
	laneStatusMapEnv     = "LANE_STATUS_MAP"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	webhookSecretEnv     = "WEBHOOK_SECRET"
	logLevelEnv          = "LOG_LEVEL"
	stepSummaryEnv       = "GITHUB_STEP_SUMMARY"
	appIDEnv             = "GITHUB_APP_ID"
	appInstallationEnv   = "GITHUB_APP_INSTALLATION_ID"
	appPrivateKeyPathEnv = "GITHUB_APP_PRIVATE_KEY_PATH"
)

// Config holds high-level settings required across the application.
type Config struct {
	GitHub        GitHubConfig       `yaml:"github"`
	App           AppConfig          `yaml:"app"`
	Gist          GistConfig         `yaml:"gist"`
	Generator     GeneratorConfig    `yaml:"generator"`
	Review        ReviewConfig       `yaml:"review"`
	Anthropic     AnthropicConfig    `yaml:"anthropic"`
	OpenAI        OpenAIConfig       `yaml:"openai"`
	Project       ProjectConfig      `yaml:"project"`
	Schedule      ScheduleConfig     `yaml:"schedule"`
	Storage       StorageConfig      `yaml:"storage"`
	Validation    ValidationConfig   `yaml:"validation"`
	LinkCheck     LinkCheckConfig    `yaml:"linkcheck"`
	Notifications NotificationConfig `yaml:"notifications"`
	Server        ServerConfig       `yaml:"server"`
	Summary       SummaryConfig      `yaml:"summary"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// GitHubConfig locates the repository whose issues are triaged.
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"`
	APIURL     string `yaml:"apiUrl"`
	GraphQLURL string `yaml:"graphqlUrl"`
}

// AppConfig switches authentication to a GitHub App installation when ID is set.
type AppConfig struct {
	ID             string `yaml:"id"`
	InstallationID int64  `yaml:"installationId"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
}

// Enabled reports whether App credentials are configured.
func (a AppConfig) Enabled() bool {
	return a.ID != "" && a.InstallationID > 0 && a.PrivateKeyPath != ""
}

// GistConfig points at the Gist that stores resources.json.
type GistConfig struct {
	ID    string `yaml:"id"`
	Token string `yaml:"token"`
}

// GeneratorConfig selects the LLM provider and prompt.
type GeneratorConfig struct {
	Provider        string `yaml:"provider"`
	PromptPath      string `yaml:"promptPath"`
	RawResponsePath string `yaml:"rawResponsePath"`
	MaxTokens       int    `yaml:"maxTokens"`
}

// ReviewConfig controls the model review posted on newly opened issues.
type ReviewConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Provider        string `yaml:"provider"`
	PromptPath      string `yaml:"promptPath"`
	MaxTokens       int    `yaml:"maxTokens"`
	ReportMaxTokens int    `yaml:"reportMaxTokens"`
}

// AnthropicConfig defines how to contact the Messages API.
type AnthropicConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	Version  string        `yaml:"version"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OpenAIConfig defines how to contact the chat completions API.
type OpenAIConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ProjectConfig describes the Projects v2 board mirroring lanes.
type ProjectConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Owner       string            `yaml:"owner"`
	Number      int               `yaml:"number"`
	StatusField string            `yaml:"statusField"`
	LaneStatus  map[string]string `yaml:"laneStatus"`
}

// ScheduleConfig defines when the weekly cycle runs.
type ScheduleConfig struct {
	Interval   time.Duration  `yaml:"interval"`
	Timezone   string         `yaml:"timezone"`
	RunOnStart bool           `yaml:"runOnStart"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the schedule timezone string to a time.Location.
func (s ScheduleConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// StorageConfig places the run-history database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ValidationConfig optionally overrides the embedded schema.
type ValidationConfig struct {
	SchemaPath string `yaml:"schemaPath"`
}

// LinkCheckConfig tunes source URL probing.
type LinkCheckConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIURL   string `yaml:"apiUrl"`
}

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhookSecret"`

	// JobTimeout bounds each webhook-triggered workflow, which runs after the reply.
	JobTimeout time.Duration `yaml:"jobTimeout"`
}

// SummaryConfig names the file receiving the Markdown step summary.
type SummaryConfig struct {
	StepSummaryPath string `yaml:"stepSummaryPath"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration and applies environment overrides. An
// explicit path must exist; the CURATOR_CONFIG path falls back to defaults
// with a log line when unreadable.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if envPath := os.Getenv(configPathEnv); envPath != "" {
		if raw, err := os.ReadFile(envPath); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", envPath, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", envPath, err)
			cfg = defaultConfig()
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.fillDerived()
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString(&c.GitHub.Token, githubTokenEnv, githubTokenFallback)
	setString(&c.GitHub.Repository, githubRepositoryEnv)
	setString(&c.GitHub.APIURL, githubAPIURLEnv)
	setString(&c.GitHub.GraphQLURL, githubGraphQLURLEnv)
	setString(&c.App.ID, appIDEnv)
	setString(&c.App.PrivateKeyPath, appPrivateKeyPathEnv)
	setString(&c.Gist.ID, gistIDEnv)
	setString(&c.Gist.Token, gistTokenEnv, gistTokenFallback)
	setString(&c.Anthropic.APIKey, anthropicAPIKeyEnv)
	setString(&c.OpenAI.APIKey, openAIAPIKeyEnv)
	setString(&c.Project.Owner, projectOwnerEnv)
	setString(&c.Project.StatusField, projectStatusEnv)
	setString(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setString(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)
	setString(&c.Server.WebhookSecret, webhookSecretEnv)
	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Summary.StepSummaryPath, stepSummaryEnv)

	if v := os.Getenv(appInstallationEnv); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", appInstallationEnv, err)
		}
		c.App.InstallationID = id
	}
	if v := os.Getenv(projectNumberEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", projectNumberEnv, err)
		}
		c.Project.Number = n
		c.Project.Enabled = true
	}
	if v := os.Getenv(laneStatusMapEnv); v != "" {
		var lanes map[string]string
		if err := json.Unmarshal([]byte(v), &lanes); err != nil {
			return fmt.Errorf("%s must be a JSON object: %w", laneStatusMapEnv, err)
		}
		c.Project.LaneStatus = lanes
	}
	return nil
}

// setString assigns the first non-empty environment variable among names.
func setString(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

// fillDerived defaults the project owner to the repository owner.
func (c *Config) fillDerived() {
	if c.Project.Owner == "" {
		if owner, _, ok := strings.Cut(c.GitHub.Repository, "/"); ok {
			c.Project.Owner = owner
		}
	}
	if c.Gist.Token == "" {
		c.Gist.Token = c.GitHub.Token
	}
}

func (c *Config) bindTimezone() {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc = time.UTC
	}
	c.Schedule.location = loc
}

// ErrIncomplete reports a missing setting required by a command.
var ErrIncomplete = errors.New("configuration incomplete")

// RequireRepository checks the settings needed for issue automation.
func (c Config) RequireRepository() error {
	if c.GitHub.Repository == "" {
		return fmt.Errorf("%w: %s not set", ErrIncomplete, githubRepositoryEnv)
	}
	if c.GitHub.Token == "" && !c.App.Enabled() {
		return fmt.Errorf("%w: %s not set", ErrIncomplete, githubTokenEnv)
	}
	return nil
}

// RequireGist checks the settings needed to read and publish resources.
func (c Config) RequireGist() error {
	if c.Gist.ID == "" {
		return fmt.Errorf("%w: %s not set", ErrIncomplete, gistIDEnv)
	}
	if c.Gist.Token == "" {
		return fmt.Errorf("%w: %s not set", ErrIncomplete, gistTokenFallback)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		GitHub: GitHubConfig{
			APIURL:     "https://api.github.com",
			GraphQLURL: "https://api.github.com/graphql",
		},
		Generator: GeneratorConfig{
			Provider:        "anthropic",
			PromptPath:      ".github/prompts/ai-practitioner-resources-json.prompt.md",
			RawResponsePath: filepath.Join(os.TempDir(), "raw-response.txt"),
			MaxTokens:       10000,
		},
		Review: ReviewConfig{
			Enabled:         true,
			Provider:        "anthropic",
			PromptPath:      ".github/prompts/pm-review.md",
			MaxTokens:       1500,
			ReportMaxTokens: 2000,
		},
		Anthropic: AnthropicConfig{
			Endpoint: "https://api.anthropic.com/v1/messages",
			Model:    "claude-sonnet-4-20250514",
			Version:  "2023-06-01",
			Timeout:  5 * time.Minute,
		},
		OpenAI: OpenAIConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are an expert AI researcher who curates high-quality resources for developers.",
			Timeout:      5 * time.Minute,
		},
		Project: ProjectConfig{
			Number:      1,
			StatusField: "Status",
		},
		Schedule: ScheduleConfig{
			Interval: 7 * 24 * time.Hour,
			Timezone: defaultTimezone,
		},
		Storage: StorageConfig{Path: "curator.db"},
		LinkCheck: LinkCheckConfig{
			Concurrency: 4,
			Timeout:     10 * time.Second,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		},
		Server:  ServerConfig{Addr: ":8080", JobTimeout: 5 * time.Minute},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
