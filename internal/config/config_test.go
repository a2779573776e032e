package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"
)

var envKeys = []string{
	configPathEnv, githubTokenEnv, githubTokenFallback, githubRepositoryEnv, githubAPIURLEnv,
	githubGraphQLURLEnv, gistIDEnv, gistTokenEnv, gistTokenFallback, anthropicAPIKeyEnv,
	openAIAPIKeyEnv, projectOwnerEnv, projectNumberEnv, projectStatusEnv, laneStatusMapEnv,
	telegramTokenEnv, telegramChatIDEnv, webhookSecretEnv, logLevelEnv, stepSummaryEnv,
	appIDEnv, appInstallationEnv, appPrivateKeyPathEnv,
}

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curator.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generator.Provider != "anthropic" || cfg.Anthropic.Model != "claude-sonnet-4-20250514" || cfg.Generator.MaxTokens != 10000 {
		t.Fatalf("unexpected generator defaults: %+v %+v", cfg.Generator, cfg.Anthropic)
	}
	if cfg.Schedule.Interval != 7*24*time.Hour {
		t.Fatalf("unexpected interval: %v", cfg.Schedule.Interval)
	}
	if cfg.Project.StatusField != "Status" || cfg.Project.Number != 1 || cfg.Project.Enabled {
		t.Fatalf("unexpected project defaults: %+v", cfg.Project)
	}
	if !cfg.Review.Enabled || cfg.Review.Provider != "anthropic" || cfg.Review.MaxTokens != 1500 || cfg.Server.JobTimeout != 5*time.Minute {
		t.Fatalf("unexpected review/server defaults: %+v %+v", cfg.Review, cfg.Server)
	}
	if cfg.Schedule.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", cfg.Schedule.Location())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
github:
  repository: file-owner/repo
generator:
  provider: openai
schedule:
  interval: 24h
  timezone: Europe/Berlin
project:
  enabled: true
  laneStatus:
    on the bench: Backlog
logging:
  format: json
`)
	t.Setenv(githubTokenFallback, "fallback-token")
	t.Setenv(gistTokenFallback, "gist-token")
	t.Setenv(projectNumberEnv, "7")
	t.Setenv(laneStatusMapEnv, `{"at bat":"In Progress"}`)
	t.Setenv(logLevelEnv, "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GitHub.Repository != "file-owner/repo" || cfg.Project.Owner != "file-owner" {
		t.Fatalf("unexpected repository/owner: %q %q", cfg.GitHub.Repository, cfg.Project.Owner)
	}
	if cfg.GitHub.Token != "fallback-token" || cfg.Gist.Token != "gist-token" {
		t.Fatalf("unexpected tokens: %q %q", cfg.GitHub.Token, cfg.Gist.Token)
	}
	if cfg.Generator.Provider != "openai" || cfg.Generator.MaxTokens != 10000 {
		t.Fatalf("file should override only the keys it sets: %+v", cfg.Generator)
	}
	if cfg.Schedule.Interval != 24*time.Hour || cfg.Schedule.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected schedule: %+v", cfg.Schedule)
	}
	if cfg.Project.Number != 7 || cfg.Project.LaneStatus["at bat"] != "In Progress" || len(cfg.Project.LaneStatus) != 1 {
		t.Fatalf("unexpected project: %+v", cfg.Project)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadGistTokenFallsBackToGitHubToken(t *testing.T) {
	clearEnv(t)
	t.Setenv(githubTokenEnv, "primary")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gist.Token != "primary" {
		t.Fatalf("expected gist token from GITHUB_TOKEN, got %q", cfg.Gist.Token)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
	if _, err := Load(writeConfig(t, "github: [")); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv(laneStatusMapEnv, "not json")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected LANE_STATUS_MAP error")
	}
}

func TestLoadEnvPathFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}
}

func TestRequireHelpers(t *testing.T) {
	t.Parallel()

	var cfg Config
	if err := cfg.RequireRepository(); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	cfg.GitHub.Repository = "o/r"
	cfg.App = AppConfig{ID: "1", InstallationID: 2, PrivateKeyPath: "key.pem"}
	if err := cfg.RequireRepository(); err != nil {
		t.Fatalf("app credentials should satisfy repository auth: %v", err)
	}
	if err := cfg.RequireGist(); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete for gist, got %v", err)
	}
}
