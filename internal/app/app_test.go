package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ResourceCurator/internal/config"
	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/usecase"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const generatedReply = "Here you go:\n```json\n" + `{
  "introduction": "Weekly picks",
  "resources": [
    {"title": "Refactoring", "source": "https://martinfowler.com/books/refactoring.html", "type": "Book", "overall_score": 85, "highest_score": 90, "risk_coverage": {"security": 80}},
    {"title": "Latent Space", "source": "https://www.latent.space/podcast", "type": "Podcast", "overall_score": 75, "highest_score": 88, "risk_coverage": {"security": "not_covered"}},
  ]
}` + "\n```"

type fakeGitHub struct {
	mu      sync.Mutex
	patched map[string]string
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"login":"curator-bot","id":1}`))
	})
	mux.HandleFunc("GET /gists/g1", func(w http.ResponseWriter, r *http.Request) {
		current := `{"resources":[{"title":"Refactoring","source":"https://martinfowler.com/books/refactoring.html","type":"Book","weeks_on_list":5}]}`
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "g1", "files": map[string]any{"resources.json": map[string]any{"content": current}}})
	})
	mux.HandleFunc("PATCH /gists/g1", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Files map[string]struct {
				Content string `json:"content"`
			} `json:"files"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.patched = map[string]string{}
		for name, file := range body.Files {
			f.patched[name] = file.Content
		}
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"g1"}`))
	})
	mux.HandleFunc("GET /repos/acme/resources/issues", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"number":1,"node_id":"I_1","title":"ship it","created_at":"2025-01-01T00:00:00Z","labels":[{"name":"implementation ready"},{"name":"priority:80"}]},
			{"number":2,"node_id":"I_2","title":"maybe","created_at":"2025-01-02T00:00:00Z","labels":[{"name":"score:10"}]}
		]`))
	})
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": generatedReply}},
			"stop_reason": "end_turn",
		})
	})
	return mux
}

func testConfig(t *testing.T, serverURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	prompt := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(prompt, []byte("List resources."), 0o600))

	var cfg config.Config
	cfg.GitHub = config.GitHubConfig{Token: "gh-token", Repository: "acme/resources", APIURL: serverURL, GraphQLURL: serverURL + "/graphql"}
	cfg.Gist = config.GistConfig{ID: "g1", Token: "gist-token"}
	cfg.Generator = config.GeneratorConfig{Provider: "anthropic", PromptPath: prompt, RawResponsePath: filepath.Join(dir, "raw.txt"), MaxTokens: 1000}
	cfg.Anthropic = config.AnthropicConfig{Endpoint: serverURL + "/v1/messages", Model: "claude-test", APIKey: "sk-test"}
	cfg.Storage.Path = filepath.Join(dir, "curator.db")
	cfg.Summary.StepSummaryPath = filepath.Join(dir, "step-summary.md")
	return cfg
}

func TestApplication_RunCyclePublishesAndRecords(t *testing.T) {
	t.Parallel()

	gh := &fakeGitHub{}
	srv := httptest.NewServer(gh.handler(t))
	t.Cleanup(srv.Close)

	application := New(testConfig(t, srv.URL), quiet, io.Discard)
	t.Cleanup(func() { _ = application.Close() })

	report, err := application.RunCycle(t.Context(), usecase.CycleOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, report.Status)
	assert.Equal(t, 1, report.Stats.Matched)

	gh.mu.Lock()
	published := gh.patched["resources.json"]
	gh.mu.Unlock()
	doc, err := domain.DecodeDocument([]byte(published))
	require.NoError(t, err)
	require.Len(t, doc.Resources, 2)
	assert.Equal(t, 6, doc.Resources[0].WeeksOnList)
	assert.Equal(t, 1, doc.Resources[1].WeeksOnList)

	runs, err := application.Runs()
	require.NoError(t, err)
	recent, err := runs.RecentRuns(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, report.RunID, recent[0].ID)
}

func TestApplication_RebalanceListOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer((&fakeGitHub{}).handler(t))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	application := New(testConfig(t, srv.URL), quiet, &out)

	rebalancer, err := application.Rebalancer()
	require.NoError(t, err)
	_, err = rebalancer.Run(t.Context(), usecase.RebalanceOptions{ListOnly: true})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Priority: implementation ready (1):\n  #1 [score=80")
	assert.Contains(t, out.String(), "Priority: others (1):\n  #2 [score=10")
}

func TestApplication_RequiresSettings(t *testing.T) {
	t.Parallel()

	application := New(config.Config{}, quiet, io.Discard)

	_, err := application.Cycle()
	assert.ErrorIs(t, err, config.ErrIncomplete)
	_, err = application.Rebalancer()
	assert.ErrorIs(t, err, config.ErrIncomplete)
	_, err = application.Intake()
	assert.ErrorIs(t, err, config.ErrIncomplete)
	_, err = application.Review()
	assert.ErrorIs(t, err, config.ErrIncomplete)

	runs, err := application.Runs()
	require.NoError(t, err)
	assert.Nil(t, runs)
}

// issueRepo is a single-issue GitHub fake that keeps labels and comments.
type issueRepo struct {
	mu       sync.Mutex
	labels   []string
	comments []string
}

func (f *issueRepo) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/resources/labels", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("POST /repos/acme/resources/labels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /repos/acme/resources/issues/7", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		labels := make([]map[string]string, 0, len(f.labels))
		for _, name := range f.labels {
			labels = append(labels, map[string]string{"name": name})
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number": 7, "title": "Add CSV export", "body": "Export the list.", "created_at": "2025-01-01T00:00:00Z",
			"html_url": "https://github.com/acme/resources/issues/7", "labels": labels,
		})
	})
	mux.HandleFunc("PATCH /repos/acme/resources/issues/7", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Labels []string `json:"labels"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.labels = body.Labels
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /repos/acme/resources/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Body string `json:"body"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.comments = append(f.comments, body.Body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /v1/messages", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		text := `{"ready": false, "size": "small", "labels": {"add": ["priority:70", "size:small"], "remove": []}}`
		if strings.Contains(string(raw), "Now provide the concise report") {
			text = "Scope is clear; needs acceptance criteria."
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": text}},
			"stop_reason": "end_turn",
		})
	})
	return mux
}

func TestApplication_WebhookOpenedRunsIntakeThenReview(t *testing.T) {
	t.Parallel()

	repo := &issueRepo{}
	srv := httptest.NewServer(repo.handler(t))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.Review = config.ReviewConfig{Enabled: true, Provider: "anthropic", MaxTokens: 500, ReportMaxTokens: 500}
	application := New(cfg, quiet, io.Discard)
	t.Cleanup(func() { _ = application.Close() })

	router, err := application.WebhookRouter(usecase.RebalanceOptions{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"action":"opened","issue":{"number":7}}`))
	req.Header.Set("X-GitHub-Event", "issues")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	router.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, []string{"on the bench", domain.LabelNeedsApproval, "priority:70", "size:small"}, repo.labels)
	require.Len(t, repo.comments, 2)
	assert.Contains(t, repo.comments[0], "PM intake checklist")
	assert.Contains(t, repo.comments[1], "Scope is clear; needs acceptance criteria.")
	assert.True(t, slices.ContainsFunc(repo.comments, func(c string) bool { return strings.HasPrefix(c, "### PM review") }))
}

func TestApplication_ReviewSkipsWithoutProviderKey(t *testing.T) {
	t.Parallel()

	repo := &issueRepo{}
	srv := httptest.NewServer(repo.handler(t))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.Anthropic.APIKey = ""
	cfg.Review = config.ReviewConfig{Enabled: true, Provider: "anthropic"}
	application := New(cfg, quiet, io.Discard)

	review, err := application.Review()
	require.NoError(t, err)
	report, err := review.Run(t.Context(), 7)
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.comments, 1)
	assert.Contains(t, repo.comments[0], "PM review skipped")
}
