package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

const pageSize = 100

// Repository identifies owner/name.
type Repository struct {
	Owner string
	Name  string
}

// ParseRepository splits "owner/name" as found in GITHUB_REPOSITORY.
func ParseRepository(full string) (Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("repository %q must be owner/name", full)
	}
	return Repository{Owner: owner, Name: name}, nil
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Issues implements ports.IssueTracker over the REST API.
type Issues struct {
	client *Client
	repo   Repository
}

var _ ports.IssueTracker = (*Issues)(nil)

// NewIssues binds the client to one repository.
func NewIssues(client *Client, repo Repository) *Issues {
	return &Issues{client: client, repo: repo}
}

type apiLabel struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

type apiIssue struct {
	Number      int             `json:"number"`
	NodeID      string          `json:"node_id"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	HTMLURL     string          `json:"html_url"`
	CreatedAt   time.Time       `json:"created_at"`
	Labels      []apiLabel      `json:"labels"`
	User        struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest json.RawMessage `json:"pull_request,omitempty"`
}

func (i apiIssue) toDomain() domain.Issue {
	names := make([]string, 0, len(i.Labels))
	for _, label := range i.Labels {
		names = append(names, label.Name)
	}
	issue := domain.NewIssue(i.Number, i.NodeID, i.Title, i.CreatedAt, names)
	issue.Body = i.Body
	issue.URL = i.HTMLURL
	issue.Author = i.User.Login
	return issue
}

// ListOpenIssues pages through open issues, skipping pull requests.
func (s *Issues) ListOpenIssues(ctx context.Context) ([]domain.Issue, error) {
	var out []domain.Issue
	for page := 1; ; page++ {
		var batch []apiIssue
		path := fmt.Sprintf("/repos/%s/issues?state=open&per_page=%d&page=%d", s.repo, pageSize, page)
		if err := s.client.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("list open issues: %w", err)
		}
		for _, issue := range batch {
			if len(issue.PullRequest) > 0 && string(issue.PullRequest) != "null" {
				continue
			}
			out = append(out, issue.toDomain())
		}
		if len(batch) < pageSize {
			return out, nil
		}
	}
}

func (s *Issues) GetIssue(ctx context.Context, number int) (domain.Issue, error) {
	var issue apiIssue
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/issues/%d", s.repo, number), nil, &issue); err != nil {
		return domain.Issue{}, fmt.Errorf("get issue #%d: %w", number, err)
	}
	return issue.toDomain(), nil
}

// SetLabels replaces the full label set of an issue.
func (s *Issues) SetLabels(ctx context.Context, number int, labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	body := map[string]any{"labels": labels}
	if err := s.client.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/issues/%d", s.repo, number), body, nil); err != nil {
		return fmt.Errorf("set labels on #%d: %w", number, err)
	}
	return nil
}

func (s *Issues) AddComment(ctx context.Context, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", s.repo, number)
	if err := s.client.do(ctx, http.MethodPost, path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("comment on #%d: %w", number, err)
	}
	return nil
}

// CreateIssue opens a new issue. It is sent once; a failed call may still
// have created the issue.
func (s *Issues) CreateIssue(ctx context.Context, title, body string, labels []string) (domain.Issue, error) {
	if labels == nil {
		labels = []string{}
	}
	req := map[string]any{"title": title, "body": body, "labels": labels}
	var created apiIssue
	if err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues", s.repo), req, &created); err != nil {
		return domain.Issue{}, fmt.Errorf("create issue %q: %w", title, err)
	}
	return created.toDomain(), nil
}

// SetBody replaces the description of an issue.
func (s *Issues) SetBody(ctx context.Context, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d", s.repo, number)
	if err := s.client.do(ctx, http.MethodPatch, path, map[string]string{"body": body}, nil); err != nil {
		return fmt.Errorf("update body of #%d: %w", number, err)
	}
	return nil
}

// EnsureLabel creates the repository label unless one with the same name
// (case-insensitive) already exists.
func (s *Issues) EnsureLabel(ctx context.Context, name, color, description string) error {
	for page := 1; ; page++ {
		var batch []apiLabel
		path := fmt.Sprintf("/repos/%s/labels?per_page=%d&page=%d", s.repo, pageSize, page)
		if err := s.client.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return fmt.Errorf("list labels: %w", err)
		}
		for _, label := range batch {
			if strings.EqualFold(label.Name, name) {
				return nil
			}
		}
		if len(batch) < pageSize {
			break
		}
	}

	label := apiLabel{Name: name, Color: color, Description: description}
	if err := s.client.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/labels", s.repo), label, nil); err != nil {
		return fmt.Errorf("create label %q: %w", name, err)
	}
	return nil
}
