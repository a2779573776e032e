// Package github talks to the GitHub REST and GraphQL APIs: issues and
// labels, Projects v2 status fields, Gists and GitHub App authentication.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ResourceCurator/internal/infrastructure/retry"
)

const (
	DefaultBaseURL    = "https://api.github.com"
	DefaultGraphQLURL = "https://api.github.com/graphql"

	apiVersion = "2022-11-28"
	userAgent  = "ai-practitioner-resources-automation"
)

// ErrNoToken is returned when a request needs credentials and none are configured.
var ErrNoToken = errors.New("github token not set")

// TokenSource yields a bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token or workflow token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// Client is a thin authenticated JSON client with retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	graphqlURL string
	tokens     TokenSource
	policy     retry.Policy
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL points REST calls at another host (GitHub Enterprise, tests).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithGraphQLURL overrides the GraphQL endpoint.
func WithGraphQLURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.graphqlURL = url
		}
	}
}

// WithRetryPolicy overrides the default backoff.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a client authenticated by tokens.
func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		graphqlURL: DefaultGraphQLURL,
		tokens:     tokens,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// singleAttempt is used for calls that create something; a retry after a
// lost response would create it twice.
var singleAttempt = retry.Policy{Attempts: 1}

// do sends a JSON request and decodes a JSON response into out when non-nil.
// path may be relative to the base URL or absolute. POST requests are sent
// once; other methods retry under the client policy.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	policy := c.policy
	if method == http.MethodPost {
		policy = singleAttempt
	}
	return c.doWith(ctx, policy, method, path, body, out)
}

func (c *Client) doWith(ctx context.Context, policy retry.Policy, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}
	op := method + " " + path

	return retry.Do(ctx, policy, c.logger, op, func(ctx context.Context) error {
		resp, err := c.send(ctx, method, url, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := retry.CheckResponse("github "+op, resp); err != nil {
			return err
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", op, err))
		}
		return nil
	})
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("new request: %w", err))
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}

// Viewer is the authenticated account.
type Viewer struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// CurrentUser returns the account behind the token; used to verify credentials.
func (c *Client) CurrentUser(ctx context.Context) (Viewer, error) {
	var viewer Viewer
	if err := c.do(ctx, http.MethodGet, "/user", nil, &viewer); err != nil {
		return Viewer{}, fmt.Errorf("verify token: %w", err)
	}
	return viewer, nil
}
