// Package linkcheck checks resource sources so broken or placeholder links
// surface as warnings before publication.
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/ports"
)

const maxPageBytes = 2 << 20

var placeholderHosts = []string{"example.com", "example.org", "localhost"}

// Checker implements ports.LinkChecker with bounded concurrent GETs.
type Checker struct {
	client      *http.Client
	concurrency int
	logger      *slog.Logger
}

var _ ports.LinkChecker = (*Checker)(nil)

// NewChecker wires an HTTP client; concurrency defaults to 4.
func NewChecker(client *http.Client, concurrency int, logger *slog.Logger) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{client: client, concurrency: concurrency, logger: logger}
}

// Check returns warnings in resource order. It never fails the caller.
func (c *Checker) Check(ctx context.Context, resources []domain.Resource) []string {
	found := make([]string, len(resources))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, res := range resources {
		g.Go(func() error {
			if problem := c.checkSource(ctx, res.Source); problem != "" {
				found[i] = fmt.Sprintf("resource %d (%s): %s", i, res.Title, problem)
			}
			return nil
		})
	}
	_ = g.Wait()

	var warnings []string
	for _, w := range found {
		if w != "" {
			warnings = append(warnings, w)
		}
	}
	c.logger.Debug("link check done", "resources", len(resources), "warnings", len(warnings))
	return warnings
}

func (c *Checker) checkSource(ctx context.Context, source string) string {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("invalid source URL %q", source)
	}
	if isPlaceholder(u.Hostname()) {
		return fmt.Sprintf("placeholder host %s", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Sprintf("build request: %v", err)
	}
	req.Header.Set("User-Agent", "ResourceCurator/1.0 (+link check)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Sprintf("unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("returned %s", resp.Status)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return fmt.Sprintf("parse page: %v", err)
	}
	if strings.TrimSpace(doc.Find("head > title, title").First().Text()) == "" {
		return "page has no <title>"
	}
	return ""
}

func isPlaceholder(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, p := range placeholderHosts {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}
