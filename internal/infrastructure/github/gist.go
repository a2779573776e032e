package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/infrastructure/retry"
	"ResourceCurator/internal/ports"
)

const (
	currentFile = "resources.json"
	archiveDate = "2006-01-02"
)

// ArchiveFileName is the dated copy written alongside resources.json.
func ArchiveFileName(day time.Time) string {
	return "resources." + day.UTC().Format(archiveDate) + ".json"
}

type gistFile struct {
	Filename  string `json:"filename,omitempty"`
	RawURL    string `json:"raw_url,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Content   string `json:"content"`
}

type gist struct {
	ID      string              `json:"id"`
	HTMLURL string              `json:"html_url"`
	Files   map[string]gistFile `json:"files"`
}

// GistStore implements ports.ResourceStore on a single Gist.
type GistStore struct {
	client *Client
	id     string
	logger *slog.Logger
}

var _ ports.ResourceStore = (*GistStore)(nil)

func NewGistStore(client *Client, gistID string, logger *slog.Logger) *GistStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GistStore{client: client, id: gistID, logger: logger}
}

// Fetch verifies the token and loads resources.json. A Gist without that
// file yields an empty document so the first cycle can bootstrap it.
func (s *GistStore) Fetch(ctx context.Context) (domain.ResourceDocument, error) {
	if s.id == "" {
		return domain.ResourceDocument{}, fmt.Errorf("gist id not set")
	}
	viewer, err := s.client.CurrentUser(ctx)
	if err != nil {
		return domain.ResourceDocument{}, err
	}
	s.logger.Debug("gist token verified", "login", viewer.Login)

	var g gist
	if err := s.client.do(ctx, http.MethodGet, "/gists/"+s.id, nil, &g); err != nil {
		return domain.ResourceDocument{}, fmt.Errorf("fetch gist %s: %w", s.id, err)
	}

	file, ok := g.Files[currentFile]
	if !ok {
		s.logger.Warn("gist has no resources file, starting empty", "gist", s.id, "file", currentFile)
		return domain.ResourceDocument{Resources: []domain.Resource{}}, nil
	}

	content := []byte(file.Content)
	if file.Truncated && file.RawURL != "" {
		content, err = s.raw(ctx, file.RawURL)
		if err != nil {
			return domain.ResourceDocument{}, err
		}
	}

	doc, err := domain.DecodeDocument(content)
	if err != nil {
		return domain.ResourceDocument{}, fmt.Errorf("decode %s: %w", currentFile, err)
	}
	return doc, nil
}

func (s *GistStore) raw(ctx context.Context, url string) ([]byte, error) {
	return retry.Value(ctx, s.client.policy, s.logger, "GET raw gist", func(ctx context.Context) ([]byte, error) {
		resp, err := s.client.send(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if err := retry.CheckResponse("github GET raw gist", resp); err != nil {
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
}

// Publish writes resources.json and its dated archive with identical content.
func (s *GistStore) Publish(ctx context.Context, doc domain.ResourceDocument, day time.Time) error {
	if s.id == "" {
		return fmt.Errorf("gist id not set")
	}
	content, err := domain.EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode resources: %w", err)
	}

	archive := ArchiveFileName(day)
	body := map[string]any{
		"files": map[string]gistFile{
			currentFile: {Content: string(content)},
			archive:     {Content: string(content)},
		},
	}

	var updated gist
	if err := s.client.do(ctx, http.MethodPatch, "/gists/"+s.id, body, &updated); err != nil {
		return fmt.Errorf("update gist %s: %w", s.id, err)
	}
	s.logger.Info("gist updated", "gist", s.id, "archive", archive, "url", updated.HTMLURL)
	return nil
}
