package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ResourceCurator/internal/domain"
	"ResourceCurator/internal/generator"
	"ResourceCurator/internal/ports"
)

// Preamble is prepended to the operator's prompt file.
const Preamble = "You are an expert AI researcher who curates high-quality resources for developers. " +
	"Generate ONLY valid JSON with no additional text. Requirements: " +
	"1) Use REAL, ACTUAL resources with genuine URLs (never use example.com or placeholder links), " +
	"2) Include 15-25 diverse resources from reputable sources like official documentation, established publishers " +
	"(O'Reilly, Manning, Pragmatic Programmers), respected blogs (Martin Fowler, Stack Overflow), and popular podcasts, " +
	"3) Ensure all property names and string values are properly quoted with double quotes."

// SourceConfig tells ResourceSource which provider and prompt to use.
type SourceConfig struct {
	Provider        string
	PromptPath      string
	RawResponsePath string
	MaxTokens       int
}

// ResourceSource implements ports.ResourceGenerator via a registered provider.
type ResourceSource struct {
	registry *generator.Registry
	cfg      SourceConfig
	logger   *slog.Logger
}

var _ ports.ResourceGenerator = (*ResourceSource)(nil)

// NewResourceSource wires the provider registry with prompt settings.
func NewResourceSource(reg *generator.Registry, cfg SourceConfig, logger *slog.Logger) *ResourceSource {
	return &ResourceSource{registry: reg, cfg: cfg, logger: loggerOr(logger)}
}

// Generate asks the configured provider for a fresh resource document.
func (s *ResourceSource) Generate(ctx context.Context) (domain.ResourceDocument, error) {
	if s.registry == nil {
		return domain.ResourceDocument{}, fmt.Errorf("provider registry is not configured")
	}
	provider, err := s.registry.Resolve(s.cfg.Provider)
	if err != nil {
		return domain.ResourceDocument{}, err
	}

	prompt, err := os.ReadFile(s.cfg.PromptPath)
	if err != nil {
		return domain.ResourceDocument{}, fmt.Errorf("read prompt: %w", err)
	}
	s.logger.Debug("prompt loaded", "path", s.cfg.PromptPath, "chars", len(prompt))

	reply, err := provider.Complete(ctx, generator.Request{
		Prompt:    Preamble + "\n\n" + string(prompt),
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return domain.ResourceDocument{}, fmt.Errorf("%s completion: %w", provider.Name(), err)
	}
	s.logger.Info("received generator response", "provider", provider.Name(), "chars", len(reply))

	doc, err := ExtractDocument(reply)
	if err != nil {
		s.saveRaw(reply)
		return domain.ResourceDocument{}, err
	}
	if len(doc.Resources) == 0 {
		s.saveRaw(reply)
		return domain.ResourceDocument{}, domain.ErrEmptyGeneration
	}
	s.logger.Info("generated resources", "count", len(doc.Resources))
	return doc, nil
}

func (s *ResourceSource) saveRaw(reply string) {
	if s.cfg.RawResponsePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.RawResponsePath), 0o755); err != nil {
		s.logger.Warn("could not save raw response", "error", err)
		return
	}
	if err := os.WriteFile(s.cfg.RawResponsePath, []byte(reply), 0o600); err != nil {
		s.logger.Warn("could not save raw response", "error", err)
		return
	}
	s.logger.Warn("raw response saved for debugging", "path", s.cfg.RawResponsePath)
}
