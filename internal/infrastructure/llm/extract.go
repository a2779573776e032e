package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ResourceCurator/internal/domain"
)

// ErrNoJSONObject means the model reply contains no {...} block at all.
var ErrNoJSONObject = errors.New("no JSON object found in response")

var (
	fencePattern         = regexp.MustCompile("```(?:json)?\\n?")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	bareKeyPattern       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// ExtractDocument pulls the resource document out of a model reply. Code
// fences and surrounding prose are dropped, trailing commas removed, and
// if that still does not decode, bare property names are quoted.
func ExtractDocument(reply string) (domain.ResourceDocument, error) {
	candidate, err := cleanReply(reply)
	if err != nil {
		return domain.ResourceDocument{}, err
	}

	doc, err := domain.DecodeDocument([]byte(candidate))
	if err == nil || errors.Is(err, domain.ErrMissingResources) {
		return doc, err
	}

	repaired := bareKeyPattern.ReplaceAllString(candidate, `$1"$2":`)
	doc, retryErr := domain.DecodeDocument([]byte(repaired))
	if retryErr != nil {
		return domain.ResourceDocument{}, fmt.Errorf("parse generated JSON: %w", err)
	}
	return doc, nil
}

func cleanReply(reply string) (string, error) {
	cleaned := fencePattern.ReplaceAllString(strings.TrimSpace(reply), "")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return "", ErrNoJSONObject
	}
	return trailingCommaPattern.ReplaceAllString(cleaned[start:end+1], "$1"), nil
}
