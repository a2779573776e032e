// Package validate checks resource documents against the published JSON
// Schema and reports data-quality issues that should not block publication.
package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ResourceCurator/internal/domain"
)

//go:embed schema.json
var defaultSchema []byte

const (
	schemaURL = "schema.json"

	minNominalScore = 60
	maxNominalScore = 100
)

// Result separates hard failures from warnings.
type Result struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// Err returns nil for a passing result, otherwise an error listing every failure.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(r.Errors, "; "))
}

// ErrInvalid wraps structural validation failures.
var ErrInvalid = errors.New("resource document failed validation")

// Validator holds a compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Default compiles the embedded schema.
func Default() (*Validator, error) {
	return New(defaultSchema)
}

// FromFile compiles the schema at path, falling back to the embedded one when path is empty.
func FromFile(path string) (*Validator, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return New(raw)
}

// New compiles a JSON Schema document.
func New(schema []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks a raw resource document. Structural problems end up in
// Errors; quality checks run only on structurally valid documents.
func (v *Validator) Validate(doc []byte) Result {
	var instance any
	if err := json.Unmarshal(doc, &instance); err != nil {
		return failed(fmt.Sprintf("invalid JSON: %v", err))
	}

	if err := v.schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return failed(err.Error())
		}
		return failed(leafMessages(verr)...)
	}

	parsed, err := domain.DecodeDocument(doc)
	if err != nil {
		return failed(err.Error())
	}

	return Result{OK: true, Warnings: qualityWarnings(parsed.Resources)}
}

// ValidateDocument encodes doc and validates it.
func (v *Validator) ValidateDocument(doc domain.ResourceDocument) Result {
	raw, err := domain.EncodeDocument(doc)
	if err != nil {
		return failed(err.Error())
	}
	return v.Validate(raw)
}

// ValidateResources validates a bare resource list as a document.
func (v *Validator) ValidateResources(resources []domain.Resource) Result {
	return v.ValidateDocument(domain.ResourceDocument{Resources: resources})
}

func failed(messages ...string) Result {
	return Result{OK: false, Errors: messages}
}

func leafMessages(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		location := verr.InstanceLocation
		if location == "" {
			location = "/"
		}
		return []string{fmt.Sprintf("%s: %s", location, verr.Message)}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, leafMessages(cause)...)
	}
	return out
}

func qualityWarnings(resources []domain.Resource) []string {
	var warnings []string

	seen := make(map[domain.ResourceKey]struct{}, len(resources))
	for i, res := range resources {
		if _, dup := seen[res.Key()]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate resource at index %d: %s", i, res.Title))
		}
		seen[res.Key()] = struct{}{}
	}

	for i, res := range resources {
		if res.RiskCoverage == nil {
			warnings = append(warnings, fmt.Sprintf("missing risk_coverage at index %d: %s", i, res.Title))
		}
		if outOfBand(res.OverallScore) {
			warnings = append(warnings, fmt.Sprintf("overall_score out of range at index %d: %g (%s)", i, *res.OverallScore, res.Title))
		}
		if outOfBand(res.HighestScore) {
			warnings = append(warnings, fmt.Sprintf("highest_score out of range at index %d: %g (%s)", i, *res.HighestScore, res.Title))
		}
	}

	return warnings
}

func outOfBand(score *float64) bool {
	return score != nil && (*score < minNominalScore || *score > maxNominalScore)
}
