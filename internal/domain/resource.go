package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// NotCovered marks a risk area the resource does not address.
const NotCovered = "not_covered"

var (
	// ErrMissingResources reports a document without a resources array.
	ErrMissingResources = errors.New("document has no resources array")
	// ErrEmptyGeneration reports a generated document with zero resources.
	ErrEmptyGeneration = errors.New("generated document contains no resources")
)

// ResourceKey is the identity of a resource: exact title and source.
type ResourceKey struct {
	Title  string
	Source string
}

// RiskScore is either a numeric score or the not_covered sentinel.
type RiskScore struct {
	Value      float64
	NotCovered bool
}

// MarshalJSON renders the sentinel as a string and scores as numbers.
func (s RiskScore) MarshalJSON() ([]byte, error) {
	if s.NotCovered {
		return json.Marshal(NotCovered)
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON accepts a number or the not_covered sentinel.
func (s *RiskScore) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*s = RiskScore{Value: num}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil && str == NotCovered {
		*s = RiskScore{NotCovered: true}
		return nil
	}
	return fmt.Errorf("invalid risk score %s", string(data))
}

// RiskCoverage maps risk-area keys (security_vulnerabilities, code_quality, ...) to scores.
type RiskCoverage map[string]RiskScore

// Resource is one curated entry of the published list.
type Resource struct {
	Title        string       `json:"title"`
	Source       string       `json:"source"`
	Type         string       `json:"type,omitempty"`
	Blurb        string       `json:"blurb,omitempty"`
	WeeksOnList  int          `json:"weeks_on_list,omitempty"`
	OverallScore *float64     `json:"overall_score,omitempty"`
	HighestScore *float64     `json:"highest_score,omitempty"`
	RiskCoverage RiskCoverage `json:"risk_coverage,omitzero"`

	// Extra keeps generator fields this type does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

// resourceFields has Resource's layout without its JSON methods.
type resourceFields Resource

var knownResourceFields = map[string]struct{}{
	"title":         {},
	"source":        {},
	"type":          {},
	"blurb":         {},
	"weeks_on_list": {},
	"overall_score": {},
	"highest_score": {},
	"risk_coverage": {},
}

// Key returns the identity used for matching across cycles.
func (r Resource) Key() ResourceKey {
	return ResourceKey{Title: r.Title, Source: r.Source}
}

// UnmarshalJSON decodes modelled fields and stashes the rest in Extra.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var fields resourceFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range knownResourceFields {
		delete(raw, key)
	}
	if len(raw) > 0 {
		fields.Extra = raw
	}

	*r = Resource(fields)
	return nil
}

// MarshalJSON writes modelled fields followed by any preserved extras.
func (r Resource) MarshalJSON() ([]byte, error) {
	base, err := marshalNoEscape(resourceFields(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, known := knownResourceFields[key]; known {
			continue
		}
		merged[key] = value
	}
	return marshalNoEscape(merged)
}

// ResourceDocument is the published JSON file and the generator's output.
type ResourceDocument struct {
	Resources    []Resource      `json:"resources"`
	Introduction json.RawMessage `json:"introduction,omitempty"`
	Legend       json.RawMessage `json:"legend,omitempty"`
	Analysis     json.RawMessage `json:"analysis,omitempty"`
}

// DecodeDocument parses a resource document and insists on a resources array.
func DecodeDocument(data []byte) (ResourceDocument, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return ResourceDocument{}, fmt.Errorf("decode document: %w", err)
	}
	rawResources, ok := top["resources"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(rawResources), []byte("[")) {
		return ResourceDocument{}, ErrMissingResources
	}

	var doc ResourceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return ResourceDocument{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.Resources == nil {
		doc.Resources = []Resource{}
	}
	return doc, nil
}

// EncodeDocument renders the document with two-space indentation, HTML left unescaped.
func EncodeDocument(doc ResourceDocument) ([]byte, error) {
	if doc.Resources == nil {
		doc.Resources = []Resource{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
