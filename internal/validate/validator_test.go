package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ResourceCurator/internal/domain"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := Default()
	require.NoError(t, err)
	return v
}

func score(v float64) *float64 { return &v }

func goodResource(title string) domain.Resource {
	return domain.Resource{
		Title:        title,
		Source:       "https://books.example.net/" + title,
		Type:         "Book",
		WeeksOnList:  1,
		OverallScore: score(80),
		HighestScore: score(92),
		RiskCoverage: domain.RiskCoverage{
			"code_quality": {Value: 92},
			"data_privacy": {NotCovered: true},
		},
	}
}

func TestValidate_CleanDocument(t *testing.T) {
	t.Parallel()

	result := newValidator(t).ValidateResources([]domain.Resource{goodResource("a"), goodResource("b")})

	assert.True(t, result.OK, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err())
}

func TestValidate_MissingRequiredFieldIsHardError(t *testing.T) {
	t.Parallel()

	doc := `{"resources": [{"title": "x", "type": "Book", "weeks_on_list": 1}]}`

	result := newValidator(t).Validate([]byte(doc))

	require.False(t, result.OK)
	assert.NotEmpty(t, result.Errors)
	assert.True(t, errors.Is(result.Err(), ErrInvalid))
	assert.Contains(t, strings.Join(result.Errors, "\n"), "source")
}

func TestValidate_TypeViolations(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"weeks not integer":  `{"resources": [{"title": "x", "source": "https://x.io", "type": "Book", "weeks_on_list": "two"}]}`,
		"weeks zero":         `{"resources": [{"title": "x", "source": "https://x.io", "type": "Book", "weeks_on_list": 0}]}`,
		"bad risk sentinel":  `{"resources": [{"title": "x", "source": "https://x.io", "type": "Book", "weeks_on_list": 1, "risk_coverage": {"code_quality": "partial"}}]}`,
		"source not a url":   `{"resources": [{"title": "x", "source": "somewhere", "type": "Book", "weeks_on_list": 1}]}`,
		"resources not list": `{"resources": {}}`,
		"no resources":       `{"introduction": "hi"}`,
		"not json":           `{"resources": [`,
	}

	v := newValidator(t)
	for name, doc := range cases {
		doc := doc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			result := v.Validate([]byte(doc))
			assert.False(t, result.OK)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestValidate_DuplicateKeysWarnOnly(t *testing.T) {
	t.Parallel()

	result := newValidator(t).ValidateResources([]domain.Resource{goodResource("a"), goodResource("a")})

	assert.True(t, result.OK)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "duplicate resource at index 1")
}

func TestValidate_ScoreBandAndRiskCoverageWarnings(t *testing.T) {
	t.Parallel()

	low := goodResource("low")
	low.OverallScore = score(45)
	high := goodResource("high")
	high.HighestScore = score(130)
	bare := goodResource("bare")
	bare.RiskCoverage = nil
	unscored := goodResource("unscored")
	unscored.OverallScore = nil
	unscored.HighestScore = nil

	result := newValidator(t).ValidateResources([]domain.Resource{low, high, bare, unscored})

	assert.True(t, result.OK, result.Errors)
	assert.Len(t, result.Warnings, 3)
	joined := strings.Join(result.Warnings, "\n")
	assert.Contains(t, joined, "overall_score out of range at index 0: 45")
	assert.Contains(t, joined, "highest_score out of range at index 1: 130")
	assert.Contains(t, joined, "missing risk_coverage at index 2")
}

func TestValidateDocument_EmptyRiskCoverageCountsAsPresent(t *testing.T) {
	t.Parallel()

	doc, err := domain.DecodeDocument([]byte(`{"resources":[{"title":"A","source":"https://a.dev","type":"Book","weeks_on_list":1,"overall_score":80,"highest_score":90,"risk_coverage":{}}]}`))
	require.NoError(t, err)

	result := newValidator(t).ValidateDocument(doc)

	assert.True(t, result.OK, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.json")
	strict := `{"type": "object", "required": ["resources", "legend"]}`
	require.NoError(t, os.WriteFile(path, []byte(strict), 0o600))

	v, err := FromFile(path)
	require.NoError(t, err)

	result := v.Validate([]byte(`{"resources": []}`))
	assert.False(t, result.OK)

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	fallback, err := FromFile("")
	require.NoError(t, err)
	assert.NotNil(t, fallback)
}

func TestNew_RejectsBrokenSchema(t *testing.T) {
	t.Parallel()

	_, err := New([]byte(`{"type": 12}`))
	assert.Error(t, err)
}
