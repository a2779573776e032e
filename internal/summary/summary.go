// Package summary computes the statistics reported after each weekly cycle.
package summary

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ResourceCurator/internal/domain"
)

// Range is an inclusive min/max pair.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Statistics describes the merged list.
type Statistics struct {
	TypeDistribution    map[string]int `json:"typeDistribution"`
	NewResources        int            `json:"newResources"`
	ContinuingResources int            `json:"continuingResources"`
	AverageOverallScore int            `json:"averageOverallScore"`
	AverageHighestScore int            `json:"averageHighestScore"`
	OverallScoreRange   *Range         `json:"overallScoreRange"`
	HighestScoreRange   *Range         `json:"highestScoreRange"`
}

// Summary is the automation report of one cycle.
type Summary struct {
	Timestamp  time.Time  `json:"timestamp"`
	Current    int        `json:"current"`
	Generated  int        `json:"generated"`
	Merged     int        `json:"merged"`
	Statistics Statistics `json:"statistics"`
}

// Build summarises a cycle from the three resource lists.
func Build(now time.Time, current, generated, merged []domain.Resource) Summary {
	return Summary{
		Timestamp:  now.UTC(),
		Current:    len(current),
		Generated:  len(generated),
		Merged:     len(merged),
		Statistics: compute(merged),
	}
}

func compute(resources []domain.Resource) Statistics {
	stats := Statistics{TypeDistribution: map[string]int{}}

	var overall, highest []float64
	for _, res := range resources {
		stats.TypeDistribution[res.Type]++
		switch {
		case res.WeeksOnList == 1:
			stats.NewResources++
		case res.WeeksOnList > 1:
			stats.ContinuingResources++
		}
		if res.OverallScore != nil {
			overall = append(overall, *res.OverallScore)
		}
		if res.HighestScore != nil {
			highest = append(highest, *res.HighestScore)
		}
	}

	stats.AverageOverallScore = roundedMean(overall)
	stats.AverageHighestScore = roundedMean(highest)
	stats.OverallScoreRange = spread(overall)
	stats.HighestScoreRange = spread(highest)
	return stats
}

func roundedMean(values []float64) int {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return int(math.Round(sum / float64(len(values))))
}

func spread(values []float64) *Range {
	if len(values) == 0 {
		return nil
	}
	r := Range{Min: values[0], Max: values[0]}
	for _, v := range values[1:] {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	return &r
}

// Markdown renders the step summary appended to GITHUB_STEP_SUMMARY.
func (s Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("## Weekly AI Resources Update Summary\n\n")
	fmt.Fprintf(&b, "**Timestamp:** %s\n\n", s.Timestamp.Format(time.RFC3339))
	b.WriteString("### Statistics\n\n| Metric | Value |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Current Resources | %d |\n", s.Current)
	fmt.Fprintf(&b, "| Generated Resources | %d |\n", s.Generated)
	fmt.Fprintf(&b, "| Final Resources | %d |\n", s.Merged)
	fmt.Fprintf(&b, "| New Resources | %d |\n", s.Statistics.NewResources)
	fmt.Fprintf(&b, "| Continuing Resources | %d |\n", s.Statistics.ContinuingResources)
	fmt.Fprintf(&b, "| Average Overall Score | %d |\n", s.Statistics.AverageOverallScore)
	fmt.Fprintf(&b, "| Average Highest Score | %d |\n\n", s.Statistics.AverageHighestScore)

	b.WriteString("### Resource Types\n\n")
	for _, typ := range s.sortedTypes() {
		fmt.Fprintf(&b, "- **%s**: %d\n", typ, s.Statistics.TypeDistribution[typ])
	}

	b.WriteString("\n### Score Ranges\n\n")
	writeRange(&b, "Overall Scores", s.Statistics.OverallScoreRange)
	writeRange(&b, "Highest Risk Area Scores", s.Statistics.HighestScoreRange)
	return b.String()
}

// Digest renders a compact plain-text report for chat notifications.
func (s Summary) Digest() string {
	var b strings.Builder
	fmt.Fprintf(&b, "AI resources updated %s\n", s.Timestamp.Format("2006-01-02"))
	fmt.Fprintf(&b, "Resources: %d (new %d, continuing %d)\n", s.Merged, s.Statistics.NewResources, s.Statistics.ContinuingResources)
	fmt.Fprintf(&b, "Average score: overall %d, highest %d\n", s.Statistics.AverageOverallScore, s.Statistics.AverageHighestScore)
	for _, typ := range s.sortedTypes() {
		fmt.Fprintf(&b, "- %s: %d\n", typ, s.Statistics.TypeDistribution[typ])
	}
	return b.String()
}

func (s Summary) sortedTypes() []string {
	types := make([]string, 0, len(s.Statistics.TypeDistribution))
	for typ := range s.Statistics.TypeDistribution {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

func writeRange(b *strings.Builder, title string, r *Range) {
	var low, high float64
	if r != nil {
		low, high = r.Min, r.Max
	}
	fmt.Fprintf(b, "#### %s\n- **Minimum:** %g\n- **Maximum:** %g\n\n", title, low, high)
}
