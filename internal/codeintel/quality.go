package codeintel

import (
	"fmt"

	"mira/internal/model"
)

// detectQualityIssues runs spec.md §4.6's two built-in, independent and
// additive detectors against a parsed element: complexity above the
// per-language threshold, and a public undocumented symbol.
func detectQualityIssues(e model.CodeElement, language string) []model.QualityIssue {
	var issues []model.QualityIssue

	if threshold := thresholdFor(language); e.ComplexityScore > threshold {
		issues = append(issues, model.QualityIssue{
			Detector: "complexity",
			Severity: model.SeverityMedium,
			Message:  fmt.Sprintf("%s has complexity %d, exceeding the %s threshold of %d", e.Name, e.ComplexityScore, language, threshold),
		})
	}

	if e.Visibility == model.VisibilityPublic && (e.Documentation == nil || *e.Documentation == "") {
		issues = append(issues, model.QualityIssue{
			Detector: "undocumented_public_symbol",
			Severity: model.SeverityLow,
			Message:  fmt.Sprintf("%s is public but has no documentation", e.Name),
		})
	}

	return issues
}
