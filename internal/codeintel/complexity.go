package codeintel

import "regexp"

// branchKeyword matches the McCabe-style branching tokens spec.md §4.6
// names: if, else if, for, while, case, catch, &&, ||, ?. "else if"
// isn't counted separately from "if" — its "if" token already matches
// the word-boundary pattern once per occurrence, which is the same
// count a node-type walk would produce (each else-if link is itself an
// "if" node in every grammar this package parses).
var branchKeyword = regexp.MustCompile(`\b(if|for|while|case|catch)\b`)

// complexityScore implements spec.md §4.6's complexity formula: base 1
// plus the count of branching keywords/operators found in the element's
// body text.
func complexityScore(content string) int {
	score := 1
	score += len(branchKeyword.FindAllStringIndex(content, -1))
	score += countOccurrences(content, "&&")
	score += countOccurrences(content, "||")
	score += countOccurrences(content, "?")
	return score
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}

// complexityThreshold is the per-language ceiling above which the
// complexity quality detector fires. Languages not listed fall back to
// the generic threshold.
var complexityThreshold = map[string]int{
	"go":         15,
	"python":     12,
	"javascript": 12,
	"typescript": 12,
	"rust":       15,
}

func thresholdFor(language string) int {
	if t, ok := complexityThreshold[language]; ok {
		return t
	}
	return 12
}
