package codeintel

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"mira/internal/model"
)

// signatureHash is the canonical per-element identity spec.md §4.6 keys
// change detection on: SHA-256 of the (full_path, signature) pair, with
// runs of whitespace in the signature collapsed to single spaces.
func signatureHash(fullPath, signature string) string {
	normalized := strings.Join(strings.Fields(signature), " ")
	sum := sha256.Sum256([]byte(fullPath + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// rollup computes a file-level complexity score (sum across elements)
// and doc coverage (documented-over-total among public elements).
func rollup(elements []model.CodeElement) (complexity int, docCoverage float64) {
	var publicTotal, publicDocumented int
	for _, e := range elements {
		complexity += e.ComplexityScore
		if e.Visibility == model.VisibilityPublic {
			publicTotal++
			if e.Documentation != nil && *e.Documentation != "" {
				publicDocumented++
			}
		}
	}
	if publicTotal == 0 {
		return complexity, 1.0
	}
	return complexity, float64(publicDocumented) / float64(publicTotal)
}
