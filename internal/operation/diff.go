package operation

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pmezard/go-difflib/difflib"
)

// contentHash is spec.md §4.9's stable-across-runs content_hash: a plain
// SHA-256 hex digest of the artifact's content.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// unifiedDiff computes a unified textual diff between an artifact's
// previous and new content, per spec.md §4.9's "computes a unified
// textual diff against the most recent previous version."
func unifiedDiff(fromPath, toPath, oldContent, newContent string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: fromPath,
		ToFile:   toPath,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
