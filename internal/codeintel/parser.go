// Package codeintel implements Code Intelligence (C5): a pluggable
// per-language parser registry over tree-sitter that extracts symbols,
// complexity, dependencies and quality issues from source files, and an
// Engine that diffs a fresh parse against what's stored to decide what
// needs re-embedding versus what can be left alone.
//
// The tree-sitter walking style (recursive descent over named children,
// dispatching on n.Type(), pulling fields via ChildByFieldName) is
// grounded on
// theRebelliousNerd-codenerd/internal/world/ast_treesitter.go's
// TreeSitterParser, generalized from that file's flat core.Fact tuples
// into the structured model.CodeElement/ExternalDependency/QualityIssue
// types this module's relational store expects.
package codeintel

import (
	"path/filepath"
	"strings"

	"mira/internal/model"
)

// FileAnalysis is the per-language parse contract's result: every
// extracted element, its dependencies and quality issues, plus
// file-level rollups.
type FileAnalysis struct {
	Elements      []model.CodeElement
	Dependencies  []model.ExternalDependency
	QualityIssues []model.QualityIssue
	ComplexityScore int
	TestCount       int
	DocCoverage     float64
}

// Parser is the per-language capability: can_parse/parse_file/language,
// as spec.md §4.6 names them.
type Parser interface {
	Language() string
	CanParse(path string) bool
	Parse(path string, content []byte) (FileAnalysis, error)
}

// Registry dispatches to a Parser by file extension.
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a registry over every parser this build links in.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry wires every language parser this package implements.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewGoParser(),
		NewPythonParser(),
		NewJavaScriptParser(),
		NewTypeScriptParser(),
		NewRustParser(),
	)
}

// ParserFor returns the first parser whose CanParse matches path, or nil
// if the extension isn't recognized.
func (r *Registry) ParserFor(path string) Parser {
	for _, p := range r.parsers {
		if p.CanParse(path) {
			return p
		}
	}
	return nil
}

// Close releases every parser's tree-sitter resources.
func (r *Registry) Close() {
	for _, p := range r.parsers {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func hasExtension(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// isExported reports Go-style exported-by-case visibility.
func isExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// looksLikeTestFile matches common test-file naming conventions across
// the languages this registry supports.
func looksLikeTestFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_") ||
		strings.HasSuffix(base, "_test.py")
}
