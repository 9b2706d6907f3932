package codeintel

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParser reuses the JS/TS shared walker in lang_javascript.go
// (parseJSLike), grounded on
// theRebelliousNerd-codenerd/internal/world/ast_treesitter.go's
// extractTSSymbols, which differs from extractJSSymbols only in grammar.
type TypeScriptParser struct {
	parser *sitter.Parser
}

func NewTypeScriptParser() *TypeScriptParser {
	p := sitter.NewParser()
	p.SetLanguage(typescript.GetLanguage())
	return &TypeScriptParser{parser: p}
}

func (p *TypeScriptParser) Language() string { return "typescript" }
func (p *TypeScriptParser) CanParse(path string) bool {
	return hasExtension(path, ".ts", ".tsx")
}
func (p *TypeScriptParser) Close() { p.parser.Close() }

func (p *TypeScriptParser) Parse(path string, content []byte) (FileAnalysis, error) {
	return parseJSLike(p.parser, path, content, "typescript")
}
