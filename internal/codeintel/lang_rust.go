package codeintel

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"mira/internal/model"
)

// RustParser extracts functions, structs, enums and modules from Rust
// source, grounded on
// theRebelliousNerd-codenerd/internal/world/ast_treesitter.go's
// extractRustSymbols walker.
type RustParser struct {
	parser *sitter.Parser
}

func NewRustParser() *RustParser {
	p := sitter.NewParser()
	p.SetLanguage(rust.GetLanguage())
	return &RustParser{parser: p}
}

func (p *RustParser) Language() string      { return "rust" }
func (p *RustParser) CanParse(path string) bool { return hasExtension(path, ".rs") }
func (p *RustParser) Close()                { p.parser.Close() }

func (p *RustParser) Parse(path string, content []byte) (FileAnalysis, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return FileAnalysis{}, err
	}
	defer tree.Close()

	fa := FileAnalysis{}
	src := string(content)
	isTestFile := looksLikeTestFile(path)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_item":
			if el, ok := p.buildFunction(n, src, isTestFile); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "struct_item":
			if el, ok := p.buildNamed(n, src, model.ElementStruct, "struct"); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "enum_item":
			if el, ok := p.buildNamed(n, src, model.ElementType("enum"), "enum"); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "mod_item":
			if el, ok := p.buildNamed(n, src, model.ElementModule, "mod"); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "use_declaration":
			if dep, ok := p.buildImport(n, src); ok {
				fa.Dependencies = append(fa.Dependencies, dep)
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	for i := range fa.Elements {
		if fa.Elements[i].IsTest {
			fa.TestCount++
		}
	}
	fa.ComplexityScore, fa.DocCoverage = rollup(fa.Elements)
	return fa, nil
}

func (p *RustParser) hasPubVisibility(n *sitter.Node) model.Visibility {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "visibility_modifier" {
			return model.VisibilityPublic
		}
	}
	return model.VisibilityPrivate
}

func (p *RustParser) buildFunction(n *sitter.Node, src string, isTestFile bool) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	signature := "fn " + name
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += text(params, src)
	}
	body := text(n, src)

	e := model.CodeElement{
		Language:      "rust",
		ElementType:   model.ElementFunction,
		Name:          name,
		FullPath:      name,
		Visibility:    p.hasPubVisibility(n),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       body,
		IsTest:        isTestFile || hasTestAttribute(n, src),
		IsAsync:       strings.Contains(signature, "async") || strings.HasPrefix(strings.TrimSpace(body), "async "),
		Documentation: rustDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, signature)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func (p *RustParser) buildNamed(n *sitter.Node, src string, kind model.ElementType, keyword string) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	e := model.CodeElement{
		Language:      "rust",
		ElementType:   kind,
		Name:          name,
		FullPath:      name,
		Visibility:    p.hasPubVisibility(n),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		Documentation: rustDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, keyword+" "+name)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func (p *RustParser) buildImport(n *sitter.Node, src string) (model.ExternalDependency, bool) {
	useTree := n.ChildByFieldName("argument")
	if useTree == nil {
		return model.ExternalDependency{}, false
	}
	usePath := text(useTree, src)
	return model.ExternalDependency{
		Path: usePath,
		Kind: classifyDependency("rust", usePath),
	}, true
}

// hasTestAttribute looks for a preceding #[test] or #[tokio::test]
// attribute, Rust's test-marking convention (no separate naming
// convention the way Go/Python use).
func hasTestAttribute(n *sitter.Node, src string) bool {
	prev := n.PrevSibling()
	for prev != nil && prev.Type() == "attribute_item" {
		if strings.Contains(text(prev, src), "test") {
			return true
		}
		prev = prev.PrevSibling()
	}
	return false
}

func rustDocComment(n *sitter.Node, src string) *string {
	prev := n.PrevSibling()
	var lines []string
	for prev != nil && (prev.Type() == "line_comment" || prev.Type() == "block_comment") {
		t := strings.TrimSpace(text(prev, src))
		if strings.HasPrefix(t, "///") || strings.HasPrefix(t, "//!") {
			lines = append([]string{strings.TrimSpace(strings.TrimLeft(t, "/!"))}, lines...)
		}
		prev = prev.PrevSibling()
	}
	if len(lines) == 0 {
		return nil
	}
	doc := strings.Join(lines, " ")
	return &doc
}
