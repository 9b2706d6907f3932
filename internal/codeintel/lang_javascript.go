package codeintel

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"mira/internal/model"
)

// JavaScriptParser extracts classes and functions from JS source,
// grounded on
// theRebelliousNerd-codenerd/internal/world/ast_treesitter.go's
// extractJSSymbols walker.
type JavaScriptParser struct {
	parser *sitter.Parser
}

func NewJavaScriptParser() *JavaScriptParser {
	p := sitter.NewParser()
	p.SetLanguage(javascript.GetLanguage())
	return &JavaScriptParser{parser: p}
}

func (p *JavaScriptParser) Language() string { return "javascript" }
func (p *JavaScriptParser) CanParse(path string) bool {
	return hasExtension(path, ".js", ".jsx", ".mjs", ".cjs")
}
func (p *JavaScriptParser) Close() { p.parser.Close() }

func (p *JavaScriptParser) Parse(path string, content []byte) (FileAnalysis, error) {
	return parseJSLike(p.parser, path, content, "javascript")
}

// parseJSLike is shared between the JavaScript and TypeScript parsers,
// which differ only in grammar and language tag — the walker logic is
// identical, following the teacher's own near-duplicate
// extractJSSymbols/extractTSSymbols pair, collapsed here into one
// generalized implementation.
func parseJSLike(parser *sitter.Parser, path string, content []byte, language string) (FileAnalysis, error) {
	tree, err := parser.ParseCtx(context.Background(), nil, content)
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
		case "class_declaration":
			if el, ok := buildJSClass(n, src, language); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "interface_declaration":
			if el, ok := buildJSInterface(n, src, language); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "function_declaration":
			if el, ok := buildJSFunction(n, src, language, isTestFile); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "lexical_declaration":
			fa.Elements = append(fa.Elements, buildJSArrowFunctions(n, src, language, isTestFile)...)
		case "import_statement":
			if dep, ok := buildJSImport(n, src, language); ok {
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

func jsHasExport(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Type() == "export_statement"
}

func jsVisibility(n *sitter.Node) model.Visibility {
	if jsHasExport(n) {
		return model.VisibilityPublic
	}
	return model.VisibilityPrivate
}

// jsDocComment returns the nearest preceding /** ... */ or // block,
// same convention as precedingDocComment but matching JS/TS comment
// node types.
func jsDocComment(n *sitter.Node, src string) *string {
	target := n
	if jsHasExport(n) {
		target = n.Parent()
	}
	prev := target.PrevSibling()
	var lines []string
	for prev != nil && prev.Type() == "comment" {
		lines = append([]string{strings.TrimSpace(text(prev, src))}, lines...)
		prev = prev.PrevSibling()
	}
	if len(lines) == 0 {
		return nil
	}
	doc := strings.Join(lines, " ")
	return &doc
}

func buildJSClass(n *sitter.Node, src, language string) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	e := model.CodeElement{
		Language:      language,
		ElementType:   model.ElementClass,
		Name:          name,
		FullPath:      name,
		Visibility:    jsVisibility(n),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		Documentation: jsDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, "class "+name)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func buildJSInterface(n *sitter.Node, src, language string) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	e := model.CodeElement{
		Language:      language,
		ElementType:   model.ElementInterface,
		Name:          name,
		FullPath:      name,
		Visibility:    jsVisibility(n),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		Documentation: jsDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, "interface "+name)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func buildJSFunction(n *sitter.Node, src, language string, isTestFile bool) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	signature := "function " + name
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += text(params, src)
	}
	isAsync := strings.HasPrefix(strings.TrimSpace(text(n, src)), "async ")

	e := model.CodeElement{
		Language:      language,
		ElementType:   model.ElementFunction,
		Name:          name,
		FullPath:      name,
		Visibility:    jsVisibility(n),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		IsTest:        isTestFile,
		IsAsync:       isAsync,
		Documentation: jsDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, signature)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func buildJSArrowFunctions(n *sitter.Node, src, language string, isTestFile bool) []model.CodeElement {
	var out []model.CodeElement
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		valueNode := child.ChildByFieldName("value")
		if nameNode == nil || valueNode == nil {
			continue
		}
		if valueNode.Type() != "arrow_function" && valueNode.Type() != "function" {
			continue
		}
		name := text(nameNode, src)
		e := model.CodeElement{
			Language:      language,
			ElementType:   model.ElementFunction,
			Name:          name,
			FullPath:      name,
			Visibility:    jsVisibility(n),
			StartLine:     int(child.StartPoint().Row) + 1,
			EndLine:       int(child.EndPoint().Row) + 1,
			Content:       text(child, src),
			IsTest:        isTestFile,
			IsAsync:       strings.HasPrefix(strings.TrimSpace(text(valueNode, src)), "async "),
			Documentation: jsDocComment(n, src),
		}
		e.SignatureHash = signatureHash(e.FullPath, "const "+name+" = ...")
		e.ComplexityScore = complexityScore(e.Content)
		out = append(out, e)
	}
	return out
}

func buildJSImport(n *sitter.Node, src, language string) (model.ExternalDependency, bool) {
	sourceNode := n.ChildByFieldName("source")
	if sourceNode == nil {
		return model.ExternalDependency{}, false
	}
	source := strings.Trim(text(sourceNode, src), `"'`)
	return model.ExternalDependency{
		Path: source,
		Kind: classifyDependency(language, source),
	}, true
}
