package codeintel

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"mira/internal/model"
)

// PythonParser extracts classes and functions from Python source,
// grounded on
// theRebelliousNerd-codenerd/internal/world/ast_treesitter.go's
// extractPythonSymbols walker.
type PythonParser struct {
	parser *sitter.Parser
}

func NewPythonParser() *PythonParser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &PythonParser{parser: p}
}

func (p *PythonParser) Language() string      { return "python" }
func (p *PythonParser) CanParse(path string) bool { return hasExtension(path, ".py") }
func (p *PythonParser) Close()                { p.parser.Close() }

func (p *PythonParser) Parse(path string, content []byte) (FileAnalysis, error) {
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
		case "class_definition":
			if el, ok := p.buildClass(n, src); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "function_definition":
			if el, ok := p.buildFunction(n, src, isTestFile); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "import_statement", "import_from_statement":
			fa.Dependencies = append(fa.Dependencies, p.buildImports(n, src)...)
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

func (p *PythonParser) buildClass(n *sitter.Node, src string) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	e := model.CodeElement{
		Language:      "python",
		ElementType:   model.ElementClass,
		Name:          name,
		FullPath:      name,
		Visibility:    pythonVisibility(name),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		Documentation: pythonDocstring(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, "class "+name)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func (p *PythonParser) buildFunction(n *sitter.Node, src string, isTestFile bool) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	signature := "def " + name
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += text(params, src)
	}
	isAsync := strings.HasPrefix(strings.TrimSpace(text(n, src)), "async ")

	e := model.CodeElement{
		Language:      "python",
		ElementType:   model.ElementFunction,
		Name:          name,
		FullPath:      name,
		Visibility:    pythonVisibility(name),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		IsTest:        isTestFile && strings.HasPrefix(name, "test_"),
		IsAsync:       isAsync,
		Documentation: pythonDocstring(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, signature)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func (p *PythonParser) buildImports(n *sitter.Node, src string) []model.ExternalDependency {
	var out []model.ExternalDependency
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "dotted_name" {
			continue
		}
		moduleName := text(child, src)
		out = append(out, model.ExternalDependency{
			Path: moduleName,
			Kind: classifyDependency("python", moduleName),
		})
	}
	return out
}

func pythonVisibility(name string) model.Visibility {
	if strings.HasPrefix(name, "_") {
		return model.VisibilityPrivate
	}
	return model.VisibilityPublic
}

// pythonDocstring returns the first statement's string literal if it's a
// docstring — Python's documentation convention, unlike Go's preceding
// comment block.
func pythonDocstring(n *sitter.Node, src string) *string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return nil
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return nil
	}
	expr := first.NamedChild(0)
	if expr.Type() != "string" {
		return nil
	}
	doc := strings.Trim(text(expr, src), "\"'")
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil
	}
	return &doc
}
