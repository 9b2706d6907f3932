package codeintel

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"mira/internal/model"
)

// GoParser extracts functions, methods, structs and interfaces from Go
// source, grounded on
// theRebelliousNerd-codenerd/internal/world/ast_treesitter.go's
// extractGoSymbols walker.
type GoParser struct {
	parser *sitter.Parser
}

func NewGoParser() *GoParser {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &GoParser{parser: p}
}

func (p *GoParser) Language() string     { return "go" }
func (p *GoParser) CanParse(path string) bool { return hasExtension(path, ".go") }
func (p *GoParser) Close()               { p.parser.Close() }

func (p *GoParser) Parse(path string, content []byte) (FileAnalysis, error) {
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
		case "function_declaration":
			if el, ok := p.buildFunction(n, path, src, isTestFile); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "method_declaration":
			if el, ok := p.buildMethod(n, path, src, isTestFile); ok {
				fa.Elements = append(fa.Elements, el)
			}
		case "type_declaration":
			fa.Elements = append(fa.Elements, p.buildTypes(n, path, src)...)
		case "import_declaration":
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

func (p *GoParser) buildFunction(n *sitter.Node, path, src string, isTestFile bool) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	signature := "func " + name
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature = "func " + name + text(params, src)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		signature += " " + text(result, src)
	}

	e := model.CodeElement{
		Language:        "go",
		ElementType:     model.ElementFunction,
		Name:            name,
		FullPath:        name,
		Visibility:      visibilityFromCase(name),
		StartLine:       int(n.StartPoint().Row) + 1,
		EndLine:         int(n.EndPoint().Row) + 1,
		Content:         text(n, src),
		IsTest:          isTestFile && strings.HasPrefix(name, "Test"),
		Documentation:   precedingDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, signature)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func (p *GoParser) buildMethod(n *sitter.Node, path, src string, isTestFile bool) (model.CodeElement, bool) {
	nameNode := n.ChildByFieldName("name")
	receiverNode := n.ChildByFieldName("receiver")
	if nameNode == nil || receiverNode == nil {
		return model.CodeElement{}, false
	}
	name := text(nameNode, src)
	receiver := strings.TrimSpace(text(receiverNode, src))
	fullPath := receiverTypeName(receiver) + "." + name

	signature := "func " + receiver + " " + name
	if params := n.ChildByFieldName("parameters"); params != nil {
		signature += text(params, src)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		signature += " " + text(result, src)
	}

	e := model.CodeElement{
		Language:      "go",
		ElementType:   model.ElementMethod,
		Name:          name,
		FullPath:      fullPath,
		Visibility:    visibilityFromCase(name),
		StartLine:     int(n.StartPoint().Row) + 1,
		EndLine:       int(n.EndPoint().Row) + 1,
		Content:       text(n, src),
		IsTest:        isTestFile && strings.HasPrefix(name, "Test"),
		Documentation: precedingDocComment(n, src),
	}
	e.SignatureHash = signatureHash(e.FullPath, signature)
	e.ComplexityScore = complexityScore(e.Content)
	return e, true
}

func (p *GoParser) buildTypes(n *sitter.Node, path, src string) []model.CodeElement {
	var out []model.CodeElement
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil {
			continue
		}
		name := text(nameNode, src)
		kind := model.ElementType("type")
		if typeNode != nil {
			switch typeNode.Type() {
			case "struct_type":
				kind = model.ElementStruct
			case "interface_type":
				kind = model.ElementInterface
			}
		}
		e := model.CodeElement{
			Language:      "go",
			ElementType:   kind,
			Name:          name,
			FullPath:      name,
			Visibility:    visibilityFromCase(name),
			StartLine:     int(spec.StartPoint().Row) + 1,
			EndLine:       int(spec.EndPoint().Row) + 1,
			Content:       text(spec, src),
			Documentation: precedingDocComment(n, src),
		}
		e.SignatureHash = signatureHash(e.FullPath, "type "+name+" "+string(kind))
		e.ComplexityScore = complexityScore(e.Content)
		out = append(out, e)
	}
	return out
}

func (p *GoParser) buildImports(n *sitter.Node, src string) []model.ExternalDependency {
	var out []model.ExternalDependency
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "import_spec" {
			continue
		}
		pathNode := spec.ChildByFieldName("path")
		if pathNode == nil {
			continue
		}
		importPath := strings.Trim(text(pathNode, src), `"`)
		out = append(out, model.ExternalDependency{
			Path: importPath,
			Kind: classifyDependency("go", importPath),
		})
	}
	return out
}

func receiverTypeName(receiver string) string {
	receiver = strings.Trim(receiver, "()")
	fields := strings.Fields(receiver)
	if len(fields) == 0 {
		return receiver
	}
	return strings.TrimPrefix(fields[len(fields)-1], "*")
}

func visibilityFromCase(name string) model.Visibility {
	if isExported(name) {
		return model.VisibilityPublic
	}
	return model.VisibilityPrivate
}

func text(n *sitter.Node, src string) string {
	return n.Content([]byte(src))
}

// precedingDocComment returns the nearest preceding `//`-comment block
// immediately above a declaration, or nil if there isn't one.
func precedingDocComment(n *sitter.Node, src string) *string {
	prev := n.PrevSibling()
	var lines []string
	for prev != nil && prev.Type() == "comment" {
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(text(prev, src), "//"))}, lines...)
		prev = prev.PrevSibling()
	}
	if len(lines) == 0 {
		return nil
	}
	doc := strings.Join(lines, " ")
	return &doc
}
