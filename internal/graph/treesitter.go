package graph

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
)

// Compile-time check that TreeSitterParser satisfies Parser.
var _ Parser = (*TreeSitterParser)(nil)

// TreeSitterParser implements Parser using tree-sitter grammars. A new
// tree-sitter parser is created per Parse call and the C tree is released
// before Parse returns, so concurrent Parse calls are safe.
type TreeSitterParser struct {
	languages map[Language]*tree_sitter.Language
}

// NewTreeSitterParser creates a TreeSitterParser with Rust, Java, C and
// JavaScript grammars registered.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{
		languages: map[Language]*tree_sitter.Language{
			LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
			LangJava:       tree_sitter.NewLanguage(tree_sitter_java.Language()),
			LangC:          tree_sitter.NewLanguage(tree_sitter_c.Language()),
			LangJavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
		},
	}
}

// Parse builds a uniform syntax tree for content.
func (p *TreeSitterParser) Parse(_ context.Context, content []byte, lang Language) (*SyntaxTree, error) {
	tsLang, ok := p.languages[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrUnparseable)
	}
	if bytes.IndexByte(content, 0) >= 0 || !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: binary content", ErrUnparseable)
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: tree-sitter returned nil tree", ErrUnparseable)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.IsError() {
		return nil, fmt.Errorf("%w: no recoverable structure", ErrUnparseable)
	}

	cursor := root.Walk()
	defer cursor.Close()

	return &SyntaxTree{
		Language:  lang,
		Source:    content,
		Root:      convert(cursor, nil),
		HasErrors: root.HasError(),
	}, nil
}

// SupportedLanguages returns the languages this parser can handle.
func (p *TreeSitterParser) SupportedLanguages() []Language {
	out := make([]Language, 0, len(p.languages))
	for _, l := range SupportedLanguages {
		if _, ok := p.languages[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Close is a no-op because parsers are created per Parse call.
func (p *TreeSitterParser) Close() error {
	return nil
}

// convert copies the subtree under the cursor into SyntaxNodes. Only named
// nodes, ERROR nodes and MISSING nodes are kept.
func convert(cursor *tree_sitter.TreeCursor, parent *SyntaxNode) *SyntaxNode {
	tsNode := cursor.Node()
	start, end := tsNode.StartPosition(), tsNode.EndPosition()

	node := &SyntaxNode{
		kind:  tsNode.Kind(),
		field: cursor.FieldName(),
		span: Span{
			StartByte: int(tsNode.StartByte()),
			EndByte:   int(tsNode.EndByte()),
			StartLine: int(start.Row) + 1,
			StartCol:  int(start.Column),
			EndLine:   int(end.Row) + 1,
			EndCol:    int(end.Column),
		},
		parent:  parent,
		isError: tsNode.IsError(),
		missing: tsNode.IsMissing(),
	}

	if cursor.GotoFirstChild() {
		for {
			child := cursor.Node()
			if child.IsNamed() || child.IsError() || child.IsMissing() {
				node.children = append(node.children, convert(cursor, node))
			}
			if !cursor.GotoNextSibling() {
				break
			}
		}
		cursor.GotoParent()
	}
	return node
}

// CountLOC counts the number of lines in source by counting newline bytes
// and adding one for the final line if the source is non-empty.
func CountLOC(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	return bytes.Count(source, []byte{'\n'}) + 1
}
