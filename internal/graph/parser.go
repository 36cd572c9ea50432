package graph

import "context"

// Parser turns file content into a uniform syntax tree.
// Implementations: TreeSitterParser (production), stub parsers in tests.
type Parser interface {
	// Parse builds a syntax tree for content in the given language. It fails
	// with ErrUnsupportedLanguage or ErrUnparseable; partial source yields a
	// best-effort tree with SyntaxTree.HasErrors set.
	Parse(ctx context.Context, content []byte, lang Language) (*SyntaxTree, error)

	// SupportedLanguages returns the languages this parser can handle.
	SupportedLanguages() []Language

	// Close releases parser resources.
	Close() error
}
