package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedLanguage is returned for a language tag or file extension
	// outside the supported set. The file is skipped.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrUnparseable is returned when content yields no usable tree at all:
	// empty, binary or rejected wholesale by the grammar.
	ErrUnparseable = errors.New("unparseable source")

	ErrFileNotFound   = errors.New("file not found")
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrAmbiguous is returned by FindDeclaration when a usage has more than
	// one candidate symbol. FindDeclarations returns all of them.
	ErrAmbiguous = errors.New("ambiguous reference")
)

// ExtractionWarning records a syntax node whose shape did not match the
// extraction rules. The node is skipped and the rest of the file is indexed.
type ExtractionWarning struct {
	File     string `json:"file"`
	NodeKind string `json:"nodeKind"`
	Span     Span   `json:"span"`
	Message  string `json:"message"`
}

func (w ExtractionWarning) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s (%s)", w.File, w.Span.StartLine, w.Span.StartCol, w.Message, w.NodeKind)
}
