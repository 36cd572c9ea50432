package graph

import "sort"

// SymbolIndex groups declarations by simple name for resolution.
type SymbolIndex struct {
	byName map[string][]Declaration
	count  int
}

// NewSymbolIndex builds an index over decls.
func NewSymbolIndex(decls []Declaration) *SymbolIndex {
	ix := &SymbolIndex{byName: make(map[string][]Declaration, len(decls))}
	for _, d := range decls {
		ix.Add(d)
	}
	return ix
}

// Add indexes one declaration.
func (ix *SymbolIndex) Add(d Declaration) {
	ix.byName[d.Name] = append(ix.byName[d.Name], d)
	ix.count++
}

// Lookup returns every declaration named name, ordered by file and span.
func (ix *SymbolIndex) Lookup(name string) []Declaration {
	decls := ix.byName[name]
	out := make([]Declaration, len(decls))
	copy(out, decls)
	sort.Slice(out, func(i, j int) bool { return lessDecl(out[i], out[j]) })
	return out
}

// Len returns the number of indexed declarations.
func (ix *SymbolIndex) Len() int { return ix.count }

func lessDecl(a, b Declaration) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Span.StartByte != b.Span.StartByte {
		return a.Span.StartByte < b.Span.StartByte
	}
	if a.NameSpan.StartByte != b.NameSpan.StartByte {
		return a.NameSpan.StartByte < b.NameSpan.StartByte
	}
	return a.Symbol < b.Symbol
}

func lessSite(a, b DeclSite) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	return a.Span.StartByte < b.Span.StartByte
}
