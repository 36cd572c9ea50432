package graph

import (
	"context"
	"fmt"
	"path"
	"sort"
)

// QueryEngine answers navigation queries against a GraphReader. It keeps no
// state of its own; every call reads the store.
type QueryEngine struct {
	store GraphReader
}

// NewQueryEngine returns a QueryEngine over store.
func NewQueryEngine(store GraphReader) *QueryEngine {
	return &QueryEngine{store: store}
}

// UsageLocation points into a file. A positive Line selects by 1-based line
// and 0-based column, and a negative Column then stands for the first usage
// starting on that line. Otherwise Offset is a byte offset.
type UsageLocation struct {
	File   string `json:"file"`
	Offset int    `json:"offset,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (l UsageLocation) lineOnly() bool { return l.Line > 0 && l.Column < 0 }

func (l UsageLocation) within(s Span) bool {
	if l.Line > 0 {
		return s.ContainsPosition(l.Line, l.Column)
	}
	return s.ContainsByte(l.Offset)
}

// DeclarationResult is what a usage resolves to. Candidates carry only the
// declarations that matched.
type DeclarationResult struct {
	Usage      UsageSite        `json:"usage"`
	Status     ResolutionStatus `json:"status"`
	Reason     UnresolvedReason `json:"reason,omitempty"`
	Ambiguous  bool             `json:"ambiguous"`
	Candidates []Symbol         `json:"candidates"`
}

// OutlineEntry is one line of a file outline.
type OutlineEntry struct {
	Symbol SymbolID   `json:"symbol"`
	Name   string     `json:"name"`
	Kind   SymbolKind `json:"kind"`
	Span   Span       `json:"span"`
	Level  int        `json:"level"`
}

// TreeNode is a directory or file in the workspace hierarchy.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     NodeKind    `json:"kind"`
	Children []*TreeNode `json:"children,omitempty"`
}

// FindReferences returns every resolved or ambiguous usage of the symbol,
// ordered by path then span start.
func (q *QueryEngine) FindReferences(ctx context.Context, id SymbolID) ([]ReferenceSite, error) {
	sym, err := q.store.SymbolByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sym == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}

	refs, err := q.store.ReferencesTo(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]ReferenceSite, 0, len(refs))
	for _, r := range refs {
		if r.Status == StatusUnresolved {
			continue
		}
		out = append(out, ReferenceSite{
			File:      r.Usage.File,
			Span:      r.Usage.Span,
			Name:      r.Usage.Name,
			Kind:      r.Usage.Kind,
			Enclosing: r.Usage.Enclosing,
			Ambiguous: r.Status == StatusAmbiguous,
			Targets:   r.Targets,
		})
	}
	return out, nil
}

// FindDeclarations resolves the usage at loc. It returns nil when no usage
// covers the location; nested usages prefer the innermost.
func (q *QueryEngine) FindDeclarations(ctx context.Context, loc UsageLocation) (*DeclarationResult, error) {
	refs, err := q.store.ReferencesIn(ctx, loc.File)
	if err != nil {
		return nil, err
	}

	var hit *Reference
	for i := range refs {
		r := &refs[i]
		sp := r.Usage.Span
		if loc.lineOnly() {
			if sp.StartLine != loc.Line {
				continue
			}
			if hit == nil || sp.StartByte < hit.Usage.Span.StartByte ||
				sp.StartByte == hit.Usage.Span.StartByte && spanLen(sp) < spanLen(hit.Usage.Span) {
				hit = r
			}
			continue
		}
		if !loc.within(sp) {
			continue
		}
		if hit == nil || spanLen(sp) < spanLen(hit.Usage.Span) {
			hit = r
		}
	}
	if hit == nil {
		return nil, nil
	}

	res := &DeclarationResult{
		Usage:     hit.Usage,
		Status:    hit.Status,
		Reason:    hit.Reason,
		Ambiguous: hit.Status == StatusAmbiguous,
	}
	for _, t := range hit.Targets {
		sym, err := q.store.SymbolByID(ctx, t.Symbol)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue
		}
		sym.Declarations = onlySites(sym.Declarations, t.Sites)
		res.Candidates = append(res.Candidates, *sym)
	}
	return res, nil
}

// FindDeclaration returns the single symbol the usage at loc resolves to, or
// nil when it is unresolved. Several candidate symbols yield ErrAmbiguous;
// use FindDeclarations to list them.
func (q *QueryEngine) FindDeclaration(ctx context.Context, loc UsageLocation) (*Symbol, error) {
	res, err := q.FindDeclarations(ctx, loc)
	if err != nil || res == nil {
		return nil, err
	}
	switch len(res.Candidates) {
	case 0:
		return nil, nil
	case 1:
		return &res.Candidates[0], nil
	default:
		return nil, fmt.Errorf("%w: %q has %d candidates", ErrAmbiguous, res.Usage.Name, len(res.Candidates))
	}
}

// SymbolsInFile returns the symbols declared in a file, ordered by the span
// start of their first declaration there.
func (q *QueryEngine) SymbolsInFile(ctx context.Context, p string) ([]Symbol, error) {
	decls, err := q.store.DeclarationsIn(ctx, p)
	if err != nil {
		return nil, err
	}
	seen := make(map[SymbolID]bool, len(decls))
	var out []Symbol
	for _, d := range decls {
		if seen[d.Symbol] {
			continue
		}
		seen[d.Symbol] = true
		sym, err := q.store.SymbolByID(ctx, d.Symbol)
		if err != nil {
			return nil, err
		}
		if sym != nil {
			out = append(out, *sym)
		}
	}
	return out, nil
}

// Outline returns the structural declarations of a file with nesting levels
// derived from span containment. Local variables and parameters are left
// out.
func (q *QueryEngine) Outline(ctx context.Context, p string) ([]OutlineEntry, error) {
	decls, err := q.store.DeclarationsIn(ctx, p)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(decls, func(i, j int) bool {
		a, b := decls[i].Span, decls[j].Span
		if a.StartByte != b.StartByte {
			return a.StartByte < b.StartByte
		}
		return a.EndByte > b.EndByte
	})

	var stack []Span
	var out []OutlineEntry
	for _, d := range decls {
		if d.Visibility == VisibilityLocal && (d.Kind == SymbolKindVariable || d.Kind == SymbolKindConstant) {
			continue
		}
		for len(stack) > 0 && !contains(stack[len(stack)-1], d.Span) {
			stack = stack[:len(stack)-1]
		}
		out = append(out, OutlineEntry{
			Symbol: d.Symbol,
			Name:   d.Name,
			Kind:   d.Kind,
			Span:   d.Span,
			Level:  len(stack),
		})
		stack = append(stack, d.Span)
	}
	return out, nil
}

// SearchSymbols finds non-local symbols by name substring.
func (q *QueryEngine) SearchSymbols(ctx context.Context, query string, kind SymbolKind, limit int) ([]Symbol, error) {
	return q.store.SearchSymbols(ctx, query, kind, limit)
}

// Unresolved lists unresolved references in one file, or in the whole
// workspace when p is empty.
func (q *QueryEngine) Unresolved(ctx context.Context, p string) ([]Reference, error) {
	var paths []string
	if p != "" {
		paths = []string{p}
	} else {
		files, err := q.store.Files(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			paths = append(paths, f.Path)
		}
	}

	var out []Reference
	for _, fp := range paths {
		refs, err := q.store.ReferencesIn(ctx, fp)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if r.Status == StatusUnresolved {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// Tree returns the directory hierarchy rooted at the workspace root, or nil
// for an empty graph.
func (q *QueryEngine) Tree(ctx context.Context) (*TreeNode, error) {
	root := NodeRef{Kind: NodeKindDirectory, Key: "."}
	kids, err := q.store.Neighbors(ctx, root, DirectionOutgoing, EdgeKindContains)
	if err != nil {
		return nil, err
	}
	if len(kids) == 0 {
		return nil, nil
	}
	return q.subtree(ctx, root)
}

func (q *QueryEngine) subtree(ctx context.Context, ref NodeRef) (*TreeNode, error) {
	node := &TreeNode{Name: path.Base(ref.Key), Path: ref.Key, Kind: ref.Kind}
	if ref.Kind != NodeKindDirectory {
		return node, nil
	}
	kids, err := q.store.Neighbors(ctx, ref, DirectionOutgoing, EdgeKindContains)
	if err != nil {
		return nil, err
	}
	for _, k := range kids {
		child, err := q.subtree(ctx, k)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	// Directories first, then files, each by name.
	sort.SliceStable(node.Children, func(i, j int) bool {
		a, b := node.Children[i], node.Children[j]
		if a.Kind != b.Kind {
			return a.Kind == NodeKindDirectory
		}
		return a.Name < b.Name
	})
	return node, nil
}

func onlySites(decls []Declaration, sites []DeclSite) []Declaration {
	var out []Declaration
	for _, d := range decls {
		for _, s := range sites {
			if d.Site() == s {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func contains(outer, inner Span) bool {
	return inner.StartByte >= outer.StartByte && inner.EndByte <= outer.EndByte
}

func spanLen(s Span) int { return s.EndByte - s.StartByte }
