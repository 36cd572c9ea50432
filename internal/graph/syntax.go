package graph

// SyntaxTree is the grammar-independent tree produced by the adapter. It is
// immutable once built and owned by the worker that parsed it.
type SyntaxTree struct {
	Language  Language
	Source    []byte
	Root      *SyntaxNode
	HasErrors bool // error-recovery nodes are present
}

// SyntaxNode is one named node of a SyntaxTree. Anonymous tokens (punctuation,
// keywords) are not kept, except inside ERROR nodes where recovery may have
// produced them.
type SyntaxNode struct {
	kind     string
	field    string
	span     Span
	parent   *SyntaxNode
	children []*SyntaxNode
	isError  bool
	missing  bool
}

// Kind returns the grammar node kind, e.g. "function_item".
func (n *SyntaxNode) Kind() string { return n.kind }

// Field returns the field name under which the node hangs off its parent, or
// the empty string.
func (n *SyntaxNode) Field() string { return n.field }

func (n *SyntaxNode) Span() Span { return n.span }

func (n *SyntaxNode) Parent() *SyntaxNode { return n.parent }

// Children returns the node's named children in source order. The slice must
// not be modified.
func (n *SyntaxNode) Children() []*SyntaxNode { return n.children }

// IsError reports whether the node is an ERROR node or was inserted by the
// grammar as MISSING.
func (n *SyntaxNode) IsError() bool { return n.isError || n.missing }

// ChildByField returns the first child with the given field name.
func (n *SyntaxNode) ChildByField(field string) *SyntaxNode {
	for _, c := range n.children {
		if c.field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns all children with the given field name.
func (n *SyntaxNode) ChildrenByField(field string) []*SyntaxNode {
	var out []*SyntaxNode
	for _, c := range n.children {
		if c.field == field {
			out = append(out, c)
		}
	}
	return out
}

// Text returns the source text covered by the node.
func (n *SyntaxNode) Text(src []byte) string {
	if n.span.StartByte < 0 || n.span.EndByte > len(src) || n.span.StartByte > n.span.EndByte {
		return ""
	}
	return string(src[n.span.StartByte:n.span.EndByte])
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func (n *SyntaxNode) Walk(fn func(*SyntaxNode) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Ancestor returns the nearest ancestor of one of the given kinds.
func (n *SyntaxNode) Ancestor(kinds ...string) *SyntaxNode {
	for p := n.parent; p != nil; p = p.parent {
		for _, k := range kinds {
			if p.kind == k {
				return p
			}
		}
	}
	return nil
}
