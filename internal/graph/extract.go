package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Extraction is everything the extractor found in one file.
type Extraction struct {
	File         SourceFile          `json:"file"`
	Declarations []Declaration       `json:"declarations"`
	Usages       []UsageSite         `json:"usages"`
	Imports      []string            `json:"imports,omitempty"`
	Warnings     []ExtractionWarning `json:"warnings,omitempty"`
}

// Extractor walks uniform syntax trees and emits declarations and usages
// according to the per-language rule tables. It holds no per-file state and
// is safe for concurrent use.
type Extractor struct {
	rules  map[Language]*langRules
	logger *slog.Logger
}

// NewExtractor returns an Extractor for every supported language. A nil
// logger falls back to slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		rules: map[Language]*langRules{
			LangRust:       rustRules,
			LangJava:       javaRules,
			LangC:          cRules,
			LangJavaScript: jsRules,
		},
		logger: logger,
	}
}

// Extract emits the declarations and usages of one parsed file. Unexpected
// node shapes become warnings on the result, never errors.
func (x *Extractor) Extract(tree *SyntaxTree, file SourceFile) (*Extraction, error) {
	rules, ok := x.rules[tree.Language]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, tree.Language)
	}

	w := &walker{
		rules:    rules,
		src:      tree.Source,
		file:     file,
		claimed:  make(map[*SyntaxNode]bool),
		imported: make(map[string]bool),
		locals:   make(map[string]bool),
		out:      &Extraction{File: file},
	}
	w.stack = []*frame{{
		id:    FileScope(file.Path),
		kind:  scopeModule,
		qname: w.namespace(tree.Root),
		node:  tree.Root,
	}}
	w.visit(tree.Root)

	for i := range w.out.Usages {
		w.out.Usages[i].Imported = w.imported[w.out.Usages[i].Name]
	}
	for name := range w.imported {
		w.out.Imports = append(w.out.Imports, name)
	}
	sort.Strings(w.out.Imports)

	for _, warn := range w.out.Warnings {
		x.logger.Warn("extraction warning",
			slog.String("file", warn.File),
			slog.String("node", warn.NodeKind),
			slog.Int("line", warn.Span.StartLine),
			slog.String("msg", warn.Message),
		)
	}
	return w.out, nil
}

// --- Walker ---

type frame struct {
	id       string // scope chain entry
	kind     scopeKind
	qname    string   // qualified-name prefix for declarations inside
	symbol   SymbolID // innermost named declaration, inherited by blocks
	node     *SyntaxNode
	blocks   int
	bodySeen bool
}

type walker struct {
	rules    *langRules
	src      []byte
	file     SourceFile
	stack    []*frame
	claimed  map[*SyntaxNode]bool
	imported map[string]bool
	locals   map[string]bool
	out      *Extraction
}

func (w *walker) top() *frame { return w.stack[len(w.stack)-1] }

func (w *walker) chain() []string {
	out := make([]string, len(w.stack))
	for i, f := range w.stack {
		out[i] = f.id
	}
	return out
}

func (w *walker) namespace(root *SyntaxNode) string {
	if w.rules.namespace == "" {
		return ""
	}
	for _, c := range root.Children() {
		if c.Kind() != w.rules.namespace {
			continue
		}
		for _, cc := range c.Children() {
			if w.rules.nameKinds[cc.Kind()] || cc.Kind() == "scoped_identifier" {
				return cc.Text(w.src)
			}
		}
	}
	return ""
}

func (w *walker) visit(n *SyntaxNode) {
	kind := n.Kind()

	if rule := w.rules.match(n, w.src); rule != nil {
		if rule.declareInside {
			w.pushBlock(n)
			w.declare(n, rule)
			w.visitChildren(n)
			w.pop()
			return
		}
		decls := w.declare(n, rule)
		if rule.opaque {
			return
		}
		scope := rule.scope
		if rule.scopeFor != nil {
			scope = rule.scopeFor(n)
		}
		if scope == scopeNone {
			w.visitChildren(n)
			return
		}
		if len(decls) > 0 {
			d := decls[0]
			w.stack = append(w.stack, &frame{
				id: string(d.Symbol), kind: scope, qname: d.QualifiedName, symbol: d.Symbol, node: n,
			})
		} else {
			w.pushBlock(n)
		}
		w.visitChildren(n)
		w.pop()
		return
	}

	if w.rules.skipUsages[kind] || (w.rules.skip != nil && w.rules.skip(n)) {
		if w.rules.imports[kind] {
			w.collectImports(n)
		}
		return
	}

	if sr, ok := w.rules.scopes[kind]; ok {
		if w.pushScope(n, sr) {
			w.visitChildren(n)
			w.pop()
			return
		}
	}

	if ur, ok := w.rules.identifiers[kind]; ok && !w.claimed[n] {
		w.usage(n, ur)
	}
	w.visitChildren(n)
}

func (w *walker) visitChildren(n *SyntaxNode) {
	for _, c := range n.Children() {
		w.visit(c)
	}
}

func (w *walker) pop() { w.stack = w.stack[:len(w.stack)-1] }

// pushScope opens a scope-only node. The body block of a function shares the
// function's frame, so it reports false without pushing.
func (w *walker) pushScope(n *SyntaxNode, sr scopeRule) bool {
	parent := w.top()
	if sr.kind == scopeBlock && n.Field() == "body" && parent.kind == scopeFunction && !parent.bodySeen {
		parent.bodySeen = true
		return false
	}
	if sr.nameField == "" {
		w.pushBlock(n)
		return true
	}
	name := ""
	if nn := w.rules.unwrapName(n.ChildByField(sr.nameField), sr.unwrap, nil); nn != nil {
		name = nn.Text(w.src)
	}
	if name == "" {
		w.pushBlock(n)
		return true
	}
	qname := w.rules.join(parent.qname, name)
	w.stack = append(w.stack, &frame{
		id:     string(w.rules.lang) + ":" + sr.label + ":" + qname,
		kind:   sr.kind,
		qname:  qname,
		symbol: parent.symbol,
		node:   n,
	})
	return true
}

func (w *walker) pushBlock(n *SyntaxNode) {
	parent := w.top()
	parent.blocks++
	w.stack = append(w.stack, &frame{
		id:     fmt.Sprintf("block:%d", n.Span().StartByte),
		kind:   scopeBlock,
		qname:  w.rules.join(parent.qname, fmt.Sprintf("{%d}", parent.blocks)),
		symbol: parent.symbol,
		node:   n,
	})
}

func (w *walker) warn(n *SyntaxNode, msg string) {
	w.out.Warnings = append(w.out.Warnings, ExtractionWarning{
		File:     w.file.Path,
		NodeKind: n.Kind(),
		Span:     n.Span(),
		Message:  msg,
	})
}

// declare emits one declaration per name the rule finds on n.
func (w *walker) declare(n *SyntaxNode, rule *declRule) []Declaration {
	hits := w.rules.names(n, rule, w.src)
	anonymous := false
	if len(hits) == 0 {
		switch {
		case rule.anonymous:
			anonymous = true
			hits = []nameHit{{kind: rule.kind}}
		case !rule.optional:
			w.warn(n, "declaration without a name")
			return nil
		default:
			return nil
		}
	}

	parent := w.top()
	var out []Declaration
	for _, hit := range hits {
		if rule.refine != nil {
			rule.refine(n, &hit)
		}

		var name string
		nameSpan := n.Span()
		if anonymous {
			name = fmt.Sprintf("<anonymous@%d:%d>", n.Span().StartLine, n.Span().StartCol)
		} else {
			if w.claimed[hit.node] {
				continue
			}
			name = hit.node.Text(w.src)
			nameSpan = hit.node.Span()
			if name == "" || hit.node.IsError() {
				w.warn(n, "declaration name is missing or malformed")
				continue
			}
			w.claimed[hit.node] = true
		}

		kind := hit.kind
		if kind == SymbolKindFunction && parent.kind == scopeType {
			kind = SymbolKindMethod
		}

		vis := VisibilityExported
		switch {
		case anonymous || parent.kind == scopeFunction || parent.kind == scopeBlock:
			vis = VisibilityLocal
		case w.rules.private != nil && w.rules.private(n, w.src):
			vis = VisibilityPrivate
		}

		qname := w.rules.join(parent.qname, name)
		idName := qname
		if vis == VisibilityLocal || (vis == VisibilityPrivate && w.rules.privateIsFileLocal) {
			idName = w.file.Path + "#" + qname
		}
		if vis == VisibilityLocal {
			// Sequential shadowing in one scope: each binding is its own symbol.
			if w.locals[idName] {
				idName = fmt.Sprintf("%s@%d:%d", idName, nameSpan.StartLine, nameSpan.StartCol)
			}
			w.locals[idName] = true
		}

		visibleFrom := 0
		if vis == VisibilityLocal && !rule.declareInside &&
			(kind == SymbolKindVariable || kind == SymbolKindConstant) {
			visibleFrom = n.Span().EndByte
		}

		d := Declaration{
			Symbol:        NewSymbolID(w.rules.lang, kind, idName),
			Name:          name,
			QualifiedName: qname,
			Kind:          kind,
			Language:      w.rules.lang,
			File:          w.file.Path,
			Span:          n.Span(),
			NameSpan:      nameSpan,
			Scope:         w.chain(),
			Visibility:    vis,
			Forward:       rule.forward || hit.forward,
			VisibleFrom:   visibleFrom,
		}
		w.out.Declarations = append(w.out.Declarations, d)
		out = append(out, d)
	}
	return out
}

// usage records an identifier that refers to a name.
func (w *walker) usage(n *SyntaxNode, ur usageRule) {
	parent := n.Parent()
	if ur.parents != nil && (parent == nil || !ur.parents[parent.Kind()]) {
		return
	}
	name := n.Text(w.src)
	if name == "" || n.IsError() {
		return
	}

	kind := ur.kind
	qualifier := ""
	expr := n
	if parent != nil {
		if ms, ok := w.rules.members[parent.Kind()]; ok && n.Field() == ms.name {
			if obj := parent.ChildByField(ms.object); obj != nil {
				qualifier = obj.Text(w.src)
			}
			expr = parent
		}
	}
	if w.rules.isCall(n) || w.rules.isCall(expr) {
		kind = UsageCall
	}

	w.out.Usages = append(w.out.Usages, UsageSite{
		File:      w.file.Path,
		Language:  w.rules.lang,
		Span:      n.Span(),
		Name:      name,
		Kind:      kind,
		Qualifier: qualifier,
		Scope:     w.chain(),
		Enclosing: w.top().symbol,
	})
}

func (w *walker) collectImports(n *SyntaxNode) {
	n.Walk(func(c *SyntaxNode) bool {
		if w.rules.nameKinds[c.Kind()] {
			w.imported[c.Text(w.src)] = true
		}
		return true
	})
}

// --- Rule tables ---

type scopeKind int

const (
	scopeNone scopeKind = iota
	scopeModule
	scopeType
	scopeFunction
	scopeBlock
)

// nameHit is one name node found by a declaration rule. via lists the node
// kinds passed through while unwrapping, outermost first.
type nameHit struct {
	node    *SyntaxNode
	kind    SymbolKind
	forward bool
	via     []string
}

type declRule struct {
	kind      SymbolKind
	nameField string   // empty: the node itself holds the name
	unwrap    []string // fields followed until a name kind is reached
	bindings  bool     // every binding identifier under the name node

	scope         scopeKind
	scopeFor      func(n *SyntaxNode) scopeKind
	declareInside bool // open a block and declare into it
	anonymous     bool // synthesize a name when none is found
	optional      bool // a missing name is not a warning
	forward       bool
	opaque        bool // do not descend

	when   func(n *SyntaxNode, src []byte) bool
	refine func(n *SyntaxNode, hit *nameHit)
}

type scopeRule struct {
	kind      scopeKind
	label     string // scope id label for named scopes
	nameField string
	unwrap    []string
}

type usageRule struct {
	kind    UsageKind
	parents map[string]bool // nil: any parent
}

type memberShape struct {
	name   string // field holding the member name
	object string // field holding the receiver or path
}

// langRules is the complete language-specific knowledge used by the
// extractor. Everything else is language-agnostic.
type langRules struct {
	lang      Language
	sep       string
	namespace string // node kind naming the file namespace

	decls       map[string][]declRule
	scopes      map[string]scopeRule
	identifiers map[string]usageRule
	members     map[string]memberShape
	calls       map[string]string // parent kind -> callee field
	skipUsages  map[string]bool
	skip        func(n *SyntaxNode) bool // like skipUsages, decided per node
	imports     map[string]bool

	nameKinds         map[string]bool
	bindingKinds      map[string]bool
	bindingSkipFields map[string]bool
	bindingFilter     func(name string) bool

	private            func(n *SyntaxNode, src []byte) bool
	privateIsFileLocal bool
	selfNames          map[string]bool
}

func (r *langRules) match(n *SyntaxNode, src []byte) *declRule {
	for i, rule := range r.decls[n.Kind()] {
		if rule.when == nil || rule.when(n, src) {
			return &r.decls[n.Kind()][i]
		}
	}
	return nil
}

func (r *langRules) join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + r.sep + name
}

func (r *langRules) isCall(n *SyntaxNode) bool {
	p := n.Parent()
	if p == nil || n.Field() == "" {
		return false
	}
	field, ok := r.calls[p.Kind()]
	return ok && field == n.Field()
}

// names finds the name nodes a declaration rule introduces.
func (r *langRules) names(n *SyntaxNode, rule *declRule, src []byte) []nameHit {
	var roots []*SyntaxNode
	if rule.nameField == "" {
		roots = []*SyntaxNode{n}
	} else {
		roots = n.ChildrenByField(rule.nameField)
	}

	var hits []nameHit
	for _, root := range roots {
		if rule.bindings {
			for _, b := range r.collectBindings(root, src) {
				hits = append(hits, nameHit{node: b, kind: rule.kind})
			}
			continue
		}
		var via []string
		if nn := r.unwrapName(root, rule.unwrap, &via); nn != nil {
			hits = append(hits, nameHit{node: nn, kind: rule.kind, via: via})
		}
	}
	return hits
}

// unwrapName follows fields from n until it reaches a name node.
func (r *langRules) unwrapName(n *SyntaxNode, fields []string, via *[]string) *SyntaxNode {
	for depth := 0; n != nil && depth < 16; depth++ {
		if r.nameKinds[n.Kind()] {
			return n
		}
		if via != nil {
			*via = append(*via, n.Kind())
		}
		var next *SyntaxNode
		for _, f := range fields {
			if next = n.ChildByField(f); next != nil {
				break
			}
		}
		if next == nil && len(n.Children()) == 1 {
			next = n.Children()[0]
		}
		n = next
	}
	return nil
}

func (r *langRules) collectBindings(root *SyntaxNode, src []byte) []*SyntaxNode {
	var out []*SyntaxNode
	root.Walk(func(c *SyntaxNode) bool {
		if c != root && r.bindingSkipFields[c.Field()] {
			return false
		}
		if r.bindingKinds[c.Kind()] {
			if r.bindingFilter == nil || r.bindingFilter(c.Text(src)) {
				out = append(out, c)
			}
			return false
		}
		return true
	})
	return out
}

// --- Rule helpers ---

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// hasModifier reports whether a child of n of the given kind contains word.
func hasModifier(n *SyntaxNode, src []byte, kind, word string) bool {
	for _, c := range n.Children() {
		if c.Kind() != kind {
			continue
		}
		for _, f := range strings.Fields(c.Text(src)) {
			if f == word {
				return true
			}
		}
	}
	return false
}

func parentIs(n *SyntaxNode, kind, field string) bool {
	p := n.Parent()
	return p != nil && p.Kind() == kind && n.Field() == field
}
