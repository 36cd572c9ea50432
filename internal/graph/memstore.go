package graph

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// NodeID and EdgeID are stable arena keys. Zero is never allocated; an edge
// whose target is zero is an unresolved reference.
type (
	NodeID uint64
	EdgeID uint64
)

type memNode struct {
	id   NodeID
	kind NodeKind
	key  string
	file SourceFile
	sym  Symbol // Declarations are derived from DECLARES edges
}

type memEdge struct {
	id    EdgeID
	kind  EdgeKind
	from  NodeID
	to    NodeID
	decl  *Declaration
	usage UsageKey
}

// refRecord is the state of one usage site. It owns one REFERENCES edge per
// target symbol, or a single edge with a null target.
type refRecord struct {
	usage   UsageSite
	status  ResolutionStatus
	reason  UnresolvedReason
	targets []Target
	edges   []EdgeID
}

// MemStore implements Store as an arena of nodes and edges with an adjacency
// index. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu      sync.RWMutex
	next    uint64
	nodes   map[NodeID]*memNode
	edges   map[EdgeID]*memEdge
	out     map[NodeID]map[EdgeID]struct{}
	in      map[NodeID]map[EdgeID]struct{}
	files   map[string]NodeID
	dirs    map[string]NodeID
	symbols map[SymbolID]NodeID
	refs    map[UsageKey]*refRecord
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:   make(map[NodeID]*memNode),
		edges:   make(map[EdgeID]*memEdge),
		out:     make(map[NodeID]map[EdgeID]struct{}),
		in:      make(map[NodeID]map[EdgeID]struct{}),
		files:   make(map[string]NodeID),
		dirs:    make(map[string]NodeID),
		symbols: make(map[SymbolID]NodeID),
		refs:    make(map[UsageKey]*refRecord),
	}
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// ---------- Mutations ----------

// UpsertFile atomically swaps in a new version of a file.
func (m *MemStore) UpsertFile(_ context.Context, update FileUpdate) error {
	p := update.File.Path
	if p == "" {
		return fmt.Errorf("upsert file: empty path")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var affected map[NodeID]bool
	fid, exists := m.files[p]
	if exists {
		affected = m.clearFile(fid)
	} else {
		fid = m.addFileNode(p)
	}
	m.nodes[fid].file = update.File

	for _, d := range update.Declarations {
		d = cloneDecl(d)
		d.File = p
		sid := m.ensureSymbol(d)
		e := m.addEdge(EdgeKindDeclares, fid, sid)
		e.decl = &d
	}
	for _, u := range update.Usages {
		u = cloneUsage(u)
		u.File = p
		m.setReference(fid, Reference{Usage: u, Status: StatusUnresolved, Reason: ReasonPending})
	}

	m.cascade(affected)
	return nil
}

// RemoveFile drops a file and cascades to its symbols and references.
func (m *MemStore) RemoveFile(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.files[p]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	affected := m.clearFile(fid)
	m.removeNode(fid)
	delete(m.files, p)
	m.pruneDirs(dirOf(p))
	m.cascade(affected)
	return nil
}

// UpsertSymbol creates a symbol node or updates its metadata. Declarations
// are owned by files and ignored here.
func (m *MemStore) UpsertSymbol(_ context.Context, sym Symbol) error {
	if sym.ID == "" {
		return fmt.Errorf("upsert symbol: empty id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sid, ok := m.symbols[sym.ID]
	if !ok {
		sid = m.addNode(NodeKindSymbol, string(sym.ID))
		m.symbols[sym.ID] = sid
	}
	sym.Declarations = nil
	m.nodes[sid].sym = sym
	return nil
}

// UpsertReference replaces the resolution of one usage site.
func (m *MemStore) UpsertReference(_ context.Context, ref Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.files[ref.Usage.File]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, ref.Usage.File)
	}
	for _, t := range ref.Targets {
		if _, ok := m.symbols[t.Symbol]; !ok {
			return fmt.Errorf("%w: %s", ErrSymbolNotFound, t.Symbol)
		}
	}
	m.setReference(fid, cloneRef(ref))
	return nil
}

// ApplyResolution upserts a batch of references. References whose file or
// targets disappeared since resolution started are skipped; the next
// resolution pass picks them up.
func (m *MemStore) ApplyResolution(_ context.Context, refs []Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

next:
	for _, ref := range refs {
		fid, ok := m.files[ref.Usage.File]
		if !ok {
			continue
		}
		if _, ok := m.refs[ref.Usage.Key()]; !ok {
			continue
		}
		for _, t := range ref.Targets {
			if _, ok := m.symbols[t.Symbol]; !ok {
				continue next
			}
		}
		m.setReference(fid, cloneRef(ref))
	}
	return nil
}

// ---------- Reads ----------

// Neighbors returns the distinct nodes adjacent to ref along edges of the
// given kinds (all kinds if none given). Null reference targets are skipped.
func (m *MemStore) Neighbors(_ context.Context, ref NodeRef, dir Direction, kinds ...EdgeKind) ([]NodeRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.lookup(ref)
	if !ok {
		return nil, nil
	}
	adj := m.out[id]
	if dir == DirectionIncoming {
		adj = m.in[id]
	}

	seen := make(map[NodeID]bool)
	var out []NodeRef
	for eid := range adj {
		e := m.edges[eid]
		if len(kinds) > 0 && !hasKind(kinds, e.kind) {
			continue
		}
		other := e.to
		if dir == DirectionIncoming {
			other = e.from
		}
		if other == 0 || seen[other] {
			continue
		}
		seen[other] = true
		n := m.nodes[other]
		out = append(out, NodeRef{Kind: n.kind, Key: n.key})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// SymbolByID returns the symbol with its declarations, or nil if not found.
func (m *MemStore) SymbolByID(_ context.Context, id SymbolID) (*Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sid, ok := m.symbols[id]
	if !ok {
		return nil, nil
	}
	s := m.symbolCopy(sid)
	return &s, nil
}

// FileByPath returns the file, or nil if not found.
func (m *MemStore) FileByPath(_ context.Context, p string) (*SourceFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fid, ok := m.files[p]
	if !ok {
		return nil, nil
	}
	f := m.nodes[fid].file
	return &f, nil
}

// Files returns all files ordered by path.
func (m *MemStore) Files(_ context.Context) ([]SourceFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SourceFile, 0, len(m.files))
	for _, fid := range m.files {
		out = append(out, m.nodes[fid].file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Declarations returns every declaration in the graph.
func (m *MemStore) Declarations(_ context.Context) ([]Declaration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Declaration
	for _, e := range m.edges {
		if e.kind == EdgeKindDeclares {
			out = append(out, cloneDecl(*e.decl))
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessDecl(out[i], out[j]) })
	return out, nil
}

// DeclarationsIn returns the declarations of one file ordered by span start.
func (m *MemStore) DeclarationsIn(_ context.Context, p string) ([]Declaration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fid, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	var out []Declaration
	for eid := range m.out[fid] {
		if e := m.edges[eid]; e.kind == EdgeKindDeclares {
			out = append(out, cloneDecl(*e.decl))
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessDecl(out[i], out[j]) })
	return out, nil
}

// Usages returns every usage site in the graph.
func (m *MemStore) Usages(_ context.Context) ([]UsageSite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UsageSite, 0, len(m.refs))
	for _, rec := range m.refs {
		out = append(out, cloneUsage(rec.usage))
	}
	sort.Slice(out, func(i, j int) bool { return lessUsage(out[i], out[j]) })
	return out, nil
}

// ReferencesTo returns the references with the symbol among their targets,
// ordered by file then span start.
func (m *MemStore) ReferencesTo(_ context.Context, id SymbolID) ([]Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sid, ok := m.symbols[id]
	if !ok {
		return nil, nil
	}
	seen := make(map[UsageKey]bool)
	var out []Reference
	for eid := range m.in[sid] {
		e := m.edges[eid]
		if e.kind != EdgeKindReferences || seen[e.usage] {
			continue
		}
		seen[e.usage] = true
		out = append(out, m.refCopy(m.refs[e.usage]))
	}
	sortRefs(out)
	return out, nil
}

// ReferencesIn returns the references originating in one file.
func (m *MemStore) ReferencesIn(_ context.Context, p string) ([]Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fid, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
	}
	seen := make(map[UsageKey]bool)
	var out []Reference
	for eid := range m.out[fid] {
		e := m.edges[eid]
		if e.kind != EdgeKindReferences || seen[e.usage] {
			continue
		}
		seen[e.usage] = true
		out = append(out, m.refCopy(m.refs[e.usage]))
	}
	sortRefs(out)
	return out, nil
}

// SearchSymbols returns non-local symbols whose name contains query
// (case-insensitive), optionally filtered by kind, ordered by qualified name.
// A limit <= 0 returns all matches.
func (m *MemStore) SearchSymbols(_ context.Context, query string, kind SymbolKind, limit int) ([]Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowerQuery := strings.ToLower(query)
	var out []Symbol
	for _, sid := range m.symbols {
		n := m.nodes[sid]
		if kind != "" && n.sym.Kind != kind {
			continue
		}
		if !strings.Contains(strings.ToLower(n.sym.Name), lowerQuery) {
			continue
		}
		s := m.symbolCopy(sid)
		if allLocal(s.Declarations) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QualifiedName != out[j].QualifiedName {
			return out[i].QualifiedName < out[j].QualifiedName
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Snapshot dumps the graph deterministically. Parse timestamps are left out
// so that re-parsing unchanged content yields an identical snapshot.
func (m *MemStore) Snapshot(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{}
	for d := range m.dirs {
		snap.Directories = append(snap.Directories, d)
	}
	sort.Strings(snap.Directories)

	for _, fid := range m.files {
		f := m.nodes[fid].file
		f.ParsedAt = time.Time{}
		snap.Files = append(snap.Files, f)
	}
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })

	for _, sid := range m.symbols {
		snap.Symbols = append(snap.Symbols, m.symbolCopy(sid))
	}
	sort.Slice(snap.Symbols, func(i, j int) bool { return snap.Symbols[i].ID < snap.Symbols[j].ID })

	for _, rec := range m.refs {
		snap.References = append(snap.References, m.refCopy(rec))
	}
	sortRefs(snap.References)
	return snap, nil
}

// Stats returns node and edge counts.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &GraphStats{
		FileCount:      len(m.files),
		DirectoryCount: len(m.dirs),
		SymbolCount:    len(m.symbols),
		ReferenceCount: len(m.refs),
		EdgeCount:      len(m.edges),
	}
	for _, e := range m.edges {
		if e.kind == EdgeKindDeclares {
			st.DeclarationCount++
		}
	}
	for _, rec := range m.refs {
		switch rec.status {
		case StatusResolved:
			st.ResolvedCount++
		case StatusAmbiguous:
			st.AmbiguousCount++
		default:
			st.UnresolvedCount++
		}
	}
	return st, nil
}

// ---------- Arena internals (caller holds the write lock) ----------

func (m *MemStore) addNode(kind NodeKind, key string) NodeID {
	m.next++
	id := NodeID(m.next)
	m.nodes[id] = &memNode{id: id, kind: kind, key: key}
	return id
}

func (m *MemStore) addEdge(kind EdgeKind, from, to NodeID) *memEdge {
	m.next++
	e := &memEdge{id: EdgeID(m.next), kind: kind, from: from, to: to}
	m.edges[e.id] = e
	link(m.out, from, e.id)
	if to != 0 {
		link(m.in, to, e.id)
	}
	return e
}

func (m *MemStore) removeEdge(id EdgeID) {
	e, ok := m.edges[id]
	if !ok {
		return
	}
	delete(m.out[e.from], id)
	if e.to != 0 {
		delete(m.in[e.to], id)
	}
	delete(m.edges, id)
}

func (m *MemStore) removeNode(id NodeID) {
	for eid := range m.out[id] {
		m.removeEdge(eid)
	}
	for eid := range m.in[id] {
		m.removeEdge(eid)
	}
	delete(m.out, id)
	delete(m.in, id)
	delete(m.nodes, id)
}

func link(adj map[NodeID]map[EdgeID]struct{}, n NodeID, e EdgeID) {
	set, ok := adj[n]
	if !ok {
		set = make(map[EdgeID]struct{})
		adj[n] = set
	}
	set[e] = struct{}{}
}

func (m *MemStore) lookup(ref NodeRef) (NodeID, bool) {
	var id NodeID
	var ok bool
	switch ref.Kind {
	case NodeKindFile:
		id, ok = m.files[ref.Key]
	case NodeKindDirectory:
		id, ok = m.dirs[ref.Key]
	case NodeKindSymbol:
		id, ok = m.symbols[SymbolID(ref.Key)]
	}
	return id, ok
}

func (m *MemStore) addFileNode(p string) NodeID {
	fid := m.addNode(NodeKindFile, p)
	m.files[p] = fid
	m.addEdge(EdgeKindContains, m.ensureDir(dirOf(p)), fid)
	return fid
}

// ensureDir returns the directory node for dir, creating it and its parents
// with CONTAINS edges as needed. The workspace root is ".".
func (m *MemStore) ensureDir(dir string) NodeID {
	if id, ok := m.dirs[dir]; ok {
		return id
	}
	id := m.addNode(NodeKindDirectory, dir)
	m.dirs[dir] = id
	if dir != "." {
		m.addEdge(EdgeKindContains, m.ensureDir(dirOf(dir)), id)
	}
	return id
}

// pruneDirs removes directories left without children, walking upward.
func (m *MemStore) pruneDirs(dir string) {
	for {
		id, ok := m.dirs[dir]
		if !ok || len(m.out[id]) > 0 {
			return
		}
		m.removeNode(id)
		delete(m.dirs, dir)
		if dir == "." {
			return
		}
		dir = dirOf(dir)
	}
}

func (m *MemStore) ensureSymbol(d Declaration) NodeID {
	if sid, ok := m.symbols[d.Symbol]; ok {
		return sid
	}
	sid := m.addNode(NodeKindSymbol, string(d.Symbol))
	m.symbols[d.Symbol] = sid
	m.nodes[sid].sym = Symbol{
		ID:            d.Symbol,
		Name:          d.Name,
		QualifiedName: d.QualifiedName,
		Kind:          d.Kind,
		Language:      d.Language,
	}
	return sid
}

// clearFile drops the file's DECLARES and REFERENCES edges and returns the
// symbols that lost a declaration.
func (m *MemStore) clearFile(fid NodeID) map[NodeID]bool {
	affected := make(map[NodeID]bool)
	for eid := range m.out[fid] {
		e := m.edges[eid]
		switch e.kind {
		case EdgeKindDeclares:
			affected[e.to] = true
			m.removeEdge(eid)
		case EdgeKindReferences:
			if rec, ok := m.refs[e.usage]; ok {
				for _, id := range rec.edges {
					m.removeEdge(id)
				}
				delete(m.refs, e.usage)
			}
		}
	}
	return affected
}

// setReference replaces the edges of a usage with one edge per target, or a
// single null-target edge.
func (m *MemStore) setReference(fid NodeID, ref Reference) {
	key := ref.Usage.Key()
	if old, ok := m.refs[key]; ok {
		for _, id := range old.edges {
			m.removeEdge(id)
		}
	}
	rec := &refRecord{
		usage:   ref.Usage,
		status:  ref.Status,
		reason:  ref.Reason,
		targets: ref.Targets,
	}
	if len(rec.targets) == 0 {
		rec.status = StatusUnresolved
		if rec.reason == ReasonNone {
			rec.reason = ReasonUnknown
		}
		e := m.addEdge(EdgeKindReferences, fid, 0)
		e.usage = key
		rec.edges = []EdgeID{e.id}
	} else {
		rec.reason = ReasonNone
		for _, t := range rec.targets {
			e := m.addEdge(EdgeKindReferences, fid, m.symbols[t.Symbol])
			e.usage = key
			rec.edges = append(rec.edges, e.id)
		}
	}
	m.refs[key] = rec
}

// cascade settles symbols that lost declarations. Orphaned symbols are
// deleted and references to them fall back to unresolved; references to
// symbols still declared elsewhere keep only live declaration sites.
func (m *MemStore) cascade(affected map[NodeID]bool) {
	for sid := range affected {
		if _, ok := m.nodes[sid]; !ok {
			continue
		}
		live := m.liveSites(sid)
		symID := m.nodes[sid].sym.ID

		var keys []UsageKey
		for eid := range m.in[sid] {
			if e := m.edges[eid]; e.kind == EdgeKindReferences {
				keys = append(keys, e.usage)
			}
		}

		for _, key := range keys {
			rec := m.refs[key]
			fid := m.files[rec.usage.File]
			var targets []Target
			for _, t := range rec.targets {
				if t.Symbol != symID {
					targets = append(targets, t)
					continue
				}
				if len(live) == 0 {
					continue
				}
				t.Sites = filterSites(t.Sites, live)
				targets = append(targets, t)
			}
			ref := Reference{Usage: rec.usage, Targets: targets, Reason: ReasonUnknown}
			ref.Status = statusOf(targets)
			m.setReference(fid, ref)
		}

		if len(live) == 0 {
			m.removeNode(sid)
			delete(m.symbols, symID)
		}
	}
}

// liveSites returns the current declaration sites of a symbol, definitions
// preferred over forward declarations.
func (m *MemStore) liveSites(sid NodeID) []DeclSite {
	var defs, fwd []DeclSite
	for eid := range m.in[sid] {
		e := m.edges[eid]
		if e.kind != EdgeKindDeclares {
			continue
		}
		if e.decl.Forward {
			fwd = append(fwd, e.decl.Site())
		} else {
			defs = append(defs, e.decl.Site())
		}
	}
	if len(defs) == 0 {
		defs = fwd
	}
	sort.Slice(defs, func(i, j int) bool { return lessSite(defs[i], defs[j]) })
	return defs
}

// filterSites keeps the sites still live, or all live sites if none of the
// old ones survived.
func filterSites(old, live []DeclSite) []DeclSite {
	var out []DeclSite
	for _, s := range old {
		for _, l := range live {
			if s == l {
				out = append(out, s)
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, live...)
	}
	return out
}

func statusOf(targets []Target) ResolutionStatus {
	sites := 0
	for _, t := range targets {
		sites += len(t.Sites)
	}
	switch {
	case len(targets) == 0:
		return StatusUnresolved
	case len(targets) == 1 && sites <= 1:
		return StatusResolved
	default:
		return StatusAmbiguous
	}
}

// ---------- Copy helpers (caller holds a lock) ----------

func (m *MemStore) symbolCopy(sid NodeID) Symbol {
	s := m.nodes[sid].sym
	s.Declarations = nil
	for eid := range m.in[sid] {
		if e := m.edges[eid]; e.kind == EdgeKindDeclares {
			s.Declarations = append(s.Declarations, cloneDecl(*e.decl))
		}
	}
	sort.Slice(s.Declarations, func(i, j int) bool { return lessDecl(s.Declarations[i], s.Declarations[j]) })
	return s
}

func (m *MemStore) refCopy(rec *refRecord) Reference {
	return cloneRef(Reference{
		Usage:   rec.usage,
		Targets: rec.targets,
		Status:  rec.status,
		Reason:  rec.reason,
	})
}

func cloneDecl(d Declaration) Declaration {
	d.Scope = append([]string(nil), d.Scope...)
	return d
}

func cloneUsage(u UsageSite) UsageSite {
	u.Scope = append([]string(nil), u.Scope...)
	return u
}

func cloneRef(r Reference) Reference {
	r.Usage = cloneUsage(r.Usage)
	if r.Targets != nil {
		targets := make([]Target, len(r.Targets))
		for i, t := range r.Targets {
			targets[i] = Target{Symbol: t.Symbol, Sites: append([]DeclSite(nil), t.Sites...)}
		}
		r.Targets = targets
	}
	return r
}

func lessUsage(a, b UsageSite) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Span.StartByte != b.Span.StartByte {
		return a.Span.StartByte < b.Span.StartByte
	}
	return a.Name < b.Name
}

func sortRefs(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool { return lessUsage(refs[i].Usage, refs[j].Usage) })
}

func allLocal(decls []Declaration) bool {
	for _, d := range decls {
		if d.Visibility != VisibilityLocal {
			return false
		}
	}
	return len(decls) > 0
}

func hasKind(kinds []EdgeKind, k EdgeKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// dirOf returns the slash-separated parent directory, "." for top-level
// entries.
func dirOf(p string) string {
	return path.Dir(p)
}
