package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// GenerateMermaid produces a Mermaid graph TD diagram of a code graph.
// Files become subgraphs holding their module-level symbols, files connected
// by references are grouped by cluster, and resolved references become
// arrows from the enclosing symbol (or file) to the target. Ambiguous
// references are drawn dotted, once per candidate.
func GenerateMermaid(ctx context.Context, g graph.GraphReader) (string, error) {
	snap, err := g.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	clusters, err := graph.ComputeClusters(ctx, g)
	if err != nil {
		return "", fmt.Errorf("compute clusters: %w", err)
	}

	// Build node → ID mapping for Mermaid (alphanumeric only).
	nodeIDs := make(map[string]string)
	nextID := 0
	getID := func(key string) string {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		nodeIDs[key] = id
		return id
	}
	fileKey := func(p string) string { return "file:" + p }
	symKey := func(id graph.SymbolID) string { return "sym:" + string(id) }

	// Place each non-local symbol in the file of its defining declaration.
	home := make(map[graph.SymbolID]string)
	byFile := make(map[string][]graph.Symbol)
	for _, sym := range snap.Symbols {
		d, ok := homeDeclaration(sym)
		if !ok {
			continue
		}
		home[sym.ID] = d.File
		byFile[d.File] = append(byFile[d.File], sym)
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	writeFile := func(indent, p string) {
		fmt.Fprintf(&sb, "%ssubgraph %s[\"%s\"]\n", indent, getID(fileKey(p)), label(shortPath(p)))
		syms := byFile[p]
		sort.Slice(syms, func(i, j int) bool { return syms[i].QualifiedName < syms[j].QualifiedName })
		for _, s := range syms {
			fmt.Fprintf(&sb, "%s  %s[\"%s\"]\n", indent, getID(symKey(s.ID)), label(s.QualifiedName))
		}
		fmt.Fprintf(&sb, "%send\n", indent)
	}

	// Emit cluster subgraphs.
	clustered := make(map[string]bool)
	for _, c := range clusters {
		if len(c.Members) == 0 {
			continue
		}
		sorted := make([]string, len(c.Members))
		copy(sorted, c.Members)
		sort.Strings(sorted)

		fmt.Fprintf(&sb, "  subgraph %s[\"%.40s\"]\n", getID("cluster:"+c.Name), label(c.Name))
		for _, member := range sorted {
			clustered[member] = true
			writeFile("    ", member)
		}
		sb.WriteString("  end\n")
	}
	for _, f := range snap.Files {
		if !clustered[f.Path] {
			writeFile("  ", f.Path)
		}
	}

	// Emit reference edges.
	type edge struct {
		from, to  string
		ambiguous bool
	}
	seen := make(map[edge]bool)
	var edges []edge
	for _, r := range snap.References {
		if r.Status == graph.StatusUnresolved {
			continue
		}
		from := fileKey(r.Usage.File)
		if _, ok := home[r.Usage.Enclosing]; ok {
			from = symKey(r.Usage.Enclosing)
		}
		for _, t := range r.Targets {
			if _, ok := home[t.Symbol]; !ok {
				continue
			}
			to := symKey(t.Symbol)
			if to == from {
				continue
			}
			e := edge{from: from, to: to, ambiguous: r.Status == graph.StatusAmbiguous}
			if seen[e] {
				continue
			}
			seen[e] = true
			edges = append(edges, e)
		}
	}
	for _, e := range edges {
		arrow := "-->"
		if e.ambiguous {
			arrow = "-.->"
		}
		fmt.Fprintf(&sb, "  %s %s %s\n", getID(e.from), arrow, getID(e.to))
	}

	return sb.String(), nil
}

// homeDeclaration picks the declaration a symbol is drawn at: the first
// definition, else the first forward declaration. Symbols with only local
// declarations have none.
func homeDeclaration(sym graph.Symbol) (graph.Declaration, bool) {
	var fwd *graph.Declaration
	for i, d := range sym.Declarations {
		if d.Visibility == graph.VisibilityLocal {
			continue
		}
		if !d.Forward {
			return d, true
		}
		if fwd == nil {
			fwd = &sym.Declarations[i]
		}
	}
	if fwd != nil {
		return *fwd, true
	}
	return graph.Declaration{}, false
}

// label escapes text for a quoted Mermaid label.
func label(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// shortPath returns the last 2 path segments for readability.
func shortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
