package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dusk-indust/codegraph/internal/export"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

func runIndex(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("index", stderr, &common)
	persist := fs.String("persist", "", "also write the graph to an embedded database at this path")
	asJSON := fs.Bool("json", false, "print the scan report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []workspace.Option
	if *persist != "" {
		opts = append(opts, workspace.WithPersistence(*persist))
	}
	ws, rep, err := openWorkspace(ctx, common, stderr, opts...)
	if err != nil {
		return err
	}
	defer ws.Close()

	if *asJSON {
		return export.WriteJSON(stdout, rep)
	}
	printReport(stdout, ws.Root(), rep)
	return nil
}

func printReport(w io.Writer, root string, rep *workspace.ScanReport) {
	fmt.Fprintf(w, "Indexed %s in %s\n", root, rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  parsed:    %d\n", len(rep.Parsed))
	fmt.Fprintf(w, "  unchanged: %d\n", len(rep.Unchanged))
	fmt.Fprintf(w, "  removed:   %d\n", len(rep.Removed))
	if st := rep.Stats; st != nil {
		fmt.Fprintf(w, "  files: %d  symbols: %d  references: %d (resolved %d, ambiguous %d, unresolved %d)\n",
			st.FileCount, st.SymbolCount, st.ReferenceCount, st.ResolvedCount, st.AmbiguousCount, st.UnresolvedCount)
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Path, s.Reason)
	}
	for _, p := range rep.Partial {
		fmt.Fprintf(w, "  partial %s: %d warnings, syntax errors: %t\n", p.Path, len(p.Warnings), p.SyntaxErrors)
	}
}

func runRefs(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("refs", stderr, &common)
	index := fs.String("index", "", "read a persisted graph database instead of indexing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg(fs, "symbol id")
	if err != nil {
		return err
	}

	if *index != "" {
		return refsFromIndex(ctx, *index, graph.SymbolID(id), stdout)
	}

	ws, _, err := openWorkspace(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer ws.Close()

	sites, err := ws.FindAllReferences(ctx, graph.SymbolID(id))
	if err != nil {
		return err
	}
	for _, s := range sites {
		fmt.Fprintf(stdout, "%s\t%s", position(s.File, s.Span), s.Name)
		if s.Ambiguous {
			fmt.Fprintf(stdout, "\t(ambiguous: %d candidates)", len(s.Targets))
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func refsFromIndex(ctx context.Context, path string, id graph.SymbolID, stdout io.Writer) error {
	idx, err := workspace.OpenIndex(path)
	if err != nil {
		return err
	}
	defer idx.Close()

	refs, err := idx.ReferencesTo(ctx, id)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r.Status == graph.StatusUnresolved {
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s", position(r.Usage.File, r.Usage.Span), r.Usage.Name)
		if r.Status == graph.StatusAmbiguous {
			fmt.Fprintf(stdout, "\t(ambiguous: %d candidates)", len(r.Targets))
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func runDecl(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("decl", stderr, &common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	arg, err := oneArg(fs, "file:line[:col]")
	if err != nil {
		return err
	}
	loc, err := parseLocation(arg)
	if err != nil {
		return err
	}

	ws, _, err := openWorkspace(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer ws.Close()
	if rel, ok := ws.Rel(loc.File); ok {
		loc.File = rel
	}

	res, err := ws.Query().FindDeclarations(ctx, loc)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("no usage at %s", arg)
	}
	if len(res.Candidates) == 0 {
		fmt.Fprintf(stdout, "%s: unresolved (%s)\n", res.Usage.Name, res.Reason)
		return nil
	}
	if res.Ambiguous {
		fmt.Fprintf(stdout, "%s: ambiguous, %d candidates\n", res.Usage.Name, len(res.Candidates))
	}
	for _, sym := range res.Candidates {
		for _, d := range sym.Declarations {
			fmt.Fprintf(stdout, "%s\t%s %s\n", position(d.File, d.NameSpan), sym.Kind, sym.QualifiedName)
		}
	}
	return nil
}

func runSymbols(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("symbols", stderr, &common)
	query := fs.String("q", "", "search all files for symbols whose name contains this text")
	kind := fs.String("kind", "", "with -q, only symbols of this kind")
	limit := fs.Int("limit", 50, "with -q, maximum number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var file string
	searching := *query != "" || *kind != ""
	if !searching {
		var err error
		if file, err = oneArg(fs, "file"); err != nil {
			return err
		}
	}

	ws, _, err := openWorkspace(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer ws.Close()

	var syms []graph.Symbol
	if searching {
		syms, err = ws.Query().SearchSymbols(ctx, *query, graph.SymbolKind(strings.ToLower(*kind)), *limit)
	} else {
		syms, err = ws.Query().SymbolsInFile(ctx, relTo(ws, file))
	}
	if err != nil {
		return err
	}
	for _, s := range syms {
		where := ""
		if len(s.Declarations) > 0 {
			where = position(s.Declarations[0].File, s.Declarations[0].NameSpan)
		}
		fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", s.Kind, s.QualifiedName, s.ID, where)
	}
	return nil
}

func runOutline(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("outline", stderr, &common)
	if err := fs.Parse(args); err != nil {
		return err
	}
	file, err := oneArg(fs, "file")
	if err != nil {
		return err
	}

	ws, _, err := openWorkspace(ctx, common, stderr)
	if err != nil {
		return err
	}
	defer ws.Close()

	entries, err := ws.Query().Outline(ctx, relTo(ws, file))
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "%s%s %s\tL%d\n", strings.Repeat("  ", e.Level), e.Kind, e.Name, e.Span.StartLine)
	}
	return nil
}

// relTo maps a command-line path to a workspace path. Relative paths are
// taken relative to the root, as printed by the other commands.
func relTo(ws *workspace.Workspace, p string) string {
	if rel, ok := ws.Rel(p); ok {
		return rel
	}
	return filepath.ToSlash(p)
}

// position formats a span start as file:line:col with a 1-based column.
func position(file string, s graph.Span) string {
	return fmt.Sprintf("%s:%d:%d", file, s.StartLine, s.StartCol+1)
}

// parseLocation parses file:line or file:line:col with 1-based line and
// column. Without a column the location selects the first usage on the
// line.
func parseLocation(s string) (graph.UsageLocation, error) {
	parts := strings.Split(s, ":")
	bad := fmt.Errorf("%w: location %q is not file:line[:col]", errUsage, s)
	if len(parts) < 2 {
		return graph.UsageLocation{}, bad
	}

	nums := parts[len(parts)-1:]
	if len(parts) >= 3 {
		if _, err := strconv.Atoi(parts[len(parts)-2]); err == nil {
			nums = parts[len(parts)-2:]
		}
	}
	file := strings.Join(parts[:len(parts)-len(nums)], ":")

	line, err := strconv.Atoi(nums[0])
	if err != nil || line < 1 || file == "" {
		return graph.UsageLocation{}, bad
	}
	if len(nums) == 1 {
		return graph.UsageLocation{File: file, Line: line, Column: -1}, nil
	}
	col, err := strconv.Atoi(nums[1])
	if err != nil || col < 1 {
		return graph.UsageLocation{}, bad
	}
	return graph.UsageLocation{File: file, Line: line, Column: col - 1}, nil
}
