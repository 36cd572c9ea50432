package graph

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Shared test helpers
// ---------------------------------------------------------------------------

// readFixture reads a test fixture file relative to the project root.
// Tests run from internal/graph/, so the relative path is ../../testdata/...
func readFixture(t *testing.T, relPath string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../" + relPath)
	require.NoError(t, err, "reading fixture %s", relPath)
	return data
}

// fixtureSources loads fixture files of one project keyed by their path
// inside the project.
func fixtureSources(t *testing.T, project string, paths ...string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[p] = string(readFixture(t, "testdata/fixtures/"+project+"/"+p))
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// extractSource parses and extracts one in-memory file.
func extractSource(t *testing.T, path, src string) *Extraction {
	t.Helper()
	lang, ok := LanguageForPath(path)
	require.True(t, ok, "no language for %s", path)

	tree, err := NewTreeSitterParser().Parse(context.Background(), []byte(src), lang)
	require.NoError(t, err, "parsing %s", path)

	file := SourceFile{Path: path, Language: lang, LOC: CountLOC([]byte(src))}
	ex, err := NewExtractor(quietLogger()).Extract(tree, file)
	require.NoError(t, err, "extracting %s", path)
	return ex
}

// indexSources runs the whole pipeline over in-memory files: extract every
// file into a fresh MemStore, then resolve workspace-wide.
func indexSources(t *testing.T, files map[string]string) *MemStore {
	t.Helper()
	store := NewMemStore()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		upsertSource(t, store, p, files[p])
	}
	resolveAll(t, store)
	return store
}

func upsertSource(t *testing.T, store *MemStore, path, src string) {
	t.Helper()
	ex := extractSource(t, path, src)
	require.NoError(t, store.UpsertFile(context.Background(), FileUpdate{
		File:         ex.File,
		Declarations: ex.Declarations,
		Usages:       ex.Usages,
	}))
}

// resolveAll re-resolves every usage in the store.
func resolveAll(t *testing.T, store *MemStore) {
	t.Helper()
	ctx := context.Background()
	decls, err := store.Declarations(ctx)
	require.NoError(t, err)
	usages, err := store.Usages(ctx)
	require.NoError(t, err)

	refs, err := NewResolver(NewSymbolIndex(decls)).Resolve(ctx, usages)
	require.NoError(t, err)
	require.NoError(t, store.ApplyResolution(ctx, refs))
}

// declsNamed returns the declarations with the given name.
func declsNamed(decls []Declaration, name string) []Declaration {
	var out []Declaration
	for _, d := range decls {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// declNamed returns the single declaration with the given name.
func declNamed(t *testing.T, decls []Declaration, name string) Declaration {
	t.Helper()
	found := declsNamed(decls, name)
	require.Len(t, found, 1, "declarations named %q", name)
	return found[0]
}

// usagesNamed returns the usages with the given name.
func usagesNamed(usages []UsageSite, name string) []UsageSite {
	var out []UsageSite
	for _, u := range usages {
		if u.Name == name {
			out = append(out, u)
		}
	}
	return out
}

// refAt returns the reference of the usage named name on the given line.
func refAt(t *testing.T, store *MemStore, path, name string, line int) Reference {
	t.Helper()
	refs, err := store.ReferencesIn(context.Background(), path)
	require.NoError(t, err)
	for _, r := range refs {
		if r.Usage.Name == name && r.Usage.Span.StartLine == line {
			return r
		}
	}
	require.Failf(t, "reference not found", "%s:%d %s", path, line, name)
	return Reference{}
}

// targetLines flattens the start lines of every candidate site.
func targetLines(r Reference) []int {
	var out []int
	for _, tg := range r.Targets {
		for _, s := range tg.Sites {
			out = append(out, s.Span.StartLine)
		}
	}
	sort.Ints(out)
	return out
}

// synth builds a syntax node by hand for extractor tests that need shapes a
// real grammar would not produce.
func synth(kind, field string, start, end int, kids ...*SyntaxNode) *SyntaxNode {
	n := &SyntaxNode{
		kind:    kind,
		field:   field,
		span:    Span{StartByte: start, EndByte: end, StartLine: 1, StartCol: start, EndLine: 1, EndCol: end},
		isError: kind == "ERROR",
	}
	for _, k := range kids {
		k.parent = n
		n.children = append(n.children, k)
	}
	return n
}
