package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rustEngine(t *testing.T) *QueryEngine {
	t.Helper()
	files := fixtureSources(t, "rust_project", "src/main.rs", "src/geometry.rs")
	return NewQueryEngine(indexSources(t, files))
}

// ---------------------------------------------------------------------------
// FindReferences
// ---------------------------------------------------------------------------

func TestQueryEngine_FindReferences(t *testing.T) {
	q := rustEngine(t)
	ctx := context.Background()

	sites, err := q.FindReferences(ctx, "rust:method:Point::norm")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "src/main.rs", sites[0].File)
	assert.Equal(t, 14, sites[0].Span.StartLine)
	assert.Equal(t, UsageCall, sites[0].Kind)
	assert.Equal(t, SymbolID("rust:function:distance"), sites[0].Enclosing)
	assert.False(t, sites[0].Ambiguous)

	none, err := q.FindReferences(ctx, "rust:trait:Shape")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = q.FindReferences(ctx, "rust:function:nope")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestQueryEngine_FindReferencesFlagsAmbiguity(t *testing.T) {
	q := NewQueryEngine(indexSources(t, map[string]string{
		"a.js":    "function bar() { return 1; }\n",
		"b.js":    "function bar() { return 2; }\n",
		"main.js": "bar();\nbar();\n",
	}))

	sites, err := q.FindReferences(context.Background(), "javascript:function:bar")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	for _, s := range sites {
		assert.True(t, s.Ambiguous)
		assert.Equal(t, "main.js", s.File)
	}
	assert.Less(t, sites[0].Span.StartByte, sites[1].Span.StartByte)
}

// ---------------------------------------------------------------------------
// FindDeclaration
// ---------------------------------------------------------------------------

func TestQueryEngine_FindDeclaration(t *testing.T) {
	q := rustEngine(t)
	ctx := context.Background()

	// p.norm() on line 14: "norm" starts at column 6.
	sym, err := q.FindDeclaration(ctx, UsageLocation{File: "src/main.rs", Line: 14, Column: 7})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, SymbolID("rust:method:Point::norm"), sym.ID)
	require.Len(t, sym.Declarations, 1)
	assert.Equal(t, "src/geometry.rs", sym.Declarations[0].File)

	// Column 4 is the receiver p, a local.
	sym, err = q.FindDeclaration(ctx, UsageLocation{File: "src/main.rs", Line: 14, Column: 4})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "p", sym.Name)
	assert.Equal(t, 13, sym.Declarations[0].Span.StartLine)

	// Leading whitespace is not a usage.
	sym, err = q.FindDeclaration(ctx, UsageLocation{File: "src/main.rs", Line: 14, Column: 0})
	require.NoError(t, err)
	assert.Nil(t, sym)

	// println! has no workspace declaration.
	res, err := q.FindDeclarations(ctx, UsageLocation{File: "src/main.rs", Line: 19, Column: 4})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StatusUnresolved, res.Status)
	assert.Empty(t, res.Candidates)

	// A negative column takes the first usage on the line.
	sym, err = q.FindDeclaration(ctx, UsageLocation{File: "src/main.rs", Line: 14, Column: -1})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "p", sym.Name)

	sym, err = q.FindDeclaration(ctx, UsageLocation{File: "src/main.rs", Line: 18, Column: -1})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, SymbolID("rust:function:distance"), sym.ID)

	res, err = q.FindDeclarations(ctx, UsageLocation{File: "src/main.rs", Line: 2, Column: -1})
	require.NoError(t, err)
	assert.Nil(t, res, "an empty line has no usage")

	_, err = q.FindDeclaration(ctx, UsageLocation{File: "src/missing.rs", Line: 1})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestQueryEngine_FindDeclarationByOffset(t *testing.T) {
	src := "function f() {}\nf();\n"
	q := NewQueryEngine(indexSources(t, map[string]string{"a.js": src}))

	sym, err := q.FindDeclaration(context.Background(), UsageLocation{File: "a.js", Offset: 16})
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, SymbolID("javascript:function:f"), sym.ID)
}

func TestQueryEngine_FindDeclarationAmbiguous(t *testing.T) {
	q := NewQueryEngine(indexSources(t, map[string]string{
		"a.js":    "function bar() { return 1; }\n",
		"b.js":    "let bar = 2;\n",
		"main.js": "use(bar);\n",
	}))
	ctx := context.Background()
	loc := UsageLocation{File: "main.js", Line: 1, Column: 4}

	_, err := q.FindDeclaration(ctx, loc)
	assert.ErrorIs(t, err, ErrAmbiguous)

	res, err := q.FindDeclarations(ctx, loc)
	require.NoError(t, err)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, StatusAmbiguous, res.Status)
	require.Len(t, res.Candidates, 2)

	var ids []SymbolID
	for _, c := range res.Candidates {
		ids = append(ids, c.ID)
		assert.Len(t, c.Declarations, 1)
	}
	assert.ElementsMatch(t, []SymbolID{"javascript:function:bar", "javascript:variable:bar"}, ids)
}

func TestQueryEngine_CandidatesCarryOnlyMatchedSites(t *testing.T) {
	q := NewQueryEngine(indexSources(t, map[string]string{
		"a.c":    "int bar(void) { return 1; }\n",
		"main.c": "int bar(void);\nint main(void) { return bar(); }\n",
	}))

	sym, err := q.FindDeclaration(context.Background(), UsageLocation{File: "main.c", Line: 2, Column: 24})
	require.NoError(t, err)
	require.NotNil(t, sym)
	require.Len(t, sym.Declarations, 1, "the prototype is not a matched site")
	assert.Equal(t, "a.c", sym.Declarations[0].File)
}

// ---------------------------------------------------------------------------
// File queries
// ---------------------------------------------------------------------------

func TestQueryEngine_SymbolsInFile(t *testing.T) {
	q := NewQueryEngine(indexSources(t, fixtureSources(t, "c_project", "util.h", "util.c", "main.c")))
	ctx := context.Background()

	syms, err := q.SymbolsInFile(ctx, "util.c")
	require.NoError(t, err)
	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"counter", "helper", "x", "add", "a", "b"}, names)

	// add is declared in util.h too; the symbol carries both sites.
	for _, s := range syms {
		if s.Name == "add" {
			assert.Len(t, s.Declarations, 2)
		}
	}

	_, err = q.SymbolsInFile(ctx, "nope.c")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestQueryEngine_Outline(t *testing.T) {
	files := fixtureSources(t, "java_project", "src/com/example/shapes/Circle.java")
	q := NewQueryEngine(indexSources(t, files))

	outline, err := q.Outline(context.Background(), "src/com/example/shapes/Circle.java")
	require.NoError(t, err)

	type entry struct {
		Name  string
		Kind  SymbolKind
		Level int
	}
	var got []entry
	for _, e := range outline {
		got = append(got, entry{e.Name, e.Kind, e.Level})
	}
	assert.Equal(t, []entry{
		{"Circle", SymbolKindClass, 0},
		{"radius", SymbolKindField, 1},
		{"Circle", SymbolKindMethod, 1},
		{"area", SymbolKindMethod, 1},
	}, got)
}

func TestQueryEngine_Unresolved(t *testing.T) {
	q := rustEngine(t)
	ctx := context.Background()

	inMain, err := q.Unresolved(ctx, "src/main.rs")
	require.NoError(t, err)
	var names []string
	for _, r := range inMain {
		assert.Equal(t, StatusUnresolved, r.Status)
		assert.Equal(t, "src/main.rs", r.Usage.File)
		names = append(names, r.Usage.Name)
	}
	assert.Contains(t, names, "println")

	all, err := q.Unresolved(ctx, "")
	require.NoError(t, err)
	assert.Greater(t, len(all), len(inMain))

	var sawSqrt bool
	for _, r := range all {
		if r.Usage.Name == "sqrt" {
			sawSqrt = r.Usage.File == "src/geometry.rs"
		}
	}
	assert.True(t, sawSqrt)
}

// ---------------------------------------------------------------------------
// Tree and search
// ---------------------------------------------------------------------------

func TestQueryEngine_Tree(t *testing.T) {
	q := NewQueryEngine(indexSources(t, map[string]string{
		"z.c":         "int z;\n",
		"lib/b.c":     "int b;\n",
		"lib/a.c":     "int a;\n",
		"lib/sub/c.c": "int c;\n",
	}))

	tree, err := q.Tree(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tree)

	assert.Equal(t, ".", tree.Path)
	assert.Equal(t, NodeKindDirectory, tree.Kind)
	require.Len(t, tree.Children, 2)

	lib := tree.Children[0]
	assert.Equal(t, "lib", lib.Name)
	assert.Equal(t, NodeKindDirectory, lib.Kind)
	assert.Equal(t, "z.c", tree.Children[1].Name)

	require.Len(t, lib.Children, 3)
	assert.Equal(t, "sub", lib.Children[0].Name, "directories before files")
	assert.Equal(t, "a.c", lib.Children[1].Name)
	assert.Equal(t, "lib/b.c", lib.Children[2].Path)
	assert.Equal(t, "lib/sub/c.c", lib.Children[0].Children[0].Path)

	empty, err := NewQueryEngine(NewMemStore()).Tree(context.Background())
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestQueryEngine_SearchSymbols(t *testing.T) {
	q := NewQueryEngine(indexSources(t, fixtureSources(t, "js_project", "src/math.js", "src/app.js")))

	got, err := q.SearchSymbols(context.Background(), "c", "", 0)
	require.NoError(t, err)
	var names []string
	for _, s := range got {
		names = append(names, s.QualifiedName)
	}
	assert.Equal(t, []string{"Counter", "Counter.constructor", "Counter.increment", "cube"}, names)
}
