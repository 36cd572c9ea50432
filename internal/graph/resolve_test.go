package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Scoping
// ---------------------------------------------------------------------------

func TestResolve_InnerScopeShadows(t *testing.T) {
	files := fixtureSources(t, "rust_project", "src/main.rs", "src/geometry.rs")
	store := indexSources(t, files)

	// let x = x + 1; reads the previous binding.
	r := refAt(t, store, "src/main.rs", "x", 5)
	assert.Equal(t, StatusResolved, r.Status)
	assert.Equal(t, []int{4}, targetLines(r))

	// The tail x inside the block is the innermost binding.
	r = refAt(t, store, "src/main.rs", "x", 8)
	assert.Equal(t, StatusResolved, r.Status)
	assert.Equal(t, []int{7}, targetLines(r))
}

func TestResolve_LocalNotVisibleBeforeDeclaration(t *testing.T) {
	src := "function f() {\n  use(y);\n  let y = 1;\n  return y;\n}\n"
	store := indexSources(t, map[string]string{"a.js": src})

	early := refAt(t, store, "a.js", "y", 2)
	assert.Equal(t, StatusUnresolved, early.Status)
	assert.Equal(t, ReasonUnknown, early.Reason)

	late := refAt(t, store, "a.js", "y", 4)
	assert.Equal(t, StatusResolved, late.Status)
	assert.Equal(t, []int{3}, targetLines(late))
}

func TestResolve_SiblingBlocksDoNotLeak(t *testing.T) {
	src := `int f(int c) {
    if (c) {
        int v = 1;
        return v;
    }
    return v;
}
`
	store := indexSources(t, map[string]string{"f.c": src})

	inside := refAt(t, store, "f.c", "v", 4)
	assert.Equal(t, StatusResolved, inside.Status)

	outside := refAt(t, store, "f.c", "v", 6)
	assert.Equal(t, StatusUnresolved, outside.Status, "block-local v is not visible after the block")
}

func TestResolve_SelfQualifierPrefersMember(t *testing.T) {
	files := fixtureSources(t, "java_project",
		"src/com/example/shapes/Circle.java",
		"src/com/example/shapes/App.java",
	)
	store := indexSources(t, files)
	circle := "src/com/example/shapes/Circle.java"

	// this.radius = radius;
	refs, err := store.ReferencesIn(context.Background(), circle)
	require.NoError(t, err)
	var field, param Reference
	for _, r := range refs {
		if r.Usage.Name != "radius" || r.Usage.Span.StartLine != 7 {
			continue
		}
		if r.Usage.Qualifier == "this" {
			field = r
		} else {
			param = r
		}
	}
	require.Len(t, field.Targets, 1)
	assert.Equal(t, SymbolID("java:field:com.example.shapes.Circle.radius"), field.Targets[0].Symbol)
	require.Len(t, param.Targets, 1)
	assert.Equal(t, VisibilityLocal, mustSymbolDecl(t, store, param.Targets[0].Symbol).Visibility)
}

func mustSymbolDecl(t *testing.T, store *MemStore, id SymbolID) Declaration {
	t.Helper()
	sym, err := store.SymbolByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sym)
	require.NotEmpty(t, sym.Declarations)
	return sym.Declarations[0]
}

// ---------------------------------------------------------------------------
// Cross-file resolution
// ---------------------------------------------------------------------------

func TestResolve_CrossFile(t *testing.T) {
	tests := []struct {
		name    string
		project string
		files   []string
		at      string
		usage   string
		line    int
		want    SymbolID
		defFile string
	}{
		{
			name:  "c prototype in header, definition elsewhere", project: "c_project",
			files: []string{"util.h", "util.c", "main.c"},
			at:    "main.c", usage: "add", line: 10,
			want:  "c:function:add", defFile: "util.c",
		},
		{
			name:  "c macro from header", project: "c_project",
			files: []string{"util.h", "util.c", "main.c"},
			at:    "main.c", usage: "MAX_ITEMS", line: 11,
			want:  "c:macro:MAX_ITEMS", defFile: "util.h",
		},
		{
			name:  "rust path call", project: "rust_project",
			files: []string{"src/main.rs", "src/geometry.rs"},
			at:    "src/main.rs", usage: "new", line: 13,
			want:  "rust:method:Point::new", defFile: "src/geometry.rs",
		},
		{
			name:  "rust method call on a value", project: "rust_project",
			files: []string{"src/main.rs", "src/geometry.rs"},
			at:    "src/main.rs", usage: "norm", line: 14,
			want:  "rust:method:Point::norm", defFile: "src/geometry.rs",
		},
		{
			name:  "java method call on a local", project: "java_project",
			files: []string{"src/com/example/shapes/Circle.java", "src/com/example/shapes/App.java"},
			at:    "src/com/example/shapes/App.java", usage: "area", line: 8,
			want:  "java:method:com.example.shapes.Circle.area", defFile: "src/com/example/shapes/Circle.java",
		},
		{
			name:  "js imported function", project: "js_project",
			files: []string{"src/math.js", "src/app.js"},
			at:    "src/app.js", usage: "square", line: 5,
			want:  "javascript:function:square", defFile: "src/math.js",
		},
		{
			name:  "js exported arrow function", project: "js_project",
			files: []string{"src/math.js", "src/app.js"},
			at:    "src/app.js", usage: "cube", line: 5,
			want:  "javascript:function:cube", defFile: "src/math.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := indexSources(t, fixtureSources(t, tt.project, tt.files...))
			r := refAt(t, store, tt.at, tt.usage, tt.line)
			assert.Equal(t, StatusResolved, r.Status)
			require.Len(t, r.Targets, 1)
			assert.Equal(t, tt.want, r.Targets[0].Symbol)
			require.Len(t, r.Targets[0].Sites, 1)
			assert.Equal(t, tt.defFile, r.Targets[0].Sites[0].File)
		})
	}
}

func TestResolve_TypeVersusConstructor(t *testing.T) {
	files := fixtureSources(t, "java_project",
		"src/com/example/shapes/Circle.java",
		"src/com/example/shapes/App.java",
	)
	store := indexSources(t, files)
	refs, err := store.ReferencesIn(context.Background(), "src/com/example/shapes/App.java")
	require.NoError(t, err)

	for _, r := range refs {
		if r.Usage.Name != "Circle" {
			continue
		}
		require.Len(t, r.Targets, 1)
		switch r.Usage.Kind {
		case UsageType:
			assert.Equal(t, SymbolID("java:class:com.example.shapes.Circle"), r.Targets[0].Symbol)
		case UsageCall:
			assert.Equal(t, SymbolID("java:method:com.example.shapes.Circle.Circle"), r.Targets[0].Symbol)
		}
	}
}

// ---------------------------------------------------------------------------
// Ambiguity
// ---------------------------------------------------------------------------

func TestResolve_AmbiguitySurfaced(t *testing.T) {
	store := indexSources(t, map[string]string{
		"a.js":    "function bar() { return 1; }\n",
		"b.js":    "function bar() { return 2; }\n",
		"main.js": "bar();\n",
	})

	r := refAt(t, store, "main.js", "bar", 1)
	assert.Equal(t, StatusAmbiguous, r.Status)
	require.Len(t, r.Targets, 1, "same qualified name, one symbol")
	files := []string{r.Targets[0].Sites[0].File, r.Targets[0].Sites[1].File}
	assert.Equal(t, []string{"a.js", "b.js"}, files)
}

func TestResolve_AmbiguityThroughPrototype(t *testing.T) {
	store := indexSources(t, map[string]string{
		"a.c":    "int bar(void) { return 1; }\n",
		"b.c":    "int bar(void) { return 2; }\n",
		"main.c": "int bar(void);\nint main(void) { return bar(); }\n",
	})

	r := refAt(t, store, "main.c", "bar", 2)
	assert.Equal(t, StatusAmbiguous, r.Status, "the prototype stands for both definitions")
	assert.Len(t, targetLines(r), 2)
	for _, s := range r.Targets[0].Sites {
		assert.NotEqual(t, "main.c", s.File, "prototype loses to definitions")
	}
}

func TestResolve_StaticStaysInFile(t *testing.T) {
	store := indexSources(t, map[string]string{
		"a.c": "static int helper(void) { return 1; }\nint a(void) { return helper(); }\n",
		"b.c": "static int helper(void) { return 2; }\nint b(void) { return helper(); }\n",
		"c.c": "int c(void) { return helper(); }\n",
	})

	ra := refAt(t, store, "a.c", "helper", 2)
	assert.Equal(t, StatusResolved, ra.Status)
	assert.Equal(t, SymbolID("c:function:a.c#helper"), ra.Targets[0].Symbol)

	rb := refAt(t, store, "b.c", "helper", 2)
	assert.Equal(t, SymbolID("c:function:b.c#helper"), rb.Targets[0].Symbol)

	rc := refAt(t, store, "c.c", "helper", 1)
	assert.Equal(t, StatusUnresolved, rc.Status, "static functions are invisible to other files")
}

// ---------------------------------------------------------------------------
// Unresolved tagging
// ---------------------------------------------------------------------------

func TestResolve_UnresolvedReasons(t *testing.T) {
	files := fixtureSources(t, "java_project", "src/com/example/shapes/App.java")
	store := indexSources(t, files)
	app := "src/com/example/shapes/App.java"

	println := refAt(t, store, app, "println", 8)
	assert.Equal(t, StatusUnresolved, println.Status)
	assert.Equal(t, ReasonExternal, println.Reason, "qualified usage with no workspace target")

	list := refAt(t, store, app, "List", 9)
	assert.Equal(t, ReasonExternal, list.Reason, "imported name")

	system := refAt(t, store, app, "System", 8)
	assert.Equal(t, ReasonUnknown, system.Reason)
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	usages := []UsageSite{{File: "a.rs", Language: LangRust, Name: "x"}}
	_, err := NewResolver(NewSymbolIndex(nil)).Resolve(ctx, usages)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_Idempotent(t *testing.T) {
	files := fixtureSources(t, "c_project", "util.h", "util.c", "main.c")
	store := indexSources(t, files)
	ctx := context.Background()

	before, err := store.Snapshot(ctx)
	require.NoError(t, err)
	statsBefore, err := store.Stats(ctx)
	require.NoError(t, err)

	resolveAll(t, store)
	resolveAll(t, store)

	after, err := store.Snapshot(ctx)
	require.NoError(t, err)
	statsAfter, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, statsBefore, statsAfter, "re-resolution replaces edges instead of adding them")
}
