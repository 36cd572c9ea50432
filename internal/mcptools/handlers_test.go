package mcptools

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// fixtureAbsPath returns the absolute path to a test fixture directory.
// Tests run from internal/mcptools/, so the relative path is
// ../../testdata/fixtures/<project>.
func fixtureAbsPath(t *testing.T, project string) string {
	t.Helper()
	abs, err := filepath.Abs(filepath.Join("..", "..", "testdata", "fixtures", project))
	require.NoError(t, err)
	return abs
}

func newTestService(t *testing.T) *CodeIntelService {
	t.Helper()
	svc := NewCodeIntelService(slog.New(slog.DiscardHandler), nil)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// openedService returns a service with the rust_project fixture open.
func openedService(t *testing.T) *CodeIntelService {
	t.Helper()
	svc := newTestService(t)
	_, _, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
		Root: fixtureAbsPath(t, "rust_project"),
	})
	require.NoError(t, err)
	return svc
}

// ---------------------------------------------------------------------------
// TestOpenWorkspace
// ---------------------------------------------------------------------------

func TestOpenWorkspace(t *testing.T) {
	t.Run("indexes rust_project fixture", func(t *testing.T) {
		svc := newTestService(t)
		_, out, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
			Root: fixtureAbsPath(t, "rust_project"),
		})
		require.NoError(t, err)

		assert.Equal(t, 2, out.Scan.Parsed)
		assert.Equal(t, 2, out.Scan.Stats.FileCount)
		assert.Greater(t, out.Scan.Stats.SymbolCount, 0)
		assert.Greater(t, out.Scan.Stats.ResolvedCount, 0)
		assert.NotEmpty(t, out.Scan.ScanID)
		assert.NotNil(t, svc.Workspace())
	})

	t.Run("unsupported files are listed", func(t *testing.T) {
		svc := newTestService(t)
		_, out, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
			Root: fixtureAbsPath(t, "mixed_project"),
		})
		require.NoError(t, err)
		require.Len(t, out.Scan.Skipped, 1)
		assert.Equal(t, "script.py", out.Scan.Skipped[0].Path)
	})

	t.Run("language filter", func(t *testing.T) {
		svc := newTestService(t)
		_, out, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
			Root:      fixtureAbsPath(t, "mixed_project"),
			Languages: []string{"java"},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, out.Scan.Stats.FileCount)
	})

	t.Run("unknown language returns error", func(t *testing.T) {
		svc := newTestService(t)
		_, _, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
			Root:      fixtureAbsPath(t, "rust_project"),
			Languages: []string{"python"},
		})
		assert.ErrorIs(t, err, graph.ErrUnsupportedLanguage)
	})

	t.Run("non-existent path returns error", func(t *testing.T) {
		svc := newTestService(t)
		_, _, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
			Root: "/tmp/this-path-does-not-exist-at-all-12345",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open workspace")
	})

	t.Run("empty root returns error", func(t *testing.T) {
		svc := newTestService(t)
		_, _, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "root is required")
	})

	t.Run("reopening replaces the workspace", func(t *testing.T) {
		svc := openedService(t)
		first := svc.Workspace()
		_, _, err := svc.OpenWorkspace(context.Background(), nil, OpenWorkspaceInput{
			Root: fixtureAbsPath(t, "js_project"),
		})
		require.NoError(t, err)
		assert.NotSame(t, first, svc.Workspace())
		assert.Equal(t, fixtureAbsPath(t, "js_project"), svc.Workspace().Root())
	})
}

// ---------------------------------------------------------------------------
// TestToolsRequireWorkspace
// ---------------------------------------------------------------------------

func TestToolsRequireWorkspace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Rescan(ctx, nil, RescanInput{Paths: []string{"a.rs"}})
	assert.ErrorIs(t, err, errNoWorkspace)
	_, _, err = svc.FindReferences(ctx, nil, FindReferencesInput{Symbol: "rust:function:main"})
	assert.ErrorIs(t, err, errNoWorkspace)
	_, _, err = svc.SearchSymbols(ctx, nil, SearchSymbolsInput{Query: "x"})
	assert.ErrorIs(t, err, errNoWorkspace)
	_, _, err = svc.GraphStats(ctx, nil, GraphStatsInput{})
	assert.ErrorIs(t, err, errNoWorkspace)
	_, _, err = svc.Outline(ctx, nil, OutlineInput{File: "a.rs"})
	assert.ErrorIs(t, err, errNoWorkspace)
}

// ---------------------------------------------------------------------------
// TestSetWorkspace
// ---------------------------------------------------------------------------

func TestSetWorkspace(t *testing.T) {
	open := func(t *testing.T, project string) *workspace.Workspace {
		t.Helper()
		ws, _, err := workspace.Open(context.Background(), fixtureAbsPath(t, project),
			workspace.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, err)
		return ws
	}

	t.Run("replacement waits for in-flight handlers", func(t *testing.T) {
		svc := newTestService(t)
		first := open(t, "rust_project")
		stopped := make(chan struct{})
		svc.SetWorkspace(first, func() { close(stopped) })

		held, release, err := svc.acquire()
		require.NoError(t, err)
		require.Same(t, first, held)

		second := open(t, "js_project")
		swapped := make(chan struct{})
		go func() {
			defer close(swapped)
			svc.SetWorkspace(second)
		}()

		<-stopped
		assert.Same(t, second, svc.Workspace())
		select {
		case <-swapped:
			t.Fatal("previous workspace closed while a handler still holds it")
		case <-time.After(50 * time.Millisecond):
		}

		syms, err := held.Query().SearchSymbols(context.Background(), "Point", "", 0)
		require.NoError(t, err)
		assert.NotEmpty(t, syms)

		release()
		select {
		case <-swapped:
		case <-time.After(5 * time.Second):
			t.Fatal("previous workspace not closed after release")
		}
	})

	t.Run("close stops background users", func(t *testing.T) {
		svc := NewCodeIntelService(slog.New(slog.DiscardHandler), nil)
		stops := 0
		svc.SetWorkspace(open(t, "rust_project"), func() { stops++ })

		require.NoError(t, svc.Close())
		assert.Equal(t, 1, stops)
		assert.Nil(t, svc.Workspace())
		_, _, err := svc.acquire()
		assert.ErrorIs(t, err, errNoWorkspace)
	})
}

// ---------------------------------------------------------------------------
// TestRescan
// ---------------------------------------------------------------------------

func TestRescan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.js"), []byte("helper();\n"), 0o644))

	svc := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.OpenWorkspace(ctx, nil, OpenWorkspaceInput{Root: root})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "helper.js"), []byte("function helper() {}\n"), 0o644))
	_, out, err := svc.Rescan(ctx, nil, RescanInput{Paths: []string{filepath.Join(root, "helper.js")}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Scan.Parsed)
	assert.Equal(t, 1, out.Scan.Stats.ResolvedCount)
	assert.Equal(t, 0, out.Scan.Stats.UnresolvedCount)

	_, _, err = svc.Rescan(ctx, nil, RescanInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths is required")
}

// ---------------------------------------------------------------------------
// TestFindReferences
// ---------------------------------------------------------------------------

func TestFindReferences(t *testing.T) {
	svc := openedService(t)
	ctx := context.Background()

	_, out, err := svc.FindReferences(ctx, nil, FindReferencesInput{Symbol: "rust:method:Point::norm"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "src/main.rs", out.References[0].File)
	assert.Equal(t, 14, out.References[0].Span.StartLine)

	_, _, err = svc.FindReferences(ctx, nil, FindReferencesInput{Symbol: "rust:function:nope"})
	assert.ErrorIs(t, err, graph.ErrSymbolNotFound)

	_, _, err = svc.FindReferences(ctx, nil, FindReferencesInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol is required")
}

// ---------------------------------------------------------------------------
// TestFindDeclaration
// ---------------------------------------------------------------------------

func TestFindDeclaration(t *testing.T) {
	svc := openedService(t)
	ctx := context.Background()

	t.Run("resolved", func(t *testing.T) {
		_, out, err := svc.FindDeclaration(ctx, nil, FindDeclarationInput{File: "src/main.rs", Line: 14, Column: 7})
		require.NoError(t, err)
		assert.True(t, out.Found)
		assert.False(t, out.Ambiguous)
		require.Len(t, out.Candidates, 1)
		assert.Equal(t, graph.SymbolID("rust:method:Point::norm"), out.Candidates[0].ID)
		require.Len(t, out.Candidates[0].Declarations, 1)
		assert.Equal(t, "src/geometry.rs", out.Candidates[0].Declarations[0].File)
	})

	t.Run("unresolved macro", func(t *testing.T) {
		_, out, err := svc.FindDeclaration(ctx, nil, FindDeclarationInput{File: "src/main.rs", Line: 19, Column: 4})
		require.NoError(t, err)
		assert.False(t, out.Found)
		require.NotNil(t, out.Usage)
		assert.Equal(t, "println", out.Usage.Name)
		assert.Equal(t, graph.StatusUnresolved, out.Status)
	})

	t.Run("no usage at position", func(t *testing.T) {
		_, out, err := svc.FindDeclaration(ctx, nil, FindDeclarationInput{File: "src/main.rs", Line: 2})
		require.NoError(t, err)
		assert.False(t, out.Found)
		assert.Nil(t, out.Usage)
	})

	t.Run("unknown file", func(t *testing.T) {
		_, _, err := svc.FindDeclaration(ctx, nil, FindDeclarationInput{File: "src/nope.rs", Line: 1})
		assert.ErrorIs(t, err, graph.ErrFileNotFound)
	})

	t.Run("outside workspace", func(t *testing.T) {
		_, _, err := svc.FindDeclaration(ctx, nil, FindDeclarationInput{File: "../other.rs", Line: 1})
		assert.ErrorIs(t, err, graph.ErrFileNotFound)
	})
}

// ---------------------------------------------------------------------------
// TestSymbolsInFile / TestOutline
// ---------------------------------------------------------------------------

func TestSymbolsInFile(t *testing.T) {
	svc := openedService(t)

	_, out, err := svc.SymbolsInFile(context.Background(), nil, SymbolsInFileInput{File: "src/geometry.rs"})
	require.NoError(t, err)
	var names []string
	for _, s := range out.Symbols {
		names = append(names, s.QualifiedName)
	}
	assert.Subset(t, names, []string{"Point", "Point::new", "Point::norm", "Shape", "Shape::area"})
	assert.Equal(t, "Point", names[0])

	_, _, err = svc.SymbolsInFile(context.Background(), nil, SymbolsInFileInput{})
	assert.Error(t, err)
}

func TestOutline(t *testing.T) {
	svc := openedService(t)

	_, out, err := svc.Outline(context.Background(), nil, OutlineInput{File: "src/geometry.rs"})
	require.NoError(t, err)
	levels := map[string]int{}
	for _, e := range out.Entries {
		levels[e.Name] = e.Level
	}
	assert.Equal(t, 0, levels["Point"])
	assert.Equal(t, 1, levels["x"])
	assert.Equal(t, 0, levels["Shape"])
	assert.Equal(t, 1, levels["area"])
}

// ---------------------------------------------------------------------------
// TestSearchSymbols
// ---------------------------------------------------------------------------

func TestSearchSymbols(t *testing.T) {
	svc := openedService(t)
	ctx := context.Background()

	_, out, err := svc.SearchSymbols(ctx, nil, SearchSymbolsInput{Query: "NOR"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "norm", out.Symbols[0].Name)

	_, out, err = svc.SearchSymbols(ctx, nil, SearchSymbolsInput{Query: "", Kind: "Trait"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "Shape", out.Symbols[0].Name)

	_, out, err = svc.SearchSymbols(ctx, nil, SearchSymbolsInput{Query: "", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
}

// ---------------------------------------------------------------------------
// TestEditorTarget
// ---------------------------------------------------------------------------

func TestEditorTarget(t *testing.T) {
	svc := openedService(t)
	ctx := context.Background()
	geometry := filepath.Join(fixtureAbsPath(t, "rust_project"), "src", "geometry.rs")

	_, out, err := svc.EditorTarget(ctx, nil, EditorTargetInput{Symbol: "rust:method:Point::norm"})
	require.NoError(t, err)
	assert.Equal(t, geometry, out.Target.Path)
	assert.Equal(t, 11, out.Target.Line)
	assert.Equal(t, 12, out.Target.Column)
	assert.Equal(t, []string{"code", "-g", geometry + ":11"}, out.Command)

	_, out, err = svc.EditorTarget(ctx, nil, EditorTargetInput{Symbol: "rust:method:Point::norm", Editor: "idea"})
	require.NoError(t, err)
	assert.Equal(t, []string{"idea", "-l", "11", geometry}, out.Command)

	_, _, err = svc.EditorTarget(ctx, nil, EditorTargetInput{Symbol: "rust:method:Point::norm", Editor: "vim"})
	assert.Error(t, err)

	_, _, err = svc.EditorTarget(ctx, nil, EditorTargetInput{Symbol: "rust:function:nope"})
	assert.ErrorIs(t, err, graph.ErrSymbolNotFound)
}

// ---------------------------------------------------------------------------
// TestGraphStats
// ---------------------------------------------------------------------------

func TestGraphStats(t *testing.T) {
	svc := openedService(t)

	_, out, err := svc.GraphStats(context.Background(), nil, GraphStatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Stats.FileCount)
	assert.Equal(t, out.Stats.ReferenceCount, out.Stats.ResolvedCount+out.Stats.AmbiguousCount+out.Stats.UnresolvedCount)
	require.Len(t, out.Clusters, 1)
	assert.ElementsMatch(t, []string{"src/geometry.rs", "src/main.rs"}, out.Clusters[0].Members)
}
