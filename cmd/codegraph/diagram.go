package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dusk-indust/codegraph/internal/export"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

func runDiagram(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("diagram", stderr, &common)
	index := fs.String("index", "", "read a persisted graph database instead of indexing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, closeFn, err := loadGraph(ctx, common, *index, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	mermaid, err := export.GenerateMermaid(ctx, g)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, mermaid)
	return err
}

func runExport(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("export", stderr, &common)
	index := fs.String("index", "", "read a persisted graph database instead of indexing")
	out := fs.String("o", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, closeFn, err := loadGraph(ctx, common, *index, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	data, err := export.ExportGraph(ctx, g, common.Root)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if *out == "" {
		return export.WriteJSON(stdout, data)
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := export.WriteJSON(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// loadGraph returns the graph of the workspace: read from the persisted
// database at index when given, otherwise built by indexing the root.
func loadGraph(ctx context.Context, common commonFlags, index string, stderr io.Writer) (graph.GraphReader, func(), error) {
	if index == "" {
		ws, _, err := openWorkspace(ctx, common, stderr)
		if err != nil {
			return nil, nil, err
		}
		return ws.Graph(), func() { ws.Close() }, nil
	}

	if _, err := os.Stat(index); err != nil {
		return nil, nil, fmt.Errorf("no graph found at %s\nRun 'codegraph index -persist %s' first to index the codebase", index, index)
	}
	idx, err := workspace.OpenIndex(index)
	if err != nil {
		return nil, nil, err
	}
	defer idx.Close()

	snap, err := idx.LoadSnapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load graph: %w", err)
	}
	store := graph.NewMemStore()
	if err := graph.Restore(ctx, store, snap); err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}
