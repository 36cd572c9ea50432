package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// GraphExport is the top-level JSON export structure.
type GraphExport struct {
	Root       string              `json:"root"`
	ExportedAt string              `json:"exportedAt"`
	Stats      graph.GraphStats    `json:"stats"`
	Clusters   []graph.ClusterNode `json:"clusters"`
	Graph      *graph.Snapshot     `json:"graph"`
}

// ExportGraph builds a GraphExport from a code graph.
func ExportGraph(ctx context.Context, g graph.GraphReader, root string) (*GraphExport, error) {
	snap, err := g.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	stats, err := g.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	clusters, err := graph.ComputeClusters(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("compute clusters: %w", err)
	}

	return &GraphExport{
		Root:       root,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Stats:      *stats,
		Clusters:   clusters,
		Graph:      snap,
	}, nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
