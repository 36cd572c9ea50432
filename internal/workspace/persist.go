package workspace

import (
	"context"
	"errors"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// ErrPersistenceUnavailable is returned by OpenIndex in builds without cgo,
// where the embedded graph database cannot be linked.
var ErrPersistenceUnavailable = errors.New("graph persistence requires a cgo build")

// Index is a persisted snapshot of the graph. The live store never reads it
// back; it serves offline commands that run without re-indexing.
type Index interface {
	SaveSnapshot(ctx context.Context, snap *graph.Snapshot) error
	LoadSnapshot(ctx context.Context) (*graph.Snapshot, error)
	ReferencesTo(ctx context.Context, id graph.SymbolID) ([]graph.Reference, error)
	SearchSymbols(ctx context.Context, query string, limit int) ([]graph.Symbol, error)
	Stats(ctx context.Context) (*graph.GraphStats, error)
	Close() error
}
