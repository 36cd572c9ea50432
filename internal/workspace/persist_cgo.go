//go:build cgo

package workspace

import (
	"context"
	"fmt"

	"github.com/dusk-indust/codegraph/internal/graph"
)

var _ Index = (*graph.KuzuStore)(nil)

// OpenIndex opens or creates the embedded graph database at path.
func OpenIndex(path string) (Index, error) {
	s, err := graph.NewKuzuFileStore(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}
	return s, nil
}
