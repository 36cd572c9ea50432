//go:build !cgo

package workspace

import "fmt"

// OpenIndex always fails without cgo.
func OpenIndex(path string) (Index, error) {
	return nil, fmt.Errorf("open index %s: %w", path, ErrPersistenceUnavailable)
}
