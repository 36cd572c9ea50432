package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// writeTree creates files under dir. Keys are slash-separated relative paths.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

// copyFixture copies testdata/fixtures/<project> into a fresh temp dir.
func copyFixture(t *testing.T, project string) string {
	t.Helper()
	src := filepath.Join("..", "..", "testdata", "fixtures", project)
	dst := t.TempDir()
	err := filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return dst
}

// openTest opens a workspace with a discarded log and test-friendly config.
func openTest(t *testing.T, root string, opts ...Option) (*Workspace, *ScanReport) {
	t.Helper()
	all := append([]Option{WithLogger(quietLogger())}, opts...)
	ws, rep, err := Open(context.Background(), root, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws, rep
}

func testConfig() *config.ProjectConfig {
	return &config.ProjectConfig{Workers: 2, DebounceMs: 20}
}

func skippedPaths(rep *ScanReport) []string {
	var out []string
	for _, s := range rep.Skipped {
		out = append(out, s.Path)
	}
	return out
}
