package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// startWatching opens root, runs a scheduler over it and starts a watcher.
// Reports are delivered on the returned channel.
func startWatching(t *testing.T, root string) (*Workspace, <-chan *ScanReport) {
	t.Helper()
	ws, _ := openTest(t, root, WithConfig(testConfig()))

	reports := make(chan *ScanReport, 16)
	s := ws.Scheduler(func(rep *ScanReport, err error) {
		if err == nil {
			reports <- rep
		}
	})
	w, err := ws.NewWatcher(s)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(ctx)
	}()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		w.Stop()
		cancel()
		wg.Wait()
	})
	return ws, reports
}

func hasFile(ws *Workspace, rel string) func() bool {
	return func() bool {
		f, err := ws.Graph().FileByPath(context.Background(), rel)
		return err == nil && f != nil
	}
}

// ------------------------------------------------------------------
// Watcher
// ------------------------------------------------------------------

func TestWatcher_PicksUpNewAndRemovedFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.js": "helper();\n"})
	ws, _ := startWatching(t, root)

	writeTree(t, root, map[string]string{"helper.js": "function helper() {}\n"})
	require.Eventually(t, hasFile(ws, "helper.js"), 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		refs, err := ws.Graph().ReferencesIn(context.Background(), "main.js")
		return err == nil && len(refs) == 1 && refs[0].Status == graph.StatusResolved
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "helper.js")))
	require.Eventually(t, func() bool { return !hasFile(ws, "helper.js")() }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_NewDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.c": "int main(void) { return 0; }\n"})
	ws, _ := startWatching(t, root)

	writeTree(t, root, map[string]string{"pkg/deep/util.c": "int util(void) { return 1; }\n"})
	require.Eventually(t, hasFile(ws, "pkg/deep/util.c"), 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_DirectoryMovedOut(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.c":          "int main(void) { return 0; }\n",
		"pkg/util.c":      "int util(void) { return 1; }\n",
		"pkg/deep/more.c": "int more;\n",
	})
	ws, _ := startWatching(t, root)

	require.NoError(t, os.Rename(filepath.Join(root, "pkg"), filepath.Join(t.TempDir(), "pkg")))
	require.Eventually(t, func() bool {
		return !hasFile(ws, "pkg/util.c")() && !hasFile(ws, "pkg/deep/more.c")()
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, hasFile(ws, "main.c")())
}

func TestWatcher_DirectoryRemoved(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.c":     "int main(void) { return 0; }\n",
		"pkg/util.c": "int util(void) { return 1; }\n",
	})
	ws, _ := startWatching(t, root)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "pkg")))
	require.Eventually(t, func() bool { return !hasFile(ws, "pkg/util.c")() }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresExcludedPaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.c":             "int main(void) { return 0; }\n",
		"node_modules/.keep": "",
		"notes.txt":          "",
	})
	ws, reports := startWatching(t, root)

	writeTree(t, root, map[string]string{
		"node_modules/dep.c": "int dep;\n",
		"notes.txt":          "changed",
	})
	// A real change afterwards proves the watcher is alive.
	writeTree(t, root, map[string]string{"later.c": "int later;\n"})
	require.Eventually(t, hasFile(ws, "later.c"), 5*time.Second, 20*time.Millisecond)

	f, err := ws.Graph().FileByPath(context.Background(), "node_modules/dep.c")
	require.NoError(t, err)
	assert.Nil(t, f)

drain:
	for {
		select {
		case rep := <-reports:
			assert.NotContains(t, rep.Parsed, "node_modules/dep.c")
		default:
			break drain
		}
	}
}
