package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/config"
)

func TestPathFilter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{".gitignore": "dist/\n*.min.js\n/generated.c\n"})

	cfg := (&config.ProjectConfig{ExcludeGlobs: []string{"vendor", "**/*_test.js"}}).WithDefaults()
	f, err := newPathFilter(root, cfg)
	require.NoError(t, err)

	dirs := []struct {
		rel  string
		skip bool
	}{
		{"src", false},
		{"node_modules", true},
		{"src/node_modules", true},
		{".git", true},
		{"dist", true},
		{"vendor", true},
		{"src/vendor", false},
	}
	for _, tc := range dirs {
		assert.Equal(t, tc.skip, f.skipDir(tc.rel), "dir %s", tc.rel)
	}

	files := []struct {
		rel  string
		skip bool
	}{
		{"src/app.js", false},
		{"src/app.min.js", true},
		{"src/app_test.js", true},
		{"dist/bundle.js", true},
		{"vendor/lib.c", true},
		{"node_modules/pkg/index.js", true},
		{"generated.c", true},
		{"src/generated.c", false},
	}
	for _, tc := range files {
		assert.Equal(t, tc.skip, f.skipFile(tc.rel), "file %s", tc.rel)
	}
}

func TestNewPathFilter_InvalidGlob(t *testing.T) {
	cfg := (&config.ProjectConfig{ExcludeGlobs: []string{"src/[a-"}}).WithDefaults()
	_, err := newPathFilter(t.TempDir(), cfg)
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.rs":            "",
		"a/x.java":        "",
		"a/readme.md":     "",
		"target/debug.rs": "",
		"a/deep/y.js":     "",
		"script.py":       "",
		".codegraph/db.c": "",
	})

	files, errs := discover(root, mustFilter(t, root))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"a/deep/y.js", "a/x.java", "b.rs", "script.py"}, files)

	sub, _ := discoverFrom(root, filepath.Join(root, "a", "deep"), mustFilter(t, root))
	assert.Equal(t, []string{"a/deep/y.js"}, sub)
}

func mustFilter(t *testing.T, root string) *pathFilter {
	t.Helper()
	f, err := newPathFilter(root, config.Defaults())
	require.NoError(t, err)
	return f
}
