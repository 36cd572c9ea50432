package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.True(t, cfg.GitignoreEnabled())
	assert.Equal(t, 150*time.Millisecond, cfg.Debounce())
	assert.Equal(t, "code", cfg.Editor)
	assert.Positive(t, cfg.Workers)
	assert.Contains(t, cfg.ExcludeDirs, ".git")
}

func TestLoad_YML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "codegraph.yml", `
languages: [rust, c]
excludeDirs: [vendor, .git]
excludeGlobs: ["**/*_gen.c"]
respectGitignore: false
workers: 3
debounceMs: 40
editor: zed
persistPath: .codegraph/graph.kuzu
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"rust", "c"}, cfg.Languages)
	assert.Equal(t, []string{"**/*_gen.c"}, cfg.ExcludeGlobs)
	assert.False(t, cfg.GitignoreEnabled())
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 40*time.Millisecond, cfg.Debounce())
	assert.Equal(t, "zed", cfg.Editor)
	assert.Equal(t, ".codegraph/graph.kuzu", cfg.PersistPath)

	// Configured dirs extend the defaults without duplicates.
	assert.Contains(t, cfg.ExcludeDirs, "vendor")
	assert.Contains(t, cfg.ExcludeDirs, "node_modules")
	count := 0
	for _, d := range cfg.ExcludeDirs {
		if d == ".git" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestLoad_YAMLExtension(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "codegraph.yaml", "editor: idea\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "idea", cfg.Editor)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "languages: [rust\n"},
		{"unknown editor", "editor: emacs\n"},
		{"negative workers", "workers: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "codegraph.yml", tt.body)
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnreadableFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be fails to read without being
	// missing.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "codegraph.yml"), 0o755))
	writeConfig(t, dir, "codegraph.yaml", "editor: zed\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read codegraph.yml")
}

func TestWithDefaults_DoesNotMutateReceiver(t *testing.T) {
	cfg := &ProjectConfig{ExcludeDirs: []string{"vendor"}}
	out := cfg.WithDefaults()

	assert.Equal(t, []string{"vendor"}, cfg.ExcludeDirs)
	assert.Nil(t, cfg.RespectGitignore)
	assert.Zero(t, cfg.Workers)
	assert.NotSame(t, cfg, out)
}

func TestTemplate_YieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codegraph.yml"), Template, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}
