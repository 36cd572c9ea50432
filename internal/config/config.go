package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// FileNames are the config file names looked up in the workspace root, in
// order.
var FileNames = []string{"codegraph.yml", "codegraph.yaml"}

// Template is a commented codegraph.yml holding the default settings.
//
//go:embed template.yml
var Template []byte

// Editors supported by the editor target helpers.
var Editors = []string{"code", "zed", "idea"}

// ProjectConfig holds project-level settings loaded from codegraph.yml.
type ProjectConfig struct {
	// Languages restricts indexing to a subset of the supported languages.
	// Empty means all of them.
	Languages    []string `yaml:"languages,omitempty"`
	ExcludeDirs  []string `yaml:"excludeDirs,omitempty"`
	ExcludeGlobs []string `yaml:"excludeGlobs,omitempty"`
	// RespectGitignore defaults to true when unset.
	RespectGitignore *bool  `yaml:"respectGitignore,omitempty"`
	Workers          int    `yaml:"workers,omitempty"`
	DebounceMs       int    `yaml:"debounceMs,omitempty"`
	Editor           string `yaml:"editor,omitempty"`
	PersistPath      string `yaml:"persistPath,omitempty"`
	MCPAddr          string `yaml:"mcpAddr,omitempty"`
	Verbose          bool   `yaml:"verbose,omitempty"`
}

// DefaultExcludeDirs are skipped during discovery in addition to any
// configured ones.
var DefaultExcludeDirs = []string{".git", ".hg", ".svn", "node_modules", "target", ".codegraph"}

// Defaults returns the configuration used when no file is present.
func Defaults() *ProjectConfig {
	return (&ProjectConfig{}).WithDefaults()
}

// Load attempts to read codegraph.yml or codegraph.yaml from the given
// directory. Returns the defaults (not an error) if no config file exists;
// any other read failure is returned.
func Load(dir string) (*ProjectConfig, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var cfg ProjectConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return cfg.WithDefaults(), nil
	}
	return Defaults(), nil
}

// WithDefaults returns a copy with unset fields filled in.
func (c *ProjectConfig) WithDefaults() *ProjectConfig {
	out := *c
	out.ExcludeDirs = mergeUnique(DefaultExcludeDirs, c.ExcludeDirs)
	if out.RespectGitignore == nil {
		on := true
		out.RespectGitignore = &on
	}
	if out.Workers <= 0 {
		out.Workers = runtime.GOMAXPROCS(0)
	}
	if out.DebounceMs <= 0 {
		out.DebounceMs = 150
	}
	if out.Editor == "" {
		out.Editor = "code"
	}
	if out.MCPAddr == "" {
		out.MCPAddr = "localhost:8765"
	}
	return &out
}

// Validate rejects values that cannot be defaulted away.
func (c *ProjectConfig) Validate() error {
	if c.Editor != "" && !contains(Editors, c.Editor) {
		return fmt.Errorf("unknown editor %q (want one of %v)", c.Editor, Editors)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}

// GitignoreEnabled reports whether .gitignore patterns apply.
func (c *ProjectConfig) GitignoreEnabled() bool {
	return c.RespectGitignore == nil || *c.RespectGitignore
}

// Debounce is the rescan quiet window.
func (c *ProjectConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func mergeUnique(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, s := range append(append([]string(nil), base...), extra...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
