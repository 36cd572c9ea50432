package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// pathFilter decides which workspace paths take part in indexing. Paths are
// slash-separated and relative to the root.
type pathFilter struct {
	excludeDirs map[string]bool
	globs       []string
	gitignore   *ignore.GitIgnore
}

func newPathFilter(root string, cfg *config.ProjectConfig) (*pathFilter, error) {
	f := &pathFilter{excludeDirs: make(map[string]bool, len(cfg.ExcludeDirs))}
	for _, d := range cfg.ExcludeDirs {
		f.excludeDirs[d] = true
	}
	for _, g := range cfg.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("config excludeGlobs: invalid pattern %q", g)
		}
		f.globs = append(f.globs, g)
	}
	if cfg.GitignoreEnabled() {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
		switch {
		case err == nil:
			f.gitignore = gi
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read .gitignore: %w", err)
		}
	}
	return f, nil
}

// skipDir reports whether a directory and everything below it is excluded.
func (f *pathFilter) skipDir(rel string) bool {
	if f.excludeDirs[pathBase(rel)] {
		return true
	}
	return f.excluded(rel + "/")
}

// skipFile reports whether a file or any of its parent directories is
// excluded.
func (f *pathFilter) skipFile(rel string) bool {
	for dir := pathDir(rel); dir != "."; dir = pathDir(dir) {
		if f.excludeDirs[pathBase(dir)] {
			return true
		}
	}
	return f.excluded(rel)
}

func (f *pathFilter) excluded(rel string) bool {
	trimmed := strings.TrimSuffix(rel, "/")
	for _, g := range f.globs {
		if ok, _ := doublestar.Match(g, trimmed); ok {
			return true
		}
		if ok, _ := doublestar.Match(g+"/**", trimmed); ok {
			return true
		}
	}
	return f.gitignore != nil && f.gitignore.MatchesPath(rel)
}

// discover walks root and returns every source file that passes the filter,
// sorted. Walk errors are returned for the caller to log.
func discover(root string, f *pathFilter) ([]string, []error) {
	return discoverFrom(root, root, f)
}

// discoverFrom walks the subtree at start; returned paths stay relative to
// root.
func discoverFrom(root, start string, f *pathFilter) ([]string, []error) {
	var files []string
	var walkErrs []error
	_ = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			walkErrs = append(walkErrs, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if f.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !graph.IsSourcePath(rel) || f.skipFile(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, walkErrs
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist)
}

func pathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

func pathDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return "."
}
