// Package workspace drives the code graph over a directory tree: discovery,
// parallel parse and extraction, workspace-wide resolution, incremental
// rescans and file watching.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
)

// Workspace owns one code graph built from the files under Root.
type Workspace struct {
	root      string
	cfg       *config.ProjectConfig
	log       *slog.Logger
	store     graph.Store
	parser    graph.Parser
	extractor *graph.Extractor
	query     *graph.QueryEngine
	filter    *pathFilter
	metrics   *Metrics
	persist   Index

	langs map[graph.Language]bool

	// scanMu serializes scans; the store serializes individual writes.
	scanMu sync.Mutex
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	cfg        *config.ProjectConfig
	registerer prometheus.Registerer
	metrics    *Metrics
	parser     graph.Parser
	persist    string
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithConfig overrides the codegraph.yml found in the root.
func WithConfig(c *config.ProjectConfig) Option { return func(o *options) { o.cfg = c } }

// WithRegisterer registers the scan metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMetrics shares already created collectors, for callers that open
// several workspaces against one registry. It takes precedence over
// WithRegisterer.
func WithMetrics(m *Metrics) Option { return func(o *options) { o.metrics = m } }

// WithParser replaces the tree-sitter parser.
func WithParser(p graph.Parser) Option { return func(o *options) { o.parser = p } }

// WithPersistence writes a snapshot of the graph to an embedded graph
// database at path after every scan. It overrides persistPath from the
// config.
func WithPersistence(path string) Option { return func(o *options) { o.persist = path } }

// Open discovers and indexes every supported file under root. Per-file
// failures are listed in the report; the error is reserved for an unusable
// root, bad configuration or cancellation.
func Open(ctx context.Context, root string, opts ...Option) (*Workspace, *ScanReport, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("open workspace: %s is not a directory", abs)
	}

	cfg := o.cfg
	if cfg == nil {
		if cfg, err = config.Load(abs); err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		cfg = cfg.WithDefaults()
	}

	langs, err := enabledLanguages(cfg.Languages)
	if err != nil {
		return nil, nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := o.parser
	if parser == nil {
		parser = graph.NewTreeSitterParser()
	}

	filter, err := newPathFilter(abs, cfg)
	if err != nil {
		return nil, nil, err
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = NewMetrics(o.registerer)
	}

	store := graph.NewMemStore()
	w := &Workspace{
		root:      abs,
		cfg:       cfg,
		log:       logger.With(slog.String("root", abs)),
		store:     store,
		parser:    parser,
		extractor: graph.NewExtractor(logger),
		query:     graph.NewQueryEngine(store),
		filter:    filter,
		metrics:   metrics,
		langs:     langs,
	}

	persistPath := o.persist
	if persistPath == "" && cfg.PersistPath != "" {
		persistPath = cfg.PersistPath
		if !filepath.IsAbs(persistPath) {
			persistPath = filepath.Join(abs, persistPath)
		}
	}
	if persistPath != "" {
		idx, err := OpenIndex(persistPath)
		if err != nil {
			return nil, nil, err
		}
		w.persist = idx
	}

	rep, err := w.fullScan(ctx)
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return w, rep, nil
}

// Close releases the parser and the persistence database.
func (w *Workspace) Close() error {
	var firstErr error
	if w.persist != nil {
		firstErr = w.persist.Close()
	}
	if err := w.parser.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Config returns the effective configuration.
func (w *Workspace) Config() *config.ProjectConfig { return w.cfg }

// Graph returns the read side of the code graph.
func (w *Workspace) Graph() graph.GraphReader { return w.store }

// Query returns the query engine over the live graph.
func (w *Workspace) Query() *graph.QueryEngine { return w.query }

// Metrics returns the scan metrics.
func (w *Workspace) Metrics() *Metrics { return w.metrics }

// FindAllReferences lists every usage resolved, possibly ambiguously, to id.
func (w *Workspace) FindAllReferences(ctx context.Context, id graph.SymbolID) ([]graph.ReferenceSite, error) {
	return w.query.FindReferences(ctx, id)
}

// Rel converts an absolute or root-relative path to the slash-separated
// workspace path used as the file key. ok is false for paths outside the
// root.
func (w *Workspace) Rel(p string) (string, bool) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return "", false
		}
		p = rel
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

// Abs returns the absolute OS path of a workspace path.
func (w *Workspace) Abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

func enabledLanguages(names []string) (map[graph.Language]bool, error) {
	out := make(map[graph.Language]bool, len(graph.SupportedLanguages))
	if len(names) == 0 {
		for _, l := range graph.SupportedLanguages {
			out[l] = true
		}
		return out, nil
	}
	for _, n := range names {
		lang := graph.Language(strings.ToLower(n))
		supported := false
		for _, l := range graph.SupportedLanguages {
			if l == lang {
				supported = true
				break
			}
		}
		if !supported {
			return nil, fmt.Errorf("config languages: %w: %q", graph.ErrUnsupportedLanguage, n)
		}
		out[lang] = true
	}
	return out, nil
}
