package workspace

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/blake3"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// ScanReport summarizes one full scan or rescan. A failure in one file never
// aborts the scan; it is listed here instead.
type ScanReport struct {
	ID        string            `json:"id"`
	Full      bool              `json:"full"`
	Started   time.Time         `json:"started"`
	Duration  time.Duration     `json:"duration"`
	Parsed    []string          `json:"parsed"`
	Unchanged []string          `json:"unchanged,omitempty"`
	Removed   []string          `json:"removed,omitempty"`
	Skipped   []SkippedFile     `json:"skipped,omitempty"`
	Partial   []PartialFile     `json:"partial,omitempty"`
	Stats     *graph.GraphStats `json:"stats,omitempty"`
}

// SkippedFile is a file left out of the graph.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// PartialFile is a file indexed with syntax errors or extraction warnings.
type PartialFile struct {
	Path         string                    `json:"path"`
	SyntaxErrors bool                      `json:"syntaxErrors"`
	Warnings     []graph.ExtractionWarning `json:"warnings,omitempty"`
}

// Skip reasons.
const (
	ReasonUnsupported = "unsupported language"
	ReasonDisabled    = "language disabled"
	ReasonUnparseable = "unparseable"
	ReasonUnreadable  = "unreadable"
)

type fileOutcome int

const (
	outcomeParsed fileOutcome = iota
	outcomeUnchanged
	outcomeRemoved
	outcomeSkipped
	outcomeIgnored
)

// fileResult is the per-file product of the parallel phase. Only the
// owning worker writes it.
type fileResult struct {
	path     string
	outcome  fileOutcome
	update   graph.FileUpdate
	partial  *PartialFile
	skip     SkippedFile
	dropOld  bool // a skipped file's previous version must leave the graph
	language graph.Language
}

// Rescan re-parses only the given files, removes those that no longer exist
// and re-resolves the whole workspace. Paths may be absolute or relative to
// the root; paths outside the root or excluded by the filter are ignored. A
// directory path stands for every indexed file below it plus the source
// files it holds on disk now, so a deleted or moved directory leaves the
// graph.
func (w *Workspace) Rescan(ctx context.Context, changed []string) (*ScanReport, error) {
	seen := make(map[string]bool, len(changed))
	var rels []string
	add := func(rel string) {
		if !seen[rel] {
			seen[rel] = true
			rels = append(rels, rel)
		}
	}
	for _, p := range changed {
		rel, ok := w.Rel(p)
		if !ok {
			continue
		}
		if !graph.IsSourcePath(rel) {
			files, err := w.filesUnder(ctx, rel)
			if err != nil {
				return nil, fmt.Errorf("rescan %s: %w", rel, err)
			}
			if len(files) > 0 {
				for _, f := range files {
					add(f)
				}
				continue
			}
		}
		if w.filter.skipFile(rel) {
			continue
		}
		add(rel)
	}
	sort.Strings(rels)
	return w.scan(ctx, rels, false)
}

// filesUnder lists the indexed files below dir together with the source
// files currently on disk there.
func (w *Workspace) filesUnder(ctx context.Context, dir string) ([]string, error) {
	files, err := w.indexedUnder(ctx, dir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(w.Abs(dir)); err == nil && info.IsDir() && !w.filter.skipDir(dir) {
		found, walkErrs := discoverFrom(w.root, w.Abs(dir), w.filter)
		for _, err := range walkErrs {
			w.log.Warn("discovery error", slog.String("err", err.Error()))
		}
		files = append(files, found...)
	}
	return files, nil
}

// indexedUnder lists the files of the graph below dir.
func (w *Workspace) indexedUnder(ctx context.Context, dir string) ([]string, error) {
	stored, err := w.store.Files(ctx)
	if err != nil {
		return nil, err
	}
	prefix := dir + "/"
	var out []string
	for _, f := range stored {
		if strings.HasPrefix(f.Path, prefix) {
			out = append(out, f.Path)
		}
	}
	return out, nil
}

func (w *Workspace) fullScan(ctx context.Context) (*ScanReport, error) {
	files, walkErrs := discover(w.root, w.filter)
	for _, err := range walkErrs {
		w.log.Warn("discovery error", slog.String("err", err.Error()))
	}
	return w.scan(ctx, files, true)
}

func (w *Workspace) scan(ctx context.Context, paths []string, full bool) (*ScanReport, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	rep := &ScanReport{ID: uuid.NewString(), Full: full, Started: time.Now()}
	log := w.log.With(slog.String("scan", rep.ID))
	log.Info("scan started", slog.Bool("full", full), slog.Int("files", len(paths)))

	// Parse and extract in parallel. Workers never return per-file errors
	// through the group; only cancellation stops it.
	phase := time.Now()
	results := make([]fileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = w.processFile(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", rep.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", rep.ID, err)
	}
	w.metrics.observePhase("parse", phase)

	phase = time.Now()
	present := make(map[string]bool, len(paths))
	for _, r := range results {
		present[r.path] = true
		if err := w.apply(ctx, rep, r); err != nil {
			return nil, fmt.Errorf("scan %s: %w", rep.ID, err)
		}
	}
	if full {
		if err := w.dropMissing(ctx, rep, present); err != nil {
			return nil, fmt.Errorf("scan %s: %w", rep.ID, err)
		}
	}
	w.metrics.observePhase("apply", phase)

	// Barrier: resolution sees the declarations of every file of this scan.
	phase = time.Now()
	if err := w.resolve(ctx); err != nil {
		return nil, fmt.Errorf("scan %s: %w", rep.ID, err)
	}
	w.metrics.observePhase("resolve", phase)

	stats, err := w.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rep.ID, err)
	}
	rep.Stats = stats
	w.metrics.setReferences(stats)

	if w.persist != nil {
		phase = time.Now()
		if err := w.persistSnapshot(ctx); err != nil {
			// The live graph is authoritative; a failed snapshot only costs
			// the offline commands their freshness.
			log.Error("persist snapshot", slog.String("err", err.Error()))
		}
		w.metrics.observePhase("persist", phase)
	}

	rep.Duration = time.Since(rep.Started)
	log.Info("scan finished",
		slog.Int("parsed", len(rep.Parsed)),
		slog.Int("unchanged", len(rep.Unchanged)),
		slog.Int("removed", len(rep.Removed)),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Int("partial", len(rep.Partial)),
		slog.Int("references", stats.ReferenceCount),
		slog.Int("unresolved", stats.UnresolvedCount),
		slog.Duration("took", rep.Duration),
	)
	return rep, nil
}

// processFile reads, hashes, parses and extracts one file. It touches no
// shared state besides read-only store lookups.
func (w *Workspace) processFile(ctx context.Context, rel string) fileResult {
	res := fileResult{path: rel}

	lang, ok := graph.LanguageForPath(rel)
	if !ok {
		if !graph.IsSourcePath(rel) {
			res.outcome = outcomeIgnored
			return res
		}
		res.outcome = outcomeSkipped
		res.skip = SkippedFile{Path: rel, Reason: ReasonUnsupported, Err: fmt.Errorf("%s: %w", rel, graph.ErrUnsupportedLanguage)}
		return res
	}
	res.language = lang
	if !w.langs[lang] {
		res.outcome = outcomeSkipped
		res.dropOld = true
		res.skip = SkippedFile{Path: rel, Reason: ReasonDisabled}
		return res
	}

	content, err := os.ReadFile(w.Abs(rel))
	if err != nil {
		if isNotExist(err) {
			res.outcome = outcomeRemoved
			return res
		}
		res.outcome = outcomeSkipped
		res.skip = SkippedFile{Path: rel, Reason: ReasonUnreadable, Err: err}
		return res
	}

	sum := blake3.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if prev, err := w.store.FileByPath(ctx, rel); err == nil && prev != nil && prev.ContentHash == hash {
		res.outcome = outcomeUnchanged
		return res
	}

	tree, err := w.parser.Parse(ctx, content, lang)
	if err != nil {
		res.outcome = outcomeSkipped
		res.dropOld = true
		res.skip = SkippedFile{Path: rel, Reason: ReasonUnparseable, Err: err}
		if errors.Is(err, graph.ErrUnsupportedLanguage) {
			res.skip.Reason = ReasonUnsupported
		}
		return res
	}

	file := graph.SourceFile{
		Path:        rel,
		Language:    lang,
		ContentHash: hash,
		Size:        int64(len(content)),
		LOC:         graph.CountLOC(content),
		HasErrors:   tree.HasErrors,
		ParsedAt:    time.Now(),
	}
	ex, err := w.extractor.Extract(tree, file)
	if err != nil {
		res.outcome = outcomeSkipped
		res.dropOld = true
		res.skip = SkippedFile{Path: rel, Reason: ReasonUnsupported, Err: err}
		return res
	}

	res.outcome = outcomeParsed
	res.update = graph.FileUpdate{File: file, Declarations: ex.Declarations, Usages: ex.Usages}
	if tree.HasErrors || len(ex.Warnings) > 0 {
		res.partial = &PartialFile{Path: rel, SyntaxErrors: tree.HasErrors, Warnings: ex.Warnings}
	}
	return res
}

// apply writes one file result into the store and the report.
func (w *Workspace) apply(ctx context.Context, rep *ScanReport, r fileResult) error {
	switch r.outcome {
	case outcomeParsed:
		if err := w.store.UpsertFile(ctx, r.update); err != nil {
			return err
		}
		rep.Parsed = append(rep.Parsed, r.path)
		if r.partial != nil {
			rep.Partial = append(rep.Partial, *r.partial)
		}
		w.metrics.FilesParsed.WithLabelValues(string(r.language)).Inc()

	case outcomeUnchanged:
		rep.Unchanged = append(rep.Unchanged, r.path)

	case outcomeRemoved:
		return w.remove(ctx, rep, r.path)

	case outcomeSkipped:
		rep.Skipped = append(rep.Skipped, r.skip)
		w.metrics.FilesSkipped.WithLabelValues(r.skip.Reason).Inc()
		attrs := []any{slog.String("file", r.path), slog.String("reason", r.skip.Reason)}
		if r.skip.Err != nil {
			attrs = append(attrs, slog.String("err", r.skip.Err.Error()))
		}
		w.log.Warn("file skipped", attrs...)
		if r.dropOld {
			if err := w.store.RemoveFile(ctx, r.path); err != nil && !errors.Is(err, graph.ErrFileNotFound) {
				return err
			}
		}
	}
	return nil
}

func (w *Workspace) remove(ctx context.Context, rep *ScanReport, rel string) error {
	err := w.store.RemoveFile(ctx, rel)
	switch {
	case err == nil:
		rep.Removed = append(rep.Removed, rel)
		return nil
	case errors.Is(err, graph.ErrFileNotFound):
		return nil
	default:
		return err
	}
}

// dropMissing removes files the graph holds but the full scan did not see.
func (w *Workspace) dropMissing(ctx context.Context, rep *ScanReport, present map[string]bool) error {
	files, err := w.store.Files(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if present[f.Path] {
			continue
		}
		if err := w.remove(ctx, rep, f.Path); err != nil {
			return err
		}
	}
	return nil
}

// resolve re-resolves every usage against the current declaration index.
func (w *Workspace) resolve(ctx context.Context) error {
	decls, err := w.store.Declarations(ctx)
	if err != nil {
		return err
	}
	usages, err := w.store.Usages(ctx)
	if err != nil {
		return err
	}
	refs, err := graph.NewResolver(graph.NewSymbolIndex(decls)).Resolve(ctx, usages)
	if err != nil {
		return err
	}
	return w.store.ApplyResolution(ctx, refs)
}

func (w *Workspace) persistSnapshot(ctx context.Context) error {
	snap, err := w.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	return w.persist.SaveSnapshot(ctx, snap)
}
