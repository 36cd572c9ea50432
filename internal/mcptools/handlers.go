package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

// errNoWorkspace is returned by every query tool until open_workspace
// succeeds.
var errNoWorkspace = errors.New("no workspace open: call open_workspace first")

// CodeIntelService holds the open workspace used by MCP tool handlers.
type CodeIntelService struct {
	log     *slog.Logger
	metrics *workspace.Metrics
	opts    []workspace.Option

	mu  sync.RWMutex
	cur *lease
}

// lease pins an installed workspace. Handlers hold it for the length of a
// call; the workspace is closed only after every holder has released it.
type lease struct {
	ws     *workspace.Workspace
	users  sync.WaitGroup
	onStop []func()
}

// retire runs the stop hooks, waits for in-flight users and closes the
// workspace.
func (l *lease) retire() error {
	for _, stop := range l.onStop {
		stop()
	}
	l.users.Wait()
	return l.ws.Close()
}

// NewCodeIntelService creates a CodeIntelService. opts are applied to every
// workspace it opens. metrics may be nil.
func NewCodeIntelService(logger *slog.Logger, metrics *workspace.Metrics, opts ...workspace.Option) *CodeIntelService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = workspace.NewMetrics(nil)
	}
	return &CodeIntelService{log: logger, metrics: metrics, opts: opts}
}

// SetWorkspace installs an already opened workspace. onStop runs when the
// workspace is replaced or the service closes, before the workspace itself
// is closed; background users such as a watcher are stopped there. The
// previous workspace is closed once the handlers still using it return.
func (s *CodeIntelService) SetWorkspace(ws *workspace.Workspace, onStop ...func()) {
	s.mu.Lock()
	old := s.cur
	s.cur = &lease{ws: ws, onStop: onStop}
	s.mu.Unlock()
	if old == nil {
		return
	}
	if old.ws == ws {
		for _, stop := range old.onStop {
			stop()
		}
		return
	}
	if err := old.retire(); err != nil {
		s.log.Warn("close previous workspace", slog.String("root", old.ws.Root()), slog.Any("error", err))
	}
}

// Workspace returns the open workspace or nil.
func (s *CodeIntelService) Workspace() *workspace.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.ws
}

// Close closes the open workspace after in-flight handlers return.
func (s *CodeIntelService) Close() error {
	s.mu.Lock()
	old := s.cur
	s.cur = nil
	s.mu.Unlock()
	if old == nil {
		return nil
	}
	return old.retire()
}

// acquire pins the open workspace. The caller must call release when done.
func (s *CodeIntelService) acquire() (ws *workspace.Workspace, release func(), err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return nil, nil, errNoWorkspace
	}
	l := s.cur
	l.users.Add(1)
	return l.ws, l.users.Done, nil
}

// OpenWorkspace indexes a directory and makes it the workspace the other
// tools query.
func (s *CodeIntelService) OpenWorkspace(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input OpenWorkspaceInput,
) (*mcp.CallToolResult, OpenWorkspaceOutput, error) {
	if input.Root == "" {
		return nil, OpenWorkspaceOutput{}, fmt.Errorf("root is required")
	}

	opts := append([]workspace.Option{
		workspace.WithLogger(s.log),
		workspace.WithMetrics(s.metrics),
	}, s.opts...)

	if len(input.Languages) > 0 || len(input.ExcludeDirs) > 0 || len(input.ExcludeGlobs) > 0 {
		cfg, err := config.Load(input.Root)
		if err != nil {
			return nil, OpenWorkspaceOutput{}, fmt.Errorf("load config: %w", err)
		}
		if len(input.Languages) > 0 {
			cfg.Languages = input.Languages
		}
		cfg.ExcludeDirs = append(cfg.ExcludeDirs, input.ExcludeDirs...)
		cfg.ExcludeGlobs = append(cfg.ExcludeGlobs, input.ExcludeGlobs...)
		opts = append(opts, workspace.WithConfig(cfg))
	}

	ws, rep, err := workspace.Open(ctx, input.Root, opts...)
	if err != nil {
		return nil, OpenWorkspaceOutput{}, fmt.Errorf("open workspace: %w", err)
	}
	s.SetWorkspace(ws)
	s.log.Info("workspace opened", slog.String("root", ws.Root()), slog.String("scan", rep.ID))

	return nil, OpenWorkspaceOutput{Scan: summarize(ws, rep)}, nil
}

// Rescan re-indexes changed files of the open workspace.
func (s *CodeIntelService) Rescan(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RescanInput,
) (*mcp.CallToolResult, RescanOutput, error) {
	if len(input.Paths) == 0 {
		return nil, RescanOutput{}, fmt.Errorf("paths is required")
	}
	ws, release, err := s.acquire()
	if err != nil {
		return nil, RescanOutput{}, err
	}
	defer release()

	rep, err := ws.Rescan(ctx, input.Paths)
	if err != nil {
		return nil, RescanOutput{}, fmt.Errorf("rescan: %w", err)
	}
	return nil, RescanOutput{Scan: summarize(ws, rep)}, nil
}

// FindReferences lists every usage resolved to a symbol.
func (s *CodeIntelService) FindReferences(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FindReferencesInput,
) (*mcp.CallToolResult, FindReferencesOutput, error) {
	if input.Symbol == "" {
		return nil, FindReferencesOutput{}, fmt.Errorf("symbol is required")
	}
	ws, release, err := s.acquire()
	if err != nil {
		return nil, FindReferencesOutput{}, err
	}
	defer release()

	sites, err := ws.FindAllReferences(ctx, graph.SymbolID(input.Symbol))
	if err != nil {
		return nil, FindReferencesOutput{}, fmt.Errorf("find references: %w", err)
	}
	return nil, FindReferencesOutput{References: sites, Total: len(sites)}, nil
}

// FindDeclaration resolves the usage at a file location.
func (s *CodeIntelService) FindDeclaration(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FindDeclarationInput,
) (*mcp.CallToolResult, FindDeclarationOutput, error) {
	if input.File == "" {
		return nil, FindDeclarationOutput{}, fmt.Errorf("file is required")
	}
	ws, release, err := s.acquire()
	if err != nil {
		return nil, FindDeclarationOutput{}, err
	}
	defer release()
	rel, ok := ws.Rel(input.File)
	if !ok {
		return nil, FindDeclarationOutput{}, fmt.Errorf("%w: %s is outside the workspace", graph.ErrFileNotFound, input.File)
	}

	res, err := ws.Query().FindDeclarations(ctx, graph.UsageLocation{
		File:   rel,
		Offset: input.Offset,
		Line:   input.Line,
		Column: input.Column,
	})
	if err != nil {
		return nil, FindDeclarationOutput{}, fmt.Errorf("find declaration: %w", err)
	}
	if res == nil {
		return nil, FindDeclarationOutput{}, nil
	}
	return nil, FindDeclarationOutput{
		Found:      len(res.Candidates) > 0,
		Usage:      &res.Usage,
		Status:     res.Status,
		Reason:     res.Reason,
		Ambiguous:  res.Ambiguous,
		Candidates: res.Candidates,
	}, nil
}

// SymbolsInFile lists the symbols declared in a file.
func (s *CodeIntelService) SymbolsInFile(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SymbolsInFileInput,
) (*mcp.CallToolResult, SymbolsInFileOutput, error) {
	ws, rel, release, err := s.fileArg(input.File)
	if err != nil {
		return nil, SymbolsInFileOutput{}, err
	}
	defer release()
	syms, err := ws.Query().SymbolsInFile(ctx, rel)
	if err != nil {
		return nil, SymbolsInFileOutput{}, fmt.Errorf("symbols in file: %w", err)
	}
	return nil, SymbolsInFileOutput{Symbols: syms}, nil
}

// Outline returns the nested declaration outline of a file.
func (s *CodeIntelService) Outline(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input OutlineInput,
) (*mcp.CallToolResult, OutlineOutput, error) {
	ws, rel, release, err := s.fileArg(input.File)
	if err != nil {
		return nil, OutlineOutput{}, err
	}
	defer release()
	entries, err := ws.Query().Outline(ctx, rel)
	if err != nil {
		return nil, OutlineOutput{}, fmt.Errorf("outline: %w", err)
	}
	return nil, OutlineOutput{Entries: entries}, nil
}

// SearchSymbols searches for symbols by name substring match.
func (s *CodeIntelService) SearchSymbols(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchSymbolsInput,
) (*mcp.CallToolResult, SearchSymbolsOutput, error) {
	ws, release, err := s.acquire()
	if err != nil {
		return nil, SearchSymbolsOutput{}, err
	}
	defer release()
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	syms, err := ws.Query().SearchSymbols(ctx, input.Query, graph.SymbolKind(strings.ToLower(input.Kind)), limit)
	if err != nil {
		return nil, SearchSymbolsOutput{}, fmt.Errorf("search symbols: %w", err)
	}
	return nil, SearchSymbolsOutput{Symbols: syms, Total: len(syms)}, nil
}

// EditorTarget returns where a symbol is declared and the command that opens
// it in an editor.
func (s *CodeIntelService) EditorTarget(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EditorTargetInput,
) (*mcp.CallToolResult, EditorTargetOutput, error) {
	if input.Symbol == "" {
		return nil, EditorTargetOutput{}, fmt.Errorf("symbol is required")
	}
	ws, release, err := s.acquire()
	if err != nil {
		return nil, EditorTargetOutput{}, err
	}
	defer release()

	sym, err := ws.Graph().SymbolByID(ctx, graph.SymbolID(input.Symbol))
	if err != nil {
		return nil, EditorTargetOutput{}, fmt.Errorf("editor target: %w", err)
	}
	if sym == nil || len(sym.Declarations) == 0 {
		return nil, EditorTargetOutput{}, fmt.Errorf("%w: %s", graph.ErrSymbolNotFound, input.Symbol)
	}

	decl := sym.Declarations[0]
	target := ws.EditorTarget(decl.File, decl.NameSpan)
	editor := input.Editor
	if editor == "" {
		editor = ws.Config().Editor
	}
	argv, err := workspace.EditorCommand(editor, target)
	if err != nil {
		return nil, EditorTargetOutput{}, err
	}
	return nil, EditorTargetOutput{Target: target, Command: argv}, nil
}

// GraphStats reports graph counts and the file clusters.
func (s *CodeIntelService) GraphStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GraphStatsInput,
) (*mcp.CallToolResult, GraphStatsOutput, error) {
	ws, release, err := s.acquire()
	if err != nil {
		return nil, GraphStatsOutput{}, err
	}
	defer release()

	stats, err := ws.Graph().Stats(ctx)
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("stats: %w", err)
	}
	clusters, err := graph.ComputeClusters(ctx, ws.Graph())
	if err != nil {
		return nil, GraphStatsOutput{}, fmt.Errorf("compute clusters: %w", err)
	}
	return nil, GraphStatsOutput{Stats: *stats, Clusters: clusters}, nil
}

// fileArg pins the open workspace and maps file into it. On success the
// caller must call release.
func (s *CodeIntelService) fileArg(file string) (*workspace.Workspace, string, func(), error) {
	if file == "" {
		return nil, "", nil, fmt.Errorf("file is required")
	}
	ws, release, err := s.acquire()
	if err != nil {
		return nil, "", nil, err
	}
	rel, ok := ws.Rel(file)
	if !ok {
		release()
		return nil, "", nil, fmt.Errorf("%w: %s is outside the workspace", graph.ErrFileNotFound, file)
	}
	return ws, rel, release, nil
}

func summarize(ws *workspace.Workspace, rep *workspace.ScanReport) ScanSummary {
	sum := ScanSummary{
		ScanID:    rep.ID,
		Root:      ws.Root(),
		Parsed:    len(rep.Parsed),
		Unchanged: len(rep.Unchanged),
		Removed:   rep.Removed,
		Skipped:   rep.Skipped,
		Partial:   rep.Partial,
	}
	if rep.Stats != nil {
		sum.Stats = *rep.Stats
	}
	return sum
}
