package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewCodeIntelMCPServer creates an MCP server with the code navigation tools
// registered.
func NewCodeIntelMCPServer(svc *CodeIntelService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "codegraph",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_workspace",
		Description: "Index a directory and make it the active workspace. Walks the tree, parses Rust, Java, C and JavaScript files with tree-sitter, extracts declarations and usages and resolves references across files. Files that cannot be indexed are listed, not fatal.",
	}, svc.OpenWorkspace)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rescan",
		Description: "Re-index changed, new or deleted files of the active workspace and re-resolve references. Files whose content is unchanged are skipped.",
	}, svc.Rescan)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_references",
		Description: "List every usage that resolves to a symbol, including ambiguous ones, ordered by file and position.",
	}, svc.FindReferences)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_declaration",
		Description: "Resolve the usage at a file position to its declaration. Ambiguous usages return every candidate; unresolved usages return none with a reason.",
	}, svc.FindDeclaration)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "symbols_in_file",
		Description: "List the symbols declared in a file in source order.",
	}, svc.SymbolsInFile)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "outline",
		Description: "Return the nested outline of a file: types, functions, methods and fields with their nesting level.",
	}, svc.Outline)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_symbols",
		Description: "Search for symbols by name substring match. Optionally filter by symbol kind and limit results.",
	}, svc.SearchSymbols)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "editor_target",
		Description: "Return the absolute path, 1-based line and column of a symbol's declaration and the command line that opens it in code, zed or idea.",
	}, svc.EditorTarget)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Return counts of files, symbols and references by resolution status, plus clusters of files connected by cross-file references.",
	}, svc.GraphStats)

	return server
}

// RunMCPServer starts an HTTP server exposing the MCP tools at /mcp. Extra
// handlers, such as /metrics, are mounted next to it.
func RunMCPServer(ctx context.Context, svc *CodeIntelService, addr string, extra map[string]http.Handler) error {
	server := NewCodeIntelMCPServer(svc)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	))
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking until
// stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, svc *CodeIntelService) error {
	return NewCodeIntelMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
