package mcptools

import (
	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// OpenWorkspaceInput is the input for the open_workspace MCP tool.
type OpenWorkspaceInput struct {
	Root         string   `json:"root" jsonschema:"the absolute path of the directory to index"`
	Languages    []string `json:"languages,omitempty" jsonschema:"languages to index (default: all). Values: rust, java, c, javascript"`
	ExcludeDirs  []string `json:"excludeDirs,omitempty" jsonschema:"directory names to exclude in addition to codegraph.yml (e.g. vendor)"`
	ExcludeGlobs []string `json:"excludeGlobs,omitempty" jsonschema:"doublestar patterns of paths to exclude (e.g. **/*.min.js)"`
}

// ScanSummary describes the outcome of a scan.
type ScanSummary struct {
	ScanID    string                  `json:"scanId"`
	Root      string                  `json:"root"`
	Parsed    int                     `json:"parsed"`
	Unchanged int                     `json:"unchanged"`
	Removed   []string                `json:"removed,omitempty"`
	Skipped   []workspace.SkippedFile `json:"skipped,omitempty"`
	Partial   []workspace.PartialFile `json:"partial,omitempty"`
	Stats     graph.GraphStats        `json:"stats"`
}

// OpenWorkspaceOutput is the result of the open_workspace MCP tool.
type OpenWorkspaceOutput struct {
	Scan ScanSummary `json:"scan"`
}

// RescanInput is the input for the rescan MCP tool.
type RescanInput struct {
	Paths []string `json:"paths" jsonschema:"changed files, absolute or relative to the workspace root"`
}

// RescanOutput is the result of the rescan MCP tool.
type RescanOutput struct {
	Scan ScanSummary `json:"scan"`
}

// FindReferencesInput is the input for the find_references MCP tool.
type FindReferencesInput struct {
	Symbol string `json:"symbol" jsonschema:"symbol id as returned by search_symbols, e.g. rust:function:geometry::distance"`
}

// FindReferencesOutput is the result of the find_references MCP tool.
type FindReferencesOutput struct {
	References []graph.ReferenceSite `json:"references"`
	Total      int                   `json:"total"`
}

// FindDeclarationInput is the input for the find_declaration MCP tool.
// The usage is located either by byte offset or by line and column.
type FindDeclarationInput struct {
	File   string `json:"file" jsonschema:"workspace-relative path of the file containing the usage"`
	Line   int    `json:"line,omitempty" jsonschema:"1-based line of the usage"`
	Column int    `json:"column,omitempty" jsonschema:"0-based column of the usage"`
	Offset int    `json:"offset,omitempty" jsonschema:"0-based byte offset of the usage, used when line is 0"`
}

// FindDeclarationOutput is the result of the find_declaration MCP tool.
type FindDeclarationOutput struct {
	Found      bool                   `json:"found"`
	Usage      *graph.UsageSite       `json:"usage,omitempty"`
	Status     graph.ResolutionStatus `json:"status,omitempty"`
	Reason     graph.UnresolvedReason `json:"reason,omitempty"`
	Ambiguous  bool                   `json:"ambiguous"`
	Candidates []graph.Symbol         `json:"candidates"`
}

// SymbolsInFileInput is the input for the symbols_in_file MCP tool.
type SymbolsInFileInput struct {
	File string `json:"file" jsonschema:"workspace-relative path of the file"`
}

// SymbolsInFileOutput is the result of the symbols_in_file MCP tool.
type SymbolsInFileOutput struct {
	Symbols []graph.Symbol `json:"symbols"`
}

// OutlineInput is the input for the outline MCP tool.
type OutlineInput struct {
	File string `json:"file" jsonschema:"workspace-relative path of the file"`
}

// OutlineOutput is the result of the outline MCP tool.
type OutlineOutput struct {
	Entries []graph.OutlineEntry `json:"entries"`
}

// SearchSymbolsInput is the input for the search_symbols MCP tool.
type SearchSymbolsInput struct {
	Query string `json:"query" jsonschema:"search query for symbol names (case-insensitive substring match)"`
	Kind  string `json:"kind,omitempty" jsonschema:"filter by symbol kind: function, method, class, struct, enum, interface, trait, field, variable, constant, module, macro"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 20)"`
}

// SearchSymbolsOutput is the result of the search_symbols MCP tool.
type SearchSymbolsOutput struct {
	Symbols []graph.Symbol `json:"symbols"`
	Total   int            `json:"total"`
}

// EditorTargetInput is the input for the editor_target MCP tool.
type EditorTargetInput struct {
	Symbol string `json:"symbol" jsonschema:"symbol id whose first declaration to open"`
	Editor string `json:"editor,omitempty" jsonschema:"code, zed or idea (default: from codegraph.yml)"`
}

// EditorTargetOutput is the result of the editor_target MCP tool.
type EditorTargetOutput struct {
	Target  workspace.EditorTarget `json:"target"`
	Command []string               `json:"command"`
}

// GraphStatsInput is the input for the graph_stats MCP tool.
type GraphStatsInput struct{}

// GraphStatsOutput is the result of the graph_stats MCP tool.
type GraphStatsOutput struct {
	Stats    graph.GraphStats    `json:"stats"`
	Clusters []graph.ClusterNode `json:"clusters"`
}
