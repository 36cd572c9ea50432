package graph

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// --- Enums ---

// NodeKind classifies nodes in the code graph.
type NodeKind string

const (
	NodeKindDirectory NodeKind = "directory"
	NodeKindFile      NodeKind = "file"
	NodeKindSymbol    NodeKind = "symbol"
)

// SymbolKind classifies symbols within the code graph.
type SymbolKind string

const (
	SymbolKindFunction   SymbolKind = "function"
	SymbolKindMethod     SymbolKind = "method"
	SymbolKindClass      SymbolKind = "class"
	SymbolKindStruct     SymbolKind = "struct"
	SymbolKindEnum       SymbolKind = "enum"
	SymbolKindEnumMember SymbolKind = "enum_member"
	SymbolKindInterface  SymbolKind = "interface"
	SymbolKindTrait      SymbolKind = "trait"
	SymbolKindType       SymbolKind = "type"
	SymbolKindField      SymbolKind = "field"
	SymbolKindVariable   SymbolKind = "variable"
	SymbolKindConstant   SymbolKind = "constant"
	SymbolKindModule     SymbolKind = "module"
	SymbolKindMacro      SymbolKind = "macro"
)

// EdgeKind classifies relationships between nodes.
type EdgeKind string

const (
	EdgeKindContains   EdgeKind = "CONTAINS"
	EdgeKindDeclares   EdgeKind = "DECLARES"
	EdgeKindReferences EdgeKind = "REFERENCES"
)

// Language identifies a programming language for parsing.
type Language string

const (
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangJavaScript Language = "javascript"
)

// SupportedLanguages is the fixed set of languages with a grammar and an
// extraction rule table.
var SupportedLanguages = []Language{LangRust, LangJava, LangC, LangJavaScript}

var extToLanguage = map[string]Language{
	".rs":   LangRust,
	".java": LangJava,
	".c":    LangC,
	".h":    LangC,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
}

// foreignExts are source extensions of languages without a grammar here.
// Files with these extensions are reported as unsupported instead of being
// silently ignored.
var foreignExts = map[string]string{
	".py":    "python",
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".kt":    "kotlin",
	".swift": "swift",
	".php":   "php",
	".scala": "scala",
	".lua":   "lua",
}

// LanguageForPath maps a file path to a supported language by extension.
func LanguageForPath(p string) (Language, bool) {
	lang, ok := extToLanguage[strings.ToLower(path.Ext(p))]
	return lang, ok
}

// IsSourcePath reports whether p looks like source code in any language we
// know about, supported or not.
func IsSourcePath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if _, ok := extToLanguage[ext]; ok {
		return true
	}
	_, ok := foreignExts[ext]
	return ok
}

// Visibility controls whether a declaration takes part in the global fallback
// lookup.
type Visibility string

const (
	VisibilityLocal    Visibility = "local"    // function or block scoped
	VisibilityPrivate  Visibility = "private"  // module-level but not exported
	VisibilityExported Visibility = "exported" // visible workspace-wide
)

// UsageKind classifies how a usage site refers to its symbol.
type UsageKind string

const (
	UsageRead UsageKind = "read"
	UsageCall UsageKind = "call"
	UsageType UsageKind = "type"
)

// ResolutionStatus is the state of a reference after resolution.
type ResolutionStatus string

const (
	StatusResolved   ResolutionStatus = "resolved"
	StatusAmbiguous  ResolutionStatus = "ambiguous"
	StatusUnresolved ResolutionStatus = "unresolved"
)

// UnresolvedReason explains why a reference has no target.
type UnresolvedReason string

const (
	ReasonNone     UnresolvedReason = ""
	ReasonPending  UnresolvedReason = "pending"  // resolution has not run yet
	ReasonExternal UnresolvedReason = "external" // qualified or imported from outside the workspace
	ReasonUnknown  UnresolvedReason = "unknown"
)

// --- Models ---

// Span locates a range of source text. Lines are 1-based, columns and byte
// offsets are 0-based. End is exclusive.
type Span struct {
	StartByte int `json:"startByte"`
	EndByte   int `json:"endByte"`
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// ContainsByte reports whether off falls inside the span.
func (s Span) ContainsByte(off int) bool {
	return off >= s.StartByte && off < s.EndByte
}

// ContainsPosition reports whether the 1-based line and 0-based column fall
// inside the span.
func (s Span) ContainsPosition(line, col int) bool {
	if line < s.StartLine || line > s.EndLine {
		return false
	}
	if line == s.StartLine && col < s.StartCol {
		return false
	}
	if line == s.EndLine && col >= s.EndCol {
		return false
	}
	return true
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// SourceFile is a parsed file in the workspace.
type SourceFile struct {
	Path        string    `json:"path"` // workspace-relative, slash separated
	Language    Language  `json:"language"`
	ContentHash string    `json:"contentHash"`
	Size        int64     `json:"size"`
	LOC         int       `json:"loc"`
	HasErrors   bool      `json:"hasErrors"`
	ParsedAt    time.Time `json:"parsedAt"`
}

// SymbolID identifies a symbol independently of the file that declares it:
// language, kind and fully qualified name.
type SymbolID string

// NewSymbolID builds the canonical identifier for a symbol.
func NewSymbolID(lang Language, kind SymbolKind, qualifiedName string) SymbolID {
	return SymbolID(string(lang) + ":" + string(kind) + ":" + qualifiedName)
}

// Parts splits an identifier back into its components.
func (id SymbolID) Parts() (Language, SymbolKind, string) {
	parts := strings.SplitN(string(id), ":", 3)
	if len(parts) != 3 {
		return "", "", string(id)
	}
	return Language(parts[0]), SymbolKind(parts[1]), parts[2]
}

// FileScope is the outermost scope chain entry of every declaration and
// usage in a file.
func FileScope(path string) string {
	return "file:" + path
}

// Declaration is one syntactic site introducing a symbol.
type Declaration struct {
	Symbol        SymbolID   `json:"symbol"`
	Name          string     `json:"name"`
	QualifiedName string     `json:"qualifiedName"`
	Kind          SymbolKind `json:"kind"`
	Language      Language   `json:"language"`
	File          string     `json:"file"`
	Span          Span       `json:"span"`
	NameSpan      Span       `json:"nameSpan"`
	Scope         []string   `json:"scope"` // outermost first
	Visibility    Visibility `json:"visibility"`
	Forward       bool       `json:"forward,omitempty"` // prototype or signature without a body
	VisibleFrom   int        `json:"visibleFrom"`       // byte offset, meaningful for local variables
}

// Site returns the declaration's location.
func (d Declaration) Site() DeclSite {
	return DeclSite{File: d.File, Span: d.Span}
}

// UsageSite is one syntactic site referring to a name.
type UsageSite struct {
	File      string    `json:"file"`
	Language  Language  `json:"language"`
	Span      Span      `json:"span"`
	Name      string    `json:"name"`
	Kind      UsageKind `json:"kind"`
	Qualifier string    `json:"qualifier,omitempty"`
	Scope     []string  `json:"scope"` // outermost first
	Enclosing SymbolID  `json:"enclosing,omitempty"`
	Imported  bool      `json:"imported,omitempty"`
}

// UsageKey identifies a usage site. Resolution is idempotent per key.
type UsageKey struct {
	File  string
	Start int
	End   int
	Name  string
}

// Key returns the identity of the usage site.
func (u UsageSite) Key() UsageKey {
	return UsageKey{File: u.File, Start: u.Span.StartByte, End: u.Span.EndByte, Name: u.Name}
}

// DeclSite locates one declaration of a symbol.
type DeclSite struct {
	File string `json:"file"`
	Span Span   `json:"span"`
}

// Symbol is a graph node. Declarations lists its live declaration sites.
type Symbol struct {
	ID            SymbolID      `json:"id"`
	Name          string        `json:"name"`
	QualifiedName string        `json:"qualifiedName"`
	Kind          SymbolKind    `json:"kind"`
	Language      Language      `json:"language"`
	Declarations  []Declaration `json:"declarations,omitempty"`
}

// Target is one candidate symbol of a reference together with the
// declaration sites that matched.
type Target struct {
	Symbol SymbolID   `json:"symbol"`
	Sites  []DeclSite `json:"sites"`
}

// Reference is a usage site plus its resolution.
type Reference struct {
	Usage   UsageSite        `json:"usage"`
	Targets []Target         `json:"targets,omitempty"`
	Status  ResolutionStatus `json:"status"`
	Reason  UnresolvedReason `json:"reason,omitempty"`
}

// ReferenceSite is a find-references result entry.
type ReferenceSite struct {
	File      string    `json:"file"`
	Span      Span      `json:"span"`
	Name      string    `json:"name"`
	Kind      UsageKind `json:"kind"`
	Enclosing SymbolID  `json:"enclosing,omitempty"`
	Ambiguous bool      `json:"ambiguous"`
	Targets   []Target  `json:"targets"`
}

// ClusterNode represents a group of files connected by cross-file references.
type ClusterNode struct {
	Name          string   `json:"name"`
	CohesionScore float64  `json:"cohesionScore"`
	Members       []string `json:"members"` // file paths
}

// GraphStats summarizes a code graph.
type GraphStats struct {
	FileCount        int `json:"fileCount"`
	DirectoryCount   int `json:"directoryCount"`
	SymbolCount      int `json:"symbolCount"`
	DeclarationCount int `json:"declarationCount"`
	ReferenceCount   int `json:"referenceCount"`
	ResolvedCount    int `json:"resolvedCount"`
	AmbiguousCount   int `json:"ambiguousCount"`
	UnresolvedCount  int `json:"unresolvedCount"`
	EdgeCount        int `json:"edgeCount"`
}
