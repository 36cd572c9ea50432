package graph

import (
	"context"
	"fmt"
	"io"
)

// GraphReader is the read side of the code graph. Every read returns copies;
// nothing returned aliases store internals.
type GraphReader interface {
	Neighbors(ctx context.Context, ref NodeRef, dir Direction, kinds ...EdgeKind) ([]NodeRef, error)
	SymbolByID(ctx context.Context, id SymbolID) (*Symbol, error)
	FileByPath(ctx context.Context, path string) (*SourceFile, error)
	Files(ctx context.Context) ([]SourceFile, error)

	Declarations(ctx context.Context) ([]Declaration, error)
	DeclarationsIn(ctx context.Context, path string) ([]Declaration, error)
	Usages(ctx context.Context) ([]UsageSite, error)
	ReferencesTo(ctx context.Context, id SymbolID) ([]Reference, error)
	ReferencesIn(ctx context.Context, path string) ([]Reference, error)
	SearchSymbols(ctx context.Context, query string, kind SymbolKind, limit int) ([]Symbol, error)

	Snapshot(ctx context.Context) (*Snapshot, error)
	Stats(ctx context.Context) (*GraphStats, error)
}

// Store is the code graph backend. Mutations are serialized; reads may run
// concurrently with each other but never observe a half-applied mutation.
type Store interface {
	io.Closer
	GraphReader

	// UpsertFile replaces everything the previous version of the file
	// declared and referenced with the new set, as one atomic swap.
	UpsertFile(ctx context.Context, update FileUpdate) error

	// RemoveFile drops the file, its declarations and its references.
	// Symbols left without declarations are removed and references to them
	// become unresolved.
	RemoveFile(ctx context.Context, path string) error

	UpsertSymbol(ctx context.Context, sym Symbol) error
	UpsertReference(ctx context.Context, ref Reference) error

	// ApplyResolution upserts a batch of references under one lock.
	ApplyResolution(ctx context.Context, refs []Reference) error
}

// FileUpdate is the extraction result of one file as handed to the store.
// Usages are stored as pending references until resolution runs.
type FileUpdate struct {
	File         SourceFile
	Declarations []Declaration
	Usages       []UsageSite
}

// NodeRef addresses a node by kind and natural key: a path for files and
// directories, a SymbolID for symbols.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	Key  string   `json:"key"`
}

// Direction controls adjacency traversal direction.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Snapshot is a deterministic, key-free dump of the graph. Two stores holding
// the same nodes and edges produce equal snapshots.
type Snapshot struct {
	Directories []string     `json:"directories"`
	Files       []SourceFile `json:"files"`
	Symbols     []Symbol     `json:"symbols"`
	References  []Reference  `json:"references"`
}

// Restore loads a snapshot into an empty store: every file with its
// declarations and usages, then the recorded resolutions.
func Restore(ctx context.Context, s Store, snap *Snapshot) error {
	decls := make(map[string][]Declaration)
	for _, sym := range snap.Symbols {
		for _, d := range sym.Declarations {
			decls[d.File] = append(decls[d.File], d)
		}
	}
	usages := make(map[string][]UsageSite)
	for _, r := range snap.References {
		usages[r.Usage.File] = append(usages[r.Usage.File], r.Usage)
	}

	for _, f := range snap.Files {
		update := FileUpdate{File: f, Declarations: decls[f.Path], Usages: usages[f.Path]}
		if err := s.UpsertFile(ctx, update); err != nil {
			return fmt.Errorf("restore %s: %w", f.Path, err)
		}
	}
	return s.ApplyResolution(ctx, snap.References)
}
