//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore persists graph snapshots into KuzuDB so offline commands can
// query an index without re-parsing the workspace. It requires CGO because
// the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given path. KuzuDB creates the leaf itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(dbPath string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Order matters: node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Directory(
		path STRING,
		PRIMARY KEY(path)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS File(
		path STRING,
		language STRING,
		content_hash STRING,
		size INT64,
		loc INT64,
		has_errors BOOLEAN,
		PRIMARY KEY(path)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Symbol(
		id STRING,
		name STRING,
		qualified_name STRING,
		kind STRING,
		language STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Usage(
		key STRING,
		file STRING,
		name STRING,
		status STRING,
		payload STRING,
		PRIMARY KEY(key)
	)`,
	`CREATE REL TABLE IF NOT EXISTS CONTAINS_DIR(FROM Directory TO Directory)`,
	`CREATE REL TABLE IF NOT EXISTS CONTAINS_FILE(FROM Directory TO File)`,
	`CREATE REL TABLE IF NOT EXISTS DECLARES(FROM File TO Symbol, start_line INT64, payload STRING)`,
	`CREATE REL TABLE IF NOT EXISTS REFERS_TO(FROM File TO Symbol, usage STRING)`,
}

var nodeTables = []string{"Usage", "Symbol", "File", "Directory"}

var relTables = []string{"CONTAINS_DIR", "CONTAINS_FILE", "DECLARES", "REFERS_TO"}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// SaveSnapshot replaces the stored graph with snap.
func (s *KuzuStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := s.InitSchema(ctx); err != nil {
		return err
	}
	for _, t := range nodeTables {
		// Table name is a fixed internal constant, not user input.
		if err := s.exec(fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", t), nil); err != nil {
			return err
		}
	}

	for _, d := range snap.Directories {
		if err := s.exec("CREATE (d:Directory {path: $path})", map[string]any{"path": d}); err != nil {
			return err
		}
	}
	for _, d := range snap.Directories {
		if d == "." {
			continue
		}
		if err := s.exec(
			`MATCH (a:Directory {path: $src}), (b:Directory {path: $dst})
			 CREATE (a)-[:CONTAINS_DIR]->(b)`,
			map[string]any{"src": dirOf(d), "dst": d},
		); err != nil {
			return err
		}
	}

	for _, f := range snap.Files {
		if err := s.addFile(f); err != nil {
			return err
		}
	}
	for _, sym := range snap.Symbols {
		if err := s.addSymbol(sym); err != nil {
			return err
		}
	}
	for _, ref := range snap.References {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.addReference(ref); err != nil {
			return err
		}
	}
	return nil
}

func (s *KuzuStore) addFile(f SourceFile) error {
	if err := s.exec(
		`CREATE (f:File {
			path: $path,
			language: $lang,
			content_hash: $hash,
			size: $size,
			loc: $loc,
			has_errors: $errs
		})`,
		map[string]any{
			"path": f.Path,
			"lang": string(f.Language),
			"hash": f.ContentHash,
			"size": f.Size,
			"loc":  int64(f.LOC),
			"errs": f.HasErrors,
		},
	); err != nil {
		return err
	}
	return s.exec(
		`MATCH (a:Directory {path: $src}), (b:File {path: $dst})
		 CREATE (a)-[:CONTAINS_FILE]->(b)`,
		map[string]any{"src": dirOf(f.Path), "dst": f.Path},
	)
}

func (s *KuzuStore) addSymbol(sym Symbol) error {
	if err := s.exec(
		`CREATE (s:Symbol {
			id: $id,
			name: $name,
			qualified_name: $qname,
			kind: $kind,
			language: $lang
		})`,
		map[string]any{
			"id":    string(sym.ID),
			"name":  sym.Name,
			"qname": sym.QualifiedName,
			"kind":  string(sym.Kind),
			"lang":  string(sym.Language),
		},
	); err != nil {
		return err
	}
	for _, d := range sym.Declarations {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("kuzu: encode declaration: %w", err)
		}
		if err := s.exec(
			`MATCH (a:File {path: $src}), (b:Symbol {id: $dst})
			 CREATE (a)-[:DECLARES {start_line: $line, payload: $payload}]->(b)`,
			map[string]any{
				"src":     d.File,
				"dst":     string(d.Symbol),
				"line":    int64(d.Span.StartLine),
				"payload": string(payload),
			},
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *KuzuStore) addReference(ref Reference) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("kuzu: encode reference: %w", err)
	}
	key := usageKey(ref.Usage)
	if err := s.exec(
		"CREATE (u:Usage {key: $key, file: $file, name: $name, status: $status, payload: $payload})",
		map[string]any{
			"key":     key,
			"file":    ref.Usage.File,
			"name":    ref.Usage.Name,
			"status":  string(ref.Status),
			"payload": string(payload),
		},
	); err != nil {
		return err
	}
	for _, t := range ref.Targets {
		if err := s.exec(
			`MATCH (a:File {path: $src}), (b:Symbol {id: $dst})
			 CREATE (a)-[:REFERS_TO {usage: $key}]->(b)`,
			map[string]any{"src": ref.Usage.File, "dst": string(t.Symbol), "key": key},
		); err != nil {
			return err
		}
	}
	return nil
}

// ---------- Read operations ----------

// LoadSnapshot reads the stored graph back in the same order MemStore
// produces it.
func (s *KuzuStore) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := s.query("MATCH (d:Directory) RETURN d.path ORDER BY d.path", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		snap.Directories = append(snap.Directories, toString(r[0]))
	}

	rows, err = s.query(
		`MATCH (f:File)
		 RETURN f.path, f.language, f.content_hash, f.size, f.loc, f.has_errors
		 ORDER BY f.path`,
		nil,
	)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		snap.Files = append(snap.Files, SourceFile{
			Path:        toString(r[0]),
			Language:    Language(toString(r[1])),
			ContentHash: toString(r[2]),
			Size:        int64(toInt(r[3])),
			LOC:         toInt(r[4]),
			HasErrors:   toBool(r[5]),
		})
	}

	rows, err = s.query(
		"MATCH (s:Symbol) RETURN s.id, s.name, s.qualified_name, s.kind, s.language ORDER BY s.id",
		nil,
	)
	if err != nil {
		return nil, err
	}
	index := make(map[SymbolID]int, len(rows))
	for _, r := range rows {
		sym := rowToSymbol(r)
		index[sym.ID] = len(snap.Symbols)
		snap.Symbols = append(snap.Symbols, sym)
	}

	rows, err = s.query("MATCH (:File)-[d:DECLARES]->(s:Symbol) RETURN s.id, d.payload", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		i, ok := index[SymbolID(toString(r[0]))]
		if !ok {
			continue
		}
		var d Declaration
		if err := json.Unmarshal([]byte(toString(r[1])), &d); err != nil {
			return nil, fmt.Errorf("kuzu: decode declaration: %w", err)
		}
		snap.Symbols[i].Declarations = append(snap.Symbols[i].Declarations, d)
	}
	for i := range snap.Symbols {
		decls := snap.Symbols[i].Declarations
		sort.Slice(decls, func(a, b int) bool { return lessDecl(decls[a], decls[b]) })
	}

	rows, err = s.query("MATCH (u:Usage) RETURN u.payload", nil)
	if err != nil {
		return nil, err
	}
	snap.References, err = decodeReferences(rows)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ReferencesTo returns the stored references with the symbol among their
// targets, ordered by file then span start.
func (s *KuzuStore) ReferencesTo(_ context.Context, id SymbolID) ([]Reference, error) {
	rows, err := s.query(
		`MATCH (:File)-[r:REFERS_TO]->(:Symbol {id: $id}), (u:Usage)
		 WHERE u.key = r.usage
		 RETURN DISTINCT u.payload`,
		map[string]any{"id": string(id)},
	)
	if err != nil {
		return nil, err
	}
	return decodeReferences(rows)
}

// SearchSymbols returns stored symbols whose name contains query.
func (s *KuzuStore) SearchSymbols(_ context.Context, query string, limit int) ([]Symbol, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(
		`MATCH (s:Symbol) WHERE lower(s.name) CONTAINS lower($q)
		 RETURN s.id, s.name, s.qualified_name, s.kind, s.language
		 ORDER BY s.qualified_name
		 LIMIT $lim`,
		map[string]any{
			"q":   query,
			"lim": int64(limit),
		},
	)
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToSymbol(r))
	}
	return out, nil
}

// ---------- Stats ----------

// Stats returns the same counts MemStore.Stats reports for the graph that
// was saved.
func (s *KuzuStore) Stats(_ context.Context) (*GraphStats, error) {
	st := &GraphStats{}
	counts := []struct {
		table string
		dst   *int
	}{
		{"Directory", &st.DirectoryCount},
		{"File", &st.FileCount},
		{"Symbol", &st.SymbolCount},
		{"Usage", &st.ReferenceCount},
	}
	for _, c := range counts {
		n, err := s.countTable(c.table)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	rows, err := s.query("MATCH (u:Usage) RETURN u.status, count(u)", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		n := toInt(r[1])
		switch ResolutionStatus(toString(r[0])) {
		case StatusResolved:
			st.ResolvedCount += n
		case StatusAmbiguous:
			st.AmbiguousCount += n
		default:
			st.UnresolvedCount += n
		}
	}

	for _, t := range relTables {
		n, err := s.countRel(t)
		if err != nil {
			return nil, err
		}
		if t == "DECLARES" {
			st.DeclarationCount = n
		}
		st.EdgeCount += n
	}
	// Unresolved references are null-target edges in the live graph.
	st.EdgeCount += st.UnresolvedCount
	return st, nil
}

// ---------- Internal helpers ----------

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}

	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// countTable returns the number of rows in a node table.
func (s *KuzuStore) countTable(table string) (int, error) {
	// Table name is a fixed internal constant, not user input.
	rows, err := s.query(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

func (s *KuzuStore) countRel(table string) (int, error) {
	rows, err := s.query(fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", table), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

func usageKey(u UsageSite) string {
	return fmt.Sprintf("%s:%d:%d:%s", u.File, u.Span.StartByte, u.Span.EndByte, u.Name)
}

func decodeReferences(rows [][]any) ([]Reference, error) {
	out := make([]Reference, 0, len(rows))
	for _, r := range rows {
		var ref Reference
		if err := json.Unmarshal([]byte(toString(r[0])), &ref); err != nil {
			return nil, fmt.Errorf("kuzu: decode reference: %w", err)
		}
		out = append(out, ref)
	}
	sortRefs(out)
	return out, nil
}

// rowToSymbol converts a 5-column result row into a Symbol.
// Column order: id, name, qualified_name, kind, language.
func rowToSymbol(r []any) Symbol {
	return Symbol{
		ID:            SymbolID(toString(r[0])),
		Name:          toString(r[1]),
		QualifiedName: toString(r[2]),
		Kind:          SymbolKind(toString(r[3])),
		Language:      Language(toString(r[4])),
	}
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).
// These helpers safely coerce any -> concrete type.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
