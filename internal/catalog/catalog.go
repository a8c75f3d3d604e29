// Package catalog implements the schema-annotation-driven sharding catalog
// (C5): discovering how a freshly-created table is partitioned across data
// subjects, and persisting that discovery so it survives a restart (§6).
//
// The derivation algorithm is modeled on the original engine's
// CreateContext (pelton/shards/sqlengine/create.{h,cc}): every FK column is
// classified into an annotation role, turned into one or more
// ShardDescriptors for the new table, and — for OWNS/ACCESSES — propagated
// backwards onto the table the FK already pointed at.
package catalog

import (
	"fmt"
	"sync"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
)

// InfoType tags how a ShardDescriptor resolves a row to its shard.
type InfoType int

const (
	// Direct: the row carries the subject id itself, in a named column.
	Direct InfoType = iota
	// Transitive: the row points (via FK) at another row that is itself
	// sharded by the same kind, either DIRECT or through a further
	// TRANSITIVE/VARIABLE descriptor; resolving requires an index lookup.
	Transitive
	// Variable: the row points at another row whose shard assignment for
	// this kind can change over its lifetime (OWNS/ACCESSES propagation);
	// resolving always requires an index lookup, never a column read.
	Variable
)

func (t InfoType) String() string {
	switch t {
	case Direct:
		return "DIRECT"
	case Transitive:
		return "TRANSITIVE"
	case Variable:
		return "VARIABLE"
	default:
		return "UNKNOWN"
	}
}

// DirectInfo resolves the shard by reading a column of the row itself.
type DirectInfo struct {
	Column      string
	ColumnIndex int
	ColumnType  encoding.Type
}

// TransitiveInfo resolves the shard by reading a FK column, then following
// the referenced table's own descriptor for the same shard kind. Index maps
// the FK value to the shard(s) of the referenced row; makeFDescriptors
// builds one whenever it is called with createIndices set, and leaves it
// nil otherwise.
type TransitiveInfo struct {
	Column      string
	ColumnIndex int
	ColumnType  encoding.Type

	NextTable      string
	NextColumn     string
	NextColumnIdx  int
	Index          *IndexDescriptor // nil when derived without indices
}

// VariableInfo resolves the shard only via an index lookup keyed by the
// target table's PK — used for OWNS/ACCESSES-propagated descriptors, whose
// assignment can be reassigned after the row already exists (§4.5's
// belated-association case).
type VariableInfo struct {
	TargetColumn    string
	TargetColumnIdx int
	TargetType      encoding.Type

	OriginTable  string
	OriginColumn string
	OriginIdx    int
	Index        *IndexDescriptor
}

// ShardDescriptor is one way a table's rows are partitioned by a given
// shard kind. A table can carry several descriptors for the same kind
// (e.g. reachable via two different FK chains) and several kinds at once.
type ShardDescriptor struct {
	ShardKind string
	Type      InfoType

	Direct     *DirectInfo
	Transitive *TransitiveInfo
	Variable   *VariableInfo
}

// IndexKind distinguishes a freshly-created secondary index (SIMPLE) from
// one that composes an existing index one hop further down a FK chain
// (JOINED) — §4.3's "simple" vs "joined" index descriptors.
type IndexKind int

const (
	SimpleIndex IndexKind = iota
	JoinedIndex
)

// IndexDescriptor names a secondary index backing a TRANSITIVE or VARIABLE
// ShardDescriptor's lookup.
type IndexDescriptor struct {
	Name  string
	Kind  IndexKind
	Table string // table the index is physically built over
	Column string // column of Table the index is keyed by

	// Joined indices compose an existing index one hop further; Next names
	// it. Nil for SimpleIndex.
	Next *IndexDescriptor

	// NextColumn names the column of Table whose value bridges into Next's
	// lookup, for a JoinedIndex wrapping a TRANSITIVE inner: a row matching
	// Column's value is found, then NextColumn's value on that same row is
	// what Next is actually keyed by one hop further down the chain. Empty
	// when Next wraps a VARIABLE inner instead — there the bridge is the
	// matched row's own primary key, since a base VARIABLE index is always
	// keyed by the table it targets. Unused for SimpleIndex.
	NextColumn string

	// Explicit marks an index a caller requested directly via CREATE INDEX
	// rather than one the catalog derived for shard resolution.
	Explicit bool
}

// Column mirrors ast.ColumnDef, minus the parser-only FK/annotation fields
// the catalog has already consumed.
type Column struct {
	Name       string
	Type       encoding.Type
	Nullable   bool
	PrimaryKey bool
}

// Table is the catalog's resolved view of one CREATE TABLE: its schema plus
// every way it's partitioned into shards, and — for data-subject tables —
// the pk column that names the subject id.
type Table struct {
	Name    string
	Columns []Column
	PKIndex int
	RawSQL  string

	// IsDataSubject marks this table as a shard kind in its own right
	// (sharded DIRECT by its own PK).
	IsDataSubject bool

	Owners    []*ShardDescriptor
	Accessors []*ShardDescriptor

	// Dependents lists tables whose ShardDescriptors were derived in terms
	// of this table (via MakeFDescriptors/MakeBDescriptors). Insert
	// resubscribes each listed table after writing a row here, Replace
	// skips its fast path when the list is non-empty, and
	// dependentsReachable walks these edges to reject ownership cycles.
	Dependents []string

	// ExplicitIndices are indices a caller requested via CREATE INDEX,
	// independent of any sharding-derived index over the same table.
	ExplicitIndices []*IndexDescriptor
}

func (t *Table) PKColumn() Column { return t.Columns[t.PKIndex] }

func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Catalog is the process-wide table registry: every table's schema and
// derived sharding, plus the per-kind subject counters SPEC_FULL adds (§6),
// read through SubjectCount; Explain and Get do not use them.
type Catalog struct {
	mu sync.RWMutex

	tables     map[string]*Table
	shardKinds map[string]shardKindInfo // kind -> its defining table/pk

	// creationOrder and explicitIndexStmts record DDL in arrival order so
	// Save can replay it faithfully (a later CREATE TABLE may reference an
	// earlier one's columns via FK, so order matters on replay).
	creationOrder      []string
	explicitIndexStmts []string

	// indexRegistry deduplicates explicit CREATE INDEX requests by
	// (table, column); it does not cover catalog-derived indices, which the
	// original engine never deduplicates either (two FK paths to the same
	// column get two physical indices).
	indexRegistry map[indexKey]*IndexDescriptor
	indexSeq      int

	// simpleIndices lists every SIMPLE (physically materialized)
	// IndexDescriptor ever created, regardless of which table's derivation
	// produced it, indexed by the table it physically lives on — the
	// storage engine needs this to know which index CFs to maintain when a
	// row changes, since joined indices carry no physical storage.
	simpleIndices map[string][]*IndexDescriptor

	// subjectCounts is a best-effort live count of distinct subject ids
	// observed per shard kind (SPEC_FULL §6 addition), updated by
	// sqlengine's Insert and Forget; not persisted exactly, only
	// the table/descriptor graph is (§6's .state.txt only replays DDL).
	subjectCounts map[string]int
}

type shardKindInfo struct {
	definingTable string
	pkColumn      string
	pkIndex       int
}

type indexKey struct {
	table  string
	column string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		tables:        make(map[string]*Table),
		shardKinds:    make(map[string]shardKindInfo),
		indexRegistry: make(map[indexKey]*IndexDescriptor),
		simpleIndices: make(map[string][]*IndexDescriptor),
		subjectCounts: make(map[string]int),
	}
}

// registerSimpleIndex records a newly-built SIMPLE index so the storage
// engine can later discover every physical index CF a table participates
// in. Caller must hold c.mu for writing.
func (c *Catalog) registerSimpleIndex(d *IndexDescriptor) {
	if d.Kind != SimpleIndex {
		return
	}
	c.simpleIndices[d.Table] = append(c.simpleIndices[d.Table], d)
}

// PhysicalIndicesOn returns every SIMPLE index physically stored over
// table's rows — the ones whose entries must be kept in sync whenever a
// row in table is inserted, updated, or deleted. Explicit CREATE INDEX
// indices are SIMPLE too and included here.
func (c *Catalog) PhysicalIndicesOn(table string) []*IndexDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*IndexDescriptor, len(c.simpleIndices[table]))
	copy(out, c.simpleIndices[table])
	return out
}

// TableExists reports whether a table by this name is already registered.
func (c *Catalog) TableExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[name]
	return ok
}

// GetTable returns the named table, or an error if it doesn't exist.
func (c *Catalog) GetTable(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, dberr.New(dberr.NotFound, "catalog.GetTable", fmt.Sprintf("no such table %q", name))
	}
	return t, nil
}

// Tables returns every registered table, in no particular order.
func (c *Catalog) Tables() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	return out
}

// ShardKinds returns the set of registered shard kinds.
func (c *Catalog) ShardKinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.shardKinds))
	for k := range c.shardKinds {
		out = append(out, k)
	}
	return out
}

// addShardKind registers table as a new data-subject kind, keyed by its own
// pk. Caller must hold c.mu for writing.
func (c *Catalog) addShardKind(table, pkCol string, pkIdx int) {
	c.shardKinds[table] = shardKindInfo{definingTable: table, pkColumn: pkCol, pkIndex: pkIdx}
}

// addTable registers a fully-derived table and returns the stored pointer
// (the original engine's AddTable returns a const& to the stored copy so
// later steps can keep referencing it — Go just hands back the pointer).
// Caller must hold c.mu for writing.
func (c *Catalog) addTable(t *Table) *Table {
	c.tables[t.Name] = t
	c.creationOrder = append(c.creationOrder, t.Name)
	return t
}

// addTableOwner appends descriptors to an already-registered table's Owners
// list (OWNS propagation onto a table created earlier). Caller must hold
// c.mu for writing.
func (c *Catalog) addTableOwner(targetTable string, descs []*ShardDescriptor) error {
	t, ok := c.tables[targetTable]
	if !ok {
		return dberr.New(dberr.FailedPrecondition, "catalog.addTableOwner",
			fmt.Sprintf("OWNS target table %q does not exist", targetTable))
	}
	t.Owners = append(t.Owners, descs...)
	return nil
}

// addTableAccessor is addTableOwner's ACCESSES-list counterpart. Caller
// must hold c.mu for writing.
func (c *Catalog) addTableAccessor(targetTable string, descs []*ShardDescriptor) error {
	t, ok := c.tables[targetTable]
	if !ok {
		return dberr.New(dberr.FailedPrecondition, "catalog.addTableAccessor",
			fmt.Sprintf("ACCESSES target table %q does not exist", targetTable))
	}
	t.Accessors = append(t.Accessors, descs...)
	return nil
}

// recordDependent notes that derivedFor's descriptors were derived from of.
// Caller must hold c.mu for writing.
func (c *Catalog) recordDependent(of, derivedFor string) {
	t, ok := c.tables[of]
	if !ok {
		return
	}
	for _, d := range t.Dependents {
		if d == derivedFor {
			return
		}
	}
	t.Dependents = append(t.Dependents, derivedFor)
}

// IncrementSubjectCount bumps the live per-kind counter an Insert into a
// data-subject table triggers.
func (c *Catalog) IncrementSubjectCount(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjectCounts[kind]++
}

// DecrementSubjectCount reverses IncrementSubjectCount, e.g. on Forget.
func (c *Catalog) DecrementSubjectCount(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subjectCounts[kind] > 0 {
		c.subjectCounts[kind]--
	}
}

// SubjectCount returns the live per-kind subject counter.
func (c *Catalog) SubjectCount(kind string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subjectCounts[kind]
}

// dependentsReachable reports whether to is reachable from from by walking
// Dependents edges forward (of -> derivedFor). Used to reject a CREATE
// TABLE whose OWNS annotation would close a cycle in the ownership DAG
// (§9): if col.FKTable already transitively depends on the table being
// created, propagating OWNS onto it would make the dependency mutual.
// Caller must hold c.mu for writing (called mid-CreateTable).
func (c *Catalog) dependentsReachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := c.tables[cur]
		if !ok {
			continue
		}
		for _, next := range t.Dependents {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Descriptors returns the union of Owners and Accessors for table, the set
// of ShardDescriptors a row must be checked against on insert/select/
// resubscribe.
func (t *Table) Descriptors() []*ShardDescriptor {
	out := make([]*ShardDescriptor, 0, len(t.Owners)+len(t.Accessors))
	out = append(out, t.Owners...)
	out = append(out, t.Accessors...)
	return out
}

// AllIndices returns every IndexDescriptor (sharding-derived and explicit)
// reachable from table's own descriptors plus its ExplicitIndices. The
// storage engine does not use it: it opens and maintains index CFs from
// PhysicalIndicesOn.
func (c *Catalog) AllIndices(tableName string) ([]*IndexDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[tableName]
	if !ok {
		return nil, dberr.New(dberr.NotFound, "catalog.AllIndices", fmt.Sprintf("no such table %q", tableName))
	}
	seen := make(map[string]bool)
	var out []*IndexDescriptor
	add := func(d *IndexDescriptor) {
		for d != nil {
			if seen[d.Name] {
				return
			}
			seen[d.Name] = true
			out = append(out, d)
			d = d.Next
		}
	}
	for _, desc := range t.Descriptors() {
		switch desc.Type {
		case Transitive:
			add(desc.Transitive.Index)
		case Variable:
			add(desc.Variable.Index)
		}
	}
	for _, d := range t.ExplicitIndices {
		add(d)
	}
	return out, nil
}

// isADataSubject reports whether stmt marks its table as a data subject in
// its own right. The distilled AST records this directly on the statement
// (ast.CreateTableStmt.DataSubject); column annotations are not consulted.
func isADataSubject(stmt *ast.CreateTableStmt) bool {
	return stmt.DataSubject
}
