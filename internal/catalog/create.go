package catalog

import (
	"fmt"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
)

// annotations is the per-column classification DiscoverValidate produces,
// consumed by CreateTable to build ShardDescriptors.
type annotations struct {
	explicitOwners []int
	implicitOwners []int
	accessors      []int
	owns           []int
	accesses       []int
}

// discoverValidate walks stmt's FK columns, validates each one, and sorts it
// into a role bucket. Mirrors CreateContext::DiscoverValidate.
func (c *Catalog) discoverValidate(stmt *ast.CreateTableStmt) (annotations, error) {
	var ann annotations
	for i, col := range stmt.Columns {
		if col.FKTable == "" {
			continue
		}

		target, ok := c.tables[col.FKTable]
		if !ok {
			return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
				fmt.Sprintf("FK on %q points to nonexisting table %q", col.Name, col.FKTable))
		}
		targetIdx, ok := target.ColumnIndex(col.FKColumn)
		if !ok {
			return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
				fmt.Sprintf("FK on %q points to nonexisting column %q.%q", col.Name, col.FKTable, col.FKColumn))
		}
		pointsToPK := target.PKIndex == targetIdx

		foreignOwned := len(target.Owners) > 0
		foreignAccessed := len(target.Accessors) > 0

		switch col.Annotation {
		case ast.AnnotationOwner:
			if !foreignOwned {
				return ann, dberr.Wrapf(dberr.InvalidArgument, "catalog.discoverValidate", dberr.ErrNotDataSubject,
					"OWNER column %q references non-data-subject table %q", col.Name, col.FKTable)
			}
			if !pointsToPK {
				return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
					fmt.Sprintf("OWNER column %q does not reference %q's primary key", col.Name, col.FKTable))
			}
			ann.explicitOwners = append(ann.explicitOwners, i)

		case ast.AnnotationAccessor:
			if !foreignAccessed {
				return ann, dberr.Wrapf(dberr.InvalidArgument, "catalog.discoverValidate", dberr.ErrNotDataSubject,
					"ACCESSOR column %q references a table not accessed by anyone", col.Name)
			}
			if !pointsToPK {
				return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
					fmt.Sprintf("ACCESSOR column %q does not reference %q's primary key", col.Name, col.FKTable))
			}
			ann.accessors = append(ann.accessors, i)

		case ast.AnnotationOwns:
			if !pointsToPK {
				return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
					fmt.Sprintf("OWNS column %q does not reference %q's primary key", col.Name, col.FKTable))
			}
			ann.owns = append(ann.owns, i)

		case ast.AnnotationAccesses:
			if !pointsToPK {
				return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
					fmt.Sprintf("ACCESSES column %q does not reference %q's primary key", col.Name, col.FKTable))
			}
			ann.accesses = append(ann.accesses, i)

		case ast.AnnotationOnly:
			// ONLY suppresses the implicit OWNER semantics an unannotated FK
			// to a data-subject table would otherwise carry: no role at all.
			continue

		default:
			if foreignOwned {
				if !pointsToPK {
					return ann, dberr.New(dberr.InvalidArgument, "catalog.discoverValidate",
						fmt.Sprintf("implicit OWNER column %q does not reference %q's primary key", col.Name, col.FKTable))
				}
				ann.implicitOwners = append(ann.implicitOwners, i)
			}
		}
	}

	manyImplicit := len(ann.implicitOwners) > 1
	hasExplicit := len(ann.explicitOwners) > 0
	if !hasExplicit && manyImplicit {
		return ann, dberr.Wrap(dberr.InvalidArgument, "catalog.discoverValidate", dberr.ErrAmbiguousOwner)
	}
	return ann, nil
}

// nextIndexName allocates a unique name for a catalog-derived secondary
// index, caller must hold c.mu for writing.
func (c *Catalog) nextIndexName() string {
	c.indexSeq++
	return fmt.Sprintf("_index_%d", c.indexSeq)
}

// makeIndex builds (or reuses, via indexRegistry) the IndexDescriptor
// backing a TRANSITIVE ShardDescriptor: a SIMPLE index when next resolves
// directly, a JOINED index composing next's own index when next is itself
// TRANSITIVE. A VARIABLE next reuses its existing index verbatim — no new
// index is created. Mirrors CreateContext::MakeIndex. Caller must hold c.mu
// for writing.
func (c *Catalog) makeIndex(indexedTable, indexedColumn string, next *ShardDescriptor) (*IndexDescriptor, error) {
	switch next.Type {
	case Direct:
		desc := &IndexDescriptor{
			Name:   c.nextIndexName(),
			Kind:   SimpleIndex,
			Table:  indexedTable,
			Column: indexedColumn,
		}
		c.registerSimpleIndex(desc)
		return desc, nil

	case Transitive:
		// next already carries the index built when its own descriptor was
		// derived (MakeFDescriptors built it via MakeIndex at that point);
		// here we just compose one more join level over it, we never
		// rebuild it.
		inner := next.Transitive.Index
		if inner == nil {
			return nil, dberr.New(dberr.Internal, "catalog.makeIndex", "TRANSITIVE descriptor missing its own index")
		}
		return &IndexDescriptor{
			Name:       c.nextIndexName(),
			Kind:       JoinedIndex,
			Table:      indexedTable,
			Column:     indexedColumn,
			Next:       inner,
			NextColumn: next.Transitive.Column,
		}, nil

	case Variable:
		// Can reuse the variable index as-is.
		if next.Variable.Index == nil {
			return nil, dberr.New(dberr.Internal, "catalog.makeIndex", "VARIABLE descriptor missing its index")
		}
		return next.Variable.Index, nil
	}
	return nil, dberr.New(dberr.Internal, "catalog.makeIndex", "unreachable")
}

// makeVIndex is makeIndex's counterpart invoked from the OWNS/ACCESSES
// (backward) direction: origin is the many-to-many table's own descriptor,
// indexedTable/indexedColumn name the OWNS FK column on that table. Mirrors
// CreateContext::MakeVIndex — note it shares the DIRECT/TRANSITIVE/VARIABLE
// dispatch with makeIndex but is invoked with the opposite table/column
// roles, so it is kept as a separate function rather than unified. Caller
// must hold c.mu for writing.
func (c *Catalog) makeVIndex(indexedTable, indexedColumn string, origin *ShardDescriptor) (*IndexDescriptor, error) {
	switch origin.Type {
	case Direct:
		desc := &IndexDescriptor{
			Name:   c.nextIndexName(),
			Kind:   SimpleIndex,
			Table:  indexedTable,
			Column: indexedColumn,
		}
		c.registerSimpleIndex(desc)
		return desc, nil

	case Transitive:
		inner := origin.Transitive.Index
		if inner == nil {
			return nil, dberr.New(dberr.Internal, "catalog.makeVIndex", "TRANSITIVE descriptor missing its own index")
		}
		return &IndexDescriptor{
			Name:       c.nextIndexName(),
			Kind:       JoinedIndex,
			Table:      indexedTable,
			Column:     indexedColumn,
			Next:       inner,
			NextColumn: origin.Transitive.Column,
		}, nil

	case Variable:
		inner := origin.Variable.Index
		if inner == nil {
			return nil, dberr.New(dberr.Internal, "catalog.makeVIndex", "VARIABLE descriptor missing its own index")
		}
		return &IndexDescriptor{
			Name:   c.nextIndexName(),
			Kind:   JoinedIndex,
			Table:  indexedTable,
			Column: indexedColumn,
			Next:   inner,
			// NextColumn left empty: inner is a VARIABLE index, always keyed
			// by the matched row's own primary key.
		}, nil
	}
	return nil, dberr.New(dberr.Internal, "catalog.makeVIndex", "unreachable")
}

// makeFDescriptors transforms the foreign table's own Owners (or Accessors)
// descriptors into descriptors for the table currently being created,
// following an OWNER/ACCESSOR/implicit-owner FK forward. Mirrors
// CreateContext::MakeFDescriptors. Caller must hold c.mu for writing.
func (c *Catalog) makeFDescriptors(owners, createIndices bool, col ast.ColumnDef, colIdx int, colType encoding.Type) ([]*ShardDescriptor, error) {
	target, ok := c.tables[col.FKTable]
	if !ok {
		return nil, dberr.New(dberr.Internal, "catalog.makeFDescriptors", "FK target vanished")
	}
	nextColIdx, _ := target.ColumnIndex(col.FKColumn)

	src := target.Owners
	if !owners {
		src = target.Accessors
	}

	var result []*ShardDescriptor
	for _, next := range src {
		d := &ShardDescriptor{ShardKind: next.ShardKind}
		if next.ShardKind == col.FKTable && next.Type == Direct {
			d.Type = Direct
			d.Direct = &DirectInfo{Column: col.Name, ColumnIndex: colIdx, ColumnType: colType}
		} else {
			d.Type = Transitive
			var idx *IndexDescriptor
			if createIndices {
				var err error
				idx, err = c.makeIndex(col.FKTable, col.FKColumn, next)
				if err != nil {
					return nil, err
				}
			}
			d.Transitive = &TransitiveInfo{
				Column: col.Name, ColumnIndex: colIdx, ColumnType: colType,
				NextTable: col.FKTable, NextColumn: col.FKColumn, NextColumnIdx: nextColIdx,
				Index: idx,
			}
		}
		result = append(result, d)
	}
	return result, nil
}

// makeBDescriptors is makeFDescriptors's opposite-direction counterpart for
// OWNS/ACCESSES: it transforms origin's own descriptors into VARIABLE
// descriptors for the *target* table the FK points at. Mirrors
// CreateContext::MakeBDescriptors. Caller must hold c.mu for writing.
func (c *Catalog) makeBDescriptors(owners, createIndices bool, origin *Table, col ast.ColumnDef, originIdx int) ([]*ShardDescriptor, error) {
	colType := origin.Columns[originIdx].Type

	src := origin.Owners
	if !owners {
		src = origin.Accessors
	}

	target, ok := c.tables[col.FKTable]
	if !ok {
		return nil, dberr.New(dberr.Internal, "catalog.makeBDescriptors", "OWNS/ACCESSES target vanished")
	}
	targetColIdx, _ := target.ColumnIndex(col.FKColumn)

	var result []*ShardDescriptor
	for _, desc := range src {
		var idx *IndexDescriptor
		if createIndices {
			var err error
			idx, err = c.makeVIndex(origin.Name, col.Name, desc)
			if err != nil {
				return nil, err
			}
		}
		result = append(result, &ShardDescriptor{
			ShardKind: desc.ShardKind,
			Type:      Variable,
			Variable: &VariableInfo{
				TargetColumn: col.FKColumn, TargetColumnIdx: targetColIdx, TargetType: colType,
				OriginTable: origin.Name, OriginColumn: col.Name, OriginIdx: originIdx,
				Index: idx,
			},
		})
	}
	return result, nil
}

// CreateIndex registers an explicit secondary index requested directly by a
// CREATE INDEX statement, independent of the sharding-derived indices
// DiscoverValidate builds automatically.
func (c *Catalog) CreateIndex(stmt *ast.CreateIndexStmt) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	table, ok := c.tables[stmt.TableName]
	if !ok {
		return dberr.New(dberr.InvalidArgument, "catalog.CreateIndex",
			fmt.Sprintf("no such table %q", stmt.TableName))
	}
	if _, ok := table.ColumnIndex(stmt.IndexedColumn); !ok {
		return dberr.New(dberr.InvalidArgument, "catalog.CreateIndex",
			fmt.Sprintf("no such column %q on table %q", stmt.IndexedColumn, stmt.TableName))
	}
	key := indexKey{table: stmt.TableName, column: stmt.IndexedColumn}
	if _, exists := c.indexRegistry[key]; exists {
		return dberr.New(dberr.InvalidArgument, "catalog.CreateIndex",
			fmt.Sprintf("an index over %s.%s already exists", stmt.TableName, stmt.IndexedColumn))
	}

	desc := &IndexDescriptor{
		Name:     stmt.IndexName,
		Kind:     SimpleIndex,
		Table:    stmt.TableName,
		Column:   stmt.IndexedColumn,
		Explicit: true,
	}
	c.indexRegistry[key] = desc
	c.registerSimpleIndex(desc)
	table.ExplicitIndices = append(table.ExplicitIndices, desc)
	if stmt.RawSQL != "" {
		c.explicitIndexStmts = append(c.explicitIndexStmts, stmt.RawSQL)
	}
	return nil
}

// CreateTable registers a new table, deriving its sharding from its FK
// annotations per §3.2, and propagating OWNS/ACCESSES annotations onto
// tables created earlier. Mirrors CreateContext::Exec.
func (c *Catalog) CreateTable(stmt *ast.CreateTableStmt) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[stmt.TableName]; exists {
		return dberr.New(dberr.InvalidArgument, "catalog.CreateTable",
			fmt.Sprintf("table %q already exists", stmt.TableName))
	}

	pkIdx := -1
	for i, col := range stmt.Columns {
		if col.PrimaryKey {
			if pkIdx >= 0 {
				return dberr.New(dberr.InvalidArgument, "catalog.CreateTable", "composite primary keys are not supported")
			}
			pkIdx = i
		}
	}
	if pkIdx < 0 {
		return dberr.Wrap(dberr.InvalidArgument, "catalog.CreateTable", dberr.ErrNoUniquePK)
	}

	table := &Table{
		Name:   stmt.TableName,
		PKIndex: pkIdx,
		RawSQL:  stmt.RawSQL,
	}
	for _, col := range stmt.Columns {
		table.Columns = append(table.Columns, Column{
			Name: col.Name, Type: col.Type, Nullable: col.Nullable, PrimaryKey: col.PrimaryKey,
		})
	}

	ann, err := c.discoverValidate(stmt)
	if err != nil {
		return err
	}

	if isADataSubject(stmt) {
		table.IsDataSubject = true
		c.addShardKind(table.Name, table.PKColumn().Name, pkIdx)
		table.Owners = append(table.Owners, &ShardDescriptor{
			ShardKind: table.Name,
			Type:      Direct,
			Direct:    &DirectInfo{Column: table.PKColumn().Name, ColumnIndex: pkIdx, ColumnType: table.PKColumn().Type},
		})
	}

	owners := ann.explicitOwners
	if len(owners) == 0 {
		owners = ann.implicitOwners
	}
	for _, idx := range owners {
		col := stmt.Columns[idx]
		colType := table.Columns[idx].Type
		v, err := c.makeFDescriptors(true, true, col, idx, colType)
		if err != nil {
			return err
		}
		table.Owners = append(table.Owners, v...)
		c.recordDependent(col.FKTable, table.Name)

		// Access lattice: an accessor of the owning table also accesses us.
		v, err = c.makeFDescriptors(false, false, col, idx, colType)
		if err != nil {
			return err
		}
		table.Accessors = append(table.Accessors, v...)
	}

	for _, idx := range ann.accessors {
		col := stmt.Columns[idx]
		colType := table.Columns[idx].Type
		v, err := c.makeFDescriptors(true, false, col, idx, colType)
		if err != nil {
			return err
		}
		table.Accessors = append(table.Accessors, v...)
		c.recordDependent(col.FKTable, table.Name)

		v, err = c.makeFDescriptors(false, false, col, idx, colType)
		if err != nil {
			return err
		}
		table.Accessors = append(table.Accessors, v...)
	}

	stored := c.addTable(table)

	// OWNS/ACCESSES: this table's descriptors propagate backwards onto the
	// table the FK points at.
	for _, idx := range ann.owns {
		col := stmt.Columns[idx]
		if c.dependentsReachable(table.Name, col.FKTable) {
			return dberr.Wrap(dberr.FailedPrecondition, "catalog.CreateTable", dberr.ErrCycle)
		}
		v, err := c.makeBDescriptors(true, true, stored, col, idx)
		if err != nil {
			return err
		}
		if err := c.addTableOwner(col.FKTable, v); err != nil {
			return err
		}
		c.recordDependent(table.Name, col.FKTable)

		v, err = c.makeBDescriptors(false, false, stored, col, idx)
		if err != nil {
			return err
		}
		if err := c.addTableAccessor(col.FKTable, v); err != nil {
			return err
		}
	}

	for _, idx := range ann.accesses {
		col := stmt.Columns[idx]
		v, err := c.makeBDescriptors(true, false, stored, col, idx)
		if err != nil {
			return err
		}
		if err := c.addTableAccessor(col.FKTable, v); err != nil {
			return err
		}
		c.recordDependent(table.Name, col.FKTable)

		v, err = c.makeBDescriptors(false, false, stored, col, idx)
		if err != nil {
			return err
		}
		if err := c.addTableAccessor(col.FKTable, v); err != nil {
			return err
		}
	}

	return nil
}
