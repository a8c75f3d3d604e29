package sqlengine

import (
	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dataflow"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
)

// Insert resolves every shard stmt's row belongs to and writes one
// physical copy into each, per §4.4. Mirrors
// InsertContext::InsertIntoBaseTable, iterating the table's owner
// descriptors one at a time rather than InfoType-dispatching inline.
func (e *Engine) Insert(stmt *ast.InsertStmt) (int, error) {
	tbl, err := e.Catalog.GetTable(stmt.TableName)
	if err != nil {
		return 0, err
	}
	for _, v := range stmt.Values {
		if v.ContainsSep() {
			return 0, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Insert", dberr.ErrSeparatorInValue)
		}
	}

	shardKeys, err := e.resolveOwnerShards(tbl, stmt.Values)
	if err != nil {
		return 0, err
	}
	for _, sk := range shardKeys {
		if err := e.Store.Insert(tbl, sk, stmt.Values); err != nil {
			return 0, err
		}
	}
	if tbl.IsDataSubject {
		e.Catalog.IncrementSubjectCount(tbl.Name)
	}

	rec := dataflow.Record{Table: tbl.Name, Positive: true, Values: append([]encoding.Value{}, stmt.Values...)}
	if err := e.Sink.Emit([]dataflow.Record{rec}); err != nil {
		return 0, err
	}

	// §4.4: recurse on dependents whose VARIABLE ownership this insert may
	// newly satisfy — the belated-association case, where an association row
	// arriving after its target row must move that row out of the default
	// shard immediately rather than waiting for some later statement.
	for _, dep := range tbl.Dependents {
		if _, err := e.Resubscribe(dep); err != nil {
			return len(shardKeys), err
		}
	}
	return len(shardKeys), nil
}

// resolveOwnerShards computes the set of shards a row belongs to, one
// (deduplicated) shard key per Owner descriptor, falling back to the
// default shard when the table has none (§4.4's "unowned rows live in the
// default shard").
func (e *Engine) resolveOwnerShards(tbl *catalog.Table, values []encoding.Value) ([][]byte, error) {
	var keys [][]byte
	for _, desc := range tbl.Owners {
		ks, err := e.resolveDescriptorShards(desc, values)
		if err != nil {
			return nil, err
		}
		keys = append(keys, ks...)
	}
	if len(tbl.Owners) == 0 {
		keys = append(keys, encoding.DefaultShardKey())
	}
	return dedupeKeys(keys), nil
}

// resolveDescriptorShards resolves the shard(s) a row belongs to under one
// ShardDescriptor, by InfoType (§3.3). DIRECT reads the column off the row
// being inserted; TRANSITIVE and VARIABLE instead look up which shard the
// referenced row (or association row) already lives in, since their own
// column doesn't carry the subject id directly.
func (e *Engine) resolveDescriptorShards(desc *catalog.ShardDescriptor, values []encoding.Value) ([][]byte, error) {
	switch desc.Type {
	case catalog.Direct:
		v := values[desc.Direct.ColumnIndex]
		if v.Null {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.resolveDescriptorShards", dberr.ErrOwnerNull)
		}
		vb, err := encoding.EncodeValue(v)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.resolveDescriptorShards", err)
		}
		return [][]byte{encoding.ShardKey(desc.ShardKind, vb)}, nil

	case catalog.Transitive:
		v := values[desc.Transitive.ColumnIndex]
		if v.Null {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.resolveDescriptorShards", dberr.ErrDanglingFK)
		}
		vb, err := encoding.EncodeValue(v)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.resolveDescriptorShards", err)
		}
		shardKeys, _, err := e.Store.LookupIndexAcrossShards(desc.Transitive.Index, vb)
		if err != nil {
			return nil, err
		}
		if len(shardKeys) == 0 {
			// Inserting a row before its owner FK target exists is an
			// integrity error (insert.cc: "Dangling owner FK").
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.resolveDescriptorShards", dberr.ErrDanglingFK)
		}
		return shardKeys, nil

	case catalog.Variable:
		v := values[desc.Variable.TargetColumnIdx]
		if v.Null {
			return [][]byte{encoding.DefaultShardKey()}, nil
		}
		vb, err := encoding.EncodeValue(v)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.resolveDescriptorShards", err)
		}
		shardKeys, _, err := e.Store.LookupIndexAcrossShards(desc.Variable.Index, vb)
		if err != nil {
			return nil, err
		}
		if len(shardKeys) == 0 {
			// Belated association (§4.5/§9): the many-to-many association row
			// may not exist yet. The row resides in the default shard until a
			// later Resubscribe or association insert moves it.
			return [][]byte{encoding.DefaultShardKey()}, nil
		}
		return shardKeys, nil

	default:
		return nil, dberr.New(dberr.Internal, "sqlengine.resolveDescriptorShards", "unreachable sharding case")
	}
}

func dedupeKeys(keys [][]byte) [][]byte {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		s := string(k)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, k)
	}
	return out
}
