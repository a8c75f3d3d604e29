// Package storageengine implements C4: per-table row storage keyed by
// shard_name‖pk, plus the index maintenance and candidate-lookup policy of
// §4.2/§4.2.1. It is the layer C6's per-statement contexts drive once per
// target shard; it in turn encodes through internal/encoding, maintains
// internal/index, and reads/writes through internal/kv.
//
// Grounded on the teacher's internal/storage/sqlite layer's per-table CRUD
// shape (one physical table/CF per logical table, Insert/Update/Delete/
// query helpers returning plain Go values), adapted to the sharded,
// column-family-per-index layout §3/§4 require instead of a single SQLite
// schema.
package storageengine

import (
	"bytes"
	"fmt"

	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
	"github.com/shardkit/shardkit/internal/index"
	"github.com/shardkit/shardkit/internal/kv"
)

// Row is a decoded data row: a table's columns in schema order.
type Row = []encoding.Value

// Engine owns the physical KV handle and the opened index handles backing
// every table the catalog knows about.
type Engine struct {
	kv  *kv.DB
	cat *catalog.Catalog

	indices map[string]*index.Index // index name -> opened handle
}

// Open returns an Engine over db, using cat to resolve table/index layout.
func Open(db *kv.DB, cat *catalog.Catalog) *Engine {
	return &Engine{kv: db, cat: cat, indices: make(map[string]*index.Index)}
}

// dataCF names the column family holding a table's rows.
func dataCF(table string) string { return "tbl_" + table }

// EnsureTable opens (creating if absent) the data CF and every physical
// index CF a table participates in — called once per table after
// Catalog.CreateTable / Catalog.CreateIndex succeeds.
func (e *Engine) EnsureTable(tableName string) error {
	if err := e.kv.CreateCF(dataCF(tableName)); err != nil {
		return dberr.Wrap(dberr.Internal, "storageengine.EnsureTable", err)
	}
	return e.ensureIndices(tableName)
}

func (e *Engine) ensureIndices(tableName string) error {
	for _, d := range e.cat.PhysicalIndicesOn(tableName) {
		if _, ok := e.indices[d.Name]; ok {
			continue
		}
		idx, err := index.Open(e.kv, d.Name)
		if err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.ensureIndices", err)
		}
		e.indices[d.Name] = idx
	}
	return nil
}

func (e *Engine) indexHandle(d *catalog.IndexDescriptor) (*index.Index, error) {
	idx, ok := e.indices[d.Name]
	if !ok {
		var err error
		idx, err = index.Open(e.kv, d.Name)
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, "storageengine.indexHandle", err)
		}
		e.indices[d.Name] = idx
	}
	return idx, nil
}

func schemaOf(t *catalog.Table) encoding.Schema {
	cols := make([]encoding.Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = encoding.Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	return encoding.Schema{Columns: cols, PKIndex: t.PKIndex}
}

func pkBytes(t *catalog.Table, row Row) ([]byte, error) {
	return encoding.EncodeValue(row[t.PKIndex])
}

// Insert writes row into table under shardKey, then adds its entries to
// every physical index the table participates in. Mirrors §4.2's Insert
// operation.
func (e *Engine) Insert(t *catalog.Table, shardKey []byte, row Row) error {
	for _, v := range row {
		if v.ContainsSep() {
			return dberr.Wrap(dberr.InvalidArgument, "storageengine.Insert", dberr.ErrSeparatorInValue)
		}
	}
	schema := schemaOf(t)
	encoded, err := encoding.EncodeRow(schema, row)
	if err != nil {
		return dberr.Wrap(dberr.InvalidArgument, "storageengine.Insert", err)
	}
	pk, err := pkBytes(t, row)
	if err != nil {
		return dberr.Wrap(dberr.InvalidArgument, "storageengine.Insert", err)
	}
	rowKey := encoding.RowKey(shardKey, pk)
	if err := e.kv.Put(dataCF(t.Name), rowKey, encoded); err != nil {
		return dberr.Wrap(dberr.Internal, "storageengine.Insert", err)
	}
	return e.addIndexEntries(t, shardKey, row, pk)
}

func (e *Engine) addIndexEntries(t *catalog.Table, shardKey []byte, row Row, pk []byte) error {
	for _, d := range e.cat.PhysicalIndicesOn(t.Name) {
		i, ok := columnIndex(t, d.Column)
		if !ok {
			continue
		}
		val, err := encoding.EncodeValue(row[i])
		if err != nil {
			return dberr.Wrap(dberr.InvalidArgument, "storageengine.addIndexEntries", err)
		}
		idx, err := e.indexHandle(d)
		if err != nil {
			return err
		}
		if err := idx.Add(index.Entry{ShardKey: shardKey, IndexedValue: val, PK: pk}); err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.addIndexEntries", err)
		}
	}
	return nil
}

func (e *Engine) removeIndexEntries(t *catalog.Table, shardKey []byte, row Row, pk []byte) error {
	for _, d := range e.cat.PhysicalIndicesOn(t.Name) {
		i, ok := columnIndex(t, d.Column)
		if !ok {
			continue
		}
		val, err := encoding.EncodeValue(row[i])
		if err != nil {
			return dberr.Wrap(dberr.InvalidArgument, "storageengine.removeIndexEntries", err)
		}
		idx, err := e.indexHandle(d)
		if err != nil {
			return err
		}
		if err := idx.Delete(index.Entry{ShardKey: shardKey, IndexedValue: val, PK: pk}); err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.removeIndexEntries", err)
		}
	}
	return nil
}

func columnIndex(t *catalog.Table, name string) (int, bool) {
	return t.ColumnIndex(name)
}

// Delete removes the row identified by pk from shardKey's copy of table,
// returning the deleted row (for the dataflow sink) and whether it existed.
func (e *Engine) Delete(t *catalog.Table, shardKey, pk []byte) (Row, bool, error) {
	rowKey := encoding.RowKey(shardKey, pk)
	encoded, ok, err := e.kv.Get(dataCF(t.Name), rowKey)
	if err != nil {
		return nil, false, dberr.Wrap(dberr.Internal, "storageengine.Delete", err)
	}
	if !ok {
		return nil, false, nil
	}
	row, err := encoding.DecodeRow(schemaOf(t), encoded)
	if err != nil {
		return nil, false, dberr.Wrap(dberr.Internal, "storageengine.Delete", err)
	}
	if err := e.kv.Delete(dataCF(t.Name), rowKey); err != nil {
		return nil, false, dberr.Wrap(dberr.Internal, "storageengine.Delete", err)
	}
	if err := e.removeIndexEntries(t, shardKey, row, pk); err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Get returns the row at (shardKey, pk), if present.
func (e *Engine) Get(t *catalog.Table, shardKey, pk []byte) (Row, bool, error) {
	rowKey := encoding.RowKey(shardKey, pk)
	encoded, ok, err := e.kv.Get(dataCF(t.Name), rowKey)
	if err != nil {
		return nil, false, dberr.Wrap(dberr.Internal, "storageengine.Get", err)
	}
	if !ok {
		return nil, false, nil
	}
	row, err := encoding.DecodeRow(schemaOf(t), encoded)
	if err != nil {
		return nil, false, dberr.Wrap(dberr.Internal, "storageengine.Get", err)
	}
	return row, true, nil
}

// Update rewrites the row at (shardKey, oldPK) to newRow. If newRow's PK
// differs from oldPK, this is a Delete(old)+Insert(new); otherwise a single
// Put, with index maintenance limited to columns whose encoded value
// actually changed (§4.2's "Index maintenance compares old vs. new values
// per indexed column and only mutates entries that changed").
func (e *Engine) Update(t *catalog.Table, shardKey, oldPK []byte, newRow Row) error {
	for _, v := range newRow {
		if v.ContainsSep() {
			return dberr.Wrap(dberr.InvalidArgument, "storageengine.Update", dberr.ErrSeparatorInValue)
		}
	}
	oldRow, ok, err := e.Get(t, shardKey, oldPK)
	if err != nil {
		return err
	}
	if !ok {
		return dberr.New(dberr.NotFound, "storageengine.Update", "row does not exist")
	}
	newPK, err := pkBytes(t, newRow)
	if err != nil {
		return dberr.Wrap(dberr.InvalidArgument, "storageengine.Update", err)
	}
	if string(newPK) != string(oldPK) {
		if _, _, err := e.Delete(t, shardKey, oldPK); err != nil {
			return err
		}
		return e.Insert(t, shardKey, newRow)
	}

	schema := schemaOf(t)
	encoded, err := encoding.EncodeRow(schema, newRow)
	if err != nil {
		return dberr.Wrap(dberr.InvalidArgument, "storageengine.Update", err)
	}
	rowKey := encoding.RowKey(shardKey, oldPK)
	if err := e.kv.Put(dataCF(t.Name), rowKey, encoded); err != nil {
		return dberr.Wrap(dberr.Internal, "storageengine.Update", err)
	}

	for _, d := range e.cat.PhysicalIndicesOn(t.Name) {
		i, ok := columnIndex(t, d.Column)
		if !ok {
			continue
		}
		oldVal, err := encoding.EncodeValue(oldRow[i])
		if err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.Update", err)
		}
		newVal, err := encoding.EncodeValue(newRow[i])
		if err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.Update", err)
		}
		if string(oldVal) == string(newVal) {
			continue
		}
		idx, err := e.indexHandle(d)
		if err != nil {
			return err
		}
		if err := idx.Delete(index.Entry{ShardKey: shardKey, IndexedValue: oldVal, PK: oldPK}); err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.Update", err)
		}
		if err := idx.Add(index.Entry{ShardKey: shardKey, IndexedValue: newVal, PK: newPK}); err != nil {
			return dberr.Wrap(dberr.Internal, "storageengine.Update", err)
		}
	}
	return nil
}

// ScanShard iterates every row physically stored under shardKey in table,
// decoding each one. This is the candidate-lookup policy's step-3 fallback
// (§4.2.1): "iterate the data CF's prefix under shard_key".
func (e *Engine) ScanShard(t *catalog.Table, shardKey []byte, fn func(pk []byte, row Row) (bool, error)) error {
	schema := schemaOf(t)
	return e.kv.IteratePrefix(dataCF(t.Name), shardKey, func(k, v []byte) (bool, error) {
		pk, err := encoding.PKBytes(k)
		if err != nil {
			return false, err
		}
		row, err := encoding.DecodeRow(schema, v)
		if err != nil {
			return false, err
		}
		return fn(pk, row)
	})
}

// ScanAll iterates every row in table regardless of shard — the "no shard
// implied" full-CF fallback §4.2.1 calls out explicitly as the slow path.
func (e *Engine) ScanAll(t *catalog.Table, fn func(shardKey, pk []byte, row Row) (bool, error)) error {
	schema := schemaOf(t)
	return e.kv.Iterate(dataCF(t.Name), []byte{}, nil, func(k, v []byte) (bool, error) {
		shardKey, pk, err := splitRowKey(k)
		if err != nil {
			return false, err
		}
		row, err := encoding.DecodeRow(schema, v)
		if err != nil {
			return false, err
		}
		return fn(shardKey, pk, row)
	})
}

// splitRowKey recovers the shard-key prefix and trailing pk from a row key
// built by encoding.RowKey (shard_key‖pk): PKBytes already walks the same
// two-separator shard key prefix to find where the pk begins, so the shard
// key is just everything before it.
func splitRowKey(key []byte) (shardKey, pk []byte, err error) {
	pk, err = encoding.PKBytes(key)
	if err != nil {
		return nil, nil, err
	}
	return key[:len(key)-len(pk)], pk, nil
}

// LookupByIndex range-scans a physical index for pks matching value within
// shardKey, then Gets each row — the candidate-lookup policy's step 2
// (§4.2.1). A JOINED d has no physical CF of its own (§4.3: only SIMPLE
// indices are registered with internal/index), so that case recurses
// through d.Next instead of treating d.Name as a real index handle.
func (e *Engine) LookupByIndex(t *catalog.Table, d *catalog.IndexDescriptor, shardKey, value []byte) ([][]byte, []Row, error) {
	if d.Kind == catalog.JoinedIndex {
		return e.lookupJoinedByIndex(t, d, shardKey, value)
	}
	idx, err := e.indexHandle(d)
	if err != nil {
		return nil, nil, err
	}
	pks, err := idx.Lookup(shardKey, value)
	if err != nil {
		return nil, nil, dberr.Wrap(dberr.Internal, "storageengine.LookupByIndex", err)
	}
	rows := make([]Row, 0, len(pks))
	for _, pk := range pks {
		row, ok, err := e.Get(t, shardKey, pk)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return pks, rows, nil
}

// lookupJoinedByIndex resolves one hop of a JOINED index within a single
// shard: d.Table carries no physical CF for d itself, so matching rows are
// found by scanning d.Table's slice of shardKey directly, then each match's
// bridging value (see IndexDescriptor.NextColumn) is looked up one hop
// further via d.Next — recursing until a SIMPLE index bottoms the chain out
// against t's own physical index.
func (e *Engine) lookupJoinedByIndex(t *catalog.Table, d *catalog.IndexDescriptor, shardKey, value []byte) ([][]byte, []Row, error) {
	joinTbl, err := e.cat.GetTable(d.Table)
	if err != nil {
		return nil, nil, err
	}
	colIdx, ok := columnIndex(joinTbl, d.Column)
	if !ok {
		return nil, nil, dberr.New(dberr.Internal, "storageengine.lookupJoinedByIndex",
			fmt.Sprintf("no such column %q on %q", d.Column, d.Table))
	}
	bridgeIdx := joinTbl.PKIndex
	if d.NextColumn != "" {
		bridgeIdx, ok = columnIndex(joinTbl, d.NextColumn)
		if !ok {
			return nil, nil, dberr.New(dberr.Internal, "storageengine.lookupJoinedByIndex",
				fmt.Sprintf("no such column %q on %q", d.NextColumn, d.Table))
		}
	}

	var pks [][]byte
	var rows []Row
	err = e.ScanShard(joinTbl, shardKey, func(_ []byte, row Row) (bool, error) {
		v, err := encoding.EncodeValue(row[colIdx])
		if err != nil {
			return false, err
		}
		if !bytes.Equal(v, value) {
			return true, nil
		}
		bridge, err := encoding.EncodeValue(row[bridgeIdx])
		if err != nil {
			return false, err
		}
		hopPKs, hopRows, err := e.LookupByIndex(t, d.Next, shardKey, bridge)
		if err != nil {
			return false, err
		}
		pks = append(pks, hopPKs...)
		rows = append(rows, hopRows...)
		return true, nil
	})
	return pks, rows, err
}

// LookupIndexAcrossShards scans an entire index CF for entries matching
// value regardless of which shard they were recorded under, returning the
// owning shard key alongside each matching pk. This is the mechanism
// TRANSITIVE/VARIABLE shard resolution needs (§4.2's ownership-chain
// lookups): given a foreign-key value, discover which shard the referenced
// row lives in, something a forward (shard,value)->pk index can't answer
// without already knowing the shard. It is the cross-shard analogue of
// ScanAll: a full index-CF scan rather than a single prefix range. sqlengine
// uses it to resolve TRANSITIVE and VARIABLE descriptors (on insert and
// resubscribe) and for findCandidates' indexed-equality path.
//
// A JOINED d (§4.3: built whenever a TRANSITIVE/VARIABLE descriptor chains
// through another TRANSITIVE/VARIABLE descriptor one hop further) has no
// physical CF of its own — only SIMPLE descriptors ever get registered via
// registerSimpleIndex — so that case composes two lookups instead: find
// every row of d.Table across all shards matching d.Column, then recurse
// into d.Next with each match's bridging value.
func (e *Engine) LookupIndexAcrossShards(d *catalog.IndexDescriptor, value []byte) (shardKeys, pks [][]byte, err error) {
	if d.Kind == catalog.JoinedIndex {
		return e.lookupJoinedAcrossShards(d, value)
	}
	err = e.kv.Iterate(d.Name, []byte{}, nil, func(k, _ []byte) (bool, error) {
		kind, subject, serr := encoding.SplitShardKey(k)
		if serr != nil {
			return false, serr
		}
		shardLen := len(kind) + 1 + len(subject) + 1
		rest := k[shardLen:]
		sep := bytes.IndexByte(rest, encoding.Sep)
		if sep < 0 {
			return false, dberr.New(dberr.Internal, "storageengine.LookupIndexAcrossShards", "malformed index key")
		}
		if bytes.Equal(rest[:sep], value) {
			shardKeys = append(shardKeys, append([]byte{}, k[:shardLen]...))
			pks = append(pks, append([]byte{}, rest[sep+1:len(rest)-1]...))
		}
		return true, nil
	})
	return shardKeys, pks, err
}

// lookupJoinedAcrossShards implements the JOINED branch of
// LookupIndexAcrossShards: d.Table has no physical CF named d.Name, so
// candidate rows are found with a full ScanAll of d.Table instead, matched
// by d.Column, then each match's bridging value — its d.NextColumn, or (when
// NextColumn is empty) the matched row's own primary key, per
// IndexDescriptor.NextColumn's convention — is looked up one hop further via
// d.Next, recursing until a SIMPLE index bottoms the chain out.
func (e *Engine) lookupJoinedAcrossShards(d *catalog.IndexDescriptor, value []byte) ([][]byte, [][]byte, error) {
	joinTbl, err := e.cat.GetTable(d.Table)
	if err != nil {
		return nil, nil, err
	}
	colIdx, ok := columnIndex(joinTbl, d.Column)
	if !ok {
		return nil, nil, dberr.New(dberr.Internal, "storageengine.lookupJoinedAcrossShards",
			fmt.Sprintf("no such column %q on %q", d.Column, d.Table))
	}
	bridgeIdx := joinTbl.PKIndex
	if d.NextColumn != "" {
		bridgeIdx, ok = columnIndex(joinTbl, d.NextColumn)
		if !ok {
			return nil, nil, dberr.New(dberr.Internal, "storageengine.lookupJoinedAcrossShards",
				fmt.Sprintf("no such column %q on %q", d.NextColumn, d.Table))
		}
	}

	var shardKeys, pks [][]byte
	err = e.ScanAll(joinTbl, func(_, _ []byte, row Row) (bool, error) {
		v, err := encoding.EncodeValue(row[colIdx])
		if err != nil {
			return false, err
		}
		if !bytes.Equal(v, value) {
			return true, nil
		}
		bridge, err := encoding.EncodeValue(row[bridgeIdx])
		if err != nil {
			return false, err
		}
		hopShardKeys, hopPKs, err := e.LookupIndexAcrossShards(d.Next, bridge)
		if err != nil {
			return false, err
		}
		shardKeys = append(shardKeys, hopShardKeys...)
		pks = append(pks, hopPKs...)
		return true, nil
	})
	return shardKeys, pks, err
}

// DeleteShardPrefix removes every row (and its index entries) whose key is
// prefixed by shardKey — the mechanism behind Forget (§4.4).
func (e *Engine) DeleteShardPrefix(t *catalog.Table, shardKey []byte) (int, error) {
	n := 0
	var toDelete [][]byte
	if err := e.ScanShard(t, shardKey, func(pk []byte, row Row) (bool, error) {
		toDelete = append(toDelete, append([]byte{}, pk...))
		return true, nil
	}); err != nil {
		return 0, err
	}
	for _, pk := range toDelete {
		_, ok, err := e.Delete(t, shardKey, pk)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
