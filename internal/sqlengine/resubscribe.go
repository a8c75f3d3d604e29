package sqlengine

import (
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dataflow"
	"github.com/shardkit/shardkit/internal/encoding"
	"github.com/shardkit/shardkit/internal/storageengine"
)

// Resubscribe re-resolves every row of tableName currently sitting in the
// default shard, moving it into its real shard(s) if a VARIABLE descriptor
// can now be satisfied — the belated-association case of §4.5, where the
// many-to-many association row arrives after the row it shards. Grounded
// on resubscribe.cc's shape: re-run shard resolution over rows already on
// disk rather than replaying a stored INSERT statement.
func (e *Engine) Resubscribe(tableName string) (int, error) {
	tbl, err := e.Catalog.GetTable(tableName)
	if err != nil {
		return 0, err
	}
	hasVariable := false
	for _, desc := range tbl.Owners {
		if desc.Type == catalog.Variable {
			hasVariable = true
			break
		}
	}
	if !hasVariable {
		return 0, nil
	}

	defaultKey := encoding.DefaultShardKey()
	var pks [][]byte
	var rows []storageengine.Row
	err = e.Store.ScanShard(tbl, defaultKey, func(pk []byte, row storageengine.Row) (bool, error) {
		pks = append(pks, append([]byte{}, pk...))
		rows = append(rows, row)
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	moved := 0
	var records []dataflow.Record
	for i, pk := range pks {
		row := rows[i]
		shardKeys, err := e.resolveOwnerShards(tbl, row)
		if err != nil {
			return moved, err
		}
		if onlyDefaultShard(shardKeys) {
			continue
		}
		if _, _, err := e.Store.Delete(tbl, defaultKey, pk); err != nil {
			return moved, err
		}
		for _, sk := range shardKeys {
			if string(sk) == string(defaultKey) {
				continue
			}
			if err := e.Store.Insert(tbl, sk, row); err != nil {
				return moved, err
			}
		}
		moved++
		records = append(records, dataflow.Record{Table: tbl.Name, Positive: false, Values: row})
		records = append(records, dataflow.Record{Table: tbl.Name, Positive: true, Values: row})
	}
	if len(records) > 0 {
		if err := e.Sink.Emit(records); err != nil {
			return moved, err
		}
	}
	return moved, nil
}

func onlyDefaultShard(keys [][]byte) bool {
	def := encoding.DefaultShardKey()
	for _, k := range keys {
		if string(k) != string(def) {
			return false
		}
	}
	return true
}
