package sqlengine

import (
	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/dataflow"
)

// Delete locates candidate rows via the same access-path policy Select
// uses, applies the residual filter, then removes each matching row from
// its physical shard (maintaining indices) and emits a negative dataflow
// record per row removed. Mirrors delete_::Shard's per-duplicate deletion
// loop, minus its SQL-string rewriting.
func (e *Engine) Delete(stmt *ast.DeleteStmt) (int, error) {
	tbl, err := e.Catalog.GetTable(stmt.TableName)
	if err != nil {
		return 0, err
	}
	candidates, err := e.findCandidates(tbl, stmt.Where)
	if err != nil {
		return 0, err
	}

	var records []dataflow.Record
	n := 0
	for _, c := range candidates {
		ok, err := evalWhere(tbl, stmt.Where, c.Row)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		deleted, existed, err := e.Store.Delete(tbl, c.ShardKey, c.PK)
		if err != nil {
			return n, err
		}
		if !existed {
			continue
		}
		n++
		records = append(records, dataflow.Record{Table: tbl.Name, Positive: false, Values: deleted})
	}
	if len(records) > 0 {
		if err := e.Sink.Emit(records); err != nil {
			return n, err
		}
	}
	return n, nil
}
