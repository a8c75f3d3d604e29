package sqlengine

import (
	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/dbglog"
	"github.com/shardkit/shardkit/internal/encoding"
	"github.com/shardkit/shardkit/internal/storageengine"
)

// tablesInShard returns every table the given shard kind owns — the set
// gdpr.cc's GDPR Shard() sweeps via state->TablesInShard(shard_kind). Only
// Owners count: an Accessor relationship lets a kind read another table's
// rows but never gets its own physical copy on Insert, so it holds nothing
// FORGET/GET should touch.
func (e *Engine) tablesInShard(kind string) []*catalog.Table {
	var out []*catalog.Table
	for _, tbl := range e.Catalog.Tables() {
		for _, desc := range tbl.Owners {
			if desc.ShardKind == kind {
				out = append(out, tbl)
				break
			}
		}
	}
	return out
}

// Forget implements the privacy FORGET operation (§4.6): every row in every
// table living under the named subject's shard is physically deleted.
// Mirrors gdpr::Shard's forget path, minus its dataflow-update step (no
// incremental view maintenance to notify here beyond the plain sink).
func (e *Engine) Forget(stmt *ast.ForgetStmt) (int, error) {
	sid, err := encoding.EncodeValue(stmt.SubjectID)
	if err != nil {
		return 0, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Forget", err)
	}
	shardKey := encoding.ShardKey(stmt.ShardKind, sid)

	total := 0
	for _, tbl := range e.tablesInShard(stmt.ShardKind) {
		n, err := e.Store.DeleteShardPrefix(tbl, shardKey)
		if err != nil {
			return total, err
		}
		total += n
	}
	e.Catalog.DecrementSubjectCount(stmt.ShardKind)
	dbglog.Warnf("sqlengine: FORGET %s shard removed %d rows across %d tables", stmt.ShardKind, total, len(e.tablesInShard(stmt.ShardKind)))
	return total, nil
}

// Get implements the privacy GET operation (§4.6): every row in every table
// living under the named subject's shard is returned, grouped by table
// name. Mirrors gdpr::Shard's get path.
func (e *Engine) Get(stmt *ast.GetStmt) (map[string][]storageengine.Row, error) {
	sid, err := encoding.EncodeValue(stmt.SubjectID)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Get", err)
	}
	shardKey := encoding.ShardKey(stmt.ShardKind, sid)

	out := make(map[string][]storageengine.Row)
	for _, tbl := range e.tablesInShard(stmt.ShardKind) {
		var rows []storageengine.Row
		err := e.Store.ScanShard(tbl, shardKey, func(pk []byte, row storageengine.Row) (bool, error) {
			rows = append(rows, row)
			return true, nil
		})
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			out[tbl.Name] = rows
		}
	}
	return out, nil
}
