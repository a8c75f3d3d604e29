package sqlengine

import (
	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/storageengine"
)

// Select resolves candidate rows via §4.2.1's access-path policy, applies
// the residual WHERE filter, then projects the requested columns. Mirrors
// SelectContext::ExecWithinTransaction minus the SQL-string execution
// layer: there is no embedded SQL engine to re-execute a rewritten query
// against, so the scan and filter run directly over the storage engine.
func (e *Engine) Select(stmt *ast.SelectStmt) ([]storageengine.Row, error) {
	tbl, err := e.Catalog.GetTable(stmt.TableName)
	if err != nil {
		return nil, err
	}
	candidates, err := e.findCandidates(tbl, stmt.Where)
	if err != nil {
		return nil, err
	}

	var out []storageengine.Row
	for _, c := range candidates {
		ok, err := evalWhere(tbl, stmt.Where, c.Row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, project(tbl, stmt, c.Row))
		if stmt.HasLimit && len(out) >= stmt.Limit {
			break
		}
	}
	return out, nil
}

func project(tbl *catalog.Table, stmt *ast.SelectStmt, row storageengine.Row) storageengine.Row {
	if stmt.Star || len(stmt.Columns) == 0 {
		return row
	}
	out := make(storageengine.Row, len(stmt.Columns))
	for i, col := range stmt.Columns {
		if idx, ok := tbl.ColumnIndex(col); ok {
			out[i] = row[idx]
		}
	}
	return out
}
