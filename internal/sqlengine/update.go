package sqlengine

import (
	"fmt"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dataflow"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/storageengine"
)

// Update locates candidate rows, applies the residual filter, then rewrites
// the assigned columns in place. Per §4.4, a SET that touches a DIRECT owner
// column may move the row to a different shard, so that case degrades to
// delete-then-insert per row — the same fallback Replace uses (slowReplace)
// — rather than the in-place rewrite the rest of this function performs.
func (e *Engine) Update(stmt *ast.UpdateStmt) (int, error) {
	tbl, err := e.Catalog.GetTable(stmt.TableName)
	if err != nil {
		return 0, err
	}

	ownerChanged := false
	for _, asn := range stmt.Set {
		for _, desc := range tbl.Owners {
			if desc.Type == catalog.Direct && desc.Direct.Column == asn.Column {
				ownerChanged = true
			}
		}
		if asn.Value.ContainsSep() {
			return 0, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Update", dberr.ErrSeparatorInValue)
		}
	}

	candidates, err := e.findCandidates(tbl, stmt.Where)
	if err != nil {
		return 0, err
	}

	if ownerChanged {
		return e.slowUpdate(tbl, stmt, candidates)
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

		newRow := append(storageengine.Row{}, c.Row...)
		for _, asn := range stmt.Set {
			idx, ok := tbl.ColumnIndex(asn.Column)
			if !ok {
				return n, dberr.New(dberr.InvalidArgument, "sqlengine.Update", fmt.Sprintf("no such column %q", asn.Column))
			}
			if asn.Value.Null && !tbl.Columns[idx].Nullable {
				return n, dberr.New(dberr.InvalidArgument, "sqlengine.Update", fmt.Sprintf("column %q is not nullable", asn.Column))
			}
			newRow[idx] = asn.Value
		}

		if err := e.Store.Update(tbl, c.ShardKey, c.PK, newRow); err != nil {
			return n, err
		}
		n++
		records = append(records, dataflow.Record{Table: tbl.Name, Positive: false, Values: c.Row})
		records = append(records, dataflow.Record{Table: tbl.Name, Positive: true, Values: newRow})
	}
	if len(records) > 0 {
		if err := e.Sink.Emit(records); err != nil {
			return n, err
		}
	}
	return n, nil
}

// slowUpdate handles a SET list that reassigns a DIRECT owner column: each
// matching row must move shards, so it is deleted by primary key and
// re-inserted with the new values rather than rewritten in place. Mirrors
// Replace's slowReplace, applied per candidate row instead of once.
func (e *Engine) slowUpdate(tbl *catalog.Table, stmt *ast.UpdateStmt, candidates []candidate) (int, error) {
	pkCol := tbl.PKColumn()
	n := 0
	for _, c := range candidates {
		ok, err := evalWhere(tbl, stmt.Where, c.Row)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}

		newRow := append(storageengine.Row{}, c.Row...)
		for _, asn := range stmt.Set {
			idx, ok := tbl.ColumnIndex(asn.Column)
			if !ok {
				return n, dberr.New(dberr.InvalidArgument, "sqlengine.Update", fmt.Sprintf("no such column %q", asn.Column))
			}
			if asn.Value.Null {
				for _, desc := range tbl.Owners {
					if desc.Type == catalog.Direct && desc.Direct.Column == asn.Column {
						return n, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Update", dberr.ErrOwnerNull)
					}
				}
			}
			if asn.Value.Null && !tbl.Columns[idx].Nullable {
				return n, dberr.New(dberr.InvalidArgument, "sqlengine.Update", fmt.Sprintf("column %q is not nullable", asn.Column))
			}
			newRow[idx] = asn.Value
		}

		del := &ast.DeleteStmt{
			TableName: tbl.Name,
			Where: &ast.Expr{
				Kind:  ast.ExprEQ,
				Left:  &ast.Expr{Kind: ast.ExprColumn, Column: pkCol.Name},
				Right: &ast.Expr{Kind: ast.ExprLiteral, Literal: c.Row[tbl.PKIndex]},
			},
		}
		if _, err := e.Delete(del); err != nil {
			return n, err
		}
		if _, err := e.Insert(&ast.InsertStmt{TableName: tbl.Name, Values: newRow}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
