package sqlengine

import (
	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dataflow"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
)

// canFastReplace reports whether tbl's rows always live in exactly one
// shard key that a REPLACE's own values can recompute without consulting
// any other table — mirrors ReplaceContext::CanFastReplace. A table owned
// transitively or variably, or one other tables depend on, can't be
// fast-pathed: REPLACE might need to move the row to a different shard, or
// update dependents, so it degrades to delete-then-insert.
func (e *Engine) canFastReplace(tbl *catalog.Table) bool {
	if len(tbl.Dependents) > 0 {
		return false
	}
	if len(tbl.Owners) > 1 {
		return false
	}
	if len(tbl.Owners) == 1 && tbl.Owners[0].Type != catalog.Direct {
		return false
	}
	return true
}

// Replace implements §4.4's REPLACE: on tables simple enough to fast-path
// it overwrites (or inserts) the row in place under its recomputed shard
// key; otherwise it falls back to deleting whatever currently occupies the
// primary key and re-inserting, the same way explain.cc describes the slow
// path ("DELETE by pk, then INSERT").
func (e *Engine) Replace(stmt *ast.ReplaceStmt) (int, error) {
	tbl, err := e.Catalog.GetTable(stmt.TableName)
	if err != nil {
		return 0, err
	}
	for _, v := range stmt.Values {
		if v.ContainsSep() {
			return 0, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Replace", dberr.ErrSeparatorInValue)
		}
	}

	if !e.canFastReplace(tbl) {
		return e.slowReplace(tbl, stmt)
	}

	shardKeys, err := e.resolveOwnerShards(tbl, stmt.Values)
	if err != nil {
		return 0, err
	}
	pkb, err := encoding.EncodeValue(stmt.Values[tbl.PKIndex])
	if err != nil {
		return 0, dberr.Wrap(dberr.InvalidArgument, "sqlengine.Replace", err)
	}

	var records []dataflow.Record
	n := 0
	for _, sk := range shardKeys {
		old, existed, err := e.Store.Get(tbl, sk, pkb)
		if err != nil {
			return n, err
		}
		if existed {
			records = append(records, dataflow.Record{Table: tbl.Name, Positive: false, Values: old})
			if err := e.Store.Update(tbl, sk, pkb, stmt.Values); err != nil {
				return n, err
			}
		} else if err := e.Store.Insert(tbl, sk, stmt.Values); err != nil {
			return n, err
		}
		records = append(records, dataflow.Record{Table: tbl.Name, Positive: true, Values: stmt.Values})
		n++
	}
	if len(records) > 0 {
		if err := e.Sink.Emit(records); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (e *Engine) slowReplace(tbl *catalog.Table, stmt *ast.ReplaceStmt) (int, error) {
	pkCol := tbl.PKColumn()
	del := &ast.DeleteStmt{
		TableName: tbl.Name,
		Where: &ast.Expr{
			Kind:  ast.ExprEQ,
			Left:  &ast.Expr{Kind: ast.ExprColumn, Column: pkCol.Name},
			Right: &ast.Expr{Kind: ast.ExprLiteral, Literal: stmt.Values[tbl.PKIndex]},
		},
	}
	if _, err := e.Delete(del); err != nil {
		return 0, err
	}
	return e.Insert(&ast.InsertStmt{TableName: tbl.Name, Values: stmt.Values})
}
