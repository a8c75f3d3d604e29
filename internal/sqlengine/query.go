package sqlengine

import (
	"fmt"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
	"github.com/shardkit/shardkit/internal/storageengine"
)

// candidate is one row produced by the access path findCandidates chooses,
// before the residual WHERE filter is applied.
type candidate struct {
	ShardKey []byte
	PK       []byte
	Row      storageengine.Row
}

// equalityBinding walks the top-level AND spine of where looking for an
// "column = literal" condition on column, the same shape §4.2.1's
// candidate-lookup policy keys its PK/indexed-equality fast paths on.
func equalityBinding(where *ast.Expr, column string) (encoding.Value, bool) {
	if where == nil {
		return encoding.Value{}, false
	}
	switch where.Kind {
	case ast.ExprAND:
		if v, ok := equalityBinding(where.Left, column); ok {
			return v, true
		}
		return equalityBinding(where.Right, column)
	case ast.ExprEQ:
		if where.Left != nil && where.Left.Kind == ast.ExprColumn && where.Left.Column == column &&
			where.Right != nil && where.Right.Kind == ast.ExprLiteral {
			return where.Right.Literal, true
		}
	}
	return encoding.Value{}, false
}

// findCandidates implements §4.2.1's candidate-lookup policy: a PK-equality
// binding against a table's own DIRECT owner column narrows to one shard
// and one row; a binding on any other DIRECT owner column narrows to one
// shard (then scans it); a binding on a column with an explicit (CREATE
// INDEX) SIMPLE index narrows via
// a cross-shard index lookup; otherwise every shard is scanned. The
// returned candidates are NOT guaranteed to already satisfy where in full —
// callers apply evalWhere as a residual filter afterward.
func (e *Engine) findCandidates(tbl *catalog.Table, where *ast.Expr) ([]candidate, error) {
	pkCol := tbl.PKColumn()

	for _, desc := range tbl.Owners {
		if desc.Type != catalog.Direct {
			continue
		}
		v, ok := equalityBinding(where, desc.Direct.Column)
		if !ok {
			continue
		}
		vb, err := encoding.EncodeValue(v)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.findCandidates", err)
		}
		shardKey := encoding.ShardKey(desc.ShardKind, vb)

		if pkVal, ok := equalityBinding(where, pkCol.Name); ok {
			pkb, err := encoding.EncodeValue(pkVal)
			if err != nil {
				return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.findCandidates", err)
			}
			row, ok, err := e.Store.Get(tbl, shardKey, pkb)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			return []candidate{{ShardKey: shardKey, PK: pkb, Row: row}}, nil
		}

		var out []candidate
		err = e.Store.ScanShard(tbl, shardKey, func(pk []byte, row storageengine.Row) (bool, error) {
			out = append(out, candidate{ShardKey: shardKey, PK: append([]byte{}, pk...), Row: row})
			return true, nil
		})
		return out, err
	}

	if idx, col, ok := simpleIndexedEquality(tbl, where); ok {
		v, _ := equalityBinding(where, col)
		vb, err := encoding.EncodeValue(v)
		if err != nil {
			return nil, dberr.Wrap(dberr.InvalidArgument, "sqlengine.findCandidates", err)
		}
		shardKeys, pks, err := e.Store.LookupIndexAcrossShards(idx, vb)
		if err != nil {
			return nil, err
		}
		out := make([]candidate, 0, len(pks))
		for i, pk := range pks {
			row, ok, err := e.Store.Get(tbl, shardKeys[i], pk)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, candidate{ShardKey: shardKeys[i], PK: pk, Row: row})
			}
		}
		return out, nil
	}

	// No narrowing binding found: scan every shard the table physically
	// stores rows under (§4.2.1's full-scan fallback).
	var out []candidate
	err := e.Store.ScanAll(tbl, func(shardKey, pk []byte, row storageengine.Row) (bool, error) {
		out = append(out, candidate{ShardKey: append([]byte{}, shardKey...), PK: append([]byte{}, pk...), Row: row})
		return true, nil
	})
	return out, err
}

// simpleIndexedEquality reports whether where binds, by equality, a column
// of tbl that one of tbl.ExplicitIndices is keyed by; catalog-derived
// SIMPLE indices over the same table are not consulted. JOINED indices are not used to
// accelerate ordinary WHERE lookups — they exist purely to compose
// TRANSITIVE/VARIABLE shard resolution one hop further — so only SIMPLE
// descriptors are considered here; anything else falls back to a full scan.
func simpleIndexedEquality(tbl *catalog.Table, where *ast.Expr) (*catalog.IndexDescriptor, string, bool) {
	for _, d := range tbl.ExplicitIndices {
		if d.Kind != catalog.SimpleIndex {
			continue
		}
		if _, ok := equalityBinding(where, d.Column); ok {
			return d, d.Column, true
		}
	}
	return nil, "", false
}

// evalWhere applies where against row as a residual filter, after the
// access path in findCandidates has already narrowed the candidate set.
func evalWhere(tbl *catalog.Table, where *ast.Expr, row storageengine.Row) (bool, error) {
	if where == nil {
		return true, nil
	}
	switch where.Kind {
	case ast.ExprAND:
		l, err := evalWhere(tbl, where.Left, row)
		if err != nil || !l {
			return false, err
		}
		return evalWhere(tbl, where.Right, row)
	case ast.ExprOR:
		l, err := evalWhere(tbl, where.Left, row)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalWhere(tbl, where.Right, row)
	case ast.ExprEQ:
		cmp, err := compareColumnLiteral(tbl, where, row)
		if err != nil {
			return false, err
		}
		return cmp == 0, nil
	case ast.ExprGT:
		cmp, err := compareColumnLiteral(tbl, where, row)
		if err != nil {
			return false, err
		}
		return cmp > 0, nil
	case ast.ExprIN:
		return evalIn(tbl, where, row)
	default:
		return false, dberr.New(dberr.InvalidArgument, "sqlengine.evalWhere", "unsupported top-level WHERE expression")
	}
}

func compareColumnLiteral(tbl *catalog.Table, e *ast.Expr, row storageengine.Row) (int, error) {
	if e.Left == nil || e.Left.Kind != ast.ExprColumn || e.Right == nil || e.Right.Kind != ast.ExprLiteral {
		return 0, dberr.New(dberr.InvalidArgument, "sqlengine.compareColumnLiteral", "expected column-op-literal")
	}
	idx, ok := tbl.ColumnIndex(e.Left.Column)
	if !ok {
		return 0, dberr.New(dberr.InvalidArgument, "sqlengine.compareColumnLiteral",
			fmt.Sprintf("no such column %q", e.Left.Column))
	}
	return compareValues(row[idx], e.Right.Literal)
}

func evalIn(tbl *catalog.Table, e *ast.Expr, row storageengine.Row) (bool, error) {
	if e.Left == nil || e.Left.Kind != ast.ExprColumn || e.Right == nil || e.Right.Kind != ast.ExprLiteralList {
		return false, dberr.New(dberr.InvalidArgument, "sqlengine.evalIn", "expected column IN (literal list)")
	}
	idx, ok := tbl.ColumnIndex(e.Left.Column)
	if !ok {
		return false, dberr.New(dberr.InvalidArgument, "sqlengine.evalIn", fmt.Sprintf("no such column %q", e.Left.Column))
	}
	for _, lit := range e.Right.Literals {
		cmp, err := compareValues(row[idx], lit)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

// compareValues orders two values of the same column type, returning
// <0/0/>0. NULL sorts before every non-NULL value of its type.
func compareValues(a, b encoding.Value) (int, error) {
	if a.Null || b.Null {
		switch {
		case a.Null && b.Null:
			return 0, nil
		case a.Null:
			return -1, nil
		default:
			return 1, nil
		}
	}
	switch a.Type {
	case encoding.TypeSignedInt:
		switch {
		case a.Int < b.Int:
			return -1, nil
		case a.Int > b.Int:
			return 1, nil
		default:
			return 0, nil
		}
	case encoding.TypeUnsignedInt:
		switch {
		case a.Uint < b.Uint:
			return -1, nil
		case a.Uint > b.Uint:
			return 1, nil
		default:
			return 0, nil
		}
	case encoding.TypeText, encoding.TypeDatetime:
		switch {
		case a.Text < b.Text:
			return -1, nil
		case a.Text > b.Text:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("sqlengine: unknown type %v", a.Type)
	}
}
