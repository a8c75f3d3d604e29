package sqlengine

import "github.com/shardkit/shardkit/internal/ast"

// CreateTable registers stmt with the catalog, deriving its sharding, then
// opens the physical storage and any index CFs the derivation produced.
// Mirrors CreateContext::Exec's role in the statement dispatch, split from
// the catalog's own CreateTable so the storage engine only ever opens CFs
// for tables the catalog has already accepted.
func (e *Engine) CreateTable(stmt *ast.CreateTableStmt) error {
	if err := e.Catalog.CreateTable(stmt); err != nil {
		return err
	}
	return e.Store.EnsureTable(stmt.TableName)
}

// CreateIndex registers an explicit secondary index and opens its CF.
func (e *Engine) CreateIndex(stmt *ast.CreateIndexStmt) error {
	if err := e.Catalog.CreateIndex(stmt); err != nil {
		return err
	}
	return e.Store.EnsureTable(stmt.TableName)
}
