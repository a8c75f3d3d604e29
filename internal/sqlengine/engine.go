// Package sqlengine implements C6: one entry point per statement kind,
// translating the typed AST (internal/ast) into shard-resolution decisions
// plus storage-engine operations, and notifying a dataflow.Sink of every
// mutation. Grounded on the per-statement Context types of
// pelton/shards/sqlengine/{insert,replace,update,delete,select,gdpr,
// explain}.{h,cc}: the original rewrites and re-executes SQL strings
// against per-shard schemas through a connection pool; this port skips the
// string-rewrite step entirely and drives internal/storageengine directly,
// since there is no embedded SQL string executor to target.
package sqlengine

import (
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dataflow"
	"github.com/shardkit/shardkit/internal/storageengine"
)

// Engine wires the catalog, the storage engine, and the dataflow sink
// together. One Engine is shared by every connection against a database
// (§5: "the catalog and KV handle are process-global").
type Engine struct {
	Catalog *catalog.Catalog
	Store   *storageengine.Engine
	Sink    dataflow.Sink
}

// New returns an Engine over an already-open catalog and storage engine. A
// nil sink is replaced with dataflow.NopSink.
func New(cat *catalog.Catalog, store *storageengine.Engine, sink dataflow.Sink) *Engine {
	if sink == nil {
		sink = dataflow.NopSink{}
	}
	return &Engine{Catalog: cat, Store: store, Sink: sink}
}
