// Package session implements C7: the process-level Database lifecycle
// (§6's supplemented Open/Close, grounded on pelton/pelton.h's
// pelton_open/pelton_close) and per-connection statement dispatch with the
// upgradable-lock concurrency model of §5.
package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/dataflow"
	"github.com/shardkit/shardkit/internal/dbconfig"
	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/dbglog"
	"github.com/shardkit/shardkit/internal/kv"
	"github.com/shardkit/shardkit/internal/sqlengine"
	"github.com/shardkit/shardkit/internal/storageengine"
	"github.com/shardkit/shardkit/internal/upgradable"
)

const (
	dataFileName  = "data.db"
	stateFileName = ".state.txt"
)

// ParseFunc turns one line of a replayed .state.txt (or a line read from a
// client) into a typed Statement. The parser itself is out of scope (§1);
// Database only ever calls the one its caller supplies.
type ParseFunc func(line string) (*ast.Statement, error)

// Database is one open pelton-style database directory: its catalog, its
// physical KV store, and the sqlengine.Engine driving both. Mirrors
// pelton::Connection, minus the connection-pool plumbing the original needs
// for its multi-threaded worker model — this port is single-process and
// serializes access through one upgradable.Lock instead.
type Database struct {
	dir    string
	cfg    *dbconfig.Config
	kv     *kv.DB
	cat    *catalog.Catalog
	engine *sqlengine.Engine
	lock   *upgradable.Lock
	parse  ParseFunc
}

// Open replays dir's .state.txt (if present) to rebuild the catalog, opens
// the physical KV store, and wires a fresh sqlengine.Engine over both.
// Mirrors pelton_open's "load the catalog from disk then replay every
// stored CREATE TABLE" sequence (original: pelton/shards/load.cc).
func Open(dir string, parse ParseFunc, sink dataflow.Sink) (*Database, error) {
	cfg, err := dbconfig.Load(filepath.Join(dir, "shardcore.toml"))
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "session.Open", err)
	}

	cat, err := catalog.Load(filepath.Join(dir, stateFileName), parse)
	if err != nil {
		return nil, err
	}

	db, err := kv.Open(filepath.Join(dir, dataFileName))
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "session.Open", err)
	}

	store := storageengine.Open(db, cat)
	for _, t := range cat.Tables() {
		if err := store.EnsureTable(t.Name); err != nil {
			db.Close()
			return nil, err
		}
	}

	dbglog.Infof("session: opened %s (%d tables replayed)", dir, len(cat.Tables()))
	return &Database{
		dir:    dir,
		cfg:    cfg,
		kv:     db,
		cat:    cat,
		engine: sqlengine.New(cat, store, sink),
		lock:   upgradable.New(),
		parse:  parse,
	}, nil
}

// Close rewrites .state.txt from the current catalog and closes the
// physical store. Mirrors pelton_close's clean-shutdown persistence step.
func (d *Database) Close() error {
	if err := d.cat.Save(filepath.Join(d.dir, stateFileName)); err != nil {
		return err
	}
	dbglog.Infof("session: closing %s", d.dir)
	return d.kv.Close()
}

// Config returns the engine-wide tunables Open loaded.
func (d *Database) Config() *dbconfig.Config { return d.cfg }

// Connect returns a new Connection sharing this Database's catalog, store,
// and lock. Connections are cheap; every exec-loop iteration in cmd/shardctl
// uses its own.
func (d *Database) Connect() *Connection {
	return &Connection{db: d}
}

// Connection is one client's view of a Database: it owns no state of its
// own beyond an optional open transaction, mirroring pelton::Connection
// stripped of its per-thread worker-pool fields (out of scope here).
type Connection struct {
	db *Database
	tx *transaction
}

// transaction buffers a BEGIN...COMMIT/ROLLBACK block's dataflow emissions
// and holds the exclusive lock for its duration. §7 states there is "no
// auto-rollback beyond KV single-Put atomicity" — a Rollback here discards
// the buffered dataflow notifications a client hasn't seen yet, but cannot
// undo physical writes already made by the statements that ran inside it;
// callers that need real multi-statement atomicity must structure their
// own compensating statements.
type transaction struct {
	unique *upgradable.UniqueHandle
	sink   *dataflow.BufferedSink
	real   dataflow.Sink
}

// Begin acquires the catalog's exclusive lock for the duration of the
// transaction and diverts dataflow emissions into a buffer until Commit.
// Returns FailedPrecondition if a transaction is already open on this
// connection.
func (c *Connection) Begin() error {
	if c.tx != nil {
		return dberr.New(dberr.FailedPrecondition, "session.Begin", "a transaction is already open on this connection")
	}
	dbglog.Debugf("session: BEGIN on %s", c.db.dir)
	buf := dataflow.NewBufferedSink()
	c.tx = &transaction{
		unique: c.db.lock.Lock(),
		sink:   buf,
		real:   c.db.engine.Sink,
	}
	c.db.engine.Sink = buf
	return nil
}

// Commit flushes the buffered dataflow records to the real sink and
// releases the exclusive lock.
func (c *Connection) Commit() error {
	if c.tx == nil {
		return dberr.New(dberr.FailedPrecondition, "session.Commit", "no transaction is open")
	}
	tx := c.tx
	c.tx = nil
	c.db.engine.Sink = tx.real
	defer tx.unique.Unlock()
	dbglog.Debugf("session: COMMIT on %s (%d dataflow records)", c.db.dir, len(tx.sink.Records))
	if len(tx.sink.Records) == 0 {
		return nil
	}
	return tx.real.Emit(tx.sink.Records)
}

// Rollback discards the buffered dataflow records and releases the
// exclusive lock, without attempting to undo any physical writes already
// performed by statements that ran inside the transaction (§7).
func (c *Connection) Rollback() error {
	if c.tx == nil {
		return dberr.New(dberr.FailedPrecondition, "session.Rollback", "no transaction is open")
	}
	tx := c.tx
	c.tx = nil
	c.db.engine.Sink = tx.real
	tx.unique.Unlock()
	dbglog.Warnf("session: ROLLBACK on %s discarding %d buffered dataflow records", c.db.dir, len(tx.sink.Records))
	return nil
}

// Exec dispatches one statement against the Database's engine, acquiring
// the appropriate grade of lock per §5 when no transaction is already
// open on this connection: DDL, FORGET and the DML statements (INSERT,
// REPLACE, UPDATE, DELETE) take the exclusive lock; only SELECT, GET and
// EXPLAIN take the shared lock.
func (c *Connection) Exec(ctx context.Context, stmt *ast.Statement) (any, error) {
	if c.tx == nil {
		if writeKind(stmt.Kind) {
			h := c.db.lock.Lock()
			defer h.Unlock()
		} else {
			h := c.db.lock.RLock()
			defer h.Unlock()
		}
	}

	switch stmt.Kind {
	case ast.KindCreateTable:
		return nil, c.db.engine.CreateTable(stmt.CreateTable)
	case ast.KindCreateIndex:
		return nil, c.db.engine.CreateIndex(stmt.CreateIndex)
	case ast.KindInsert:
		return c.db.engine.Insert(stmt.Insert)
	case ast.KindReplace:
		return c.db.engine.Replace(stmt.Replace)
	case ast.KindUpdate:
		return c.db.engine.Update(stmt.Update)
	case ast.KindDelete:
		return c.db.engine.Delete(stmt.Delete)
	case ast.KindSelect:
		return c.db.engine.Select(stmt.Select)
	case ast.KindForget:
		return c.db.engine.Forget(stmt.Forget)
	case ast.KindGet:
		return c.db.engine.Get(stmt.Get)
	case ast.KindExplainPrivacy:
		return c.db.engine.Explain(stmt.Explain)
	default:
		return nil, dberr.New(dberr.InvalidArgument, "session.Exec", fmt.Sprintf("unknown statement kind %v", stmt.Kind))
	}
}

// writeKind reports whether a statement kind requires the exclusive lock.
func writeKind(kind ast.StatementKind) bool {
	switch kind {
	case ast.KindCreateTable, ast.KindCreateIndex, ast.KindInsert, ast.KindReplace,
		ast.KindUpdate, ast.KindDelete, ast.KindForget:
		return true
	default:
		return false
	}
}
