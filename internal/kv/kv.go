// Package kv is the ordered KV backend (C1): byte-slice keys/values grouped
// into named column families, with point Get, Put, Delete and prefix
// iteration. It is physically hosted on an embedded SQLite database via
// github.com/ncruces/go-sqlite3 — the pure-Go, cgo-free driver the teacher
// repository (steveyegge/beads, internal/storage/sqlite) already uses for
// its own embedded storage. Each column family is one table of
// (k BLOB PRIMARY KEY, v BLOB); SQLite compares BLOBs byte-wise, so a table
// scan ordered by k gives the ordered-KV semantics §4.3's ShardPrefixTransform
// and §4.2's prefix-iteration fallback rely on.
package kv

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/shardkit/shardkit/internal/dberr"
)

var cfNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB is a KV handle shared by every session against one database directory
// (§5: "The single KV handle ... [is] process-global").
type DB struct {
	sql *sql.DB

	mu  sync.Mutex // serializes CREATE TABLE (column-family creation)
	cfs map[string]bool
}

// Open opens (creating if absent) the SQLite-backed KV store at path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "kv.Open", err)
	}
	sqlDB.SetMaxOpenConns(1) // single writer; matches the engine's per-statement serialization via the catalog lock
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		sqlDB.Close()
		return nil, dberr.Wrap(dberr.Internal, "kv.Open", err)
	}
	db := &DB{sql: sqlDB, cfs: make(map[string]bool)}
	if err := db.loadExistingCFs(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) loadExistingCFs() error {
	rows, err := db.sql.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'cf\_%' ESCAPE '\'`)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "kv.loadExistingCFs", err)
	}
	defer rows.Close()
	db.mu.Lock()
	defer db.mu.Unlock()
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return dberr.Wrap(dberr.Internal, "kv.loadExistingCFs", err)
		}
		db.cfs[table[len("cf_"):]] = true
	}
	return rows.Err()
}

// Close releases the underlying SQLite connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

func tableName(cf string) (string, error) {
	if !cfNamePattern.MatchString(cf) {
		return "", dberr.New(dberr.InvalidArgument, "kv", fmt.Sprintf("invalid column family name %q", cf))
	}
	return "cf_" + cf, nil
}

// CreateCF creates a new column family if it does not already exist.
// Idempotent, so replaying CREATE TABLE on database open (§6) is safe.
func (db *DB) CreateCF(cf string) error {
	table, err := tableName(cf)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.cfs[cf] {
		return nil
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (k BLOB PRIMARY KEY, v BLOB NOT NULL)`, table)
	if _, err := db.sql.Exec(stmt); err != nil {
		return dberr.Wrap(dberr.Internal, "kv.CreateCF", err)
	}
	db.cfs[cf] = true
	return nil
}

// HasCF reports whether a column family has been created.
func (db *DB) HasCF(cf string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.cfs[cf]
}

// Put writes key/value into the column family.
func (db *DB) Put(cf string, key, value []byte) error {
	table, err := tableName(cf)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, table)
	if _, err := db.sql.Exec(stmt, key, value); err != nil {
		return dberr.Wrap(dberr.Internal, "kv.Put", err)
	}
	return nil
}

// Get reads a value by exact key; ok is false if absent.
func (db *DB) Get(cf string, key []byte) (value []byte, ok bool, err error) {
	table, terr := tableName(cf)
	if terr != nil {
		return nil, false, terr
	}
	stmt := fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, table)
	row := db.sql.QueryRow(stmt, key)
	if scanErr := row.Scan(&value); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, dberr.Wrap(dberr.Internal, "kv.Get", scanErr)
	}
	return value, true, nil
}

// Delete removes a key. Deleting an absent key is a no-op, not an error.
func (db *DB) Delete(cf string, key []byte) error {
	table, err := tableName(cf)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, table)
	if _, err := db.sql.Exec(stmt, key); err != nil {
		return dberr.Wrap(dberr.Internal, "kv.Delete", err)
	}
	return nil
}

// PrefixUpperBound returns the smallest key that sorts strictly after every
// key beginning with prefix, for use as an exclusive range bound. An
// all-0xFF prefix has no such bound and returns nil (meaning "no upper
// bound", i.e. scan to the end of the CF).
func PrefixUpperBound(prefix []byte) []byte {
	out := append([]byte{}, prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// Iterate walks every entry in [low, high) in key order, in the column
// family, calling fn for each. high == nil means "to the end of the CF". A
// false return from fn stops iteration early without error.
func (db *DB) Iterate(cf string, low, high []byte, fn func(key, value []byte) (bool, error)) error {
	table, err := tableName(cf)
	if err != nil {
		return err
	}
	var rows *sql.Rows
	if high == nil {
		rows, err = db.sql.Query(fmt.Sprintf(`SELECT k, v FROM %s WHERE k >= ? ORDER BY k`, table), low)
	} else {
		rows, err = db.sql.Query(fmt.Sprintf(`SELECT k, v FROM %s WHERE k >= ? AND k < ? ORDER BY k`, table), low, high)
	}
	if err != nil {
		return dberr.Wrap(dberr.Internal, "kv.Iterate", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return dberr.Wrap(dberr.Internal, "kv.Iterate", err)
		}
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return rows.Err()
}

// IteratePrefix walks every entry whose key begins with prefix, in order.
func (db *DB) IteratePrefix(cf string, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return db.Iterate(cf, prefix, PrefixUpperBound(prefix), fn)
}

// DeletePrefix deletes every key beginning with prefix in one statement —
// the physical mechanism behind forget (§4.4) and shard-prefix cleanup.
func (db *DB) DeletePrefix(cf string, prefix []byte) (int64, error) {
	table, err := tableName(cf)
	if err != nil {
		return 0, err
	}
	high := PrefixUpperBound(prefix)
	var res sql.Result
	if high == nil {
		res, err = db.sql.Exec(fmt.Sprintf(`DELETE FROM %s WHERE k >= ?`, table), prefix)
	} else {
		res, err = db.sql.Exec(fmt.Sprintf(`DELETE FROM %s WHERE k >= ? AND k < ?`, table), prefix, high)
	}
	if err != nil {
		return 0, dberr.Wrap(dberr.Internal, "kv.DeletePrefix", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// WithTx runs fn inside one SQLite transaction, giving callers a narrow
// escape hatch for grouping several Puts/Deletes atomically. The engine
// packages do not call it: the delete-then-insert paths of Replace and
// Update issue their writes separately. §7 states the core
// provides per-statement atomicity "only insofar as the KV backend does
// (single-Put atomicity)".
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "kv.WithTx", err)
	}
	tx := &Tx{sql: sqlTx}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, "kv.WithTx", err)
	}
	return nil
}

// Tx is a narrow transactional view used only within WithTx.
type Tx struct {
	sql *sql.Tx
}

func (tx *Tx) Put(cf string, key, value []byte) error {
	table, err := tableName(cf)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, table)
	if _, err := tx.sql.Exec(stmt, key, value); err != nil {
		return dberr.Wrap(dberr.Internal, "kv.Tx.Put", err)
	}
	return nil
}

func (tx *Tx) Delete(cf string, key []byte) error {
	table, err := tableName(cf)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, table)
	if _, err := tx.sql.Exec(stmt, key); err != nil {
		return dberr.Wrap(dberr.Internal, "kv.Tx.Delete", err)
	}
	return nil
}
