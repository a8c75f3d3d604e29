package catalog

import (
	"bufio"
	"fmt"
	"os"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/dberr"
)

// Save serializes the catalog's CREATE TABLE/CREATE INDEX history to path,
// one verbatim statement per line, so a fresh Open can replay it (§6). This
// mirrors the original engine's approach of persisting only the DDL and
// re-deriving sharding by re-running DiscoverValidate on open, rather than
// serializing ShardDescriptors directly — the derivation is deterministic
// from the DDL alone, so replay and direct serialization always agree.
func (c *Catalog) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "catalog.Save", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, name := range c.creationOrder {
		t := c.tables[name]
		if _, err := fmt.Fprintf(w, "%s\n", t.RawSQL); err != nil {
			return dberr.Wrap(dberr.Internal, "catalog.Save", err)
		}
	}
	for _, stmt := range c.explicitIndexStmts {
		if _, err := fmt.Fprintf(w, "%s\n", stmt); err != nil {
			return dberr.Wrap(dberr.Internal, "catalog.Save", err)
		}
	}
	return w.Flush()
}

// Load reads a .state.txt written by Save, re-parsing and replaying each
// statement through parse to reconstruct the catalog. Caller supplies parse
// because the AST parser is out of scope of this package (§1) — it belongs
// to whatever lives above the engine.
func Load(path string, parse func(line string) (*ast.Statement, error)) (*Catalog, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, "catalog.Load", err)
	}
	defer f.Close()

	c := New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		stmt, err := parse(line)
		if err != nil {
			return nil, dberr.Wrapf(dberr.Internal, "catalog.Load", err, "replaying %q", line)
		}
		switch stmt.Kind {
		case ast.KindCreateTable:
			if err := c.CreateTable(stmt.CreateTable); err != nil {
				return nil, err
			}
		case ast.KindCreateIndex:
			if err := c.CreateIndex(stmt.CreateIndex); err != nil {
				return nil, err
			}
		default:
			return nil, dberr.New(dberr.Internal, "catalog.Load", "state file contains a non-DDL statement")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, dberr.Wrap(dberr.Internal, "catalog.Load", err)
	}
	return c, nil
}
