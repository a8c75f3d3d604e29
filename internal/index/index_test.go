package index

import (
	"path/filepath"
	"testing"

	"github.com/shardkit/shardkit/internal/kv"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	idx, err := Open(db, "addr_by_uid")
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestAddLookupDelete(t *testing.T) {
	idx := openTestIndex(t)
	shard := []byte("user\x1e1\x1e")
	e := Entry{ShardKey: shard, IndexedValue: []byte("1"), PK: []byte("10")}

	if err := idx.Add(e); err != nil {
		t.Fatal(err)
	}
	pks, err := idx.Lookup(shard, []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 1 || string(pks[0]) != "10" {
		t.Fatalf("got %v", pks)
	}

	if err := idx.Delete(e); err != nil {
		t.Fatal(err)
	}
	pks, err = idx.Lookup(shard, []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 0 {
		t.Fatalf("expected empty after delete, got %v", pks)
	}
}

func TestAddTwiceDeleteOnceKeepsEntry(t *testing.T) {
	idx := openTestIndex(t)
	shard := []byte("user\x1e1\x1e")
	e := Entry{ShardKey: shard, IndexedValue: []byte("1"), PK: []byte("10")}

	idx.Add(e)
	idx.Add(e)
	idx.Delete(e)

	pks, err := idx.Lookup(shard, []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 1 {
		t.Fatalf("expected entry to survive one of two refs being deleted, got %v", pks)
	}
}

func TestLookupDistinguishesShards(t *testing.T) {
	idx := openTestIndex(t)
	idx.Add(Entry{ShardKey: []byte("user\x1e1\x1e"), IndexedValue: []byte("5"), PK: []byte("a")})
	idx.Add(Entry{ShardKey: []byte("user\x1e2\x1e"), IndexedValue: []byte("5"), PK: []byte("b")})

	pks, err := idx.Lookup([]byte("user\x1e1\x1e"), []byte("5"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 1 || string(pks[0]) != "a" {
		t.Fatalf("got %v, expected only shard 1's entry", pks)
	}
}
