// Package index implements secondary indices (C3): CFs mapping
// (shard_id, indexed_value) → pk, used both to resolve TRANSITIVE/VARIABLE
// ownership chains and to accelerate WHERE-clause equality lookups in the
// storage engine's candidate-lookup policy (§4.2.1, §4.3).
//
// Physically an index CF uses the same byte-ordered KV substrate as row
// data; §4.3's "ShardPrefixTransform(2)" (RocksDB-specific bloom/prefix
// tuning in the original engine) has no analogue needed here because every
// lookup already range-scans a concrete shard_key‖value‖SEP prefix through
// kv.IteratePrefix — the KV backend's B-tree index on k already gives
// point-prefix iteration without a separate transform.
package index

import (
	"sort"

	"github.com/shardkit/shardkit/internal/dberr"
	"github.com/shardkit/shardkit/internal/encoding"
	"github.com/shardkit/shardkit/internal/kv"
)

// Entry is one (shard, value, pk) index triple.
type Entry struct {
	ShardKey     []byte
	IndexedValue []byte
	PK           []byte
}

// Index is a single simple secondary index, physically one KV column family.
type Index struct {
	db *kv.DB
	cf string
}

// Open returns a handle to an index's column family, creating it if absent.
func Open(db *kv.DB, name string) (*Index, error) {
	if err := db.CreateCF(name); err != nil {
		return nil, err
	}
	return &Index{db: db, cf: name}, nil
}

// refcountBytes and parseRefcount encode a small count alongside each index
// entry's value, so Add/Delete on the same (shard,value,pk) triple from two
// different derivation paths (e.g. a row visible via two FK chains to the
// same indexed value) remain idempotent instead of one delete silently
// dropping a still-referenced entry.
func refcountBytes(n uint32) []byte {
	return []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

func parseRefcount(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Add inserts (or increments the refcount of) one index entry.
func (idx *Index) Add(e Entry) error {
	key := encoding.IndexKey(e.ShardKey, e.IndexedValue, e.PK)
	_, ok, err := idx.db.Get(idx.cf, key)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "index.Add", err)
	}
	n := uint32(1)
	if ok {
		existing, _, _ := idx.db.Get(idx.cf, key)
		n = parseRefcount(existing) + 1
	}
	return idx.db.Put(idx.cf, key, refcountBytes(n))
}

// Delete decrements the refcount of one index entry, removing it once it
// reaches zero.
func (idx *Index) Delete(e Entry) error {
	key := encoding.IndexKey(e.ShardKey, e.IndexedValue, e.PK)
	existing, ok, err := idx.db.Get(idx.cf, key)
	if err != nil {
		return dberr.Wrap(dberr.Internal, "index.Delete", err)
	}
	if !ok {
		return nil
	}
	n := parseRefcount(existing)
	if n <= 1 {
		return idx.db.Delete(idx.cf, key)
	}
	return idx.db.Put(idx.cf, key, refcountBytes(n-1))
}

// Lookup returns every PK indexed under (shardKey, value) — i.e. every row
// in that shard whose indexed column equals value.
func (idx *Index) Lookup(shardKey, value []byte) ([][]byte, error) {
	prefix := append(append([]byte{}, shardKey...), append(value, encoding.Sep)...)
	var pks [][]byte
	err := idx.db.IteratePrefix(idx.cf, prefix, func(k, _ []byte) (bool, error) {
		pk, err := trailingPK(k, prefix)
		if err != nil {
			return false, err
		}
		pks = append(pks, pk)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return pks, nil
}

// trailingPK strips a matched prefix and the final separator to recover the
// pk segment of an index key "prefix‖pk‖SEP".
func trailingPK(key, prefix []byte) ([]byte, error) {
	rest := key[len(prefix):]
	if len(rest) == 0 || rest[len(rest)-1] != encoding.Sep {
		return nil, dberr.New(dberr.Internal, "index.trailingPK", "malformed index key")
	}
	return rest[:len(rest)-1], nil
}

// LookupMany performs Lookup for several (shardKey, value) pairs, sorting
// and de-duplicating the requested prefixes first — the mechanism §4.3
// describes as "lookups are deduplicated by sorting input prefixes and
// de-dup-iterating". Nothing in this module calls it: storageengine
// resolves JOINED indices by scanning the joined table and recursing.
func (idx *Index) LookupMany(pairs []Entry) ([][]byte, error) {
	type key struct{ shard, value string }
	seen := make(map[key]bool, len(pairs))
	dedup := pairs[:0:0]
	for _, p := range pairs {
		k := key{string(p.ShardKey), string(p.IndexedValue)}
		if seen[k] {
			continue
		}
		seen[k] = true
		dedup = append(dedup, p)
	}
	sort.Slice(dedup, func(i, j int) bool {
		if string(dedup[i].ShardKey) != string(dedup[j].ShardKey) {
			return string(dedup[i].ShardKey) < string(dedup[j].ShardKey)
		}
		return string(dedup[i].IndexedValue) < string(dedup[j].IndexedValue)
	})

	var out [][]byte
	for _, p := range dedup {
		pks, err := idx.Lookup(p.ShardKey, p.IndexedValue)
		if err != nil {
			return nil, err
		}
		out = append(out, pks...)
	}
	return out, nil
}
