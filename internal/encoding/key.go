package encoding

import (
	"bytes"
	"fmt"
)

// ShardKey builds kind‖SEP‖subject_id‖SEP per §4.1/§6. Dropping the
// trailing separator yields an invalid key: without it, kind "user"
// subject "1" would be a byte prefix of kind "user" subject "12", so a
// prefix scan of one shard would also match the other's rows.
func ShardKey(kind string, subjectID []byte) []byte {
	out := make([]byte, 0, len(kind)+len(subjectID)+2)
	out = append(out, kind...)
	out = append(out, Sep)
	out = append(out, subjectID...)
	out = append(out, Sep)
	return out
}

// DefaultShardKey is the pseudo-kind holding rows with no resolvable owner
// (SPEC_FULL §9 "default-shard accounting"): kind is empty, subject is empty.
func DefaultShardKey() []byte {
	return ShardKey("", nil)
}

// IsDefaultShardKey reports whether key is the default-shard pseudo-prefix.
func IsDefaultShardKey(key []byte) bool {
	return bytes.Equal(key, DefaultShardKey())
}

// RowKey builds shard_key‖pk_bytes.
func RowKey(shardKey, pk []byte) []byte {
	out := make([]byte, 0, len(shardKey)+len(pk))
	out = append(out, shardKey...)
	out = append(out, pk...)
	return out
}

// IndexKey builds shard_key‖indexed_value‖SEP‖pk‖SEP.
func IndexKey(shardKey, indexedValue, pk []byte) []byte {
	out := make([]byte, 0, len(shardKey)+len(indexedValue)+len(pk)+2)
	out = append(out, shardKey...)
	out = append(out, indexedValue...)
	out = append(out, Sep)
	out = append(out, pk...)
	out = append(out, Sep)
	return out
}

// SplitShardKey parses kind and subject_id back out of a shard key.
func SplitShardKey(key []byte) (kind, subjectID []byte, err error) {
	i := bytes.IndexByte(key, Sep)
	if i < 0 {
		return nil, nil, fmt.Errorf("encoding: malformed shard key %q: missing first separator", key)
	}
	rest := key[i+1:]
	j := bytes.IndexByte(rest, Sep)
	if j < 0 {
		return nil, nil, fmt.Errorf("encoding: malformed shard key %q: missing second separator", key)
	}
	return key[:i], rest[:j], nil
}

// PKBytes returns the raw primary-key bytes that follow a row key's shard
// key prefix.
func PKBytes(rowKey []byte) ([]byte, error) {
	firstSep := bytes.IndexByte(rowKey, Sep)
	if firstSep < 0 {
		return nil, fmt.Errorf("encoding: malformed row key %q: missing first separator", rowKey)
	}
	rest := rowKey[firstSep+1:]
	secondSepRel := bytes.IndexByte(rest, Sep)
	if secondSepRel < 0 {
		return nil, fmt.Errorf("encoding: malformed row key %q: missing second separator", rowKey)
	}
	return rest[secondSepRel+1:], nil
}

// HasShardPrefix reports whether key begins with the given shard key, the
// mechanism behind forget/get's "delete all rows whose key prefix matches
// the subject's shard key" (§4.4) and the prefix-iteration fallback in §4.2.
func HasShardPrefix(key, shardKey []byte) bool {
	return bytes.HasPrefix(key, shardKey)
}
