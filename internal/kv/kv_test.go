package kv

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCF("rows"); err != nil {
		t.Fatal(err)
	}
	if err := db.Put("rows", []byte("k1"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.Get("rows", []byte("k1"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("got v=%q ok=%v err=%v", v, ok, err)
	}
	if err := db.Delete("rows", []byte("k1")); err != nil {
		t.Fatal(err)
	}
	_, ok, err = db.Get("rows", []byte("k1"))
	if err != nil || ok {
		t.Fatalf("expected key gone, ok=%v err=%v", ok, err)
	}
}

func TestPutOverwrites(t *testing.T) {
	db := openTestDB(t)
	db.CreateCF("rows")
	db.Put("rows", []byte("k"), []byte("v1"))
	db.Put("rows", []byte("k"), []byte("v2"))
	v, ok, err := db.Get("rows", []byte("k"))
	if err != nil || !ok || string(v) != "v2" {
		t.Fatalf("got v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestIteratePrefix(t *testing.T) {
	db := openTestDB(t)
	db.CreateCF("idx")
	db.Put("idx", []byte("user\x1e1\x1ea"), []byte(""))
	db.Put("idx", []byte("user\x1e1\x1eb"), []byte(""))
	db.Put("idx", []byte("user\x1e2\x1ea"), []byte(""))

	var got []string
	err := db.IteratePrefix("idx", []byte("user\x1e1\x1e"), func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return true, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys under prefix, got %v", got)
	}
}

func TestDeletePrefix(t *testing.T) {
	db := openTestDB(t)
	db.CreateCF("rows")
	db.Put("rows", []byte("user\x1e1\x1ea"), []byte("x"))
	db.Put("rows", []byte("user\x1e1\x1eb"), []byte("x"))
	db.Put("rows", []byte("user\x1e2\x1ea"), []byte("x"))

	n, err := db.DeletePrefix("rows", []byte("user\x1e1\x1e"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	_, ok, _ := db.Get("rows", []byte("user\x1e2\x1ea"))
	if !ok {
		t.Fatal("unrelated shard's row was deleted")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	db.CreateCF("rows")
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.Put("rows", []byte("k"), []byte("v")); err != nil {
			return err
		}
		return errSentinel
	})
	if err != errSentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	_, ok, _ := db.Get("rows", []byte("k"))
	if ok {
		t.Fatal("expected rollback to discard the write")
	}
}

func TestPrefixUpperBound(t *testing.T) {
	ub := PrefixUpperBound([]byte("ab"))
	if string(ub) != "ac" {
		t.Fatalf("got %q, want %q", ub, "ac")
	}
	if PrefixUpperBound([]byte{0xFF, 0xFF}) != nil {
		t.Fatal("expected nil upper bound for all-0xFF prefix")
	}
}

var errSentinel = &sentinelErr{}

type sentinelErr struct{}

func (*sentinelErr) Error() string { return "sentinel" }
