package storageengine

import (
	"path/filepath"
	"testing"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/catalog"
	"github.com/shardkit/shardkit/internal/encoding"
	"github.com/shardkit/shardkit/internal/kv"
)

func openTestEngine(t *testing.T) (*Engine, *catalog.Catalog) {
	t.Helper()
	db, err := kv.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cat := catalog.New()
	return Open(db, cat), cat
}

func usersTable() *ast.CreateTableStmt {
	return &ast.CreateTableStmt{
		TableName:   "users",
		DataSubject: true,
		RawSQL:      "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "name", Type: encoding.TypeText},
		},
	}
}

func TestInsertGetDelete(t *testing.T) {
	e, cat := openTestEngine(t)
	if err := cat.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	tbl, err := cat.GetTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.EnsureTable("users"); err != nil {
		t.Fatal(err)
	}

	shardKey := encoding.ShardKey("users", []byte("1"))
	row := Row{encoding.SignedInt(1), encoding.Text("alice")}
	if err := e.Insert(tbl, shardKey, row); err != nil {
		t.Fatal(err)
	}

	pk, err := encoding.EncodeValue(row[0])
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := e.Get(tbl, shardKey, pk)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got[1].Text != "alice" {
		t.Fatalf("expected name alice, got %+v", got)
	}

	deleted, ok, err := e.Delete(tbl, shardKey, pk)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if deleted[1].Text != "alice" {
		t.Fatalf("expected deleted row to carry old value, got %+v", deleted)
	}
	if _, ok, err := e.Get(tbl, shardKey, pk); err != nil || ok {
		t.Fatalf("expected row gone after delete, ok=%v err=%v", ok, err)
	}
}

func TestInsertRejectsSeparatorInValue(t *testing.T) {
	e, cat := openTestEngine(t)
	if err := cat.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	tbl, _ := cat.GetTable("users")
	if err := e.EnsureTable("users"); err != nil {
		t.Fatal(err)
	}
	shardKey := encoding.ShardKey("users", []byte("1"))
	bad := Row{encoding.SignedInt(1), encoding.Text("a\x1eb")}
	if err := e.Insert(tbl, shardKey, bad); err == nil {
		t.Fatal("expected separator-in-value to be rejected")
	}
}

func TestUpdateChangesRowAndMaintainsIndex(t *testing.T) {
	e, cat := openTestEngine(t)
	if err := cat.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	if err := cat.CreateIndex(&ast.CreateIndexStmt{IndexName: "idx_name", TableName: "users", IndexedColumn: "name"}); err != nil {
		t.Fatal(err)
	}
	tbl, _ := cat.GetTable("users")
	if err := e.EnsureTable("users"); err != nil {
		t.Fatal(err)
	}

	shardKey := encoding.ShardKey("users", []byte("1"))
	row := Row{encoding.SignedInt(1), encoding.Text("alice")}
	if err := e.Insert(tbl, shardKey, row); err != nil {
		t.Fatal(err)
	}
	pk, _ := encoding.EncodeValue(row[0])

	idxDescs := cat.PhysicalIndicesOn("users")
	if len(idxDescs) != 1 {
		t.Fatalf("expected one physical index on users, got %d", len(idxDescs))
	}

	nameVal, _ := encoding.EncodeValue(encoding.Text("alice"))
	pks, _, err := e.LookupByIndex(tbl, idxDescs[0], shardKey, nameVal)
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 1 {
		t.Fatalf("expected alice indexed once before update, got %d", len(pks))
	}

	if err := e.Update(tbl, shardKey, pk, Row{encoding.SignedInt(1), encoding.Text("bob")}); err != nil {
		t.Fatal(err)
	}

	pks, _, err = e.LookupByIndex(tbl, idxDescs[0], shardKey, nameVal)
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 0 {
		t.Fatalf("expected alice to no longer be indexed after rename, got %d", len(pks))
	}

	bobVal, _ := encoding.EncodeValue(encoding.Text("bob"))
	pks, rows, err := e.LookupByIndex(tbl, idxDescs[0], shardKey, bobVal)
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 1 || rows[0][0].Int != 1 || rows[0][1].Text != "bob" {
		t.Fatalf("expected bob indexed exactly once pointing at pk 1, got pks=%v rows=%+v", pks, rows)
	}
}

func TestScanShardAndDeleteShardPrefix(t *testing.T) {
	e, cat := openTestEngine(t)
	if err := cat.CreateTable(usersTable()); err != nil {
		t.Fatal(err)
	}
	tbl, _ := cat.GetTable("users")
	if err := e.EnsureTable("users"); err != nil {
		t.Fatal(err)
	}

	shardA := encoding.ShardKey("users", []byte("1"))
	shardB := encoding.ShardKey("users", []byte("2"))
	if err := e.Insert(tbl, shardA, Row{encoding.SignedInt(1), encoding.Text("alice")}); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(tbl, shardB, Row{encoding.SignedInt(2), encoding.Text("bob")}); err != nil {
		t.Fatal(err)
	}

	var seen int
	if err := e.ScanShard(tbl, shardA, func(pk []byte, row Row) (bool, error) {
		seen++
		return true, nil
	}); err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Fatalf("expected exactly one row in shardA, saw %d", seen)
	}

	n, err := e.DeleteShardPrefix(tbl, shardA)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected DeleteShardPrefix to remove 1 row, removed %d", n)
	}

	var total int
	if err := e.ScanAll(tbl, func(shardKey, pk []byte, row Row) (bool, error) {
		total++
		return true, nil
	}); err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("expected bob's row to remain after forgetting shardA, saw %d rows", total)
	}
}

// joinedChainTables builds users (data subject) -> posts (DIRECT owner of
// users) -> comments (TRANSITIVE via a SIMPLE index over posts.id) ->
// replies (TRANSITIVE via a JOINED index composing comments' own index one
// hop further, since comments itself resolves TRANSITIVE rather than
// DIRECT). replies' resolving index is the JOINED case LookupByIndex and
// LookupIndexAcrossShards must recurse through.
func joinedChainTables(t *testing.T, cat *catalog.Catalog) (users, posts, comments, replies *catalog.Table) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("schema setup: %v", err)
		}
	}
	must(cat.CreateTable(&ast.CreateTableStmt{
		TableName:   "users",
		DataSubject: true,
		RawSQL:      "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "name", Type: encoding.TypeText},
		},
	}))
	must(cat.CreateTable(&ast.CreateTableStmt{
		TableName: "posts",
		RawSQL:    "CREATE TABLE posts (id INT PRIMARY KEY, user_id INT, body TEXT)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "user_id", Type: encoding.TypeSignedInt, FKTable: "users", FKColumn: "id"},
			{Name: "body", Type: encoding.TypeText},
		},
	}))
	must(cat.CreateTable(&ast.CreateTableStmt{
		TableName: "comments",
		RawSQL:    "CREATE TABLE comments (id INT PRIMARY KEY, post_id INT, text TEXT)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "post_id", Type: encoding.TypeSignedInt, FKTable: "posts", FKColumn: "id"},
			{Name: "text", Type: encoding.TypeText},
		},
	}))
	must(cat.CreateTable(&ast.CreateTableStmt{
		TableName: "replies",
		RawSQL:    "CREATE TABLE replies (id INT PRIMARY KEY, comment_id INT, text TEXT)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "comment_id", Type: encoding.TypeSignedInt, FKTable: "comments", FKColumn: "id"},
			{Name: "text", Type: encoding.TypeText},
		},
	}))

	var err error
	users, err = cat.GetTable("users")
	must(err)
	posts, err = cat.GetTable("posts")
	must(err)
	comments, err = cat.GetTable("comments")
	must(err)
	replies, err = cat.GetTable("replies")
	must(err)
	return users, posts, comments, replies
}

func TestLookupIndexAcrossShardsResolvesJoinedChain(t *testing.T) {
	e, cat := openTestEngine(t)
	users, posts, comments, replies := joinedChainTables(t, cat)
	for _, name := range []string{"users", "posts", "comments", "replies"} {
		if err := e.EnsureTable(name); err != nil {
			t.Fatal(err)
		}
	}

	userShard := encoding.ShardKey("users", []byte("1"))
	if err := e.Insert(users, userShard, Row{encoding.SignedInt(1), encoding.Text("alice")}); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(posts, userShard, Row{encoding.SignedInt(10), encoding.SignedInt(1), encoding.Text("hello")}); err != nil {
		t.Fatal(err)
	}
	if err := e.Insert(comments, userShard, Row{encoding.SignedInt(100), encoding.SignedInt(10), encoding.Text("nice")}); err != nil {
		t.Fatal(err)
	}

	repliesDesc := replies.Owners[0]
	if repliesDesc.Type != catalog.Transitive {
		t.Fatalf("expected replies to resolve TRANSITIVE, got %v", repliesDesc.Type)
	}
	joined := repliesDesc.Transitive.Index
	if joined.Kind != catalog.JoinedIndex {
		t.Fatalf("expected replies' resolving index to be JOINED, got %v", joined.Kind)
	}

	commentID, err := encoding.EncodeValue(encoding.SignedInt(100))
	if err != nil {
		t.Fatal(err)
	}

	shardKeys, _, err := e.LookupIndexAcrossShards(joined, commentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(shardKeys) != 1 || string(shardKeys[0]) != string(userShard) {
		t.Fatalf("expected the two-hop chain to resolve to alice's shard, got %v", shardKeys)
	}

	// LookupByIndex composes the same chain within a known shard, bottoming
	// out at posts (the table the innermost SIMPLE index is built over).
	pks, rows, err := e.LookupByIndex(posts, joined, userShard, commentID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pks) != 1 || len(rows) != 1 || rows[0][2].Text != "hello" {
		t.Fatalf("expected LookupByIndex to resolve through to post 10, got pks=%v rows=%+v", pks, rows)
	}
}
