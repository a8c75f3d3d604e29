package catalog

import (
	"testing"

	"github.com/shardkit/shardkit/internal/ast"
	"github.com/shardkit/shardkit/internal/encoding"
)

func userTable() *ast.CreateTableStmt {
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

func TestCreateTableDataSubject(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	tbl, err := c.GetTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if !tbl.IsDataSubject {
		t.Fatal("expected users to be a data subject")
	}
	if len(tbl.Owners) != 1 || tbl.Owners[0].Type != Direct {
		t.Fatalf("expected one DIRECT owner descriptor, got %+v", tbl.Owners)
	}
}

func TestCreateTableDirectOwner(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	posts := &ast.CreateTableStmt{
		TableName: "posts",
		RawSQL:    "CREATE TABLE posts (id INT PRIMARY KEY, owner_id INT OWNER REFERENCES users(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "owner_id", Type: encoding.TypeSignedInt, Annotation: ast.AnnotationOwner, FKTable: "users", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(posts); err != nil {
		t.Fatal(err)
	}
	tbl, err := c.GetTable("posts")
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Owners) != 1 {
		t.Fatalf("expected one owner descriptor, got %d", len(tbl.Owners))
	}
	d := tbl.Owners[0]
	if d.ShardKind != "users" || d.Type != Direct {
		t.Fatalf("expected DIRECT owner by users, got %+v", d)
	}
	if d.Direct.Column != "owner_id" {
		t.Fatalf("expected direct column owner_id, got %q", d.Direct.Column)
	}
}

func TestCreateTableImplicitOwnerAmbiguous(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	orgTable := &ast.CreateTableStmt{
		TableName:   "orgs",
		DataSubject: true,
		RawSQL:      "CREATE TABLE orgs (id INT PRIMARY KEY)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
		},
	}
	if err := c.CreateTable(orgTable); err != nil {
		t.Fatal(err)
	}
	ambiguous := &ast.CreateTableStmt{
		TableName: "memberships",
		RawSQL:    "CREATE TABLE memberships (id INT PRIMARY KEY, uid INT REFERENCES users(id), oid INT REFERENCES orgs(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "uid", Type: encoding.TypeSignedInt, FKTable: "users", FKColumn: "id"},
			{Name: "oid", Type: encoding.TypeSignedInt, FKTable: "orgs", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(ambiguous); err == nil {
		t.Fatal("expected ambiguous-implicit-owner error")
	}
}

func TestCreateTableOnlyAnnotationSuppressesImplicitOwner(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	// "receiver" carries ONLY, so it must not count as a second implicit
	// owner alongside the unannotated "sender" FK — both reference users.
	receipts := &ast.CreateTableStmt{
		TableName: "receipts",
		RawSQL:    "CREATE TABLE receipts (id INT PRIMARY KEY, sender INT REFERENCES users(id), receiver INT ONLY REFERENCES users(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "sender", Type: encoding.TypeSignedInt, FKTable: "users", FKColumn: "id"},
			{Name: "receiver", Type: encoding.TypeSignedInt, Annotation: ast.AnnotationOnly, FKTable: "users", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(receipts); err != nil {
		t.Fatalf("expected ONLY to suppress the ambiguous-owner error, got: %v", err)
	}
	tbl, err := c.GetTable("receipts")
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Owners) != 1 || tbl.Owners[0].Type != Direct || tbl.Owners[0].Direct.Column != "sender" {
		t.Fatalf("expected a single DIRECT owner on sender, got %+v", tbl.Owners)
	}
}

func TestCreateTableTransitiveOwner(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	posts := &ast.CreateTableStmt{
		TableName: "posts",
		RawSQL:    "CREATE TABLE posts (id INT PRIMARY KEY, owner_id INT OWNER REFERENCES users(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "owner_id", Type: encoding.TypeSignedInt, Annotation: ast.AnnotationOwner, FKTable: "users", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(posts); err != nil {
		t.Fatal(err)
	}
	comments := &ast.CreateTableStmt{
		TableName: "comments",
		RawSQL:    "CREATE TABLE comments (id INT PRIMARY KEY, post_id INT OWNER REFERENCES posts(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "post_id", Type: encoding.TypeSignedInt, Annotation: ast.AnnotationOwner, FKTable: "posts", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(comments); err != nil {
		t.Fatal(err)
	}
	tbl, err := c.GetTable("comments")
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Owners) != 1 || tbl.Owners[0].Type != Transitive {
		t.Fatalf("expected one TRANSITIVE owner descriptor, got %+v", tbl.Owners)
	}
	if tbl.Owners[0].Transitive.Index == nil {
		t.Fatal("expected a secondary index backing the transitive descriptor")
	}
}

func TestCreateTableOwnsPropagatesVariable(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	// groups is created before memberships gains an OWNS FK onto it.
	groups := &ast.CreateTableStmt{
		TableName: "groups",
		RawSQL:    "CREATE TABLE groups (id INT PRIMARY KEY)",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
		},
	}
	if err := c.CreateTable(groups); err != nil {
		t.Fatal(err)
	}
	memberships := &ast.CreateTableStmt{
		TableName: "memberships",
		RawSQL:    "CREATE TABLE memberships (id INT PRIMARY KEY, uid INT OWNER REFERENCES users(id), gid INT OWNS REFERENCES groups(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "uid", Type: encoding.TypeSignedInt, Annotation: ast.AnnotationOwner, FKTable: "users", FKColumn: "id"},
			{Name: "gid", Type: encoding.TypeSignedInt, Annotation: ast.AnnotationOwns, FKTable: "groups", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(memberships); err != nil {
		t.Fatal(err)
	}
	grp, err := c.GetTable("groups")
	if err != nil {
		t.Fatal(err)
	}
	if len(grp.Owners) != 1 || grp.Owners[0].Type != Variable {
		t.Fatalf("expected groups to gain one VARIABLE owner descriptor, got %+v", grp.Owners)
	}
	if grp.Owners[0].ShardKind != "users" {
		t.Fatalf("expected groups' new owner descriptor to be of kind users, got %q", grp.Owners[0].ShardKind)
	}
}

func TestCreateTableRejectsUnknownFKTable(t *testing.T) {
	c := New()
	bad := &ast.CreateTableStmt{
		TableName: "posts",
		RawSQL:    "CREATE TABLE posts (id INT PRIMARY KEY, owner_id INT REFERENCES ghosts(id))",
		Columns: []ast.ColumnDef{
			{Name: "id", Type: encoding.TypeSignedInt, PrimaryKey: true},
			{Name: "owner_id", Type: encoding.TypeSignedInt, FKTable: "ghosts", FKColumn: "id"},
		},
	}
	if err := c.CreateTable(bad); err == nil {
		t.Fatal("expected error for FK pointing at nonexistent table")
	}
}

func TestCreateIndexExplicit(t *testing.T) {
	c := New()
	if err := c.CreateTable(userTable()); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateIndex(&ast.CreateIndexStmt{IndexName: "idx_name", TableName: "users", IndexedColumn: "name"}); err != nil {
		t.Fatal(err)
	}
	idxs, err := c.AllIndices("users")
	if err != nil {
		t.Fatal(err)
	}
	if len(idxs) != 1 || !idxs[0].Explicit {
		t.Fatalf("expected one explicit index, got %+v", idxs)
	}
	if err := c.CreateIndex(&ast.CreateIndexStmt{IndexName: "idx_name2", TableName: "users", IndexedColumn: "name"}); err == nil {
		t.Fatal("expected duplicate index error")
	}
}
