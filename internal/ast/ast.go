// Package ast defines the typed AST contract the SQL engine (C6) consumes
// (§6 "AST contract (input)"). The parser itself is out of scope (§1); this
// package only fixes the shape a parser must hand the engine.
package ast

import "github.com/shardkit/shardkit/internal/encoding"

// StatementKind tags the outer statement type.
type StatementKind int

const (
	KindCreateTable StatementKind = iota
	KindInsert
	KindReplace
	KindUpdate
	KindDelete
	KindSelect
	KindForget
	KindGet
	KindExplainPrivacy
	KindCreateIndex
)

// Statement is the root node the engine dispatches on.
type Statement struct {
	Kind StatementKind

	CreateTable *CreateTableStmt
	CreateIndex *CreateIndexStmt
	Insert      *InsertStmt
	Replace     *ReplaceStmt
	Update      *UpdateStmt
	Delete      *DeleteStmt
	Select      *SelectStmt
	Forget      *ForgetStmt
	Get         *GetStmt
	Explain     *ExplainStmt
}

// Annotation is the FK-role annotation vocabulary of §3.2.
type Annotation int

const (
	AnnotationNone Annotation = iota
	AnnotationOwner
	AnnotationAccessor
	AnnotationOwns
	AnnotationAccesses
	AnnotationOnly
)

// ColumnDef is one column of a CREATE TABLE, including its raw FK and
// annotation metadata (the engine resolves these into ShardDescriptors).
type ColumnDef struct {
	Name       string
	Type       encoding.Type
	Nullable   bool
	PrimaryKey bool

	// FK, if non-empty, names the referenced table; FKColumn the referenced
	// column (must be that table's PK per §3.2's validity predicate).
	FKTable  string
	FKColumn string

	Annotation Annotation
	// Data-subject status belongs to the table, not to a column: see
	// CreateTableStmt.DataSubject.
}

// CreateTableStmt is the engine's view of a CREATE TABLE, verbatim text
// included for replay on database open (§4.4, §6).
type CreateTableStmt struct {
	TableName   string
	Columns     []ColumnDef
	DataSubject bool
	RawSQL      string
}

// CreateIndexStmt requests an explicit secondary index (beyond those the
// engine derives automatically from ownership annotations).
type CreateIndexStmt struct {
	IndexName     string
	TableName     string
	IndexedColumn string
	RawSQL        string
}

// InsertStmt carries one row's literal values, positional by schema order.
type InsertStmt struct {
	TableName string
	Values    []encoding.Value
}

// ReplaceStmt mirrors InsertStmt; REPLACE differs only in engine handling (§4.4).
type ReplaceStmt struct {
	TableName string
	Values    []encoding.Value
}

// Assignment is one `column = expr` pair of an UPDATE's SET list.
type Assignment struct {
	Column string
	Value  encoding.Value
}

type UpdateStmt struct {
	TableName string
	Set       []Assignment
	Where     *Expr // nil means every row
}

type DeleteStmt struct {
	TableName string
	Where     *Expr // nil means every row
}

// Projection selects either every column (Star) or a named subset.
type SelectStmt struct {
	TableName string
	Star      bool
	Columns   []string
	Where     *Expr // nil means every row
	Limit     int // 0 means unbounded
	HasLimit  bool
}

type ForgetStmt struct {
	ShardKind string
	SubjectID encoding.Value
}

type GetStmt struct {
	ShardKind string
	SubjectID encoding.Value
}

type ExplainStmt struct {
	// Empty TableName means "explain the whole catalog".
	TableName string
}

// ExprKind tags a WHERE-clause expression node.
type ExprKind int

const (
	ExprEQ ExprKind = iota
	ExprGT
	ExprAND
	ExprOR
	ExprIN
	ExprLiteral
	ExprColumn
	ExprLiteralList
)

// Expr is a binary expression tree over {EQ, AND, OR, GT, IN, LITERAL,
// COLUMN, LITERAL_LIST} nodes (§6).
type Expr struct {
	Kind ExprKind

	// COLUMN
	Column string
	// LITERAL
	Literal encoding.Value
	// LITERAL_LIST (right-hand side of IN)
	Literals []encoding.Value

	// EQ, GT, AND, OR, IN: Left/Right children. For EQ/GT/IN, Left is
	// conventionally the COLUMN node and Right the LITERAL/LITERAL_LIST node.
	Left  *Expr
	Right *Expr
}

// IsEmpty reports whether a WHERE clause is absent (matches every row).
func (e *Expr) IsEmpty() bool { return e == nil }
