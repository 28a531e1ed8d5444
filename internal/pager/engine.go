package pager

import "context"

// The types below are the engine-adapter contract of spec.md §6. The pager
// never embeds engine specifics beyond this interface; a concrete binding
// against this repository's embedded engine lives in package pageradapter.

// ValueKind tags the dynamic type a column cell reference carries.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueText
	ValueBlob
)

// Value is a typed reference to one column cell of the current row,
// produced by Stmt.ColumnRef. Text values may contain bytes that are not
// valid UTF-8; the pager's encoder (not the adapter) is responsible for
// invoking the caller's on_invalid_utf8 callback when that happens.
type Value struct {
	Kind ValueKind
	I64  int64
	F64  float64
	Bool bool
	Text string
	Blob []byte
}

// Conn begins a read transaction guaranteeing a stable snapshot for its
// duration (spec.md §6).
type Conn interface {
	BeginRead(ctx context.Context) (Tx, error)
}

// Tx is a live read transaction. ChangeCounter reads an integer that
// strictly changes whenever any committed write has occurred since the
// last read, across all sessions on the same database (spec.md's "change
// counter", modelled after PRAGMA data_version).
type Tx interface {
	ChangeCounter(ctx context.Context) (int64, error)
	Prepare(ctx context.Context, query string) (Stmt, error)
	// Close releases the transaction. Safe to call multiple times.
	// Read-only semantics: commit and abort are equivalent.
	Close() error
}

// Stmt is a prepared statement bound positionally. Bind must be called for
// every parameter before ColumnNames or Step; both are available as soon
// as every parameter has been bound, independent of whether the statement
// produces any rows.
type Stmt interface {
	Bind(position int, lit Literal) error
	ColumnNames() (cols []string, err error)
	// Step advances to the next row. ok is false and err is nil when the
	// statement is exhausted ("done" in spec.md §6's step() contract).
	Step(ctx context.Context) (ok bool, err error)
	// ColumnRef returns the i-th column of the row most recently produced
	// by Step. Valid only between a Step call that returned (true, nil)
	// and the next Step/Close call.
	ColumnRef(i int) (Value, error)
	Close() error
}
