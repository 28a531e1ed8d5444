package pager

import (
	"context"
	"strings"
)

// fakeTable is a minimal in-memory table backing the test double below. It
// stands in for the real embedded engine the way the abstract Conn/Tx/Stmt
// contract in engine.go intends: the pager package itself never imports an
// engine implementation, so its tests exercise the contract directly.
type fakeTable struct {
	columns []string
	rows    [][]Value
	version int64
}

func textRow(vals ...string) []Value {
	row := make([]Value, len(vals))
	for i, v := range vals {
		row[i] = Value{Kind: ValueText, Text: v}
	}
	return row
}

type fakeConn struct{ t *fakeTable }

func (c *fakeConn) BeginRead(ctx context.Context) (Tx, error) {
	return &fakeTx{t: c.t}, nil
}

type fakeTx struct{ t *fakeTable }

func (tx *fakeTx) ChangeCounter(ctx context.Context) (int64, error) { return tx.t.version, nil }
func (tx *fakeTx) Close() error                                     { return nil }

func (tx *fakeTx) Prepare(ctx context.Context, query string) (Stmt, error) {
	return &fakeStmt{t: tx.t, query: query, current: -1}, nil
}

// fakeStmt implements the window query `SELECT ... LIMIT ? OFFSET ?` against
// a fakeTable: Bind position len-2 is limit, len-1 is offset, matching the
// positional convention pager.go itself relies on.
type fakeStmt struct {
	t       *fakeTable
	query   string
	limit   int64
	offset  int64
	next    int64 // next row index Step will try to serve
	current int64 // row index ColumnRef reads from, valid after a true Step
}

func (s *fakeStmt) Bind(position int, lit Literal) error {
	n := strings.Count(s.query, "?")
	if position == n-2 {
		v, _ := lit.AsInt()
		s.limit = v
	}
	if position == n-1 {
		v, _ := lit.AsInt()
		s.offset = v
		s.next = v
	}
	return nil
}

func (s *fakeStmt) ColumnNames() ([]string, error) {
	return append([]string(nil), s.t.columns...), nil
}

func (s *fakeStmt) Step(ctx context.Context) (bool, error) {
	if s.next >= s.offset+s.limit || int(s.next) >= len(s.t.rows) {
		return false, nil
	}
	s.current = s.next
	s.next++
	return true, nil
}

func (s *fakeStmt) ColumnRef(i int) (Value, error) {
	return s.t.rows[s.current][i], nil
}

func (s *fakeStmt) Close() error { return nil }
