// Package pageradapter is the C5 engine-adapter binding (spec.md §6): it
// implements pager.Conn/Tx/Stmt against github.com/SimonWaldherr/tinySQL, a
// real embeddable SQL engine imported as a module dependency rather than
// vendored in this repository — the same relationship the original Rust
// program has to rusqlite/libsqlite3.
//
// What: translates the pager's abstract prepare/bind/step contract into
// tinySQL's actual execution model, which parses and runs a statement to
// completion and returns one fully materialized tinysql.ResultSet rather
// than offering a row-by-row cursor.
// How: Prepare defers parsing until every parameter has been bound, then
// substitutes bound literals into the raw SQL text exactly as tinySQL's own
// internal/driver's bindPlaceholders does, parses and executes the
// substituted text via tinysql.ParseSQL/tinysql.Execute, and replays the
// resulting ResultSet's rows through Step/ColumnRef. ChangeCounter sums
// every table's Version in the tenant, a quantity tinySQL already
// increments on every committed DML statement, standing in for a PRAGMA
// data_version equivalent the engine does not otherwise expose.
// Why: internal/pager must stay storage-agnostic so its algorithm can be
// tested against a fake engine (see internal/pager's own tests); this
// package is the only one that is allowed to know both the pager's
// contract and tinySQL's concrete API.
package pageradapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/SimonWaldherr/tinySQL"

	"github.com/relcache/pagedb/internal/pager"
)

// DB adapts a *tinysql.DB for one tenant to pager.Conn.
type DB struct {
	db     *tinysql.DB
	tenant string
}

// New returns a pager.Conn bound to one tenant of db. Every pager.Query call
// made through this connection observes exactly that tenant's tables.
func New(db *tinysql.DB, tenant string) *DB {
	return &DB{db: db, tenant: tenant}
}

// BeginRead implements pager.Conn. tinySQL has no explicit read-transaction
// handle of its own; Tx here is a lightweight value capturing the tenant and
// a reference to the shared *tinysql.DB, matching how tinySQL's own driver
// package treats reads.
func (d *DB) BeginRead(ctx context.Context) (pager.Tx, error) {
	return &tx{db: d.db, tenant: d.tenant}, nil
}

type tx struct {
	db     *tinysql.DB
	tenant string
}

// ChangeCounter sums the per-table Version counters tinySQL bumps on every
// committed INSERT/UPDATE/DELETE/etc. The sum strictly increases whenever
// any table in the tenant is mutated and never decreases, satisfying the
// monotonic contract spec.md §6 requires.
func (t *tx) ChangeCounter(ctx context.Context) (int64, error) {
	var sum int64
	for _, tbl := range t.db.ListTables(t.tenant) {
		sum += int64(tbl.Version)
	}
	return sum, nil
}

func (t *tx) Close() error { return nil }

func (t *tx) Prepare(ctx context.Context, query string) (pager.Stmt, error) {
	return &stmt{tx: t, rawQuery: query}, nil
}

// stmt accumulates bound parameters and defers parsing/execution until the
// caller asks for columns or the first row, since tinySQL offers no
// separate prepare step (spec.md §6's Stmt contract tolerates this: both
// ColumnNames and Step are only required to work once every parameter has
// been bound).
type stmt struct {
	tx       *tx
	rawQuery string
	args     []pager.Literal

	built  bool
	cols   []string
	colKey []string // lower-cased column names, for Row map lookups
	rows   []tinysql.Row
	cursor int
}

func (s *stmt) Bind(position int, lit pager.Literal) error {
	for position >= len(s.args) {
		s.args = append(s.args, pager.NullLiteral())
	}
	s.args[position] = lit
	return nil
}

func (s *stmt) build(ctx context.Context) error {
	if s.built {
		return nil
	}
	sqlText, err := substitutePlaceholders(s.rawQuery, s.args)
	if err != nil {
		return err
	}
	parsed, err := tinysql.ParseSQL(sqlText)
	if err != nil {
		return fmt.Errorf("pageradapter: parse %q: %w", sqlText, err)
	}
	rs, err := tinysql.Execute(ctx, s.tx.db, s.tx.tenant, parsed)
	if err != nil {
		return err
	}
	s.cols = append([]string(nil), rs.Cols...)
	s.colKey = make([]string, len(s.cols))
	for i, c := range s.cols {
		s.colKey[i] = strings.ToLower(c)
	}
	s.rows = rs.Rows
	s.cursor = -1
	s.built = true
	return nil
}

func (s *stmt) ColumnNames() ([]string, error) {
	if err := s.build(context.Background()); err != nil {
		return nil, err
	}
	return append([]string(nil), s.cols...), nil
}

func (s *stmt) Step(ctx context.Context) (bool, error) {
	if err := s.build(ctx); err != nil {
		return false, err
	}
	s.cursor++
	return s.cursor < len(s.rows), nil
}

func (s *stmt) ColumnRef(i int) (pager.Value, error) {
	if s.cursor < 0 || s.cursor >= len(s.rows) {
		return pager.Value{}, fmt.Errorf("pageradapter: ColumnRef called outside a valid row")
	}
	return goValueToPagerValue(s.rows[s.cursor][s.colKey[i]]), nil
}

func (s *stmt) Close() error { return nil }
