package pageradapter

import (
	"context"
	"testing"

	"github.com/SimonWaldherr/tinySQL"

	"github.com/relcache/pagedb/internal/pager"
)

func execOrFatal(t *testing.T, db *tinysql.DB, tenant, sql string) {
	t.Helper()
	stmt, err := tinysql.ParseSQL(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	if _, err := tinysql.Execute(context.Background(), db, tenant, stmt); err != nil {
		t.Fatalf("execute %q: %v", sql, err)
	}
}

func seedDB(t *testing.T, n int) *tinysql.DB {
	t.Helper()
	db := tinysql.NewDB()
	execOrFatal(t, db, "default", `CREATE TABLE widgets (id INT, name TEXT)`)
	for i := 0; i < n; i++ {
		execOrFatal(t, db, "default",
			"INSERT INTO widgets (id, name) VALUES ("+itoa(i)+", 'w"+itoa(i)+"')")
	}
	return db
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestAdapterServesWindowedQueryThroughPager(t *testing.T) {
	db := seedDB(t, 20)
	conn := New(db, "default")
	p := pager.New()

	rec, err := p.Query(context.Background(), conn,
		"SELECT id, name FROM widgets LIMIT ? OFFSET ?",
		[]pager.Literal{pager.IntLiteral(5), pager.IntLiteral(10)}, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a handled windowed query")
	}
	if rec.NRows() != 5 {
		t.Fatalf("NRows = %d, want 5", rec.NRows())
	}
	if len(rec.Columns()) != 2 {
		t.Fatalf("Columns = %v, want 2 entries", rec.Columns())
	}
}

func TestAdapterChangeCounterAdvancesOnWrite(t *testing.T) {
	db := seedDB(t, 5)
	conn := New(db, "default")
	tx, err := conn.BeginRead(context.Background())
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	before, err := tx.ChangeCounter(context.Background())
	if err != nil {
		t.Fatalf("ChangeCounter: %v", err)
	}

	execOrFatal(t, db, "default", `INSERT INTO widgets (id, name) VALUES (99, 'new')`)

	tx2, _ := conn.BeginRead(context.Background())
	after, err := tx2.ChangeCounter(context.Background())
	if err != nil {
		t.Fatalf("ChangeCounter: %v", err)
	}
	if after <= before {
		t.Fatalf("ChangeCounter did not advance after a write: before=%d after=%d", before, after)
	}
}

func TestAdapterRepeatedQueryHitsPagerCache(t *testing.T) {
	db := seedDB(t, 20)
	conn := New(db, "default")
	p := pager.New()
	query := "SELECT id, name FROM widgets LIMIT ? OFFSET ?"
	args := []pager.Literal{pager.IntLiteral(5), pager.IntLiteral(0)}

	if _, err := p.Query(context.Background(), conn, query, args, nil); err != nil {
		t.Fatalf("first Query: %v", err)
	}
	if _, err := p.Query(context.Background(), conn, query, args, nil); err != nil {
		t.Fatalf("second Query: %v", err)
	}
	if p.CacheHitCount != 1 {
		t.Fatalf("CacheHitCount = %d, want 1", p.CacheHitCount)
	}
}

func TestAdapterBindEscapesTextLiteral(t *testing.T) {
	db := tinysql.NewDB()
	execOrFatal(t, db, "default", `CREATE TABLE notes (id INT, body TEXT)`)
	conn := New(db, "default")
	p := pager.New()

	tx, _ := conn.BeginRead(context.Background())
	stmt, err := tx.Prepare(context.Background(), "INSERT INTO notes (id, body) VALUES (1, ?)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stmt.Bind(0, pager.TextLiteral("it's fine")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := stmt.ColumnNames(); err != nil {
		t.Fatalf("ColumnNames: %v", err)
	}

	rec, err := p.Query(context.Background(), conn,
		"SELECT id, body FROM notes LIMIT ? OFFSET ?",
		[]pager.Literal{pager.IntLiteral(5), pager.IntLiteral(0)}, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rec == nil || rec.NRows() != 1 {
		t.Fatalf("expected one inserted row to be visible, got %+v", rec)
	}
}
