package pager

import (
	"testing"
	"time"
)

func TestDirectoryResolveCreatesThenReuses(t *testing.T) {
	var d Directory
	e1 := d.Resolve("SELECT 1", []Literal{IntLiteral(5), IntLiteral(0)})
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after first resolve", d.Len())
	}
	e2 := d.Resolve("SELECT 1", []Literal{IntLiteral(9), IntLiteral(3)})
	if e1 != e2 {
		t.Fatalf("expected the same entry when only the trailing limit/offset differ")
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after a repeat resolve", d.Len())
	}
}

func TestDirectoryResolveDistinguishesBoundParams(t *testing.T) {
	var d Directory
	e1 := d.Resolve("SELECT 1 WHERE x = ?", []Literal{TextLiteral("a"), IntLiteral(5), IntLiteral(0)})
	e2 := d.Resolve("SELECT 1 WHERE x = ?", []Literal{TextLiteral("b"), IntLiteral(5), IntLiteral(0)})
	if e1 == e2 {
		t.Fatalf("entries with different bound params must not share a cache entry")
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
}

func TestDirectoryTotalSizeSumsEntries(t *testing.T) {
	var d Directory
	d.Resolve("q1", []Literal{IntLiteral(1), IntLiteral(0)})
	d.Resolve("q2", []Literal{IntLiteral(1), IntLiteral(0)})
	if d.TotalSize() == 0 {
		t.Fatalf("expected a non-zero total size with entries present")
	}
}

func TestDirectoryEvictOneRemovesOldestAccessed(t *testing.T) {
	var d Directory
	older := d.Resolve("q1", []Literal{IntLiteral(1), IntLiteral(0)})
	older.lastAccessed = older.lastAccessed.Add(-1 * time.Hour)
	d.Resolve("q2", []Literal{IntLiteral(1), IntLiteral(0)})

	d.EvictOne()
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after evicting one of two entries", d.Len())
	}
	if d.entries[0].query != "q2" {
		t.Fatalf("evicted the wrong entry: kept %q, want q2", d.entries[0].query)
	}
}

func TestDirectoryEvictOneOnEmptyIsNoop(t *testing.T) {
	var d Directory
	d.EvictOne()
	if d.Len() != 0 {
		t.Fatalf("Len = %d, want 0", d.Len())
	}
}

func TestDirectoryClearRemovesAllEntries(t *testing.T) {
	var d Directory
	d.Resolve("q1", []Literal{IntLiteral(1), IntLiteral(0)})
	d.Resolve("q2", []Literal{IntLiteral(1), IntLiteral(0)})
	d.Clear()
	if d.Len() != 0 {
		t.Fatalf("Len = %d after Clear, want 0", d.Len())
	}
}
