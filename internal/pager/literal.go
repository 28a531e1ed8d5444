// Package pager implements the paging query cache that sits between a UI
// layer and an embedded relational database engine (see engine.go for the
// engine's side of the contract).
//
// What: a content-addressable cache keyed by a query's text plus its
// non-windowing bind parameters, storing rows at their true row index so
// that repeated `LIMIT ? OFFSET ?` requests against the same logical query
// can be served without re-running the statement.
// How: Directory (C3) holds Entry (C2) values keyed by (query, params);
// Pager (C4) orchestrates change-counter invalidation, global LRU eviction,
// a forward pass with a speculative prefetch cutoff, and a conditional
// backward-fill pass.
// Why: scrolling a large result set one window at a time would otherwise
// re-execute the same query on every scroll tick; a handful of executions
// should service many windows instead.
package pager

import "fmt"

// LiteralKind tags the dynamic type carried by a Literal.
type LiteralKind uint8

const (
	KindNull LiteralKind = iota
	KindInt
	KindFloat
	KindBool
	KindText
	KindBlob
)

// Literal is a bind parameter or cache-key component: one of the six value
// kinds the engine adapter contract (§6) allows as a bound literal.
type Literal struct {
	Kind LiteralKind
	I64  int64
	F64  float64
	Bool bool
	Text string
	Blob []byte
}

func NullLiteral() Literal           { return Literal{Kind: KindNull} }
func IntLiteral(v int64) Literal     { return Literal{Kind: KindInt, I64: v} }
func FloatLiteral(v float64) Literal { return Literal{Kind: KindFloat, F64: v} }
func BoolLiteral(v bool) Literal     { return Literal{Kind: KindBool, Bool: v} }
func TextLiteral(v string) Literal   { return Literal{Kind: KindText, Text: v} }
func BlobLiteral(v []byte) Literal   { return Literal{Kind: KindBlob, Blob: append([]byte(nil), v...)} }

// AsInt reports whether the literal holds an integer and returns its value.
// Used when extracting the trailing LIMIT/OFFSET pair (spec.md §4.4 step 3).
func (l Literal) AsInt() (int64, bool) {
	if l.Kind != KindInt {
		return 0, false
	}
	return l.I64, true
}

// Equal performs the deep comparison spec.md §3 requires for cache-key
// equality ("Two entries are equal iff both fields are equal").
func (l Literal) Equal(other Literal) bool {
	if l.Kind != other.Kind {
		return false
	}
	switch l.Kind {
	case KindNull:
		return true
	case KindInt:
		return l.I64 == other.I64
	case KindFloat:
		return l.F64 == other.F64
	case KindBool:
		return l.Bool == other.Bool
	case KindText:
		return l.Text == other.Text
	case KindBlob:
		if len(l.Blob) != len(other.Blob) {
			return false
		}
		for i := range l.Blob {
			if l.Blob[i] != other.Blob[i] {
				return false
			}
		}
		return true
	}
	return false
}

// literalsEqual compares two parameter vectors in declared order.
func literalsEqual(a, b []Literal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// approxSize is the conservative, never-underflowing byte-size contribution
// of a single literal, used by Entry's size accounting (spec.md §3 I4).
func (l Literal) approxSize() uint64 {
	const wordSize = 16 // tag + largest inline field, conservative
	switch l.Kind {
	case KindText:
		return wordSize + uint64(len(l.Text))
	case KindBlob:
		return wordSize + uint64(cap(l.Blob))
	default:
		return wordSize
	}
}

func (k LiteralKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("literal(%d)", uint8(k))
	}
}
