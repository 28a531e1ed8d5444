package pager

import (
	"bytes"
	"testing"
)

func TestRowCodecRoundTrip(t *testing.T) {
	cells := [][]byte{[]byte("alice"), {}, []byte{0x00, 0xFF, 0x10}}
	buf := encodeRow(cells)
	decoded := decodeRow(buf)

	if len(decoded) != len(cells) {
		t.Fatalf("decoded %d cells, want %d", len(decoded), len(cells))
	}
	for i := range cells {
		if !bytes.Equal(decoded[i], cells[i]) {
			t.Fatalf("cell %d = %v, want %v", i, decoded[i], cells[i])
		}
	}
}

func TestRowCodecEmptyRow(t *testing.T) {
	buf := encodeRow(nil)
	decoded := decodeRow(buf)
	if len(decoded) != 0 {
		t.Fatalf("decoded %d cells for an empty row, want 0", len(decoded))
	}
}

func TestDecodeRowPanicsOnCorruptBuffer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected decodeRow to panic on a corrupt buffer")
		}
	}()
	decodeRow([]byte{0xFF})
}

func TestEncodeValueTextRoundTripsThroughTag(t *testing.T) {
	v := Value{Kind: ValueText, Text: "hello"}
	buf := encodeValue(v, nil)
	if buf[0] != tagText {
		t.Fatalf("tag = %d, want tagText", buf[0])
	}
	if got := DecodeColumn(buf); len(got) != 1 || got[0].Kind != ValueText || got[0].Text != "hello" {
		t.Fatalf("decoded %+v, want one text value 'hello'", got)
	}
}

func TestEncodeValueInvalidUTF8InvokesCallback(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe, 0x80})
	var captured []byte
	encodeValue(Value{Kind: ValueText, Text: invalid}, func(raw []byte) {
		captured = raw
	})
	if captured == nil {
		t.Fatalf("expected onInvalidUTF8 to be invoked for invalid text")
	}
}

func TestEncodeValueValidUTF8SkipsCallback(t *testing.T) {
	called := false
	encodeValue(Value{Kind: ValueText, Text: "valid"}, func(raw []byte) {
		called = true
	})
	if called {
		t.Fatalf("onInvalidUTF8 must not be invoked for valid text")
	}
}

func TestDecodeColumnRoundTripsMultipleValues(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeValue(Value{Kind: ValueInt, I64: 42}, nil)...)
	buf = append(buf, encodeValue(Value{Kind: ValueText, Text: "hi"}, nil)...)
	buf = append(buf, encodeValue(Value{Kind: ValueNull}, nil)...)

	vals := DecodeColumn(buf)
	if len(vals) != 3 {
		t.Fatalf("decoded %d values, want 3", len(vals))
	}
	if vals[0].Kind != ValueInt || vals[0].I64 != 42 {
		t.Fatalf("vals[0] = %+v, want int 42", vals[0])
	}
	if vals[1].Kind != ValueText || vals[1].Text != "hi" {
		t.Fatalf("vals[1] = %+v, want text 'hi'", vals[1])
	}
	if vals[2].Kind != ValueNull {
		t.Fatalf("vals[2] = %+v, want null", vals[2])
	}
}

func TestEncodeValueNullAndBool(t *testing.T) {
	if got := encodeValue(Value{Kind: ValueNull}, nil); got[0] != tagNull {
		t.Fatalf("null tag = %d, want tagNull", got[0])
	}
	got := encodeValue(Value{Kind: ValueBool, Bool: true}, nil)
	if got[0] != tagBool || got[1] != 1 {
		t.Fatalf("bool encoding = %v, want [tagBool, 1]", got)
	}
}
