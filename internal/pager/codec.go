package pager

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// --- C1: Row Codec ---
//
// Encodes an ordered list of column byte-blobs into one self-describing
// buffer and decodes it back. The format is opaque outside this file: a
// varint cell count followed by, for each cell, a varint length and that
// many bytes. This is a cache-internal concern only — the spec explicitly
// keeps the repository's actual wire serialization (message-pack, per
// spec.md §1) out of scope, so the codec here is a small hand-rolled
// format rather than a borrowed wire codec.
//
// Encoding is infallible for well-formed inputs. Decoding a buffer that
// was not produced by encodeRow is undefined; the cache never ingests
// foreign buffers (spec.md §4.1), so a malformed buffer decoded here
// indicates a programmer error and panics rather than returning an error.

func encodeRow(cells [][]byte) []byte {
	size := binary.MaxVarintLen64
	for _, c := range cells {
		size += binary.MaxVarintLen64 + len(c)
	}
	buf := make([]byte, 0, size)
	var scratch [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scratch[:], uint64(len(cells)))
	buf = append(buf, scratch[:n]...)
	for _, c := range cells {
		n := binary.PutUvarint(scratch[:], uint64(len(c)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, c...)
	}
	return buf
}

func decodeRow(buf []byte) [][]byte {
	numCells, n := binary.Uvarint(buf)
	if n <= 0 {
		panic("pager: corrupt cache row: bad cell-count varint")
	}
	buf = buf[n:]
	cells := make([][]byte, 0, numCells)
	for i := uint64(0); i < numCells; i++ {
		l, n := binary.Uvarint(buf)
		if n <= 0 || uint64(len(buf)-n) < l {
			panic(fmt.Sprintf("pager: corrupt cache row: bad cell at index %d", i))
		}
		buf = buf[n:]
		cells = append(cells, buf[:l:l])
		buf = buf[l:]
	}
	return cells
}

// --- Value encoding (spec.md §6 "Value encoding") ---
//
// Writes one column cell to a canonical byte buffer recording type and
// payload. Text cells whose bytes are not valid UTF-8 are emitted lossily
// (invalid sequences replaced) and onInvalidUTF8 is invoked with the
// original bytes; this never alters control flow (spec.md §4.4).

const (
	tagNull byte = iota
	tagInt
	tagFloat
	tagBool
	tagText
	tagBlob
)

func encodeValue(v Value, onInvalidUTF8 func(raw []byte)) []byte {
	var scratch [8]byte
	switch v.Kind {
	case ValueNull:
		return []byte{tagNull}
	case ValueInt:
		binary.BigEndian.PutUint64(scratch[:], uint64(v.I64))
		return append([]byte{tagInt}, scratch[:]...)
	case ValueFloat:
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(v.F64))
		return append([]byte{tagFloat}, scratch[:]...)
	case ValueBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{tagBool, b}
	case ValueText:
		raw := []byte(v.Text)
		text := v.Text
		if !utf8.ValidString(text) {
			if onInvalidUTF8 != nil {
				onInvalidUTF8(raw)
			}
			text = toValidUTF8Lossy(text)
		}
		return appendLenPrefixed(tagText, []byte(text))
	case ValueBlob:
		return appendLenPrefixed(tagBlob, v.Blob)
	default:
		panic(fmt.Sprintf("pager: unknown value kind %d", v.Kind))
	}
}

func appendLenPrefixed(tag byte, payload []byte) []byte {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(payload)))
	out := make([]byte, 0, 1+n+len(payload))
	out = append(out, tag)
	out = append(out, scratch[:n]...)
	out = append(out, payload...)
	return out
}

// toValidUTF8Lossy mirrors String::from_utf8_lossy: invalid sequences are
// replaced with U+FFFD rather than truncating the value.
func toValidUTF8Lossy(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		out = append(out, r)
		i += size
	}
	return string(out)
}

// DecodeColumn splits one Records column buffer back into its individual
// Values, in row order. Each encoded value is self-describing (a tag byte
// plus, for variable-length kinds, a varint length prefix), so the buffer
// is scanned sequentially rather than requiring a separate row index;
// callers that need to render a Records table (e.g. cmd/server's JSON
// response) use this to decode ColBuf()[i] for each column i.
func DecodeColumn(buf []byte) []Value {
	var out []Value
	for len(buf) > 0 {
		v, n := decodeOneValue(buf)
		out = append(out, v)
		buf = buf[n:]
	}
	return out
}

func decodeOneValue(buf []byte) (Value, int) {
	if len(buf) == 0 {
		panic("pager: corrupt column buffer: expected a value tag")
	}
	tag := buf[0]
	rest := buf[1:]
	switch tag {
	case tagNull:
		return Value{Kind: ValueNull}, 1
	case tagInt:
		if len(rest) < 8 {
			panic("pager: corrupt column buffer: truncated int value")
		}
		v := int64(binary.BigEndian.Uint64(rest[:8]))
		return Value{Kind: ValueInt, I64: v}, 1 + 8
	case tagFloat:
		if len(rest) < 8 {
			panic("pager: corrupt column buffer: truncated float value")
		}
		v := math.Float64frombits(binary.BigEndian.Uint64(rest[:8]))
		return Value{Kind: ValueFloat, F64: v}, 1 + 8
	case tagBool:
		if len(rest) < 1 {
			panic("pager: corrupt column buffer: truncated bool value")
		}
		return Value{Kind: ValueBool, Bool: rest[0] != 0}, 1 + 1
	case tagText:
		payload, n := readLenPrefixed(rest)
		return Value{Kind: ValueText, Text: string(payload)}, 1 + n
	case tagBlob:
		payload, n := readLenPrefixed(rest)
		return Value{Kind: ValueBlob, Blob: append([]byte(nil), payload...)}, 1 + n
	default:
		panic(fmt.Sprintf("pager: corrupt column buffer: unknown tag %d", tag))
	}
}

func readLenPrefixed(buf []byte) (payload []byte, consumed int) {
	l, n := binary.Uvarint(buf)
	if n <= 0 || uint64(len(buf)-n) < l {
		panic("pager: corrupt column buffer: bad length-prefixed value")
	}
	return buf[n : n+int(l)], n + int(l)
}
