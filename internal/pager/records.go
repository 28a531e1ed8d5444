package pager

// Records is the caller-facing value returned on a successful Query call:
// column-major byte buffers (one per column, row cells concatenated in row
// order), the row count, and a shared reference to the column-name vector.
//
// The column-name slice is shared by reference with the owning Entry and
// must not be mutated by callers; the pager never mutates it after first
// assignment (spec.md §3, §5).
type Records struct {
	colBuf  [][]byte
	nRows   uint32
	columns []string
}

// ColBuf returns the per-column concatenated byte buffers in column order.
func (r *Records) ColBuf() [][]byte { return r.colBuf }

// NRows returns the number of rows represented by ColBuf.
func (r *Records) NRows() uint32 { return r.nRows }

// Columns returns the shared column-name vector.
func (r *Records) Columns() []string { return r.columns }
