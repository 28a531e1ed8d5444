package pager

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// windowSuffix is the exact byte-for-byte suffix a query must end with for
// the pager to recognise it as a windowed query (spec.md §4.4).
const windowSuffix = "LIMIT ? OFFSET ?"

// Config holds the pager's runtime-tunable knobs (spec.md §6). All fields
// may be changed between calls to Query but never mid-call.
type Config struct {
	// SlowQueryThreshold is the minimum pre-window elapsed time below
	// which end-margin prefetch cutoff condition (a) always fails.
	SlowQueryThreshold time.Duration
	// PerQueryCacheLimitBytes bounds end-margin growth: caching stops once
	// the current pass has grown the entry by more than half of this.
	PerQueryCacheLimitBytes uint64
	// CacheTimeLimitRelativeToQueriedRange is the divisor in prefetch
	// cutoff condition (b); smaller means a tighter prefetch budget.
	CacheTimeLimitRelativeToQueriedRange float64
	// CacheLimitBytes is the global LRU byte budget; the directory is
	// evicted down to this on every call where the change counter has
	// not advanced.
	CacheLimitBytes uint64
	// MarginStart is the maximum number of rows to prefetch before the
	// requested window.
	MarginStart uint64
	// MarginEnd is the maximum number of rows to prefetch after the
	// requested window.
	MarginEnd uint64
}

// DefaultConfig reproduces the defaults in spec.md §6, tuned for a GUI
// scrolling a result grid one window at a time.
func DefaultConfig() Config {
	return Config{
		SlowQueryThreshold:                   500 * time.Millisecond,
		PerQueryCacheLimitBytes:              8 * 1024 * 1024,
		CacheTimeLimitRelativeToQueriedRange: 0.2,
		CacheLimitBytes:                      64 * 1024 * 1024,
		MarginStart:                          0,
		MarginEnd:                            100000,
	}
}

// Pager is the orchestrator described in spec.md §4.4. It owns a Directory,
// a configuration block, and the last observed engine change counter. A
// Pager is single-threaded cooperative: one outstanding Query call at a
// time (spec.md §5); concurrent callers must serialise externally.
type Pager struct {
	dir           Directory
	changeCounter *int64
	Config        Config

	// Diagnostic counters, analogous to the #[cfg(test)] fields in the
	// source this was distilled from; kept unconditionally since Go has
	// no test-only struct fields, and cmd/server's maintenance job logs
	// them (see SPEC_FULL.md §4 "domain stack").
	CacheHitCount   uint64
	CacheClearCount uint64
	EvictCount      uint64
}

// New returns a Pager with default configuration.
func New() *Pager {
	return &Pager{Config: DefaultConfig()}
}

// ClearCache purges the directory unconditionally.
func (p *Pager) ClearCache() {
	p.dir.Clear()
	p.CacheClearCount++
}

// TotalCacheSizeBytes returns the directory-wide size sum (spec.md §6).
func (p *Pager) TotalCacheSizeBytes() uint64 {
	return p.dir.TotalSize()
}

// Query is the pager's one primary operation (spec.md §4.4). It returns
// (nil, nil) when the windowing contract is not satisfied (a clean
// "not handled" per spec.md §7) and a non-nil error only for genuine
// engine failures.
func (p *Pager) Query(
	ctx context.Context,
	conn Conn,
	query string,
	params []Literal,
	onInvalidUTF8 func(raw []byte),
) (*Records, error) {
	tx, err := conn.BeginRead(ctx)
	if err != nil {
		return nil, newQueryError(query, params, ErrorCodeOther, err)
	}
	defer tx.Close()

	cv, err := tx.ChangeCounter(ctx)
	if err != nil {
		return nil, newQueryError(query, params, ErrorCodeOther, err)
	}
	if p.changeCounter == nil || *p.changeCounter != cv {
		p.ClearCache()
		p.changeCounter = &cv
	} else {
		for p.dir.TotalSize() > p.Config.CacheLimitBytes {
			before := p.dir.Len()
			p.dir.EvictOne()
			if p.dir.Len() == before {
				break // empty directory, nothing left to evict
			}
			p.EvictCount++
		}
	}

	// Windowing-parameter extraction (spec.md §4.4 step 3).
	if !strings.HasSuffix(query, windowSuffix) {
		return nil, nil
	}
	n := len(params)
	if n < 2 {
		return nil, nil
	}
	limit, ok := params[n-2].AsInt()
	if !ok {
		return nil, nil
	}
	offset, ok := params[n-1].AsInt()
	if !ok {
		return nil, nil
	}
	if limit < 0 || offset < 0 {
		return nil, nil
	}
	limitU, offsetU := uint64(limit), uint64(offset)

	entry := p.dir.Resolve(query, params)

	if rec := entry.GetRange(offsetU, limitU); rec != nil {
		p.CacheHitCount++
		return rec, nil
	}

	return p.missPath(ctx, tx, query, params, entry, offsetU, limitU, onInvalidUTF8)
}

func (p *Pager) missPath(
	ctx context.Context,
	tx Tx,
	query string,
	params []Literal,
	entry *Entry,
	offset, limit uint64,
	onInvalidUTF8 func(raw []byte),
) (*Records, error) {
	marginStartCapped := minU64(p.Config.MarginStart, offset)
	prefetchOffset := offset - marginStartCapped
	prefetchLimit := limit + marginStartCapped + p.Config.MarginEnd

	expanded := append([]Literal(nil), params...)
	n := len(expanded)
	expanded[n-2] = IntLiteral(int64(prefetchLimit))
	expanded[n-1] = IntLiteral(int64(prefetchOffset))

	stmt, err := tx.Prepare(ctx, query)
	if err != nil {
		return nil, newQueryError(query, expanded, ErrorCodeOther, err)
	}
	defer stmt.Close()

	for i, lit := range expanded {
		if err := stmt.Bind(i, lit); err != nil {
			return nil, newQueryError(query, expanded, ErrorCodeOther, err)
		}
	}

	cols, err := stmt.ColumnNames()
	if err != nil {
		return nil, newQueryError(query, expanded, ErrorCodeOther, err)
	}
	entry.SetColumnsIfNotSet(cols)

	sizeBefore := entry.TotalSizeBytes()
	colBuf := make([][]byte, len(entry.columns))
	var nRowsReturned uint32
	var elapsedUntilEndMargin *time.Duration
	var endMarginAccepted uint64

	start := time.Now()
	r := prefetchOffset
	end := prefetchOffset + prefetchLimit
	exhausted := false

	for {
		ok, err := stmt.Step(ctx)
		if err != nil {
			return nil, newQueryError(query, expanded, ErrorCodeOther, err)
		}
		if !ok {
			exhausted = true
			break
		}

		isStartMargin := r < offset
		isEndMargin := r >= offset+limit
		isMargin := isStartMargin || isEndMargin

		if isEndMargin {
			if elapsedUntilEndMargin == nil {
				e := time.Since(start)
				elapsedUntilEndMargin = &e
			} else {
				growth := entry.TotalSizeBytes() - sizeBefore
				condA := *elapsedUntilEndMargin >= p.Config.SlowQueryThreshold
				postWindow := time.Since(start) - *elapsedUntilEndMargin
				condB := scaleDuration(postWindow, p.Config.CacheTimeLimitRelativeToQueriedRange) < *elapsedUntilEndMargin
				condC := growth < p.Config.PerQueryCacheLimitBytes/2
				if !(condA && condB && condC) {
					break
				}
				endMarginAccepted++
			}
		}

		cells := make([][]byte, len(entry.columns))
		for i := range entry.columns {
			v, err := stmt.ColumnRef(i)
			if err != nil {
				return nil, newQueryError(query, expanded, ErrorCodeOther, err)
			}
			cells[i] = encodeValue(v, onInvalidUTF8)
			if !isMargin {
				colBuf[i] = append(colBuf[i], cells[i]...)
			}
		}
		entry.Insert(r, cells)
		if !isMargin {
			if nRowsReturned == math.MaxUint32 {
				panic("pager: returned row count overflows uint32")
			}
			nRowsReturned++
		}
		r++
	}

	if exhausted && r < end {
		entry.SetKnownCount(r)
	}

	if endMarginAccepted > 0 {
		if err := p.backwardFill(ctx, tx, query, params, entry, offset, endMarginAccepted, onInvalidUTF8); err != nil {
			return nil, err
		}
	}

	return &Records{
		colBuf:  colBuf,
		nRows:   nRowsReturned,
		columns: entry.columns,
	}, nil
}

// backwardFill pulls the rows immediately preceding the requested window
// into the entry, populating the cache without altering the caller-visible
// output of the forward call it follows (spec.md §4.4 step 7).
func (p *Pager) backwardFill(
	ctx context.Context,
	tx Tx,
	query string,
	params []Literal,
	entry *Entry,
	offset, endMarginAccepted uint64,
	onInvalidUTF8 func(raw []byte),
) error {
	backOffset := offset - minU64(offset, endMarginAccepted)
	backLimit := offset - backOffset

	// Checking has_range before preparing the statement (rather than
	// after, as one variant of the original implementation did) avoids
	// redundantly re-running a query whose result is already fully
	// cached; see DESIGN.md for this Open Question's resolution.
	if entry.HasRange(backOffset, backLimit) {
		return nil
	}

	back := append([]Literal(nil), params...)
	n := len(back)
	back[n-2] = IntLiteral(int64(backLimit))
	back[n-1] = IntLiteral(int64(backOffset))

	stmt, err := tx.Prepare(ctx, query)
	if err != nil {
		return newQueryError(query, back, ErrorCodeOther, err)
	}
	defer stmt.Close()

	for i, lit := range back {
		if err := stmt.Bind(i, lit); err != nil {
			return newQueryError(query, back, ErrorCodeOther, err)
		}
	}
	if _, err := stmt.ColumnNames(); err != nil {
		return newQueryError(query, back, ErrorCodeOther, err)
	}

	r := backOffset
	for {
		ok, err := stmt.Step(ctx)
		if err != nil {
			return newQueryError(query, back, ErrorCodeOther, err)
		}
		if !ok {
			break
		}
		cells := make([][]byte, len(entry.columns))
		for i := range entry.columns {
			v, err := stmt.ColumnRef(i)
			if err != nil {
				return newQueryError(query, back, ErrorCodeOther, err)
			}
			cells[i] = encodeValue(v, onInvalidUTF8)
		}
		entry.Insert(r, cells)
		r++
	}
	return nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// scaleDuration divides d by ratio, matching Rust's Duration::div_f64 used
// by the original prefetch-cutoff condition (spec.md §4.4 condition b).
func scaleDuration(d time.Duration, ratio float64) time.Duration {
	if ratio <= 0 {
		return time.Duration(1<<63 - 1) // treat as "never cheap enough"
	}
	return time.Duration(float64(d) / ratio)
}

// ErrNotHandled documents the "not handled" return convention even though
// Query signals it via (nil, nil) rather than a sentinel error, per
// spec.md §7 ("Surfaced as a distinguishable 'no result' value, not an
// error"). Kept for callers that want to express intent in code review.
var ErrNotHandled = errors.New("pager: query does not match the windowing contract")
