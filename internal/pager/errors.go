package pager

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrorCode is the coarse classification spec.md §7 requires for
// QueryError. The pager assigns ErrorCodeOther to every QueryError it
// creates; no engine error is mapped onto the other eight codes.
type ErrorCode int

const (
	ErrorCodeOther ErrorCode = iota
	ErrorCodePermissionDenied
	ErrorCodeBusy
	ErrorCodeLocked
	ErrorCodeReadOnly
	ErrorCodeIOFailure
	ErrorCodeCorrupt
	ErrorCodeDiskFull
	ErrorCodeNotADatabase
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodePermissionDenied:
		return "permission-denied"
	case ErrorCodeBusy:
		return "busy"
	case ErrorCodeLocked:
		return "locked"
	case ErrorCodeReadOnly:
		return "read-only"
	case ErrorCodeIOFailure:
		return "io"
	case ErrorCodeCorrupt:
		return "corrupt"
	case ErrorCodeDiskFull:
		return "disk-full"
	case ErrorCodeNotADatabase:
		return "not-a-database"
	default:
		return "other"
	}
}

// QueryError is an engine failure during begin/prepare/bind/step, carrying
// enough context for the caller to report it (spec.md §7). RequestID
// correlates a single Query call across logs even though the pager itself
// has no wire protocol.
type QueryError struct {
	RequestID uuid.UUID
	Query     string
	Params    []Literal
	Code      ErrorCode
	Message   string
}

func newQueryError(query string, params []Literal, code ErrorCode, cause error) *QueryError {
	return &QueryError{
		RequestID: uuid.New(),
		Query:     query,
		Params:    append([]Literal(nil), params...),
		Code:      code,
		Message:   cause.Error(),
	}
}

func (e *QueryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nQuery: %s\nParameters: %s\nRequest: %s",
		e.Message, e.Query, formatParams(e.Params), e.RequestID)
	return b.String()
}

func formatParams(params []Literal) string {
	parts := make([]string, len(params))
	for i, p := range params {
		switch p.Kind {
		case KindNull:
			parts[i] = "NULL"
		case KindInt:
			parts[i] = fmt.Sprintf("%d", p.I64)
		case KindFloat:
			parts[i] = fmt.Sprintf("%g", p.F64)
		case KindBool:
			parts[i] = fmt.Sprintf("%t", p.Bool)
		case KindText:
			parts[i] = fmt.Sprintf("%q", p.Text)
		case KindBlob:
			parts[i] = fmt.Sprintf("blob(%d bytes)", len(p.Blob))
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
