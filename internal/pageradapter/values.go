package pageradapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relcache/pagedb/internal/pager"
)

// goValueToPagerValue maps one cell produced by tinySQL's Row (a bare any,
// per tinySQL's internal/engine/exec.go) onto the six-kind Value the pager
// understands. Types tinySQL itself never produces for a scalar column (e.g.
// nested maps from JSON functions) are rendered as text, mirroring how
// tinySQL's own internal/driver's database/sql layer already stringifies
// anything it does not special-case.
func goValueToPagerValue(v any) pager.Value {
	switch x := v.(type) {
	case nil:
		return pager.Value{Kind: pager.ValueNull}
	case int:
		return pager.Value{Kind: pager.ValueInt, I64: int64(x)}
	case int64:
		return pager.Value{Kind: pager.ValueInt, I64: x}
	case int32:
		return pager.Value{Kind: pager.ValueInt, I64: int64(x)}
	case float64:
		return pager.Value{Kind: pager.ValueFloat, F64: x}
	case float32:
		return pager.Value{Kind: pager.ValueFloat, F64: float64(x)}
	case bool:
		return pager.Value{Kind: pager.ValueBool, Bool: x}
	case string:
		return pager.Value{Kind: pager.ValueText, Text: x}
	case []byte:
		return pager.Value{Kind: pager.ValueBlob, Blob: x}
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return pager.Value{Kind: pager.ValueText, Text: fmt.Sprintf("%v", x)}
		}
		return pager.Value{Kind: pager.ValueText, Text: string(b)}
	}
}

// substitutePlaceholders rewrites sequential `?` placeholders in sqlStr into
// literal SQL text, skipping over quoted string literals so an occurrence
// of '?' inside a string is never treated as a bind site. This mirrors
// tinySQL's own internal/driver/driver.go's bindPlaceholders, adapted to
// take pager.Literal values instead of database/sql driver.NamedValue.
func substitutePlaceholders(sqlStr string, args []pager.Literal) (string, error) {
	var sb strings.Builder
	sb.Grow(len(sqlStr) + len(args)*10)
	argi := 0
	for i := 0; i < len(sqlStr); i++ {
		ch := sqlStr[i]
		if ch == '\'' {
			sb.WriteByte(ch)
			i++
			for i < len(sqlStr) {
				sb.WriteByte(sqlStr[i])
				if sqlStr[i] == '\'' {
					if i+1 < len(sqlStr) && sqlStr[i+1] == '\'' {
						i++
						sb.WriteByte(sqlStr[i])
						i++
						continue
					}
					break
				}
				i++
			}
			continue
		}
		if ch == '?' {
			if argi >= len(args) {
				return "", fmt.Errorf("pageradapter: not enough bound parameters for placeholders")
			}
			sb.WriteString(literalToSQL(args[argi]))
			argi++
			continue
		}
		sb.WriteByte(ch)
	}
	if argi != len(args) {
		return "", fmt.Errorf("pageradapter: too many bound parameters for placeholders")
	}
	return sb.String(), nil
}

// literalToSQL renders a pager.Literal as a SQL literal, escaping single
// quotes in text the same way tinySQL's own internal/driver/driver.go's
// sqlLiteral does.
func literalToSQL(l pager.Literal) string {
	switch l.Kind {
	case pager.KindNull:
		return "NULL"
	case pager.KindInt:
		return fmt.Sprintf("%d", l.I64)
	case pager.KindFloat:
		return fmt.Sprintf("%g", l.F64)
	case pager.KindBool:
		if l.Bool {
			return "TRUE"
		}
		return "FALSE"
	case pager.KindText:
		return "'" + strings.ReplaceAll(l.Text, "'", "''") + "'"
	case pager.KindBlob:
		b, _ := json.Marshal(l.Blob)
		return "'" + strings.ReplaceAll(string(b), "'", "''") + "'"
	default:
		return "NULL"
	}
}
