package sqldump

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/semmidev/sqlkeep/internal/domain"
)

var literalEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\x00", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"'", "\\'",
	"\"", "\\\"",
	"\x1a", "\\Z",
)

// Literal renders v as a SQL value: NULL for nil, a quoted and escaped
// string for text, 1/0 for booleans and the bare textual form otherwise.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return Quote(x)
	case []byte:
		return Quote(string(x))
	case bool:
		if x {
			return "1"
		}
		return "0"
	case domain.Number:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// Quote wraps s in single quotes, backslash-escaping quotes, backslashes and
// control characters.
func Quote(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

// QuoteIdent wraps an identifier in backticks.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func tuple(values []any) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Literal(v))
	}
	b.WriteByte(')')
	return b.String()
}
