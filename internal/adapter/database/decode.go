package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/semmidev/sqlkeep/internal/domain"
)

var integerTypes = map[string]bool{
	"TINYINT":   true,
	"SMALLINT":  true,
	"MEDIUMINT": true,
	"INT":       true,
	"INTEGER":   true,
	"BIGINT":    true,
	"YEAR":      true,
}

var numericTypes = map[string]bool{
	"DECIMAL": true,
	"NUMERIC": true,
	"FLOAT":   true,
	"DOUBLE":  true,
	"REAL":    true,
}

// decodeValue turns a scanned driver value into one of nil, int64, uint64,
// domain.Number, bool or string. The text protocol hands every column over
// as []byte, so the reported column type decides what a value is.
func decodeValue(v any, typeName string) any {
	base := strings.TrimPrefix(strings.ToUpper(typeName), "UNSIGNED ")

	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		s := string(x)
		switch {
		case integerTypes[base]:
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			if n, err := strconv.ParseUint(s, 10, 64); err == nil {
				return n
			}
			return domain.Number(s)
		case numericTypes[base]:
			return domain.Number(s)
		case base == "BIT":
			return decodeBit(x)
		}
		return s
	case float32:
		return domain.Number(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return domain.Number(strconv.FormatFloat(x, 'g', -1, 64))
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999")
	}
	return v
}

// decodeBit maps BIT(1) style 0/1 values to bool and anything wider to its
// unsigned big-endian value.
func decodeBit(b []byte) any {
	if len(b) == 1 && b[0] <= 1 {
		return b[0] == 1
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return domain.Number(strconv.FormatUint(n, 10))
}
