package sqldump

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// BatchSize is the number of rows folded into one INSERT statement.
const BatchSize = 100

// TableData streams every row of table into w as batched INSERT statements
// and returns the number of rows written. An empty table writes nothing.
// If the stream breaks after rows were written the LOCK/DISABLE KEYS pair is
// still closed before the error is returned.
func (r *Renderer) TableData(ctx context.Context, table string, w io.Writer) (int, error) {
	name := QuoteIdent(table)

	var (
		columns string
		rows    int
		batch   = make([]string, 0, BatchSize)
		werr    error
	)
	write := func(format string, args ...any) {
		if werr == nil {
			_, werr = fmt.Fprintf(w, format, args...)
		}
	}
	flush := func() {
		if len(batch) == 0 {
			return
		}
		write("INSERT INTO %s (%s) VALUES %s;\n", name, columns, strings.Join(batch, ", "))
		batch = batch[:0]
	}

	err := r.q.Stream(ctx, "SELECT * FROM "+name, func(cols []string, values []any) error {
		if rows == 0 {
			columns = identList(cols)
			write("%s", banner("Dumping data for table "+name))
			write("LOCK TABLES %s WRITE;\n", name)
			write("/*!40000 ALTER TABLE %s DISABLE KEYS */;\n", name)
		}
		rows++
		batch = append(batch, tuple(values))
		if len(batch) == BatchSize {
			flush()
		}
		return werr
	})
	if rows == 0 {
		if err != nil {
			return 0, fmt.Errorf("data %s: %w", name, err)
		}
		return 0, nil
	}

	if err == nil {
		flush()
	}
	write("/*!40000 ALTER TABLE %s ENABLE KEYS */;\n", name)
	write("UNLOCK TABLES;\n\n")

	if err != nil {
		return rows, fmt.Errorf("data %s after %d rows: %w", name, rows, err)
	}
	if werr != nil {
		return rows, fmt.Errorf("data %s: %w", name, werr)
	}
	return rows, nil
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
