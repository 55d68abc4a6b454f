package sqldump

import (
	"context"
	"fmt"

	"github.com/semmidev/sqlkeep/internal/domain"
)

type tableRows struct {
	columns []string
	values  [][]any
	failAt  int
}

type fakeQuerier struct {
	results map[string][]domain.Row
	errors  map[string]error
	tables  map[string]tableRows
	queries []string
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		results: make(map[string][]domain.Row),
		errors:  make(map[string]error),
		tables:  make(map[string]tableRows),
	}
}

func (f *fakeQuerier) Query(_ context.Context, query string) ([]domain.Row, error) {
	f.queries = append(f.queries, query)
	if err, ok := f.errors[query]; ok {
		return nil, err
	}
	return f.results[query], nil
}

func (f *fakeQuerier) QueryScalar(ctx context.Context, query string) (any, error) {
	rows, err := f.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrQuery.New("no rows")
	}
	for _, v := range rows[0] {
		return v, nil
	}
	return nil, nil
}

func (f *fakeQuerier) Stream(_ context.Context, query string, fn func([]string, []any) error) error {
	f.queries = append(f.queries, query)
	if err, ok := f.errors[query]; ok {
		return err
	}
	t := f.tables[query]
	for i, values := range t.values {
		if t.failAt > 0 && i == t.failAt {
			return domain.ErrConnection.New("lost connection at row %d", i)
		}
		if err := fn(t.columns, values); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeQuerier) addRows(table string, n int) {
	t := tableRows{columns: []string{"id", "name"}}
	for i := 1; i <= n; i++ {
		t.values = append(t.values, []any{int64(i), fmt.Sprintf("item-%d", i)})
	}
	f.tables["SELECT * FROM `"+table+"`"] = t
}
