package domain

import "context"

// Number is a numeric column value kept in the server's textual form.
type Number string

// Row maps column names to decoded values.
type Row map[string]any

func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case Number:
		return string(v)
	}
	return ""
}

type Querier interface {
	Query(ctx context.Context, query string) ([]Row, error)
	QueryScalar(ctx context.Context, query string) (any, error)
	Stream(ctx context.Context, query string, fn func(columns []string, values []any) error) error
}

// Session is a Querier pinned to a single server connection.
type Session interface {
	Querier
	Close() error
}

type Database interface {
	Session(ctx context.Context) (Session, error)
	GetName() string
	Ping(ctx context.Context) error
	Close() error
}
