package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/semmidev/sqlkeep/internal/domain"
)

const (
	loopbackName = "localhost"
	loopbackAddr = "127.0.0.1"

	errUnknownDatabase = 1049

	setUTC = "SET time_zone = '+00:00'"
)

var (
	driverName = "mysql"
	openDB     = sql.Open
)

type ConnectionConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Charset  string
}

type Logger interface {
	Warnf(template string, args ...interface{})
}

// MySQLDatabase is the query gateway for one schema. Each backup run should
// take its own Session so all of its queries share one server connection.
type MySQLDatabase struct {
	db     *sql.DB
	schema string
}

// Connect opens and pings a connection pool for cfg.Database. An unknown
// schema fails with ErrDatabaseNotFound. When the host is "localhost" and the
// first attempt fails, the numeric loopback address is tried exactly once.
func Connect(ctx context.Context, cfg ConnectionConfig, log Logger) (*MySQLDatabase, error) {
	db, err := open(ctx, cfg, cfg.Host)
	if err != nil && cfg.Host == loopbackName && !domain.ErrDatabaseNotFound.Has(err) {
		log.Warnf("[%s] Connection via %s failed, retrying via %s: %v",
			cfg.Database, loopbackName, loopbackAddr, err)
		db, err = open(ctx, cfg, loopbackAddr)
	}
	if err != nil {
		return nil, err
	}

	return &MySQLDatabase{db: db, schema: cfg.Database}, nil
}

func open(ctx context.Context, cfg ConnectionConfig, host string) (*sql.DB, error) {
	db, err := openDB(driverName, buildDSN(cfg, host))
	if err != nil {
		return nil, domain.ErrConnection.Wrap(err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errUnknownDatabase {
			return nil, domain.ErrDatabaseNotFound.New("%s: %v", cfg.Database, err)
		}
		return nil, domain.ErrConnection.New("%s: %v", host, err)
	}

	return db, nil
}

func buildDSN(cfg ConnectionConfig, host string) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.Timeout = 10 * time.Second
	mc.Params = map[string]string{"charset": charset}

	return mc.FormatDSN()
}

func (m *MySQLDatabase) GetName() string {
	return m.schema
}

func (m *MySQLDatabase) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return domain.ErrConnection.Wrap(err)
	}
	return nil
}

func (m *MySQLDatabase) Close() error {
	return m.db.Close()
}

func (m *MySQLDatabase) Session(ctx context.Context) (domain.Session, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, domain.ErrConnection.Wrap(err)
	}
	// TIMESTAMP values are read in UTC to match the script header.
	if _, err := conn.ExecContext(ctx, setUTC); err != nil {
		_ = conn.Close()
		return nil, classifyQueryError(err)
	}
	return &session{conn: conn}, nil
}

func (m *MySQLDatabase) Query(ctx context.Context, query string) ([]domain.Row, error) {
	return queryRows(ctx, m.db, query)
}

func (m *MySQLDatabase) QueryScalar(ctx context.Context, query string) (any, error) {
	return queryScalar(ctx, m.db, query)
}

func (m *MySQLDatabase) Stream(ctx context.Context, query string, fn func([]string, []any) error) error {
	return stream(ctx, m.db, query, fn)
}

type session struct {
	conn *sql.Conn
}

func (s *session) Query(ctx context.Context, query string) ([]domain.Row, error) {
	return queryRows(ctx, s.conn, query)
}

func (s *session) QueryScalar(ctx context.Context, query string) (any, error) {
	return queryScalar(ctx, s.conn, query)
}

func (s *session) Stream(ctx context.Context, query string, fn func([]string, []any) error) error {
	return stream(ctx, s.conn, query, fn)
}

func (s *session) Close() error {
	return s.conn.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q queryer, query string) ([]domain.Row, error) {
	var rows []domain.Row
	err := stream(ctx, q, query, func(columns []string, values []any) error {
		row := make(domain.Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

var errStop = errors.New("stop")

func queryScalar(ctx context.Context, q queryer, query string) (any, error) {
	var (
		value any
		found bool
	)
	err := stream(ctx, q, query, func(_ []string, values []any) error {
		if len(values) > 0 {
			value = values[0]
		}
		found = true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if !found {
		return nil, domain.ErrQuery.New("no rows returned by %q", query)
	}
	return value, nil
}

// stream runs query and hands each decoded row to fn without buffering the
// result set. An error from fn stops the iteration and is returned as is.
func stream(ctx context.Context, q queryer, query string, fn func([]string, []any) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return classifyQueryError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return domain.ErrQuery.Wrap(err)
	}
	types := columnTypeNames(rows, len(columns))

	raw := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return domain.ErrQuery.Wrap(err)
		}
		values := make([]any, len(columns))
		for i, v := range raw {
			values[i] = decodeValue(v, types[i])
		}
		if err := fn(columns, values); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return classifyQueryError(err)
	}
	return nil
}

func columnTypeNames(rows *sql.Rows, n int) []string {
	names := make([]string, n)
	types, err := rows.ColumnTypes()
	if err != nil {
		return names
	}
	for i, t := range types {
		if i < n {
			names[i] = t.DatabaseTypeName()
		}
	}
	return names
}

func classifyQueryError(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.ErrConnection.Wrap(err)
	}
	return domain.ErrQuery.Wrap(err)
}
