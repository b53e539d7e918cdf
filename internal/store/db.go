package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is a connection pool that knows which SQL dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to databaseURL. postgres:// and postgresql:// URLs use pgx;
// sqlite://<path> and bare paths use the pure Go sqlite driver.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	driver, dsn, dialect := parseDatabaseURL(databaseURL)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	} else {
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

func parseDatabaseURL(databaseURL string) (driver, dsn string, dialect Dialect) {
	trimmed := strings.TrimSpace(databaseURL)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return "pgx", trimmed, DialectPostgres
	case strings.HasPrefix(trimmed, "sqlite://"):
		trimmed = strings.TrimPrefix(trimmed, "sqlite://")
	}
	if !strings.Contains(trimmed, "_pragma=") {
		separator := "?"
		if strings.Contains(trimmed, "?") {
			separator = "&"
		}
		trimmed += separator + "_pragma=busy_timeout(5000)"
	}
	return "sqlite", trimmed, DialectSQLite
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var out strings.Builder
	out.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// WithConn runs fn on a dedicated connection that is released when fn
// returns, whatever the outcome.
func (d *DB) WithConn(ctx context.Context, fn func(Querier) error) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}
