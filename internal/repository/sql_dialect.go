package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrClaimLost = errors.New("claim no longer held")
	// ErrConflict means the row exists but is not in the state the statement required.
	ErrConflict = errors.New("state conflict")
)

func databaseType() string {
	return config.GetSystemSettingString(config.DATABASE_TYPE)
}

// placeholder returns the correct bind variable for the given index based on DB type.
// Postgres uses $1, $2... while MySQL and SQLite use ?
func placeholder(i int) string {
	if databaseType() == config.DATABASE_TYPE_POSTGRES {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// joinPlaceholders renders n comma separated bind variables starting at index from.
func joinPlaceholders(from, n int) string {
	pps := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pps = append(pps, placeholder(from+i))
	}
	return strings.Join(pps, ", ")
}

// dateCompare returns a predicate comparing a datetime column with a bound value.
// SQLite stores timestamps as TEXT so both sides go through julianday().
func dateCompare(column, op, bind string) string {
	if databaseType() == config.DATABASE_TYPE_SQLLITE {
		return fmt.Sprintf("julianday(%s) %s julianday(%s)", column, op, bind)
	}
	return fmt.Sprintf("%s %s %s", column, op, bind)
}

func supportsReturning() bool {
	return databaseType() == config.DATABASE_TYPE_POSTGRES
}

// forUpdate is the row lock suffix; SQLite serializes writers on its own.
func forUpdate() string {
	if databaseType() == config.DATABASE_TYPE_SQLLITE {
		return ""
	}
	return " FOR UPDATE"
}

func formatDateInDatabase(t time.Time) string {
	switch databaseType() {
	case config.DATABASE_TYPE_SQLLITE:
		return t.UTC().Format("2006-01-02 15:04:05.000")
	case config.DATABASE_TYPE_MYSQL:
		return t.UTC().Format("2006-01-02 15:04:05.000000")
	}
	// PostgreSQL supports RFC3339
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDateInDatabaseNull(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return formatDateInDatabase(t.Time)
}

func nullString(s sql.NullString) interface{} {
	if !s.Valid {
		return nil
	}
	return s.String
}

// utc normalizes scanned timestamps; drivers hand them back in the session zone.
func utc(t sql.NullTime) sql.NullTime {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}

// isUniqueViolation reports whether err is a primary key or unique constraint failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// insertReturningID runs an INSERT and returns the generated id, using RETURNING where available.
func insertReturningID(ctx context.Context, q queryer, query string, args ...interface{}) (int64, error) {
	var id int64
	if supportsReturning() {
		if err := q.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// affectedOne reports whether a conditional UPDATE matched exactly one row.
func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
