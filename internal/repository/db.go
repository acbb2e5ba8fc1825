package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database. For Postgres and MySQL dsn is the same URL
// handed to migrations; for SQLite it is the database file name.
func Open(databaseType, dsn string) (*sql.DB, error) {
	var db *sql.DB
	var err error
	switch databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		// Reasonable pool settings to reduce stale connections
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	case config.DATABASE_TYPE_MYSQL:
		db, err = sql.Open("mysql", mysqlDSN(dsn))
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	case config.DATABASE_TYPE_SQLLITE:
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
		// one writer at a time, concurrent claims queue on the pool instead of failing with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported database type %q", databaseType)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// mysqlDSN strips the migrate scheme and makes RowsAffected count matched rows,
// which the conditional updates rely on.
func mysqlDSN(dsn string) string {
	dsn = strings.Replace(dsn, "mysql://", "", 1)
	if strings.Contains(dsn, "clientFoundRows=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "clientFoundRows=true"
}

func sqliteDSN(file string) string {
	if strings.Contains(file, "?") {
		return file
	}
	return file + "?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}
