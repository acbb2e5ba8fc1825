package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// FS holds one folder of golang-migrate files per dialect.
//
//go:embed postgres mysql sqllite3
var FS embed.FS

// Folder maps a GFLOW_DATABASE_TYPE value to its migrations folder.
func Folder(databaseType string) (string, error) {
	switch databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		return "postgres", nil
	case config.DATABASE_TYPE_MYSQL:
		return "mysql", nil
	case config.DATABASE_TYPE_SQLLITE:
		return "sqllite3", nil
	}
	return "", fmt.Errorf("unsupported database type %q", databaseType)
}

// Up applies every pending migration for databaseType against dbURL, a golang-migrate URL
// such as postgres://..., mysql://... or sqlite3://file.db.
func Up(databaseType, dbURL string) error {
	m, err := newMigrate(databaseType, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Down rolls back every migration.
func Down(databaseType, dbURL string) error {
	m, err := newMigrate(databaseType, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func newMigrate(databaseType, dbURL string) (*migrate.Migrate, error) {
	folder, err := Folder(databaseType)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(FS, folder)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", source, dbURL)
}
