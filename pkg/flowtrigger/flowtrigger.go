package flowtrigger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	"github.com/RealZimboGuy/flowtrigger/internal/migrations"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"github.com/lmittmann/tint"
)

// Actions is the registry the worker pool resolves step actions from. Programs embedding
// the engine register their own actions here before calling Start.
var Actions = defaultActions()

// Database is a validated database configuration.
type Database struct {
	Type string
	// MigrateURL is the golang-migrate URL, DSN what database/sql is opened with.
	MigrateURL string
	DSN        string
}

// DatabaseFromConfig reads and validates the GFLOW_DATABASE_* settings.
func DatabaseFromConfig() (Database, error) {
	databaseType := config.GetSystemSettingString(config.DATABASE_TYPE)
	switch databaseType {
	case config.DATABASE_TYPE_POSTGRES:
		dbURL := config.GetSystemSettingString(config.DATABASE_URL)
		if dbURL == "" {
			return Database{}, errors.New("GFLOW_DATABASE_URL must be set when using the POSTGRES database type")
		}
		return Database{Type: databaseType, MigrateURL: dbURL, DSN: dbURL}, nil
	case config.DATABASE_TYPE_MYSQL:
		dbURL := config.GetSystemSettingString(config.DATABASE_URL)
		if dbURL == "" {
			return Database{}, errors.New("GFLOW_DATABASE_URL must be set when using the MYSQL database type")
		}
		if !strings.Contains(dbURL, "parseTime=true") {
			return Database{}, errors.New("GFLOW_DATABASE_URL must contain 'parseTime=true' for MySQL")
		}
		if !strings.HasPrefix(dbURL, "mysql://") {
			return Database{}, errors.New("GFLOW_DATABASE_URL must start with 'mysql://' for MySQL")
		}
		migrateURL := dbURL
		if !strings.Contains(migrateURL, "multiStatements=") {
			// the migration files hold several statements each
			migrateURL += "&multiStatements=true"
		}
		return Database{Type: databaseType, MigrateURL: migrateURL, DSN: dbURL}, nil
	case config.DATABASE_TYPE_SQLLITE:
		fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
		if fileName == "" {
			return Database{}, errors.New("GFLOW_DATABASE_SQLLITE_FILE_NAME must be set")
		}
		return Database{Type: databaseType, MigrateURL: "sqlite3://" + fileName, DSN: fileName}, nil
	}
	return Database{}, errors.New("GFLOW_DATABASE_TYPE must be set to one of the following values: POSTGRES, MYSQL, SQLLITE")
}

// Migrate applies all pending migrations.
func (d Database) Migrate() error {
	slog.Info("Running migrations", "type", d.Type)
	if err := migrations.Up(d.Type, d.MigrateURL); err != nil {
		return fmt.Errorf("migrate %s: %w", strings.ToLower(d.Type), err)
	}
	return nil
}

// Rollback reverts every migration.
func (d Database) Rollback() error {
	slog.Warn("Rolling back all migrations", "type", d.Type)
	return migrations.Down(d.Type, d.MigrateURL)
}

func (d Database) Open() (*sql.DB, error) {
	slog.Info("Opening database", "type", d.Type)
	return repository.Open(d.Type, d.DSN)
}

// Start migrates the configured database, boots the scheduler, worker pool and reconciler
// and serves the HTTP API on mux until ctx is cancelled. Engine counters go to the global
// otel MeterProvider, so install one with otel.SetMeterProvider before calling Start to
// export them.
func Start(ctx context.Context, mux *http.ServeMux) error {
	database, err := DatabaseFromConfig()
	if err != nil {
		return err
	}
	if err := database.Migrate(); err != nil {
		return err
	}
	db, err := database.Open()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	eng, err := NewEngine(db, EngineOptionsFromConfig(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := eng.Run(ctx); err != nil {
		return err
	}

	if mux == nil {
		mux = http.NewServeMux()
	}
	apiKey := config.GetSystemSettingString(config.API_KEY)
	if apiKey == "" {
		slog.Warn("GFLOW_API_KEY is not set, the admin API is unauthenticated")
	}
	eng.RegisterRoutes(mux, apiKey, int64(config.GetSystemSettingInteger(config.WEBHOOK_MAX_BODY_BYTES)))

	addr := ":" + config.GetSystemSettingString(config.ENGINE_SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	return serve(ctx, addr, mux)
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// SetupLogger installs a tint handler on stderr at the GFLOW_LOG_LEVEL level.
func SetupLogger() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      logLevel(config.GetSystemSettingString(config.LOG_LEVEL)),
			TimeFormat: time.RFC3339Nano,
		}),
	))
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
