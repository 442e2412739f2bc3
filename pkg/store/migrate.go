package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// getMigrate builds a migrate instance on a dedicated connection; closing
// the instance closes that connection, never the store's.
func getMigrate(driver, dataSource string) (*migrate.Migrate, error) {
	var (
		db       *sql.DB
		instance database.Driver
		dir      string
		name     string
		err      error
	)

	switch driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite3", sqliteDSN(dataSource))
		if err != nil {
			return nil, fmt.Errorf("could not open database: %w", err)
		}
		instance, err = sqlite3.WithInstance(db, &sqlite3.Config{})
		dir, name = "migrations/sqlite", "sqlite3"
	case DriverPostgres:
		config, perr := pgxpool.ParseConfig(dataSource)
		if perr != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", perr)
		}
		db = stdlib.OpenDB(*config.ConnConfig)
		instance, err = postgres.WithInstance(db, &postgres.Config{})
		dir, name = "migrations/postgres", "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create %s migration driver: %w", driver, err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, instance)
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations.
func MigrateUp(driver, dataSource string) error {
	m, err := getMigrate(driver, dataSource)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("No new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	log.WithField("version", version).Info("Database migrated")
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(driver, dataSource string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := getMigrate(driver, dataSource)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// MigrationStatus reports the applied version. A zero version with a nil
// error means no migration has run yet.
func MigrationStatus(driver, dataSource string) (version uint, dirty bool, err error) {
	m, err := getMigrate(driver, dataSource)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}
