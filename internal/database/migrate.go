package database

import (
	"database/sql"
	"errors"
	"fmt"

	"tikiti/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies pending schema migrations from migrationsPath against
// the open connection. A no-change run is not an error.
func Migrate(sqldb *sql.DB, migrationsPath string, log *logger.Logger) error {
	driver, err := postgres.WithInstance(sqldb, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("DATABASE", "Schema up to date, no migrations applied")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	log.Info("DATABASE", "Migrations applied")
	return nil
}
