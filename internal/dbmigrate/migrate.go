// Package dbmigrate applies the SQL files under db/schema.
package dbmigrate

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/AyusGup/Hive-Automation/pkg/logger"
)

// SourceURL turns a schema directory into a file:// source URL.
func SourceURL(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve schema dir: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func newMigrator(dir, dsn string) (*migrate.Migrate, error) {
	src, err := SourceURL(dir)
	if err != nil {
		return nil, err
	}
	m, err := migrate.New(src, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations. Being already current is not an error.
func Up(dir, dsn string) error {
	m, err := newMigrator(dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	v, dirty, _ := m.Version()
	logger.Infof("Schema at version %d (dirty=%t)", v, dirty)
	return nil
}

// Down rolls back the given number of migrations.
func Down(dir, dsn string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	m, err := newMigrator(dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// Version reports the current schema version.
func Version(dir, dsn string) (uint, bool, error) {
	m, err := newMigrator(dir, dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
