// Package migrations applies the embedded schema with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var files embed.FS

type Migrator struct {
	m   *migrate.Migrate
	log *zap.Logger
}

func New(db *sql.DB, log *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info("migrations: nothing to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return m.logVersion()
}

// Down rolls back a single migration.
func (m *Migrator) Down() error {
	err := m.m.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info("migrations: nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return m.logVersion()
}

func (m *Migrator) logVersion() error {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		m.log.Info("migrations: schema empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	m.log.Info("migrations applied", zap.Uint("version", v), zap.Bool("dirty", dirty))
	return nil
}
