package migrations

import (
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"ms-scanning/internal/logger"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrateOptions defines configuration options for migration
type MigrateOptions struct {
	// Dir overrides the embedded migrations with files on disk.
	Dir string
	// AutoMigrate runs pending migrations on service startup.
	AutoMigrate bool
}

// Runner handles database migrations. It owns its own connection, opened
// from the DSN, so closing it never touches the service pool.
type Runner struct {
	dsn      string
	options  MigrateOptions
	log      *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(dsn string, opts MigrateOptions, log *logger.Logger) *Runner {
	return &Runner{dsn: dsn, options: opts, log: log}
}

// Initialize prepares the migration system
func (r *Runner) Initialize() error {
	var (
		migrator *migrate.Migrate
		err      error
	)
	if r.options.Dir != "" {
		if _, statErr := os.Stat(r.options.Dir); statErr != nil {
			return fmt.Errorf("migrations directory %s: %w", r.options.Dir, statErr)
		}
		migrator, err = migrate.New("file://"+r.options.Dir, r.dsn)
	} else {
		src, srcErr := iofs.New(embedded, "sql")
		if srcErr != nil {
			return fmt.Errorf("failed to open embedded migrations: %w", srcErr)
		}
		migrator, err = migrate.NewWithSourceInstance("iofs", src, r.dsn)
	}
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

func (r *Runner) ensure() error {
	if r.migrator != nil {
		return nil
	}
	return r.Initialize()
}

// Up applies all pending migrations. A dirty version is reported rather
// than forced; use Force after inspecting the schema.
func (r *Runner) Up() error {
	if err := r.ensure(); err != nil {
		return err
	}
	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	r.logVersion()
	return nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func (r *Runner) Down(steps int) error {
	if err := r.ensure(); err != nil {
		return err
	}
	var err error
	if steps > 0 {
		err = r.migrator.Steps(-steps)
	} else {
		err = r.migrator.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	r.logVersion()
	return nil
}

// Force sets the version without running migrations, clearing the dirty flag.
func (r *Runner) Force(version int) error {
	if err := r.ensure(); err != nil {
		return err
	}
	return r.migrator.Force(version)
}

// Version returns the applied version; 0 when nothing is applied.
func (r *Runner) Version() (uint, bool, error) {
	if err := r.ensure(); err != nil {
		return 0, false, err
	}
	v, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (r *Runner) logVersion() {
	v, dirty, err := r.Version()
	if err != nil {
		r.log.Warn("MIGRATE", fmt.Sprintf("could not read schema version: %v", err))
		return
	}
	r.log.Info("MIGRATE", fmt.Sprintf("schema version %d (dirty=%t)", v, dirty))
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
