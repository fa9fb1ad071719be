package postgres

import (
	"embed"
	stderrors "errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationStatus is the schema version recorded in the database.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrator applies the run store schema. An empty path uses the migrations
// compiled into the binary; otherwise path is a directory of .sql files.
type Migrator struct {
	m      *migrate.Migrate
	logger logging.Logger
}

// NewMigrator opens its own connection to dsn, a postgres:// URL as built by
// BuildDSN.
func NewMigrator(dsn, path string, log logging.Logger) (*Migrator, error) {
	var (
		m   *migrate.Migrate
		err error
	)
	if path == "" {
		src, serr := iofs.New(embeddedMigrations, "migrations")
		if serr != nil {
			return nil, errors.Wrap(serr, errors.ErrCodeInternal, "failed to open embedded migrations")
		}
		m, err = migrate.NewWithSourceInstance("iofs", src, dsn)
	} else {
		if !strings.Contains(path, "://") {
			path = "file://" + path
		}
		m, err = migrate.New(path, dsn)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create migrate instance")
	}
	return &Migrator{m: m, logger: log}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (g *Migrator) Up() error {
	if err := g.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		st, _ := g.Status()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetailf("current version %d, dirty %t", st.Version, st.Dirty)
	}
	st, err := g.Status()
	if err != nil {
		return err
	}
	g.logger.Info("Database migrations completed",
		logging.Int64("version", int64(st.Version)),
		logging.Bool("dirty", st.Dirty),
	)
	return nil
}

// Down rolls back steps migrations.
func (g *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.InvalidParam("steps must be greater than 0")
	}
	if err := g.m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.InvalidState("no migrations to roll back")
		}
		return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to roll back %d step(s)", steps)
	}
	g.logger.Info("Database migrations rolled back", logging.Int("steps", steps))
	return nil
}

// Status returns the applied version. A fresh database reports version 0.
func (g *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := g.m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return MigrationStatus{Version: v, Dirty: dirty}, nil
}

// Force marks version as applied without running it, to recover from a dirty
// schema.
func (g *Migrator) Force(version int) error {
	if err := g.m.Force(version); err != nil {
		return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to force version %d", version)
	}
	return nil
}

// Close releases the migration source and connection.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
