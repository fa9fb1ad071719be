package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/terminal-planner/internal/infrastructure/database/postgres"
	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

// schemaMigrator is the part of postgres.Migrator the migrate command uses.
type schemaMigrator interface {
	Up() error
	Down(steps int) error
	Status() (postgres.MigrationStatus, error)
	Force(version int) error
	Close() error
}

var openMigrator = func(dsn, path string, log logging.Logger) (schemaMigrator, error) {
	return postgres.NewMigrator(dsn, path, log)
}

// NewMigrateCmd manages the run store schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect the run store schema",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m schemaMigrator) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				return printMigrationStatus(cmd, m)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					return printMigrationStatus(cmd, m)
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m schemaMigrator) error {
					return printMigrationStatus(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied to clear a dirty schema",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version < 0 {
					return errors.InvalidParam("version must be a non-negative integer").WithDetail(args[0])
				}
				return withMigrator(cmd, func(m schemaMigrator) error {
					if err := m.Force(version); err != nil {
						return err
					}
					return printMigrationStatus(cmd, m)
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(m schemaMigrator) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	pg := cliCtx.Config.Database.Postgres
	m, err := openMigrator(postgres.BuildDSN(postgresConfig(pg)), pg.MigrationPath, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m schemaMigrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", st.Version, state)
	return nil
}
