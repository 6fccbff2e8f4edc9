package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedatabase "github.com/golang-migrate/migrate/v4/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/porthorian/memberdir/pkg/storage/postgres"
)

const defaultMigrationsTable = "memberdir.schema_migrations"

type migrateConfig struct {
	DatabaseURL     string
	MigrationsTable string
	MigrationsPath  string
}

func init() {
	rootCmd.AddCommand(newMigrateCommand())
}

func newMigrateCommand() *cobra.Command {
	cfg := migrateConfig{
		MigrationsTable: defaultMigrationsTable,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	migrateCmd.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", "", "Database connection URL. Falls back to MEMBERDIR_MIGRATE_DATABASE_URL, then storage.postgres.dsn.")
	migrateCmd.PersistentFlags().StringVar(&cfg.MigrationsTable, "migrations-table", cfg.MigrationsTable, "Migrations version table name. Supports table or schema.table format. Can also be set via MEMBERDIR_MIGRATE_MIGRATIONS_TABLE.")
	migrateCmd.PersistentFlags().StringVar(&cfg.MigrationsPath, "migrations-path", "", "Path or source URL for migration files. Defaults to the migrations embedded in the binary.")

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Run schema migrations up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, hasSteps, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}

			runner, sourceURL, err := newMigrationRunner(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeMigrationRunner(runner); closeErr != nil {
					cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
				}
			}()

			if hasSteps {
				err = runner.Steps(steps)
			} else {
				err = runner.Up()
			}

			if err != nil {
				if isNoChangeBoundaryError(err) {
					cmd.Println("No schema changes to apply.")
					return nil
				}

				var shortLimit migrate.ErrShortLimit
				if hasSteps && errors.As(err, &shortLimit) {
					applied := steps - int(shortLimit.Short)
					if applied <= 0 {
						cmd.Println("No schema changes to apply.")
						return nil
					}

					cmd.Printf(
						"Applied %d migration step(s) from %s (requested %d step(s), reached migration boundary)\n",
						applied,
						sourceURL,
						steps,
					)
					return nil
				}

				return fmt.Errorf("apply migrations: %w", err)
			}

			if hasSteps {
				cmd.Printf("Applied %d migration step(s) from %s\n", steps, sourceURL)
				return nil
			}

			cmd.Printf("Applied all pending migrations from %s\n", sourceURL)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Rollback schema migrations down by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _, err := parseMigrationStepsArg(args)
			if err != nil {
				return err
			}
			table, err := parseMigrationsTable(resolveMigrationsTable(cfg.MigrationsTable))
			if err != nil {
				return err
			}

			runner, sourceURL, err := newMigrationRunner(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeMigrationRunner(runner); closeErr != nil {
					cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
				}
			}()

			if err := runner.Steps(-steps); err != nil {
				if isNoChangeBoundaryError(err) {
					cmd.Println("No schema changes to rollback.")
					return nil
				}
				if isDroppedMigrationsTableError(err, table) {
					cmd.Printf("Rolled back %d migration step(s) from %s\n", steps, sourceURL)
					cmd.Println("Migration tracking table was removed by rollback and will be recreated on the next run.")
					return nil
				}

				var shortLimit migrate.ErrShortLimit
				if errors.As(err, &shortLimit) {
					rolledBack := steps - int(shortLimit.Short)
					if rolledBack <= 0 {
						cmd.Println("No schema changes to rollback.")
						return nil
					}

					cmd.Printf(
						"Rolled back %d migration step(s) from %s (requested %d step(s), reached migration boundary)\n",
						rolledBack,
						sourceURL,
						steps,
					)
					return nil
				}

				return fmt.Errorf("rollback migrations: %w", err)
			}

			cmd.Printf("Rolled back %d migration step(s) from %s\n", steps, sourceURL)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force-set migration version (-1 for nil version)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersionArg(args[0])
			if err != nil {
				return err
			}

			runner, _, err := newMigrationRunner(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeMigrationRunner(runner); closeErr != nil {
					cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
				}
			}()

			if err := runner.Force(version); err != nil {
				return fmt.Errorf("force migration version: %w", err)
			}

			if version == -1 {
				cmd.Println("Forced migration version to -1 (no version).")
				return nil
			}

			cmd.Printf("Forced migration version to %d.\n", version)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, _, err := newMigrationRunner(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := closeMigrationRunner(runner); closeErr != nil {
					cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", closeErr)
				}
			}()

			version, dirty, err := runner.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				cmd.Println("No migrations applied.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read migration version: %w", err)
			}

			if dirty {
				cmd.Printf("%d (dirty)\n", version)
				return nil
			}
			cmd.Printf("%d\n", version)
			return nil
		},
	})

	return migrateCmd
}

func lookupEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func resolveDatabaseURL(databaseURLFlag string) (string, error) {
	databaseURL := strings.TrimSpace(databaseURLFlag)
	if databaseURL == "" {
		databaseURL = lookupEnv("MEMBERDIR_MIGRATE_DATABASE_URL")
	}
	if databaseURL == "" {
		if configPath != "" {
			settings.SetConfigFile(configPath)
			if err := settings.ReadInConfig(); err != nil {
				return "", fmt.Errorf("read config %q: %w", configPath, err)
			}
		}
		databaseURL = strings.TrimSpace(settings.GetString("storage.postgres.dsn"))
	}
	if databaseURL == "" {
		return "", errors.New("missing database URL: set --database-url, MEMBERDIR_MIGRATE_DATABASE_URL or storage.postgres.dsn")
	}
	return databaseURL, nil
}

func parseMigrationStepsArg(args []string) (int, bool, error) {
	if len(args) == 0 {
		return 0, false, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || steps <= 0 {
		return 0, false, fmt.Errorf("invalid migration steps %q: expected a positive integer", args[0])
	}

	return steps, true, nil
}

func parseForceVersionArg(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < -1 {
		return 0, fmt.Errorf("invalid force version %q: expected an integer >= -1", arg)
	}
	return version, nil
}

func newMigrationRunner(cfg migrateConfig) (*migrate.Migrate, string, error) {
	databaseURL, err := resolveDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, "", err
	}
	table, err := parseMigrationsTable(resolveMigrationsTable(cfg.MigrationsTable))
	if err != nil {
		return nil, "", err
	}

	sourceURL, err := resolveMigrationsSourceURL(cfg.MigrationsPath)
	if err != nil {
		return nil, "", err
	}

	runner, err := postgres.NewMigrator(databaseURL, sourceURL, table)
	if err != nil {
		return nil, "", err
	}
	return runner, sourceURL, nil
}

func resolveMigrationsTable(flagValue string) string {
	value := strings.TrimSpace(flagValue)
	if value == "" {
		value = lookupEnv("MEMBERDIR_MIGRATE_MIGRATIONS_TABLE")
	}
	if value == "" {
		value = defaultMigrationsTable
	}
	return value
}

var quotedMigrationsTableRegexp = regexp.MustCompile(`"(.*?)"`)

func parseMigrationsTable(value string) (postgres.MigrationsTable, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return postgres.MigrationsTable{}, nil
	}

	if strings.Contains(raw, "\"") {
		parts := quotedMigrationsTableRegexp.FindAllStringSubmatch(raw, -1)
		if len(parts) == 1 {
			if strings.TrimSpace(parts[0][1]) == "" {
				return postgres.MigrationsTable{}, fmt.Errorf("invalid migrations table %q", value)
			}
			return postgres.MigrationsTable{Table: parts[0][1]}, nil
		}
		if len(parts) == 2 {
			if strings.TrimSpace(parts[0][1]) == "" || strings.TrimSpace(parts[1][1]) == "" {
				return postgres.MigrationsTable{}, fmt.Errorf("invalid migrations table %q", value)
			}
			return postgres.MigrationsTable{
				Schema: parts[0][1],
				Table:  parts[1][1],
			}, nil
		}

		return postgres.MigrationsTable{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
	}

	parts := strings.Split(raw, ".")
	switch len(parts) {
	case 1:
		if strings.TrimSpace(parts[0]) == "" {
			return postgres.MigrationsTable{}, fmt.Errorf("invalid migrations table %q", value)
		}
		return postgres.MigrationsTable{Table: parts[0]}, nil
	case 2:
		if strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return postgres.MigrationsTable{}, fmt.Errorf("invalid migrations table %q", value)
		}
		return postgres.MigrationsTable{
			Schema: parts[0],
			Table:  parts[1],
		}, nil
	default:
		return postgres.MigrationsTable{}, fmt.Errorf("invalid migrations table %q: expected table or schema.table", value)
	}
}

func resolveMigrationsSourceURL(migrationsPath string) (string, error) {
	pathOrURL := strings.TrimSpace(migrationsPath)
	if pathOrURL == "" {
		return postgres.EmbeddedMigrationsSource, nil
	}

	if strings.Contains(pathOrURL, "://") {
		return pathOrURL, nil
	}

	absPath, err := filepath.Abs(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path %q: %w", pathOrURL, err)
	}

	return "file://" + filepath.ToSlash(absPath), nil
}

func closeMigrationRunner(runner *migrate.Migrate) error {
	if runner == nil {
		return nil
	}

	sourceErr, databaseErr := runner.Close()
	return errors.Join(sourceErr, databaseErr)
}

func isNoChangeBoundaryError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return true
	}

	// golang-migrate returns bare os.ErrNotExist when a step command
	// reaches the migration boundary (already at latest/earliest version).
	return err == os.ErrNotExist
}

// isDroppedMigrationsTableError matches the TRUNCATE golang-migrate issues after the
// last down migration dropped the schema holding its own version table.
func isDroppedMigrationsTableError(err error, table postgres.MigrationsTable) bool {
	var dbErr *migratedatabase.Error
	if !errors.As(err, &dbErr) || dbErr == nil {
		return false
	}

	query := strings.TrimSpace(string(dbErr.Query))
	if query == "" || !strings.HasPrefix(strings.ToUpper(query), "TRUNCATE ") {
		return false
	}
	if table.Table == "" {
		return false
	}

	target := pgx.Identifier{table.Table}.Sanitize()
	if table.Schema != "" {
		target = pgx.Identifier{table.Schema, table.Table}.Sanitize()
	}
	if !strings.Contains(query, target) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(dbErr.OrigErr, &pgErr) && (pgErr.Code == "3F000" || pgErr.Code == "42P01") {
		return true
	}

	return strings.Contains(strings.ToLower(dbErr.Error()), "does not exist")
}
