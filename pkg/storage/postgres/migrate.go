package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const EmbeddedMigrationsSource = "embedded"

type MigrationsTable struct {
	Schema string
	Table  string
}

func (t MigrationsTable) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// NewMigrator builds a golang-migrate runner against databaseURL. sourceURL is
// either EmbeddedMigrationsSource or any golang-migrate source URL (file://...).
func NewMigrator(databaseURL string, sourceURL string, table MigrationsTable) (*migrate.Migrate, error) {
	if err := EnsureSchema(databaseURL, table.Schema); err != nil {
		return nil, err
	}

	migrateURL, err := migrateDatabaseURL(databaseURL, table)
	if err != nil {
		return nil, err
	}

	if sourceURL == "" || sourceURL == EmbeddedMigrationsSource {
		source, err := iofs.New(migrationFiles, "migrations")
		if err != nil {
			return nil, fmt.Errorf("open embedded migrations: %w", err)
		}
		runner, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
		if err != nil {
			return nil, fmt.Errorf("create migrate runner: %w", err)
		}
		return runner, nil
	}

	runner, err := migrate.New(sourceURL, migrateURL)
	if err != nil {
		return nil, fmt.Errorf("create migrate runner: %w", err)
	}
	return runner, nil
}

// EnsureSchema creates schema when it is set; the migrations table lives there
// before the first migration runs.
func EnsureSchema(databaseURL string, schema string) error {
	if schema == "" {
		return nil
	}

	parsedURL, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	sanitized := migrate.FilterCustomQuery(parsedURL)
	sanitized.Scheme = "postgres"

	db, err := sql.Open("pgx", sanitized.String())
	if err != nil {
		return fmt.Errorf("open database for schema bootstrap: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("ensure migrations schema %q exists: %w", schema, err)
	}
	return nil
}

func migrateDatabaseURL(databaseURL string, table MigrationsTable) (string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql", "pgx", "pgx5":
		parsed.Scheme = "pgx5"
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", parsed.Scheme)
	}

	if table.Table != "" {
		query := parsed.Query()
		if strings.TrimSpace(query.Get("x-migrations-table")) == "" {
			if table.Schema != "" {
				query.Set("x-migrations-table", fmt.Sprintf("\"%s\".\"%s\"", escapeDoubleQuote(table.Schema), escapeDoubleQuote(table.Table)))
				query.Set("x-migrations-table-quoted", "true")
			} else {
				query.Set("x-migrations-table", table.Table)
			}
			parsed.RawQuery = query.Encode()
		}
	}

	return parsed.String(), nil
}

func escapeDoubleQuote(value string) string {
	return strings.ReplaceAll(value, `"`, `""`)
}
