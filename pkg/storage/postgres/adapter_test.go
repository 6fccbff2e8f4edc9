package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/memberdir/pkg/storage"
	"github.com/porthorian/memberdir/pkg/storage/testsuite"
)

// Runs against a real database only when MEMBERDIR_TEST_POSTGRES_DSN is set.
func TestAdapterContract(t *testing.T) {
	dsn := os.Getenv("MEMBERDIR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEMBERDIR_TEST_POSTGRES_DSN not set")
	}

	runner, err := NewMigrator(dsn, EmbeddedMigrationsSource, MigrationsTable{Schema: "memberdir", Table: "schema_migrations"})
	require.NoError(t, err)
	if err := runner.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	_, _ = runner.Close()

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	testsuite.RunStoreContract(t, func(t *testing.T) storage.Store {
		_, err := db.ExecContext(context.Background(), "TRUNCATE memberdir.member, memberdir.app_user CASCADE")
		require.NoError(t, err)

		adapter, err := NewAdapter(db)
		require.NoError(t, err)
		t.Cleanup(func() { _ = adapter.Close() })
		return adapter
	})
}

func TestNilAdapterGuards(t *testing.T) {
	var adapter *Adapter
	_, err := adapter.GetMember(context.Background(), "id")
	require.ErrorIs(t, err, ErrNilDB)
	require.NoError(t, adapter.Close())

	_, err = NewAdapter(nil)
	require.ErrorIs(t, err, ErrNilDB)
}
