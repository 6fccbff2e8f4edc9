package memberdir

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/memberdir/pkg/authz"
	ocrypto "github.com/porthorian/memberdir/pkg/crypto"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestApp(t *testing.T, clock *testClock) *App {
	t.Helper()

	config := Config{
		Store:  memory.NewStore(),
		Hasher: ocrypto.NewPBKDF2Hasher(ocrypto.PBKDF2Options{Iterations: 1000}),
		Logger: testr.New(t),
		Runtime: RuntimeConfig{
			Token: TokenConfig{Secret: testSecret, TTL: time.Hour},
			Cache: CacheConfig{Backend: CacheBackendMemory},
		},
	}
	if clock != nil {
		config.Now = clock.Now
	}

	app, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close()) })
	return app
}

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New(context.Background(), Config{
		Runtime: RuntimeConfig{Token: TokenConfig{Secret: "short"}},
	})
	require.ErrorContains(t, err, "token.secret")
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	base := RuntimeConfig{Token: TokenConfig{Secret: testSecret}}

	storageConfig := base
	storageConfig.Storage.Backend = "mongo"
	_, err := New(context.Background(), Config{Runtime: storageConfig})
	require.ErrorContains(t, err, "storage.backend")

	cacheConfig := base
	cacheConfig.Cache.Backend = "memcached"
	_, err = New(context.Background(), Config{Runtime: cacheConfig})
	require.ErrorContains(t, err, "cache.backend")

	passwordConfig := base
	passwordConfig.Password.Scheme = "md5"
	_, err = New(context.Background(), Config{Runtime: passwordConfig})
	require.ErrorContains(t, err, "password.scheme")
}

func TestNewRequiresDSNForSQLBackends(t *testing.T) {
	config := RuntimeConfig{Token: TokenConfig{Secret: testSecret}}
	config.Storage.Backend = StorageBackendPostgres
	_, err := New(context.Background(), Config{Runtime: config})
	require.ErrorContains(t, err, "storage.postgres.dsn")

	config.Storage.Backend = StorageBackendSQLite
	_, err = New(context.Background(), Config{Runtime: config})
	require.ErrorContains(t, err, "storage.sqlite.dsn")
}

func TestNewWithSQLiteBackend(t *testing.T) {
	config := RuntimeConfig{Token: TokenConfig{Secret: testSecret}}
	config.Storage.Backend = StorageBackendSQLite
	config.Storage.SQLite.DSN = "file:memberdir-app-test?mode=memory&cache=shared"
	config.Cache.Backend = CacheBackendNone
	config.Password.Scheme = string(ocrypto.SchemePBKDF2)
	config.Password.PBKDF2Iterations = 1000

	app, err := New(context.Background(), Config{Runtime: config, Logger: testr.New(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	require.NoError(t, app.Ping(context.Background()))
	_, err = app.CreateUser(context.Background(), "admin", "s3cret!", []authz.Role{authz.RoleAdmin})
	require.NoError(t, err)

	result, err := app.Auth().Login(context.Background(), LoginInput{Username: "admin", Password: "s3cret!"})
	require.NoError(t, err)
	assert.Equal(t, []authz.Role{authz.RoleAdmin}, result.Principal.Roles)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, nil)

	user, err := app.CreateUser(ctx, "  alice ", "pa55word", []authz.Role{authz.RoleUser, authz.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []string{"USER", "ADMIN"}, user.Roles)
	assert.NotEqual(t, "pa55word", user.PasswordHash)

	_, err = app.CreateUser(ctx, "alice", "other", []authz.Role{authz.RoleUser})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeConflict), "got %v", err)

	_, err = app.CreateUser(ctx, "", "", nil)
	require.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	var typed *oerrors.Error
	require.ErrorAs(t, err, &typed)
	assert.Contains(t, typed.Fields, "username")
	assert.Contains(t, typed.Fields, "password")
	assert.Contains(t, typed.Fields, "roles")
}

func TestAppVerifierAcceptsIssuedTokens(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	app := newTestApp(t, clock)

	_, err := app.CreateUser(ctx, "admin", "s3cret!", []authz.Role{authz.RoleAdmin})
	require.NoError(t, err)

	result, err := app.Auth().Login(ctx, LoginInput{Username: "admin", Password: "s3cret!"})
	require.NoError(t, err)

	principal, err := app.Verifier().Verify(result.Token, clock.now)
	require.NoError(t, err)
	assert.Equal(t, "admin", principal.Subject)
	assert.Equal(t, []authz.Role{authz.RoleAdmin}, principal.Roles)

	_, err = app.Verifier().Verify(result.Token, result.ExpiresAt)
	assert.True(t, oerrors.IsCode(err, oerrors.CodeTokenExpired))
}

func TestCloseIsIdempotent(t *testing.T) {
	app := newTestApp(t, nil)
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())

	var nilApp *App
	require.NoError(t, nilApp.Close())
}

func TestJoinClosersRunsInReverse(t *testing.T) {
	var order []int
	closer := joinClosers(
		func() error { order = append(order, 1); return nil },
		nil,
		func() error { order = append(order, 3); return assert.AnError },
	)

	err := closer()
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []int{3, 1}, order)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, nil)

	created, err := app.EnsureAdmin(ctx, "root", "root-pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = app.EnsureAdmin(ctx, "root", "other-pass")
	require.NoError(t, err)
	assert.False(t, created, "existing user is left alone")

	_, err = app.Auth().Login(ctx, LoginInput{Username: "root", Password: "root-pass"})
	require.NoError(t, err)
}
