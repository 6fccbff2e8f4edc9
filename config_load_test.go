package memberdir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MEMBERDIR_TOKEN_SECRET", testSecret)

	config, err := LoadConfig(nil, "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.HTTP.Address)
	assert.Equal(t, 10*time.Second, config.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, config.HTTP.ShutdownTimeout)
	assert.Equal(t, time.Hour, config.Token.TTL)
	assert.Equal(t, StorageBackendMemory, config.Storage.Backend)
	assert.Equal(t, CacheBackendMemory, config.Cache.Backend)
	assert.Equal(t, 10000, config.Cache.Memory.Size)
	assert.Equal(t, "bcrypt", config.Password.Scheme)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, testSecret, config.Token.Secret)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MEMBERDIR_TOKEN_SECRET", testSecret)
	t.Setenv("MEMBERDIR_TOKEN_TTL", "15m")
	t.Setenv("MEMBERDIR_STORAGE_BACKEND", "sqlite")
	t.Setenv("MEMBERDIR_STORAGE_SQLITE_DSN", "file:/tmp/members.db")
	t.Setenv("MEMBERDIR_CACHE_BACKEND", "none")
	t.Setenv("MEMBERDIR_HTTP_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	config, err := LoadConfig(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, config.Token.TTL)
	assert.Equal(t, StorageBackendSQLite, config.Storage.Backend)
	assert.Equal(t, "file:/tmp/members.db", config.Storage.SQLite.DSN)
	assert.Equal(t, CacheBackendNone, config.Cache.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.HTTP.CORS.AllowedOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memberdir.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  address: ":9090"
token:
  secret: "`+testSecret+`"
  ttl: 30m
cache:
  backend: redis
  redis:
    address: localhost:6379
    database: 2
`), 0o600))

	config, err := LoadConfig(nil, path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", config.HTTP.Address)
	assert.Equal(t, 30*time.Minute, config.Token.TTL)
	assert.Equal(t, CacheBackendRedis, config.Cache.Backend)
	assert.Equal(t, "localhost:6379", config.Cache.Redis.Address)
	assert.Equal(t, 2, config.Cache.Redis.Database)
	assert.Equal(t, "memberdir", config.Cache.Redis.Namespace)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]struct {
		env     map[string]string
		message string
	}{
		"missing secret":        {map[string]string{}, "token.secret"},
		"short secret":          {map[string]string{"MEMBERDIR_TOKEN_SECRET": "too-short"}, "token.secret"},
		"sub-second ttl":        {map[string]string{"MEMBERDIR_TOKEN_TTL": "500ms"}, "token.ttl"},
		"unknown storage":       {map[string]string{"MEMBERDIR_STORAGE_BACKEND": "mongo"}, "storage.backend"},
		"postgres without dsn":  {map[string]string{"MEMBERDIR_STORAGE_BACKEND": "postgres"}, "storage.postgres.dsn"},
		"redis without address": {map[string]string{"MEMBERDIR_CACHE_BACKEND": "redis"}, "cache.redis.address"},
		"unknown scheme":        {map[string]string{"MEMBERDIR_PASSWORD_SCHEME": "md5"}, "password.scheme"},
		"unknown level":         {map[string]string{"MEMBERDIR_LOG_LEVEL": "loud"}, "log.level"},
		"unknown format":        {map[string]string{"MEMBERDIR_LOG_FORMAT": "xml"}, "log.format"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, ok := tc.env["MEMBERDIR_TOKEN_SECRET"]; !ok && name != "missing secret" {
				t.Setenv("MEMBERDIR_TOKEN_SECRET", testSecret)
			}
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			_, err := LoadConfig(nil, "")
			require.ErrorContains(t, err, tc.message)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, sync, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	logger.Info("hello")
	_ = sync()

	_, _, err = NewLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	_, _, err = NewLogger(LogConfig{Format: "xml"})
	require.Error(t, err)
}
