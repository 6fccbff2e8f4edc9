package memberdir

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	ocrypto "github.com/porthorian/memberdir/pkg/crypto"
)

// EnvPrefix prefixes every environment override, e.g. MEMBERDIR_TOKEN_SECRET.
const EnvPrefix = "MEMBERDIR"

// every key needs a default so AutomaticEnv can see it through AllSettings
var configDefaults = map[string]any{
	"http.address":               ":8080",
	"http.read_timeout":          "10s",
	"http.write_timeout":         "15s",
	"http.shutdown_timeout":      "10s",
	"http.cors.allowed_origins":  []string{},
	"log.level":                  "info",
	"log.format":                 "json",
	"token.secret":               "",
	"token.ttl":                  "1h",
	"password.scheme":            string(ocrypto.SchemeBcrypt),
	"password.bcrypt_cost":       10,
	"password.pbkdf2_iterations": 120000,

	"storage.backend":                     string(StorageBackendMemory),
	"storage.postgres.dsn":                "",
	"storage.postgres.max_open_conns":     10,
	"storage.postgres.max_idle_conns":     5,
	"storage.postgres.conn_max_lifetime":  "1h",
	"storage.postgres.conn_max_idle_time": "10m",
	"storage.postgres.ping_timeout":       "5s",
	"storage.sqlite.dsn":                  "file:memberdir.db",

	"cache.backend":            string(CacheBackendMemory),
	"cache.memory.size":        10000,
	"cache.redis.address":      "",
	"cache.redis.username":     "",
	"cache.redis.password":     "",
	"cache.redis.database":     0,
	"cache.redis.namespace":    "memberdir",
	"cache.redis.dial_timeout": "5s",

	"bootstrap.admin_username": "",
	"bootstrap.admin_password": "",
}

// NewViper returns a viper instance carrying the defaults and env bindings.
// Callers may bind flags on it before passing it to LoadConfig.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig layers flags, env, the optional file at path and defaults, then validates.
func LoadConfig(v *viper.Viper, path string) (RuntimeConfig, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return RuntimeConfig{}, fmt.Errorf("memberdir config: read %q: %w", path, err)
		}
	}

	var config RuntimeConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &config,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("memberdir config: create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return RuntimeConfig{}, fmt.Errorf("memberdir config: decode: %w", err)
	}

	if err := config.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return config, nil
}

func (c RuntimeConfig) Validate() error {
	if len(c.Token.Secret) < MinSecretLength {
		return fmt.Errorf("memberdir config: token.secret must be at least %d bytes", MinSecretLength)
	}
	if c.Token.TTL < time.Second {
		return fmt.Errorf("memberdir config: token.ttl must be at least 1s")
	}

	switch ocrypto.Scheme(c.Password.Scheme) {
	case ocrypto.SchemeBcrypt, ocrypto.SchemePBKDF2:
	default:
		return fmt.Errorf("memberdir config: unsupported password.scheme %q", c.Password.Scheme)
	}

	switch c.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("memberdir config: storage.postgres.dsn is required")
		}
	case StorageBackendSQLite:
		if c.Storage.SQLite.DSN == "" {
			return fmt.Errorf("memberdir config: storage.sqlite.dsn is required")
		}
	default:
		return fmt.Errorf("memberdir config: unsupported storage.backend %q", c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("memberdir config: cache.redis.address is required")
		}
	default:
		return fmt.Errorf("memberdir config: unsupported cache.backend %q", c.Cache.Backend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("memberdir config: log.level must be one of [debug, info, warn, error]")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("memberdir config: log.format must be json or console")
	}

	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		return fmt.Errorf("memberdir config: bootstrap.admin_username and bootstrap.admin_password must be set together")
	}

	if c.HTTP.Address == "" {
		return fmt.Errorf("memberdir config: http.address is required")
	}
	return nil
}
