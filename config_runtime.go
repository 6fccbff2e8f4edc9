package memberdir

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	memorycache "github.com/porthorian/memberdir/pkg/cache/memory"
	rediscache "github.com/porthorian/memberdir/pkg/cache/redis"
	ocrypto "github.com/porthorian/memberdir/pkg/crypto"
	"github.com/porthorian/memberdir/pkg/session"
	"github.com/porthorian/memberdir/pkg/storage/memory"
	"github.com/porthorian/memberdir/pkg/storage/postgres"
	"github.com/porthorian/memberdir/pkg/storage/sqlite"
)

// MinSecretLength is the shortest HMAC signing secret accepted, in bytes.
const MinSecretLength = 32

type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendPostgres StorageBackend = "postgres"
	StorageBackendSQLite   StorageBackend = "sqlite"
)

type CacheBackend string

const (
	CacheBackendNone   CacheBackend = "none"
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

type RuntimeConfig struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Token     TokenConfig     `mapstructure:"token"`
	Password  PasswordConfig  `mapstructure:"password"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type StorageConfig struct {
	Backend  StorageBackend `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	DriverName      string        `mapstructure:"driver_name"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
	OpenDB          func(driverName string, dsn string) (*sql.DB, error) `mapstructure:"-"`
}

type SQLiteConfig struct {
	DSN string `mapstructure:"dsn"`
}

type CacheConfig struct {
	Backend CacheBackend      `mapstructure:"backend"`
	Memory  MemoryCacheConfig `mapstructure:"memory"`
	Redis   RedisCacheConfig  `mapstructure:"redis"`
}

type MemoryCacheConfig struct {
	Size int `mapstructure:"size"`
}

type RedisCacheConfig struct {
	Address     string        `mapstructure:"address"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Database    int           `mapstructure:"database"`
	Namespace   string        `mapstructure:"namespace"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type TokenConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type PasswordConfig struct {
	Scheme           string `mapstructure:"scheme"`
	BcryptCost       int    `mapstructure:"bcrypt_cost"`
	PBKDF2Iterations int    `mapstructure:"pbkdf2_iterations"`
}

type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// BootstrapConfig names an ADMIN user that serve creates when it is missing.
type BootstrapConfig struct {
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (c Config) initialize(ctx context.Context) (func() error, Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	config := c
	config.Logger = resolveLogger(config.Logger)
	if config.Now == nil {
		config.Now = time.Now
	}

	if err := initializeSecurity(&config); err != nil {
		return nil, Config{}, err
	}

	closeStorage, config, err := initializeStorage(ctx, config)
	if err != nil {
		return nil, Config{}, err
	}

	closeCache, config, err := initializeCache(ctx, config)
	if err != nil {
		_ = closeStorage()
		return nil, Config{}, err
	}

	return joinClosers(closeStorage, closeCache), config, nil
}

func initializeSecurity(config *Config) error {
	if config.Codec == nil {
		tokenConfig := config.Runtime.Token
		if len(tokenConfig.Secret) < MinSecretLength {
			return fmt.Errorf("memberdir config: token.secret must be at least %d bytes", MinSecretLength)
		}
		if tokenConfig.TTL <= 0 {
			tokenConfig.TTL = time.Hour
		}

		codec, err := session.NewCodec([]byte(tokenConfig.Secret), tokenConfig.TTL)
		if err != nil {
			return fmt.Errorf("memberdir config: %w", err)
		}
		config.Codec = codec
		config.Runtime.Token = tokenConfig
	}

	if config.Hasher == nil {
		passwordConfig := config.Runtime.Password
		hasher, err := ocrypto.NewHasher(ocrypto.Scheme(passwordConfig.Scheme), passwordConfig.BcryptCost, passwordConfig.PBKDF2Iterations)
		if err != nil {
			return fmt.Errorf("memberdir config: unsupported password.scheme %q: %w", passwordConfig.Scheme, err)
		}
		config.Hasher = hasher
	}
	return nil
}

func initializeStorage(ctx context.Context, config Config) (func() error, Config, error) {
	if config.Store != nil {
		return noopCloser, config, nil
	}

	backend := config.Runtime.Storage.Backend
	if backend == "" {
		backend = StorageBackendMemory
	}

	switch backend {
	case StorageBackendMemory:
		config.Store = memory.NewStore()
		config.Logger.V(1).Info("initialized memory storage backend")
		return noopCloser, config, nil
	case StorageBackendPostgres:
		return initializePostgres(ctx, config)
	case StorageBackendSQLite:
		return initializeSQLite(ctx, config)
	default:
		return nil, Config{}, fmt.Errorf("memberdir config: unsupported storage.backend %q", backend)
	}
}

func initializeCache(ctx context.Context, config Config) (func() error, Config, error) {
	if config.Cache != nil {
		return noopCloser, config, nil
	}

	backend := config.Runtime.Cache.Backend
	if backend == "" {
		backend = CacheBackendMemory
	}

	switch backend {
	case CacheBackendNone:
		return noopCloser, config, nil
	case CacheBackendMemory:
		return initializeMemoryCache(config)
	case CacheBackendRedis:
		return initializeRedisCache(ctx, config)
	default:
		return nil, Config{}, fmt.Errorf("memberdir config: unsupported cache.backend %q", backend)
	}
}

func initializeMemoryCache(config Config) (func() error, Config, error) {
	adapter, err := memorycache.NewAdapter(config.Runtime.Cache.Memory.Size)
	if err != nil {
		return nil, Config{}, fmt.Errorf("memberdir config: %w", err)
	}

	config.Cache = adapter
	config.Logger.V(1).Info("initialized memory cache backend", "size", config.Runtime.Cache.Memory.Size)
	return noopCloser, config, nil
}

func initializeRedisCache(ctx context.Context, config Config) (func() error, Config, error) {
	redisConfig := config.Runtime.Cache.Redis
	if redisConfig.Address == "" {
		return nil, Config{}, fmt.Errorf("memberdir config: cache.redis.address is required")
	}
	if redisConfig.DialTimeout <= 0 {
		redisConfig.DialTimeout = 5 * time.Second
	}

	adapter, err := rediscache.NewAdapter(rediscache.Config{
		Address:     redisConfig.Address,
		Username:    redisConfig.Username,
		Password:    redisConfig.Password,
		Database:    redisConfig.Database,
		Namespace:   redisConfig.Namespace,
		DialTimeout: redisConfig.DialTimeout,
	})
	if err != nil {
		return nil, Config{}, fmt.Errorf("memberdir config: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()

	// member writes fail while the cache is unreachable
	if err := adapter.Ping(pingCtx); err != nil {
		_ = adapter.Close()
		return nil, Config{}, fmt.Errorf("memberdir config: failed to reach redis: %w", err)
	}

	config.Cache = adapter
	config.Runtime.Cache.Redis = redisConfig
	config.Logger.V(1).Info("initialized redis cache backend", "address", redisConfig.Address, "database", redisConfig.Database, "namespace", redisConfig.Namespace)
	return adapter.Close, config, nil
}

func initializePostgres(ctx context.Context, config Config) (func() error, Config, error) {
	pgConfig := config.Runtime.Storage.Postgres
	if pgConfig.DSN == "" {
		return nil, Config{}, fmt.Errorf("memberdir config: storage.postgres.dsn is required")
	}

	if pgConfig.DriverName == "" {
		pgConfig.DriverName = "pgx"
	}
	if pgConfig.PingTimeout <= 0 {
		pgConfig.PingTimeout = 5 * time.Second
	}
	if pgConfig.OpenDB == nil {
		pgConfig.OpenDB = sql.Open
	}

	db, err := pgConfig.OpenDB(pgConfig.DriverName, pgConfig.DSN)
	if err != nil {
		return nil, Config{}, fmt.Errorf("memberdir config: failed to open postgres database: %w", err)
	}

	if pgConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	}
	if pgConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	}
	if pgConfig.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pgConfig.ConnMaxLifetime)
	}
	if pgConfig.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pgConfig.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pgConfig.PingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, Config{}, fmt.Errorf("memberdir config: failed to ping postgres database: %w", err)
	}

	adapter, err := postgres.NewAdapter(db)
	if err != nil {
		_ = db.Close()
		return nil, Config{}, fmt.Errorf("memberdir config: failed to initialize postgres adapter: %w", err)
	}

	config.Store = adapter
	config.Runtime.Storage.Postgres = pgConfig
	config.Logger.V(1).Info("initialized postgres storage backend", "driver", pgConfig.DriverName, "max_open_conns", pgConfig.MaxOpenConns, "max_idle_conns", pgConfig.MaxIdleConns)
	return joinClosers(db.Close, adapter.Close), config, nil
}

func initializeSQLite(ctx context.Context, config Config) (func() error, Config, error) {
	dsn := config.Runtime.Storage.SQLite.DSN
	if dsn == "" {
		return nil, Config{}, fmt.Errorf("memberdir config: storage.sqlite.dsn is required")
	}

	store, err := sqlite.Open(ctx, dsn)
	if err != nil {
		return nil, Config{}, fmt.Errorf("memberdir config: failed to open sqlite database: %w", err)
	}

	config.Store = store
	config.Logger.V(1).Info("initialized sqlite storage backend")
	return store.Close, config, nil
}

// joinClosers runs closers in reverse order and joins their errors.
func joinClosers(closers ...func() error) func() error {
	return func() error {
		var errs []error

		for i := len(closers) - 1; i >= 0; i-- {
			if closers[i] == nil {
				continue
			}
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}

		return stderrors.Join(errs...)
	}
}

func noopCloser() error {
	return nil
}
