package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/porthorian/memberdir/pkg/cache"
	"github.com/porthorian/memberdir/pkg/storage"
)

var (
	ErrAddressRequired = errors.New("redis cache adapter: address is required")
)

type Config struct {
	Address     string
	Username    string
	Password    string
	Database    int
	Namespace   string
	DialTimeout time.Duration
}

// Adapter shares member entries between processes. Entries carry no TTL.
type Adapter struct {
	client    *goredis.Client
	namespace string
}

var _ cache.Backend = (*Adapter)(nil)

type entry struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewAdapter(config Config) (*Adapter, error) {
	if config.Address == "" {
		return nil, ErrAddressRequired
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.Namespace == "" {
		config.Namespace = "memberdir"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        config.Address,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.Database,
		DialTimeout: config.DialTimeout,
	})

	return &Adapter{
		client:    client,
		namespace: config.Namespace,
	}, nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis cache adapter: ping: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) Get(ctx context.Context, key string) (storage.MemberRecord, bool, error) {
	data, err := a.client.Get(ctx, a.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return storage.MemberRecord{}, false, nil
	}
	if err != nil {
		return storage.MemberRecord{}, false, fmt.Errorf("redis cache adapter: get: %w", err)
	}

	var cached entry
	if err := json.Unmarshal(data, &cached); err != nil {
		return storage.MemberRecord{}, false, fmt.Errorf("redis cache adapter: decode: %w", err)
	}
	return storage.MemberRecord(cached), true, nil
}

func (a *Adapter) Set(ctx context.Context, key string, record storage.MemberRecord) error {
	data, err := json.Marshal(entry(record))
	if err != nil {
		return fmt.Errorf("redis cache adapter: encode: %w", err)
	}
	if err := a.client.Set(ctx, a.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis cache adapter: set: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, a.key(key)).Err(); err != nil {
		return fmt.Errorf("redis cache adapter: delete: %w", err)
	}
	return nil
}

func (a *Adapter) key(id string) string {
	return a.namespace + ":member:" + id
}
