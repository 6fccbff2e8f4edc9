// Package memberdir is a member directory service: users log in for a signed
// bearer token and manage member records that are cached per id in front of a store.
package memberdir

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/porthorian/memberdir/pkg/authz"
	"github.com/porthorian/memberdir/pkg/cache"
	ocrypto "github.com/porthorian/memberdir/pkg/crypto"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/session"
	"github.com/porthorian/memberdir/pkg/storage"
)

// Config wires an App. Store, Cache, Hasher and Codec are built from Runtime when nil.
type Config struct {
	Store   storage.Store
	Cache   cache.Backend
	Hasher  ocrypto.Hasher
	Codec   *session.Codec
	Logger  logr.Logger
	Now     func() time.Time
	Runtime RuntimeConfig
}

type App struct {
	store         storage.Store
	hasher        ocrypto.Hasher
	codec         *session.Codec
	auth          *AuthService
	members       *MemberService
	now           func() time.Time
	logger        logr.Logger
	closeResource func() error
}

func New(ctx context.Context, config Config) (*App, error) {
	closeResource, resolved, err := config.initialize(ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := NewCredentialVerifier(resolved.Store, resolved.Hasher, resolved.Logger)
	if err != nil {
		_ = closeResource()
		return nil, err
	}

	directory := cache.NewDirectory(resolved.Store, resolved.Cache, resolved.Logger)

	return &App{
		store:         resolved.Store,
		hasher:        resolved.Hasher,
		codec:         resolved.Codec,
		auth:          NewAuthService(verifier, resolved.Codec, resolved.Now, resolved.Logger),
		members:       NewMemberService(resolved.Store, directory, resolved.Now, resolved.Logger),
		now:           resolved.Now,
		logger:        resolved.Logger,
		closeResource: closeResource,
	}, nil
}

func (a *App) Auth() *AuthService {
	return a.auth
}

func (a *App) Members() *MemberService {
	return a.members
}

// Verifier checks bearer tokens issued by Auth().Login.
func (a *App) Verifier() session.Verifier {
	return a.codec
}

func (a *App) Now() time.Time {
	return a.now()
}

func (a *App) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// CreateUser hashes password with the configured scheme and stores a new user.
func (a *App) CreateUser(ctx context.Context, username string, password string, roles []authz.Role) (storage.UserRecord, error) {
	username = strings.TrimSpace(username)

	fields := map[string]string{}
	if username == "" {
		fields["username"] = "must not be blank"
	}
	if strings.TrimSpace(password) == "" {
		fields["password"] = "must not be blank"
	}
	if len(roles) == 0 {
		fields["roles"] = "at least one role is required"
	}
	if len(fields) > 0 {
		return storage.UserRecord{}, oerrors.Invalid("Validation failed", fields)
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return storage.UserRecord{}, oerrors.Wrap(oerrors.CodeUnknown, "failed to hash password", err)
	}

	record := storage.UserRecord{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Roles:        authz.RoleStrings(roles),
		CreatedAt:    a.now().UTC().Truncate(time.Microsecond),
	}
	if err := a.store.CreateUser(ctx, record); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.UserRecord{}, oerrors.New(oerrors.CodeConflict, "Username already exists")
		}
		return storage.UserRecord{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "failed to create user", err)
	}

	a.logger.Info("user created", "username", username, "roles", record.Roles)
	return record, nil
}

// EnsureAdmin creates an ADMIN user unless username already exists.
func (a *App) EnsureAdmin(ctx context.Context, username string, password string) (bool, error) {
	_, err := a.CreateUser(ctx, username, password, []authz.Role{authz.RoleAdmin})
	if oerrors.IsCode(err, oerrors.CodeConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *App) Close() error {
	if a == nil || a.closeResource == nil {
		return nil
	}

	err := a.closeResource()
	if err != nil {
		return oerrors.Wrap(oerrors.CodeUnknown, "failed to close app resources", err)
	}
	a.closeResource = nil
	return nil
}
