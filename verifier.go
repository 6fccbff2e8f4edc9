package memberdir

import (
	"context"
	"errors"

	"github.com/go-logr/logr"

	"github.com/porthorian/memberdir/pkg/authz"
	ocrypto "github.com/porthorian/memberdir/pkg/crypto"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/storage"
)

const invalidCredentialsMessage = "Invalid username or password"

// CredentialVerifier checks a username and password against the user store.
type CredentialVerifier struct {
	users     storage.UserStore
	hasher    ocrypto.Hasher
	dummyHash string
	logger    logr.Logger
}

var _ Authenticator = (*CredentialVerifier)(nil)

func NewCredentialVerifier(users storage.UserStore, hasher ocrypto.Hasher, logger logr.Logger) (*CredentialVerifier, error) {
	if users == nil {
		return nil, oerrors.ErrMissingUserStore
	}
	if hasher == nil {
		return nil, ocrypto.ErrInvalidConfig
	}

	// unknown users are checked against this so both failure paths cost one hash
	dummyHash, err := hasher.Hash("memberdir-unknown-user")
	if err != nil {
		return nil, err
	}

	return &CredentialVerifier{
		users:     users,
		hasher:    hasher,
		dummyHash: dummyHash,
		logger:    resolveLogger(logger).WithName("credentials"),
	}, nil
}

func (v *CredentialVerifier) Authenticate(ctx context.Context, username string, password string) (authz.Principal, error) {
	user, err := v.users.FindByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		_, _ = v.hasher.Verify(password, v.dummyHash)
		return authz.Principal{}, oerrors.New(oerrors.CodeUserNotFound, invalidCredentialsMessage)
	}
	if err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeStorageUnavailable, "failed to load user", err)
	}

	ok, err := v.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		v.logger.Error(err, "stored password hash is unusable", "user_id", user.ID)
		return authz.Principal{}, oerrors.New(oerrors.CodeBadCredentials, invalidCredentialsMessage)
	}
	if !ok {
		return authz.Principal{}, oerrors.New(oerrors.CodeBadCredentials, invalidCredentialsMessage)
	}

	roles, err := authz.ParseRoles(user.Roles)
	if err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeUnknown, "user has an unknown role", err)
	}

	return authz.Principal{
		Subject: user.Username,
		Roles:   roles,
	}, nil
}
