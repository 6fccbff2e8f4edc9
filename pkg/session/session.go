package session

import (
	"time"

	"github.com/porthorian/memberdir/pkg/authz"
)

// Issuer mints a signed, self-contained access token for an authenticated principal.
type Issuer interface {
	Issue(subject string, roles []authz.Role, now time.Time) (string, error)
}

// Verifier turns a presented token back into a principal. Failures carry one of
// the token codes from pkg/errors.
type Verifier interface {
	Verify(token string, now time.Time) (authz.Principal, error)
}
