package authz

import oerrors "github.com/porthorian/memberdir/pkg/errors"

type DenyReason string

const (
	DenyUnauthenticated  DenyReason = "unauthenticated"
	DenyInsufficientRole DenyReason = "insufficient_role"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Authorize grants access when the principal holds at least one required role.
// An empty required set admits any authenticated principal.
func Authorize(principal *Principal, required ...Role) Decision {
	if principal == nil {
		return Deny(DenyUnauthenticated)
	}
	if len(required) == 0 || principal.HasAnyRole(required...) {
		return Allow()
	}
	return Deny(DenyInsufficientRole)
}

// Err is nil for an allowed decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}

	switch d.Reason {
	case DenyInsufficientRole:
		return oerrors.New(oerrors.CodeInsufficientRole, "Access is denied")
	default:
		return oerrors.New(oerrors.CodeUnauthenticated, "Authentication is required")
	}
}
