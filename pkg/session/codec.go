package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/porthorian/memberdir/pkg/authz"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
)

var (
	ErrEmptySecret = errors.New("session: signing secret is required")
	ErrInvalidTTL  = errors.New("session: token ttl must be at least one second")
	ErrNoSubject   = errors.New("session: subject is required")
)

// Signature bytes must round-trip exactly; the lenient decoder ignores trailing bits.
var signatureEncoding = base64.RawURLEncoding.Strict()

type tokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Codec encodes tokens as <base64url(claims-json)>.<base64url(HMAC-SHA256)>.
// The secret and ttl are fixed for the lifetime of the codec.
type Codec struct {
	secret []byte
	ttl    time.Duration
	method *jwt.SigningMethodHMAC
}

var _ Issuer = (*Codec)(nil)
var _ Verifier = (*Codec)(nil)

func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if ttl < time.Second {
		return nil, ErrInvalidTTL
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &Codec{
		secret: key,
		ttl:    ttl,
		method: jwt.SigningMethodHS256,
	}, nil
}

// Issue truncates now to whole seconds; exp is iat + ttl.
func (c *Codec) Issue(subject string, roles []authz.Role, now time.Time) (string, error) {
	if subject == "" {
		return "", ErrNoSubject
	}

	issuedAt := now.UTC().Truncate(time.Second)
	payload, err := json.Marshal(tokenClaims{
		Roles: authz.RoleStrings(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	})
	if err != nil {
		return "", err
	}

	claimsPart := base64.RawURLEncoding.EncodeToString(payload)
	signature, err := c.method.Sign(claimsPart, c.secret)
	if err != nil {
		return "", err
	}

	return claimsPart + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

// ExpiresAt reports the exp claim Issue would embed for now.
func (c *Codec) ExpiresAt(now time.Time) time.Time {
	return now.UTC().Truncate(time.Second).Add(c.ttl)
}

// Verify checks the signature before looking at the claims.
func (c *Codec) Verify(token string, now time.Time) (authz.Principal, error) {
	sep := strings.LastIndexByte(token, '.')
	if sep <= 0 {
		return authz.Principal{}, oerrors.New(oerrors.CodeMalformedToken, "token is malformed")
	}
	claimsPart, signaturePart := token[:sep], token[sep+1:]

	signature, err := signatureEncoding.DecodeString(signaturePart)
	if err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeBadSignature, "token signature is invalid", err)
	}
	if err := c.method.Verify(claimsPart, signature, c.secret); err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeBadSignature, "token signature is invalid", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(claimsPart)
	if err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeMalformedToken, "token claims are malformed", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeMalformedToken, "token claims are malformed", err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return authz.Principal{}, oerrors.New(oerrors.CodeMalformedToken, "token claims are incomplete")
	}

	roles, err := authz.ParseRoles(claims.Roles)
	if err != nil {
		return authz.Principal{}, oerrors.Wrap(oerrors.CodeMalformedToken, "token roles are malformed", err)
	}

	if !now.Before(claims.ExpiresAt.Time) {
		return authz.Principal{}, oerrors.New(oerrors.CodeTokenExpired, "token has expired")
	}

	return authz.Principal{
		Subject: claims.Subject,
		Roles:   roles,
	}, nil
}
