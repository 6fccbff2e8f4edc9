package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/porthorian/memberdir/pkg/authz"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/session"
)

type MiddlewareConfig struct {
	TokenHeader string
	Scheme      string
	Now         func() time.Time
	Logger      logr.Logger
}

func DefaultConfig() MiddlewareConfig {
	return MiddlewareConfig{
		TokenHeader: "Authorization",
		Scheme:      "Bearer",
		Now:         time.Now,
		Logger:      logr.Discard(),
	}
}

func (c MiddlewareConfig) withDefaults() MiddlewareConfig {
	defaults := DefaultConfig()
	if c.TokenHeader == "" {
		c.TokenHeader = defaults.TokenHeader
	}
	if c.Scheme == "" {
		c.Scheme = defaults.Scheme
	}
	if c.Now == nil {
		c.Now = defaults.Now
	}
	if c.Logger.GetSink() == nil {
		c.Logger = defaults.Logger
	}
	return c
}

// Authenticate attaches the verified principal to the request context. Requests
// without the header pass through anonymously; a header that does not carry a
// valid token ends the request with 401.
func Authenticate(verifier session.Verifier, config MiddlewareConfig) func(http.Handler) http.Handler {
	config = config.withDefaults()
	logger := config.Logger.WithName("authn")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(config.TokenHeader)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(header, config.Scheme)
			if !ok {
				logger.V(1).Info("rejected authorization header", "path", r.URL.Path, "reason", "scheme")
				WriteError(w, r, oerrors.New(oerrors.CodeMalformedToken, "authorization scheme is not supported"), logger)
				return
			}

			principal, err := verifier.Verify(token, config.Now())
			if err != nil {
				logger.V(1).Info("rejected bearer token", "path", r.URL.Path, "reason", oerrors.CodeOf(err))
				WriteError(w, r, err, logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(authz.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRoles admits principals holding any of roles. With no roles it only
// requires an authenticated principal.
func RequireRoles(logger logr.Logger, roles ...authz.Role) func(http.Handler) http.Handler {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := authz.PrincipalFromContext(r.Context())
			if err := authz.Authorize(principal, roles...).Err(); err != nil {
				WriteError(w, r, err, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string, scheme string) (string, bool) {
	prefix, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(prefix, scheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
