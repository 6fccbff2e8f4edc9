package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/porthorian/memberdir/pkg/authz"
	"github.com/porthorian/memberdir/pkg/session"
)

const readyTimeout = 2 * time.Second

// RouterOptions controls router construction. Auth, Members and Verifier are required.
type RouterOptions struct {
	Auth           AuthService
	Members        MemberService
	Verifier       session.Verifier
	Ready          func(ctx context.Context) error
	Now            func() time.Time
	Logger         logr.Logger
	AllowedOrigins []string
	Middleware     []func(http.Handler) http.Handler
	MetricsHandler http.Handler
}

type route struct {
	method  string
	pattern string
	roles   []authz.Role
	handler func(*handlers) http.HandlerFunc
}

var (
	anyMember = []authz.Role{authz.RoleUser, authz.RoleAdmin}
	adminOnly = []authz.Role{authz.RoleAdmin}
)

// memberRoutes is the role requirement table for /api/v1/members.
var memberRoutes = []route{
	{http.MethodPost, "/", adminOnly, func(h *handlers) http.HandlerFunc { return h.createMember }},
	{http.MethodGet, "/", anyMember, func(h *handlers) http.HandlerFunc { return h.listMembers }},
	{http.MethodGet, "/{id}", anyMember, func(h *handlers) http.HandlerFunc { return h.getMember }},
	{http.MethodPut, "/{id}", adminOnly, func(h *handlers) http.HandlerFunc { return h.updateMember }},
	{http.MethodDelete, "/{id}", adminOnly, func(h *handlers) http.HandlerFunc { return h.deleteMember }},
}

func DefaultCORSOptions(allowedOrigins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}
}

func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	logger = logger.WithName("http")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(logger))
	r.Use(recoverer(logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(DefaultCORSOptions(opts.AllowedOrigins)))
	}
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, r, http.StatusNotFound, "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	mountOperations(r, opts, logger)

	h := &handlers{auth: opts.Auth, members: opts.Members, logger: logger}
	authn := Authenticate(opts.Verifier, MiddlewareConfig{Now: opts.Now, Logger: logger})

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/auth/login", h.login)

		r.Route("/api/v1/members", func(r chi.Router) {
			for _, rt := range memberRoutes {
				r.With(RequireRoles(logger, rt.roles...)).Method(rt.method, rt.pattern, rt.handler(h))
			}
		})
	})

	return r
}

func mountOperations(r chi.Router, opts RouterOptions, logger logr.Logger) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				logger.Error(err, "readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	metrics := opts.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)
}

// recoverer turns a handler panic into a logged 500 with the standard error body.
func recoverer(logger logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(nil, "handler panicked", "panic", rec, "method", r.Method, "path", r.URL.Path)
				writeErrorBody(w, r, http.StatusInternalServerError, messageInternal, nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
