// Package httpapi exposes the helpdesk service over HTTP with a chi router.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-helpdesk/adapters/gocommand"
	"github.com/goliatone/go-helpdesk/core"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	DefaultAllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}
	DefaultAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
)

type RateLimit struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type Options struct {
	// Bindings are the dispatcher subscriptions the handlers dispatch to.
	Bindings      *gocommand.Bindings
	Authenticator core.Authenticator
	Logger        glog.Logger

	// CallbackURL is where the OAuth callback sends the browser back to.
	CallbackURL    string
	AllowedOrigins []string
	RateLimit      RateLimit

	Metrics http.Handler
	Health  func(ctx context.Context) error
}

type Server struct {
	authenticator core.Authenticator
	logger        glog.Logger
	callbackURL   string
	validate      *validator.Validate
	health        func(ctx context.Context) error
}

// NewRouter builds the route tree. Bindings and Authenticator are required.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Bindings.Len() == 0 {
		return nil, fmt.Errorf("httpapi: dispatcher bindings are required")
	}
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("httpapi: authenticator is required")
	}
	if strings.TrimSpace(opts.CallbackURL) == "" {
		return nil, fmt.Errorf("httpapi: callback url is required")
	}

	s := &Server{
		authenticator: opts.Authenticator,
		logger:        glog.Ensure(opts.Logger),
		callbackURL:   strings.TrimSpace(opts.CallbackURL),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		health:        opts.Health,
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: DefaultAllowedMethods,
		AllowedHeaders: DefaultAllowedHeaders,
		MaxAge:         86400,
	}))

	r.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	limited := rateLimiter(opts.RateLimit)

	r.Route("/oauth/{platform}", func(r chi.Router) {
		r.Use(limited)
		r.With(s.authenticate).Post("/connect", s.handleConnect)
		r.Get("/callback", s.handleCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.With(limited).Post("/sync/{platform}", s.handleSync)
		r.Get("/connections", s.handleListConnections)
		r.Delete("/connections/{platform}", s.handleDisconnect)
		r.Get("/tickets", s.handleListTickets)
		r.Get("/tickets/summary", s.handleTicketSummary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, core.BadInputError("route not found").WithCode(http.StatusNotFound))
	})
	return r, nil
}

func rateLimiter(cfg RateLimit) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.Requests <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Success: false, Error: "Too many requests"})
		}),
	)
}
