package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/droneops/facilityd/internal/users/service"
	"github.com/droneops/facilityd/internal/users/store"
	"github.com/droneops/facilityd/pkg/httpx"
	"github.com/droneops/facilityd/pkg/sessionx"
	"github.com/droneops/facilityd/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	sessions       *sessionx.Manager
	AccountService *service.AccountService
}

func NewRouter(
	buildVersion string,
	st store.Store,
	sessions *sessionx.Manager,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		sessions:     sessions,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerUsers()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerUsers() {
	requireUser := RequireUser(r.sessions)

	// POST /users/new_key - authenticated admins minting invitation codes
	issueKeyHandler := &IssueKeyHandler{Accounts: r.AccountService}
	r.Mux.Handle("POST /users/new_key",
		httpx.Chain(issueKeyHandler,
			requireUser,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /users/new - anonymous registration; strict limit against key
	// guessing from a single address
	registerHandler := &RegisterHandler{Accounts: r.AccountService, Sessions: r.sessions}
	r.Mux.Handle("POST /users/new",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /users/edit
	editHandler := &EditHandler{Accounts: r.AccountService}
	r.Mux.Handle("POST /users/edit",
		httpx.Chain(editHandler,
			requireUser,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /users/delete
	deleteHandler := &DeleteHandler{Accounts: r.AccountService, Sessions: r.sessions}
	r.Mux.Handle("POST /users/delete",
		httpx.Chain(deleteHandler,
			requireUser,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
