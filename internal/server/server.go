package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/handlers"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/middleware"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Ingester handlers.Ingester
	Store    handlers.ReadStore
	Verifier middleware.TokenVerifier
	Logger   zerolog.Logger
}

// Server represents the bookkeeping API server
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a new server instance
func New(deps Deps) *Server {
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	apiHandler := handlers.NewAPIHandler(s.deps.Store)
	stmtHandler := handlers.NewStatementHandler(s.deps.Ingester)
	requireAuth := middleware.NewAuthMiddleware(s.deps.Verifier).RequireAuth

	s.mux.Handle("POST /api/process-statement", requireAuth(http.HandlerFunc(stmtHandler.ProcessStatement)))
	s.mux.Handle("GET /api/accounts", requireAuth(http.HandlerFunc(apiHandler.GetAccounts)))
	s.mux.Handle("GET /api/statements", requireAuth(http.HandlerFunc(apiHandler.GetStatements)))
	s.mux.Handle("GET /api/statements/{id}", requireAuth(http.HandlerFunc(apiHandler.GetStatement)))
	s.mux.Handle("GET /api/transactions", requireAuth(http.HandlerFunc(apiHandler.GetTransactions)))
}

// Handler returns the HTTP handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		middleware.Recovery(s.deps.Logger),
		middleware.Logger(s.deps.Logger),
		middleware.CORS,
	)
}
