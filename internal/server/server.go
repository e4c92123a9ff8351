// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and
// routes. Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config → passed to New(), which assembles:
//
//	sqlite.DB → BuildLogStore/UserStore → services → handlers → routes
//
// This is the "composition root" pattern — all dependencies are wired in one
// place rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ireddy/devhub-backend/internal/auth"
	"github.com/ireddy/devhub-backend/internal/handler"
	"github.com/ireddy/devhub-backend/internal/middleware"
	sqliteRepo "github.com/ireddy/devhub-backend/internal/repository/sqlite"
	"github.com/ireddy/devhub-backend/internal/service"
)

// Config holds server configuration. Using a struct (instead of individual
// parameters) makes it easy to add options without changing signatures and
// to load everything from env vars in one place.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string

	// AppURL is the SPA frontend's origin. It doubles as the CORS allowed
	// origin and the OAuth post-login redirect target.
	AppURL string

	// GitHub OAuth is optional; leave these empty to disable the flow.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection: when it shuts down it must close
// the connection to flush pending writes and release the file lock. Start()
// handles this during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server with the given config and wires the full dependency
// chain: database → stores → services → handlers → routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /auth/register                                      → create account
//	POST   /auth/login                                         → email/password login
//	GET    /auth/github/login                                  → start OAuth flow
//	GET    /auth/github/callback                               → finish OAuth flow
//	GET    /api/me                                             → current user        [auth]
//	GET    /buildlogs                                          → public feed
//	POST   /buildlogs/create                                   → create log          [auth]
//	GET    /buildlogs/user/{userId}                            → user's logs         [optional auth]
//	GET    /buildlogs/{id}                                     → single log          [optional auth]
//	PUT    /buildlogs/{id}                                     → update log          [auth]
//	DELETE /buildlogs/{id}                                     → delete log          [auth]
//	PUT    /buildlogs/like/{id}                                → toggle like         [auth]
//	POST   /buildlogs/comment/{id}                             → add comment         [auth]
//	POST   /buildlogs/help/{id}                                → add help request    [auth]
//	POST   /buildlogs/{id}/progress                            → add progress update [auth]
//	POST   /buildlogs/{id}/blocker                             → add blocker         [auth]
//	PUT    /buildlogs/{id}/blocker/{blockerId}/resolve         → resolve blocker     [auth]
//	POST   /buildlogs/{id}/blocker/{blockerId}/solution        → add solution        [auth]
//	PUT    /buildlogs/{id}/blocker/{blockerId}/solution/{solutionId}/vote → toggle vote [auth]
//
// MIDDLEWARE ORDER MATTERS — our global order:
//  1. RequestID — assigns unique ID to each request (for tracing)
//  2. RealIP — extracts real client IP from proxy headers
//  3. Recoverer — catches panics and returns 500 instead of crashing
//  4. CORS — lets the SPA origin call us
//  5. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.AppURL))
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	var github *auth.GitHubProvider
	if s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" {
		github = auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
	} else {
		s.logger.Warn("GitHub OAuth not configured; /auth/github routes disabled")
	}

	// DEPENDENCY CHAIN:
	//   s.db → BuildLogStore/UserStore implement the repository interfaces
	//   services receive the interfaces, handlers receive the services.
	// The handler never touches the database directly; the service never
	// touches HTTP.
	buildLogs := sqliteRepo.NewBuildLogStore(s.db)
	users := sqliteRepo.NewUserStore(s.db)

	buildLogService := service.NewBuildLogService(buildLogs, users, s.logger)
	authService := service.NewAuthService(users, tokens, passwords, s.logger)

	buildLogHandler := handler.NewBuildLogHandler(buildLogService, s.logger)
	authHandler := handler.NewAuthHandler(authService, github, s.config.AppURL, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
	})

	s.router.With(requireAuth).Get("/api/me", authHandler.HandleMe)

	s.router.Route("/buildlogs", func(r chi.Router) {
		r.Get("/", buildLogHandler.HandleList)

		r.With(optionalAuth).Get("/user/{userId}", buildLogHandler.HandleListByUser)
		r.With(optionalAuth).Get("/{id}", buildLogHandler.HandleGet)

		// Everything below requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/create", buildLogHandler.HandleCreate)
			r.Put("/{id}", buildLogHandler.HandleUpdate)
			r.Delete("/{id}", buildLogHandler.HandleDelete)

			r.Put("/like/{id}", buildLogHandler.HandleToggleLike)
			r.Post("/comment/{id}", buildLogHandler.HandleAddComment)
			r.Post("/help/{id}", buildLogHandler.HandleAddHelpRequest)

			r.Post("/{id}/progress", buildLogHandler.HandleAddProgress)
			r.Post("/{id}/blocker", buildLogHandler.HandleAddBlocker)
			r.Put("/{id}/blocker/{blockerId}/resolve", buildLogHandler.HandleResolveBlocker)
			r.Post("/{id}/blocker/{blockerId}/solution", buildLogHandler.HandleAddSolution)
			r.Put("/{id}/blocker/{blockerId}/solution/{solutionId}/vote", buildLogHandler.HandleVoteSolution)
		})
	})

	return nil
}

// Handler exposes the assembled router, mainly for tests that want to drive
// the full middleware + routing stack with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the server's resources without serving. Start() does this
// itself; Close exists for callers (tests) that never call Start.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
