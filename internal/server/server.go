// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config → store (sqlite | postgres)
//	       → auth (tokens, passwords, Google, GitHub)
//	       → completion client (OpenAI | disabled)
//	       → services → handlers → chi router
//
// Nothing below this package knows which concrete store or completion
// backend is in use.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/macleann/fountainheadapi/internal/auth"
	"github.com/macleann/fountainheadapi/internal/completion"
	"github.com/macleann/fountainheadapi/internal/completion/openai"
	"github.com/macleann/fountainheadapi/internal/config"
	"github.com/macleann/fountainheadapi/internal/handler"
	"github.com/macleann/fountainheadapi/internal/middleware"
	"github.com/macleann/fountainheadapi/internal/repository"
	"github.com/macleann/fountainheadapi/internal/repository/postgres"
	sqliteRepo "github.com/macleann/fountainheadapi/internal/repository/sqlite"
	"github.com/macleann/fountainheadapi/internal/service"
)

// store is what both backends provide.
type store interface {
	repository.UserRepository
	repository.GameStateRepository
	Ping() error
	Close() error
}

// Server owns the router and the store connection. The store is closed
// when Start returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     store

	completion completion.Client
	passwords  *auth.PasswordService
}

// Option customizes a Server. Tests use them to swap external dependencies.
type Option func(*Server)

// WithCompletionClient replaces the OpenAI client.
func WithCompletionClient(c completion.Client) Option {
	return func(s *Server) { s.completion = c }
}

// WithPasswordService replaces the bcrypt service (tests lower the cost).
func WithPasswordService(p *auth.PasswordService) Option {
	return func(s *Server) { s.passwords = p }
}

// New opens the configured store and wires every route.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.DBDriver, err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		passwords: auth.NewPasswordService(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(cfg *config.Config) (store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(cfg.DatabaseURL)
	case config.DriverSQLite:
		return sqliteRepo.New(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Start calls it itself; tests that only use
// Handler call it directly.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes builds the dependency graph and mounts the routes.
//
// ROUTES:
//
//	POST /register              public
//	POST /login, /token         public
//	POST /token/refresh         public
//	POST /google-authenticate   public
//	POST /github-authenticate   public
//	POST /chat                  public (token optional)
//	GET  /healthz               public
//	POST /logout                bearer
//	GET  /user                  bearer
//	GET  /game-state            bearer
//	POST /game-state            bearer
//	POST /game-state/clear      bearer
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.AccessTokenTTL, s.config.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	if s.completion == nil {
		s.completion, err = s.newCompletionClient()
		if err != nil {
			return err
		}
	}

	stateService := service.NewStateService(s.db, s.logger)
	identityService := service.NewIdentityService(
		s.db,
		stateService,
		tokens,
		s.passwords,
		s.identityProviders(),
		s.logger,
	)
	chatService := service.NewChatService(s.completion, service.ChatConfig{
		SystemPrompt: s.config.ChatSystemPrompt,
		Model:        s.config.ChatModel,
		Temperature:  s.config.ChatTemperature,
	}, s.logger)

	authHandler := handler.NewAuthHandler(identityService, s.logger)
	stateHandler := handler.NewGameStateHandler(stateService, s.logger)
	chatHandler := handler.NewChatHandler(chatService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// Order matters: RequestID must run before Logger so the ID is logged,
	// and Recoverer sits inside Logger so a panic still logs as a 500.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Post("/token", authHandler.HandleLogin)
	s.router.Post("/token/refresh", authHandler.HandleRefresh)
	s.router.Post("/google-authenticate", authHandler.HandleGoogle)
	s.router.Post("/github-authenticate", authHandler.HandleGitHub)

	s.router.With(auth.OptionalAuth(tokens)).Post("/chat", chatHandler.HandleChat)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/user", authHandler.HandleUser)
		r.Get("/game-state", stateHandler.HandleGet)
		r.Post("/game-state", stateHandler.HandleSave)
		r.Post("/game-state/clear", stateHandler.HandleClear)
	})

	return nil
}

func (s *Server) identityProviders() service.IdentityProviders {
	var p service.IdentityProviders
	if s.config.GoogleClientID != "" {
		p.Google = auth.NewGoogleVerifier(s.config.GoogleClientID)
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID not set, Google sign-in disabled")
	}
	if s.config.GitHubClientID != "" {
		p.GitHub = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID not set, GitHub sign-in disabled")
	}
	return p
}

func (s *Server) newCompletionClient() (completion.Client, error) {
	if s.config.OpenAIAPIKey == "" {
		s.logger.Warn("OPENAI_API_KEY not set, /chat will answer with errors")
		return completion.Disabled{Reason: "OPENAI_API_KEY is not set"}, nil
	}
	c, err := openai.New(openai.Config{
		APIKey:  s.config.OpenAIAPIKey,
		BaseURL: s.config.OpenAIBaseURL,
		Timeout: s.config.ChatTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	return c, nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer s.db.Close()

	// WriteTimeout must outlast the chat completion timeout, or slow
	// replies would be cut off mid-response.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.ChatTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
