package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/identserv/identityd/config"
	"github.com/identserv/identityd/internal/db"
	"github.com/identserv/identityd/internal/events"
	"github.com/identserv/identityd/internal/handlers"
	"github.com/identserv/identityd/internal/services"
	"github.com/identserv/identityd/internal/storage"
	"github.com/identserv/identityd/internal/store"
	"github.com/identserv/identityd/internal/token"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	audit      *events.Publisher
	logger     *slog.Logger
}

// New constructs a Server with all dependencies wired.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slog.Default()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userStore := store.NewUserStore(dbConn)
	groupStore := store.NewGroupStore(dbConn)
	permissionStore := store.NewPermissionStore(dbConn)

	identityService := services.NewIdentityService(userStore)
	directoryService := services.NewDirectoryService(userStore, groupStore, permissionStore)

	tokenService := token.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.IncludeGroups)

	audit, err := events.NewFromConfig(ctx, cfg.MQ, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatars, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = audit.Close()
		_ = dbConn.Close()
		return nil, err
	}
	if avatars != nil {
		if err := avatars.EnsureBucket(ctx); err != nil {
			_ = audit.Close()
			_ = dbConn.Close()
			return nil, err
		}
	}

	authHandler := handlers.NewAuthHandler(identityService, tokenService, audit, cfg.Auth.AdminGroup)
	directoryHandler := handlers.NewDirectoryHandler(directoryService, tokenService, audit)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
		if avatars != nil {
			handlers.AvatarRouter(r, handlers.NewAvatarHandler(identityService, tokenService, avatars))
		}
		r.Group(func(r chi.Router) {
			handlers.DirectoryRouter(r, directoryHandler)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		audit:      audit,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting identity server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if err := s.audit.Close(); err != nil {
		s.logger.Error("closing audit publisher", "err", err)
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
