// Package server is the composition root: it builds every dependency from the
// configuration, mounts the routes and runs the HTTP server.
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
	"github.com/go-chi/cors"

	"github.com/sakif/photoshare/internal/auth"
	"github.com/sakif/photoshare/internal/config"
	"github.com/sakif/photoshare/internal/handler"
	"github.com/sakif/photoshare/internal/middleware"
	sqliteRepo "github.com/sakif/photoshare/internal/repository/sqlite"
	"github.com/sakif/photoshare/internal/scheduler"
	"github.com/sakif/photoshare/internal/service"
	"github.com/sakif/photoshare/internal/storage"
	"github.com/sakif/photoshare/internal/storage/disk"
	"github.com/sakif/photoshare/internal/storage/s3"
	"github.com/sakif/photoshare/internal/upload"
)

type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	scheduler *scheduler.Scheduler
}

// New wires the application:
//
//	sqlite.DB → AuthService, PhotoService(+ upload.Intake → FileStore) → handlers → routes
//
// The scheduler is created here but only started by Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
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
	if err := s.setup(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup(ctx context.Context) error {
	tokens, err := auth.NewTokenService(s.config.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	authService := service.NewAuthService(s.db, s.db, tokens, auth.NewPasswordService(), s.config.SessionTTL, s.logger)

	store, diskStore, err := newFileStore(ctx, s.config)
	if err != nil {
		return err
	}
	intake := upload.NewIntake(store, s.config.MaxUploadBytes, s.logger)
	photoService := service.NewPhotoService(s.db, intake, s.logger)

	renderer, err := handler.NewRenderer(s.config.TemplateDir, s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	var provider auth.ExternalIdentityProvider
	if s.config.GitHubEnabled() {
		provider = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	s.scheduler, err = scheduler.New(s.config.SessionSweep, authService, s.logger)
	if err != nil {
		return err
	}

	authHandler := handler.NewAuthHandler(authService, provider, renderer, s.config.CookieSecure, s.logger)
	photoHandler := handler.NewPhotoHandler(photoService, renderer, s.config.MaxUploadBytes, s.logger)

	s.routes(authService, authHandler, photoHandler, diskStore)
	return nil
}

// newFileStore picks the upload backend. The disk store is also returned so
// its directory can be served.
func newFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, *disk.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		store, err := s3.New(ctx, s3.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating s3 store: %w", err)
		}
		return store, nil, nil
	default:
		store, err := disk.New(cfg.UploadDir, cfg.UploadURLPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("creating disk store: %w", err)
		}
		return store, store, nil
	}
}

// routes mounts the middleware chain and every route.
//
// LoadSession runs before Logger so request logs carry the user id. Protected
// routes sit in a group behind RequireAuth; ownership is checked by the
// photo service.
func (s *Server) routes(resolver auth.SessionResolver, authHandler *handler.AuthHandler, photoHandler *handler.PhotoHandler, diskStore *disk.Store) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(auth.LoadSession(resolver))
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)

	if len(s.config.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", handler.HandleHealth(s.db, s.logger))

	if diskStore != nil {
		prefix := s.config.UploadURLPrefix
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(diskStore.Dir()))))
	}

	r.Get("/", photoHandler.HandleHome)
	r.Get("/gallery", photoHandler.HandleGallery)
	r.Get("/search", photoHandler.HandleSearch)

	r.Get("/register", authHandler.HandleRegisterForm)
	r.Post("/register", authHandler.HandleRegister)
	r.Get("/login", authHandler.HandleLoginForm)
	r.Post("/login", authHandler.HandleLogin)
	r.Get("/logout", authHandler.HandleLogout)
	r.Post("/logout", authHandler.HandleLogout)

	if authHandler.ExternalEnabled() {
		r.Get("/auth/github", authHandler.HandleExternalLogin)
		r.Get("/auth/github/callback", authHandler.HandleExternalCallback)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(handler.LoginPath))

		r.Get("/dashboard", photoHandler.HandleDashboard)
		r.Get("/upload", photoHandler.HandleUploadForm)
		r.Post("/upload", photoHandler.HandleUpload)
		r.Get("/edit/{id}", photoHandler.HandleEditForm)
		r.Post("/edit/{id}", photoHandler.HandleEdit)
		r.Post("/delete/{id}", photoHandler.HandleDelete)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully: stop
// accepting connections, let in-flight requests finish, stop the scheduler
// and close the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("storage", s.config.StorageBackend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	s.scheduler.Start()

	select {
	case err := <-serverErrors:
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.scheduler.Stop(stopCtx)
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.scheduler.Stop(shutdownCtx)
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
