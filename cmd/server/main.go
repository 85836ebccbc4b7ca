package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/para-comments-api/internal/api"
	"github.com/para-comments-api/internal/config"
	"github.com/para-comments-api/internal/identity"
	"github.com/para-comments-api/internal/service"
	"github.com/para-comments-api/internal/storage"
	"github.com/para-comments-api/internal/storage/file"
	"github.com/para-comments-api/internal/storage/postgres"
	"github.com/para-comments-api/pkg/logger"
)

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	// Initialize logger
	log := logger.New()
	log.Info().Msg("Starting paragraph comments API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize storage backend
	var store storage.Store
	switch cfg.Storage.Type {
	case "postgres":
		pg, err := postgres.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pg.Close()

		migrationsPath := os.Getenv("MIGRATIONS_PATH")
		if migrationsPath == "" {
			migrationsPath = "./migrations"
		}
		if err := pg.RunMigrations(migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		store = pg
	default:
		fs, err := file.New(cfg.Storage.DataDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize file storage")
		}
		store = fs
	}
	log.Info().Str("backend", cfg.Storage.Type).Msg("Storage initialized")

	// Initialize identity resolution and the comment service
	resolver := identity.NewResolver(cfg.Auth.SiteSecrets)
	if len(cfg.Auth.SiteSecrets) == 0 {
		log.Warn().Msg("No site secrets configured, all requesters resolve as anonymous")
	}
	svc := service.New(store, resolver, log)

	// Initialize router
	router := api.NewRouter(svc, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
