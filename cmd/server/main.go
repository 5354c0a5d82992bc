package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prudhvinik1/fieldsync/internal/config"
	"github.com/prudhvinik1/fieldsync/internal/database"
	"github.com/prudhvinik1/fieldsync/internal/handlers"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Repositories
	userRepo := repositories.NewPostgresUserRepository(postgresPool)
	deviceRepo := repositories.NewPostgresDeviceRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient)
	cursorRepo := repositories.NewRedisCursorRepository(redisClient)
	auditWriter := repositories.NewPostgresAuditLogWriter(postgresPool)
	registry := repositories.NewPostgresRegistry(postgresPool)

	// Services
	authService := services.NewAuthService(userRepo, deviceRepo, sessionRepo, cfg.JWTSecret, cfg.JWTExpiry)
	deltaFetcher := services.NewDeltaFetcher(registry, logger)
	processor := services.NewOfflineActionProcessor(registry, auditWriter, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, logger)
	syncHandler := handlers.NewSyncHandler(deltaFetcher, processor, cursorRepo, deviceRepo, logger)

	// Initialize HTTP Server
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
	})

	router.Route("/mobile", func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(authService, logger))
		r.Post("/pull", syncHandler.HandlePull)
		r.Post("/push", syncHandler.HandlePush)
		r.Get("/cursors", syncHandler.HandleCursors)
	})

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
