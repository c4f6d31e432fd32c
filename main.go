package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"workflow-studio/api/pkg/db"
	"workflow-studio/api/services/editor"
	"workflow-studio/api/services/workflow"
)

func main() {
	ctx := context.Background()
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	})
	slog.SetDefault(slog.New(logHandler))

	dbURL, ok := os.LookupEnv("DATABASE_URL")
	if !ok {
		slog.Error("DATABASE_URL is not set")
		return
	}

	pool, err := db.Connect(ctx, db.Config{
		URI:             dbURL,
		MaxConns:        10,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return
	}
	defer pool.Close()

	// Initialize database schema and seed data
	if err := workflow.InitDB(ctx, pool); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return
	}

	// setup router
	mainRouter := mux.NewRouter()

	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()

	editorService, err := editor.NewService(pool)
	if err != nil {
		slog.Error("Failed to create editor service", "error", err)
		return
	}

	editorService.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		// Frontend URL
		handlers.AllowedOrigins([]string{envOr("ALLOWED_ORIGIN", "http://localhost:3003")}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	addr := ":" + envOr("PORT", "8080")
	srv := &http.Server{
		Addr:    addr,
		Handler: corsHandler,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("Server error", "error", err)

	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
}

// logLevel reads LOG_LEVEL, defaulting to debug.
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
