package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mikeboe/luma/pkg/config"
	"github.com/mikeboe/luma/pkg/database"
	"github.com/mikeboe/luma/pkg/extract"
	"github.com/mikeboe/luma/pkg/provider"
	"github.com/mikeboe/luma/pkg/router"
	"github.com/mikeboe/luma/pkg/server"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	backends, err := database.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open settings backend: %v", err)
	}
	defer backends.Close()

	var logs server.LogReader
	if backends.Postgres != nil {
		handler = server.NewDBLogHandler(handler, backends.Postgres)
		slog.SetDefault(slog.New(handler))
		logs = backends.Postgres
	}
	logger := slog.Default()

	store := settings.NewStore(backends.Settings, logger)
	loaded := store.Load(ctx)
	logger.Info("Settings loaded", "provider", loaded.LLM.Provider, "language", loaded.Language)

	svc := tasks.NewService(provider.NewBuilder(), logger)
	background := router.NewBackground(svc, store, logger)
	content := router.NewContent(extract.Extract, logger)

	h := server.NewHandler(background, content, store, logs, logger)

	// Web Server Setup
	r := gin.Default()

	r.Use(server.CORS(cfg.AllowedOrigins))

	h.RegisterRoutes(r)

	fmt.Printf("Server starting on port %d\n", cfg.Port)
	if err := r.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
