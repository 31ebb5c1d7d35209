package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/venuebook/docs"
	"github.com/kirinyoku/venuebook/internal/app"
	"github.com/kirinyoku/venuebook/internal/config"
	"github.com/kirinyoku/venuebook/internal/logger"
)

// @title VenueBook API
// @version 1.0
// @description Venue booking service: one booking per venue per day.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)

	ctx := context.Background()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		log.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
