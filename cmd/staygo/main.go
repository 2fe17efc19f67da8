package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/staygo/docs"
	"github.com/kirinyoku/staygo/internal/app"
	"github.com/kirinyoku/staygo/internal/config"
)

// @title StayGo API
// @version 1.0
// @description Hotel room booking for ticket holders.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
