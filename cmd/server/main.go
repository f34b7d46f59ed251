package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/config"
	"github.com/garyjia/doc-approval/internal/container"
	httpserver "github.com/garyjia/doc-approval/internal/interfaces/http"
	"github.com/garyjia/doc-approval/pkg/utils"
)

const serviceName = "doc-approval"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file, empty for environment only")
	flag.Parse()

	// .env is optional; real environment variables win
	for _, p := range []string{".env", "../.env"} {
		if err := gotenv.Load(p); err == nil {
			break
		}
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    serviceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting approval service",
		zap.String("database", cfg.Database.Path),
		zap.Int("port", cfg.Server.Port))

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		return err
	}

	app, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Mode:            cfg.Server.Mode,
	}, app, container.NewKeyValueLogger(logger.Named("http")))

	// Blocks until SIGINT/SIGTERM; the listener stops before the container
	// closes
	return server.Start(ctx)
}
