package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	defer logger.Sync()

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config",
			zap.String("config_path", *configPath),
			zap.Error(err))
	}
	logger.Info("Loaded configuration", zap.String("config_path", *configPath))

	warehouse, err := NewWarehouse(config, logger)
	if err != nil {
		logger.Fatal("Failed to create warehouse", zap.Error(err))
	}
	defer warehouse.Close()

	// Optional health/metrics server for the duration of the batch
	if config.Service.HealthPort != "" {
		healthServer := NewHealthServer(warehouse, logger, config.Service.HealthPort)
		go func() {
			if err := healthServer.Start(); err != nil {
				logger.Error("Health server error", zap.Error(err))
			}
		}()
	}

	// A shutdown signal cancels the in-flight engine call and aborts the run
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := warehouse.Run(ctx); err != nil {
		warehouse.Close()
		logger.Fatal("Warehouse run failed", zap.Error(err))
	}
}
