package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/benvenutto/data-lake/transformations"
)

// Warehouse sequences the song and log pipelines over a shared engine
// connection. The ordering is mandatory: the songplays fact table reads back
// the dimensions the song pipeline writes.
type Warehouse struct {
	config *Config
	engine *DuckDBClient
	logger *zap.Logger

	// Stats
	mu              sync.RWMutex
	runsTotal       int64
	runErrors       int64
	rowsWritten     int64
	lastRunTime     time.Time
	lastRunDuration time.Duration
}

// WarehouseStats holds run statistics
type WarehouseStats struct {
	RunsTotal       int64
	RunErrors       int64
	RowsWritten     int64
	LastRunTime     time.Time
	LastRunDuration time.Duration
}

// NewWarehouse creates a new warehouse instance
func NewWarehouse(config *Config, logger *zap.Logger) (*Warehouse, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	engine, err := NewDuckDBClient(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB client: %w", err)
	}

	logger.Info("Warehouse ready",
		zap.String("input_url", config.Storage.InputURL),
		zap.String("output_url", config.Storage.OutputURL))

	return &Warehouse{
		config: config,
		engine: engine,
		logger: logger,
	}, nil
}

// Run executes one full batch: song pipeline, then log pipeline. Any failure
// aborts the run; tables already overwritten stay in their new state and the
// warehouse is valid again only after a fully successful re-run.
func (w *Warehouse) Run(ctx context.Context) error {
	startTime := time.Now()
	w.logger.Info("Starting warehouse run")

	pipelines := []struct {
		name string
		run  func(context.Context) ([]transformations.TableWrite, error)
	}{
		{"songs", transformations.NewSongPipeline(
			w.engine.DB(), w.logger.With(zap.String("pipeline", "songs")),
			w.config.Storage.InputURL, w.config.Storage.OutputURL).Run},
		{"logs", transformations.NewLogPipeline(
			w.engine.DB(), w.logger.With(zap.String("pipeline", "logs")),
			w.config.Storage.InputURL, w.config.Storage.OutputURL).Run},
	}

	var rowsWritten int64
	for _, p := range pipelines {
		pipelineStart := time.Now()
		writes, err := p.run(ctx)
		for _, write := range writes {
			rowsWritten += write.Rows
			tableRowsWritten.WithLabelValues(write.Table).Add(float64(write.Rows))
		}
		if err != nil {
			w.recordFailure()
			return fmt.Errorf("%s pipeline failed: %w", p.name, err)
		}
		pipelineDuration.WithLabelValues(p.name).Observe(time.Since(pipelineStart).Seconds())
	}

	duration := time.Since(startTime)
	w.recordSuccess(rowsWritten, duration)

	runsTotal.Inc()
	runDuration.Observe(duration.Seconds())

	w.logger.Info("Warehouse run complete",
		zap.Int64("rows_written", rowsWritten),
		zap.Duration("duration", duration))
	return nil
}

// Close releases the engine connection
func (w *Warehouse) Close() {
	if w.engine != nil {
		if err := w.engine.Close(); err != nil {
			w.logger.Warn("Failed to close engine", zap.Error(err))
		}
	}
}

// GetStats returns current run statistics
func (w *Warehouse) GetStats() WarehouseStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WarehouseStats{
		RunsTotal:       w.runsTotal,
		RunErrors:       w.runErrors,
		RowsWritten:     w.rowsWritten,
		LastRunTime:     w.lastRunTime,
		LastRunDuration: w.lastRunDuration,
	}
}

func (w *Warehouse) recordSuccess(rowsWritten int64, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.runsTotal++
	w.rowsWritten += rowsWritten
	w.lastRunTime = time.Now()
	w.lastRunDuration = duration
}

func (w *Warehouse) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.runErrors++
	runErrors.Inc()
}
