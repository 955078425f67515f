package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Prometheus metrics
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warehouse_runs_total",
		Help: "Total number of successful warehouse runs",
	})

	runErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warehouse_run_errors_total",
		Help: "Total number of failed warehouse runs",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warehouse_run_duration_seconds",
		Help:    "Duration of full warehouse runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warehouse_pipeline_duration_seconds",
		Help:    "Duration of individual pipelines",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"pipeline"})

	tableRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_table_rows_written_total",
		Help: "Total number of rows written per output table",
	}, []string{"table"})
)

// HealthServer serves health and metrics endpoints while a batch runs
type HealthServer struct {
	warehouse *Warehouse
	logger    *zap.Logger
	port      string
	startTime time.Time
}

// NewHealthServer creates a new health server
func NewHealthServer(warehouse *Warehouse, logger *zap.Logger, port string) *HealthServer {
	return &HealthServer{
		warehouse: warehouse,
		logger:    logger,
		port:      port,
		startTime: time.Now(),
	}
}

// Start starts the health and metrics HTTP server
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + h.port
	h.logger.Info("Health server listening", zap.String("addr", addr))

	return http.ListenAndServe(addr, mux)
}

// handleHealth returns detailed health information
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.warehouse.GetStats()

	health := map[string]interface{}{
		"status":         "healthy",
		"service":        h.warehouse.config.Service.Name,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"stats": map[string]interface{}{
			"runs_total":                stats.RunsTotal,
			"run_errors":                stats.RunErrors,
			"rows_written":              stats.RowsWritten,
			"last_run_time":             stats.LastRunTime,
			"last_run_duration_seconds": stats.LastRunDuration.Seconds(),
		},
		"config": map[string]interface{}{
			"input_url":  h.warehouse.config.Storage.InputURL,
			"output_url": h.warehouse.config.Storage.OutputURL,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleReady returns readiness status (for k8s)
func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ready")
}

// handleLive returns liveness status (for k8s)
func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "live")
}
