package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

// DuckDBClient manages the embedded engine connection shared by both
// pipelines. It is acquired once, used sequentially, and released exactly
// once by the driver.
type DuckDBClient struct {
	db     *sql.DB
	logger *zap.Logger
	config *Config
}

// sessionSettings returns the SET statements every engine session needs.
// Timestamp conversion and calendar extraction run in UTC, end to end.
func sessionSettings(config *Config) []string {
	settings := []string{"SET TimeZone = 'UTC'"}
	if config.Engine.Threads > 0 {
		settings = append(settings, fmt.Sprintf("SET threads = %d", config.Engine.Threads))
	}
	if config.Engine.MemoryLimit != "" {
		settings = append(settings, fmt.Sprintf("SET memory_limit = '%s'", config.Engine.MemoryLimit))
	}
	return settings
}

// NewDuckDBClient opens an in-memory engine and prepares it for the run
func NewDuckDBClient(config *Config, logger *zap.Logger) (*DuckDBClient, error) {
	// Session settings are scoped to a connection, and database/sql may
	// replace pooled connections at any point, so they are applied through
	// the connector's init hook rather than once at startup.
	settings := sessionSettings(config)
	connInit := func(execer driver.ExecerContext) error {
		for _, setting := range settings {
			if _, err := execer.ExecContext(context.Background(), setting, nil); err != nil {
				return fmt.Errorf("failed to apply %q: %w", setting, err)
			}
		}
		return nil
	}

	// In-memory, stateless: all persisted state lives at the output root
	connector, err := duckdb.NewConnector("", connInit)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	db := sql.OpenDB(connector)
	// The run is strictly sequential, one connection is enough
	db.SetMaxOpenConns(1)

	client := &DuckDBClient{
		db:     db,
		logger: logger,
		config: config,
	}

	if err := client.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return client, nil
}

// initialize sets up the object-storage connector when a root URL needs it.
// Extensions and secrets are instance state, not session state, so once is
// enough here.
func (c *DuckDBClient) initialize() error {
	if c.config.UsesObjectStorage() {
		if err := c.configureS3(context.Background()); err != nil {
			return fmt.Errorf("failed to configure S3: %w", err)
		}
	}

	c.logger.Info("DuckDB initialized")
	return nil
}

// configureS3 loads the httpfs extension and registers credentials from the
// ambient process environment. Credentials are consumed by the engine's
// storage connector and never validated here.
func (c *DuckDBClient) configureS3(ctx context.Context) error {
	c.logger.Info("Installing httpfs extension...")
	if _, err := c.db.ExecContext(ctx, "INSTALL httpfs;"); err != nil {
		return fmt.Errorf("failed to install httpfs extension: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "LOAD httpfs;"); err != nil {
		return fmt.Errorf("failed to load httpfs extension: %w", err)
	}

	keyID := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if keyID == "" || secret == "" {
		// Leave authentication to the engine's default credential chain
		c.logger.Warn("AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY not set, using engine credential chain")
		return nil
	}

	params := []string{
		"TYPE S3",
		fmt.Sprintf("KEY_ID '%s'", keyID),
		fmt.Sprintf("SECRET '%s'", secret),
	}
	if c.config.Storage.AWSRegion != "" {
		params = append(params, fmt.Sprintf("REGION '%s'", c.config.Storage.AWSRegion))
	}
	if c.config.Storage.AWSEndpoint != "" {
		// DuckDB adds the scheme itself
		endpoint := strings.TrimPrefix(c.config.Storage.AWSEndpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "http://")
		params = append(params, fmt.Sprintf("ENDPOINT '%s'", endpoint), "URL_STYLE 'path'")
	}

	createSecretSQL := fmt.Sprintf("CREATE SECRET IF NOT EXISTS (\n\t%s\n)", strings.Join(params, ",\n\t"))
	if _, err := c.db.ExecContext(ctx, createSecretSQL); err != nil {
		return fmt.Errorf("failed to create S3 secret: %w", err)
	}

	c.logger.Info("S3 credentials configured",
		zap.String("region", c.config.Storage.AWSRegion))
	return nil
}

// DB exposes the underlying connection for the pipelines
func (c *DuckDBClient) DB() *sql.DB {
	return c.db
}

// Close closes the engine connection
func (c *DuckDBClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
