package transformations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Warehouse table locations, relative to the output root.
const (
	SongsTable     = "dimensions.parquet/songs"
	ArtistsTable   = "dimensions.parquet/artists"
	UsersTable     = "dimensions.parquet/users"
	TimeTable      = "dimensions.parquet/time"
	SongplaysTable = "facts.parquet/songplays"
)

// TableWrite reports one persisted table from a pipeline run.
type TableWrite struct {
	Table string
	Rows  int64
}

// TablePath resolves a table location under the output root.
func TablePath(outputURL, table string) string {
	return joinURL(outputURL, table)
}

// copyParquet persists the result of selectSQL as Parquet at target, fully
// replacing any prior contents. With partition columns the target is a hive
// directory tree; without, a single Parquet file.
func copyParquet(ctx context.Context, db *sql.DB, logger *zap.Logger, selectSQL, target string, partitionBy []string) (int64, error) {
	options := "FORMAT PARQUET"
	if len(partitionBy) > 0 {
		options = fmt.Sprintf("FORMAT PARQUET, PARTITION_BY (%s), OVERWRITE", strings.Join(partitionBy, ", "))
	}

	if err := ensureLocalDir(target, len(partitionBy) > 0); err != nil {
		return 0, err
	}

	copySQL := fmt.Sprintf("COPY (%s) TO %s (%s)", selectSQL, sqlString(target), options)
	result, err := db.ExecContext(ctx, copySQL)
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		// The write itself succeeded; only the reported count is unavailable
		logger.Warn("Engine did not report a copied row count",
			zap.String("target", target),
			zap.Error(err))
		return 0, nil
	}
	return rows, nil
}

// ensureLocalDir creates the directories a filesystem target needs before the
// engine writes into it. Object-store URLs have no directories to create.
func ensureLocalDir(target string, partitioned bool) error {
	if strings.Contains(target, "://") {
		return nil
	}
	dir := filepath.Dir(target)
	if partitioned {
		dir = target
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return nil
}
