package transformations

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// SongPipeline derives the songs and artists dimension tables from the raw
// song catalog.
type SongPipeline struct {
	db        *sql.DB
	logger    *zap.Logger
	inputURL  string
	outputURL string
}

// NewSongPipeline creates a new song pipeline.
func NewSongPipeline(db *sql.DB, logger *zap.Logger, inputURL, outputURL string) *SongPipeline {
	return &SongPipeline{
		db:        db,
		logger:    logger,
		inputURL:  inputURL,
		outputURL: outputURL,
	}
}

// Run reads the song catalog and writes the songs and artists dimensions,
// fully replacing any prior contents at their output locations.
func (p *SongPipeline) Run(ctx context.Context) ([]TableWrite, error) {
	staged, err := p.stageSongs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read song data: %w", err)
	}
	p.logger.Info("Staged raw song records", zap.Int64("rows", staged))

	writes := make([]TableWrite, 0, 2)
	tables := []struct {
		name string
		fn   func(context.Context) (int64, error)
	}{
		{SongsTable, p.writeSongs},
		{ArtistsTable, p.writeArtists},
	}

	for _, table := range tables {
		rows, err := table.fn(ctx)
		if err != nil {
			return writes, fmt.Errorf("failed to write %s: %w", table.name, err)
		}
		p.logger.Info("Wrote dimension table",
			zap.String("table", table.name),
			zap.Int64("rows", rows))
		writes = append(writes, TableWrite{Table: table.name, Rows: rows})
	}

	return writes, nil
}

// stageSongs loads the raw song records with the declared schema.
func (p *SongPipeline) stageSongs(ctx context.Context) (int64, error) {
	readExpr, err := readJSONExpr(p.inputURL, SourceSong)
	if err != nil {
		return 0, err
	}

	stageSQL := fmt.Sprintf("CREATE OR REPLACE TABLE raw_songs AS SELECT * FROM %s", readExpr)
	if _, err := p.db.ExecContext(ctx, stageSQL); err != nil {
		return 0, err
	}

	var rows int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM raw_songs").Scan(&rows); err != nil {
		return 0, err
	}
	return rows, nil
}

// writeSongs writes the songs dimension, partitioned by year then artist.
func (p *SongPipeline) writeSongs(ctx context.Context) (int64, error) {
	query := `
		SELECT DISTINCT song_id, title, artist_id, year, duration
		FROM raw_songs`

	return copyParquet(ctx, p.db, p.logger, query,
		TablePath(p.outputURL, SongsTable),
		[]string{"year", "artist_id"})
}

// writeArtists writes the artists dimension, unpartitioned.
func (p *SongPipeline) writeArtists(ctx context.Context) (int64, error) {
	query := `
		SELECT DISTINCT
			artist_id,
			artist_name AS name,
			artist_location AS location,
			artist_latitude AS latitude,
			artist_longitude AS longitude
		FROM raw_songs`

	return copyParquet(ctx, p.db, p.logger, query,
		TablePath(p.outputURL, ArtistsTable), nil)
}
