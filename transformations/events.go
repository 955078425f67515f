package transformations

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// LogPipeline derives the users and time dimension tables and the songplays
// fact table from the raw event log. It reads back the songs and artists
// dimensions written by the song pipeline, so that pipeline must have
// completed in the same run before this one starts.
type LogPipeline struct {
	db        *sql.DB
	logger    *zap.Logger
	inputURL  string
	outputURL string
}

// NewLogPipeline creates a new event log pipeline.
func NewLogPipeline(db *sql.DB, logger *zap.Logger, inputURL, outputURL string) *LogPipeline {
	return &LogPipeline{
		db:        db,
		logger:    logger,
		inputURL:  inputURL,
		outputURL: outputURL,
	}
}

// Run reads the event log and writes the users and time dimensions plus the
// songplays fact table, fully replacing prior contents at each location.
func (p *LogPipeline) Run(ctx context.Context) ([]TableWrite, error) {
	staged, err := p.stageSongPlays(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read log data: %w", err)
	}
	p.logger.Info("Staged song-play events", zap.Int64("rows", staged))

	writes := make([]TableWrite, 0, 3)
	tables := []struct {
		name string
		fn   func(context.Context) (int64, error)
	}{
		{UsersTable, p.writeUsers},
		{TimeTable, p.writeTime},
		{SongplaysTable, p.writeSongplays},
	}

	for _, table := range tables {
		rows, err := table.fn(ctx)
		if err != nil {
			return writes, fmt.Errorf("failed to write %s: %w", table.name, err)
		}
		p.logger.Info("Wrote table",
			zap.String("table", table.name),
			zap.Int64("rows", rows))
		writes = append(writes, TableWrite{Table: table.name, Rows: rows})
	}

	return writes, nil
}

// stageSongPlays loads the raw event records with the declared schema and
// keeps only actual song plays: page = 'NextSong' with a 200 status. Every
// downstream table derives from this staged set. The event timestamp is
// epoch milliseconds; event_ts carries it as a UTC timestamp with sub-second
// precision preserved.
func (p *LogPipeline) stageSongPlays(ctx context.Context) (int64, error) {
	readExpr, err := readJSONExpr(p.inputURL, SourceEvent)
	if err != nil {
		return 0, err
	}

	stageSQL := fmt.Sprintf(`
		CREATE OR REPLACE TABLE song_plays AS
		SELECT *, CAST(to_timestamp(ts / 1000) AS TIMESTAMP) AS event_ts
		FROM %s
		WHERE page = 'NextSong' AND status = 200`, readExpr)
	if _, err := p.db.ExecContext(ctx, stageSQL); err != nil {
		return 0, err
	}

	var rows int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM song_plays").Scan(&rows); err != nil {
		return 0, err
	}
	return rows, nil
}

// writeUsers writes the users dimension, unpartitioned. One row survives per
// user: the one from that user's most recent event, so a subscription level
// change keeps the latest value rather than an arbitrary one.
func (p *LogPipeline) writeUsers(ctx context.Context) (int64, error) {
	query := `
		SELECT user_id, first_name, last_name, gender, level
		FROM (
			SELECT user_id, first_name, last_name, gender, level,
				ROW_NUMBER() OVER (
					PARTITION BY user_id
					ORDER BY ts DESC, item_in_session DESC
				) AS rn
			FROM song_plays
		) ranked
		WHERE rn = 1`

	return copyParquet(ctx, p.db, p.logger, query,
		TablePath(p.outputURL, UsersTable), nil)
}

// writeTime writes the time dimension, partitioned by year then month.
// Calendar fields follow the engine's UTC session: weekofyear is the ISO
// week and weekday runs 0 (Sunday) through 6 (Saturday).
func (p *LogPipeline) writeTime(ctx context.Context) (int64, error) {
	query := `
		SELECT DISTINCT
			event_ts AS start_time,
			hour(event_ts) AS hour,
			day(event_ts) AS day,
			weekofyear(event_ts) AS week,
			month(event_ts) AS month,
			year(event_ts) AS year,
			dayofweek(event_ts) AS weekday
		FROM song_plays`

	return copyParquet(ctx, p.db, p.logger, query,
		TablePath(p.outputURL, TimeTable),
		[]string{"year", "month"})
}

// writeSongplays resolves song and artist keys by exact title and name match
// against the dimensions written earlier in this run, then writes the fact
// table partitioned by year then month. Events with no catalog match produce
// no fact row.
func (p *LogPipeline) writeSongplays(ctx context.Context) (int64, error) {
	songsPath := joinURL(TablePath(p.outputURL, SongsTable), "*/*/*.parquet")
	artistsPath := TablePath(p.outputURL, ArtistsTable)

	query := fmt.Sprintf(`
		SELECT DISTINCT
			ev.event_ts AS start_time,
			year(ev.event_ts) AS year,
			month(ev.event_ts) AS month,
			ev.user_id,
			ev.level,
			ev.session_id,
			ev.location,
			ev.user_agent,
			s.song_id,
			a.artist_id
		FROM song_plays ev
		JOIN read_parquet(%s, hive_partitioning = true) s ON ev.song = s.title
		JOIN read_parquet(%s) a ON ev.artist = a.name`,
		sqlString(songsPath), sqlString(artistsPath))

	return copyParquet(ctx, p.db, p.logger, query,
		TablePath(p.outputURL, SongplaysTable),
		[]string{"year", "month"})
}
