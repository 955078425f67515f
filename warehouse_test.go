package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/benvenutto/data-lake/transformations"
)

func writeWarehouseFixtures(t *testing.T, inputDir string) {
	t.Helper()
	song := `{"song_id":"S1","num_songs":1,"artist_id":"A1","artist_latitude":null,"artist_longitude":null,"artist_location":"London, England","artist_name":"Adele","title":"Hello","duration":295.5,"year":2015}`
	event := `{"artist":"Adele","auth":"Logged In","first_name":"Ada","last_name":"Lovelace","gender":"F","item_in_session":0,"length":295.5,"level":"paid","location":"NYC","method":"PUT","page":"NextSong","registration":1495000000000.0,"session_id":42,"song":"Hello","status":200,"ts":1500000000000,"user_agent":"UA1","user_id":7}`

	songPath := filepath.Join(inputDir, "song_data", "A", "B", "C", "TRAABC12903CCT339.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(songPath), 0o755))
	require.NoError(t, os.WriteFile(songPath, []byte(song+"\n"), 0o644))

	eventPath := filepath.Join(inputDir, "log_data", "2017", "07", "2017-07-14-events.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(eventPath), 0o755))
	require.NoError(t, os.WriteFile(eventPath, []byte(event+"\n"), 0o644))
}

func TestWarehouseRun(t *testing.T) {
	config := localConfig(t)
	writeWarehouseFixtures(t, config.Storage.InputURL)

	warehouse, err := NewWarehouse(config, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer warehouse.Close()

	require.NoError(t, warehouse.Run(context.Background()))

	// All five tables are on storage
	for _, table := range []string{
		transformations.SongsTable,
		transformations.ArtistsTable,
		transformations.UsersTable,
		transformations.TimeTable,
		transformations.SongplaysTable,
	} {
		_, err := os.Stat(filepath.Join(config.Storage.OutputURL, table))
		require.NoError(t, err, "expected %s on storage", table)
	}

	stats := warehouse.GetStats()
	require.Equal(t, int64(1), stats.RunsTotal)
	require.Zero(t, stats.RunErrors)
	require.False(t, stats.LastRunTime.IsZero())
}

func TestWarehouseRunFailsOnMissingInput(t *testing.T) {
	config := localConfig(t)

	warehouse, err := NewWarehouse(config, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer warehouse.Close()

	err = warehouse.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "songs pipeline failed")

	stats := warehouse.GetStats()
	require.Zero(t, stats.RunsTotal)
	require.Equal(t, int64(1), stats.RunErrors)
}

func TestWarehouseRejectsInvalidConfig(t *testing.T) {
	_, err := NewWarehouse(&Config{}, zaptest.NewLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid config")
}
