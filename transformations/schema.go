package transformations

import (
	"fmt"
	"strings"
)

// Source identifies one of the raw newline-delimited JSON inputs.
type Source string

const (
	SourceSong  Source = "song"
	SourceEvent Source = "event"
)

// Column is a single name → DuckDB type entry in a raw source schema.
type Column struct {
	Name string
	Type string
}

// songColumns is the declared schema for song catalog records.
var songColumns = []Column{
	{"song_id", "VARCHAR"},
	{"num_songs", "INTEGER"},
	{"artist_id", "VARCHAR"},
	{"artist_latitude", "DOUBLE"},
	{"artist_longitude", "DOUBLE"},
	{"artist_location", "VARCHAR"},
	{"artist_name", "VARCHAR"},
	{"title", "VARCHAR"},
	{"duration", "DOUBLE"},
	{"year", "INTEGER"},
}

// eventColumns is the declared schema for event log records.
var eventColumns = []Column{
	{"artist", "VARCHAR"},
	{"auth", "VARCHAR"},
	{"first_name", "VARCHAR"},
	{"gender", "VARCHAR"},
	{"item_in_session", "INTEGER"},
	{"last_name", "VARCHAR"},
	{"length", "DOUBLE"},
	{"level", "VARCHAR"},
	{"location", "VARCHAR"},
	{"method", "VARCHAR"},
	{"page", "VARCHAR"},
	{"registration", "DOUBLE"},
	{"session_id", "BIGINT"},
	{"song", "VARCHAR"},
	{"status", "INTEGER"},
	{"ts", "BIGINT"},
	{"user_agent", "VARCHAR"},
	{"user_id", "BIGINT"},
}

// sourcePatterns maps each raw source to its glob under the input root.
var sourcePatterns = map[Source]string{
	SourceSong:  "song_data/*/*/*/*.json",
	SourceEvent: "log_data/*/*/*-events.json",
}

// Columns returns the ordered column → type list declared for a raw source.
// The explicit schema keeps the engine from running an inference pass and
// pins column types even when a batch of files omits some values.
func Columns(src Source) ([]Column, error) {
	var cols []Column
	switch src {
	case SourceSong:
		cols = songColumns
	case SourceEvent:
		cols = eventColumns
	default:
		return nil, fmt.Errorf("unknown raw source %q", src)
	}
	out := make([]Column, len(cols))
	copy(out, cols)
	return out, nil
}

// Pattern returns the file glob for a raw source, relative to the input root.
func Pattern(src Source) (string, error) {
	pattern, ok := sourcePatterns[src]
	if !ok {
		return "", fmt.Errorf("unknown raw source %q", src)
	}
	return pattern, nil
}

// readJSONExpr renders the typed read_json table function for a raw source.
func readJSONExpr(inputURL string, src Source) (string, error) {
	cols, err := Columns(src)
	if err != nil {
		return "", err
	}
	pattern, err := Pattern(src)
	if err != nil {
		return "", err
	}

	entries := make([]string, len(cols))
	for i, col := range cols {
		entries[i] = fmt.Sprintf("%s: '%s'", col.Name, col.Type)
	}

	return fmt.Sprintf(
		"read_json(%s, format = 'newline_delimited', columns = {%s})",
		sqlString(joinURL(inputURL, pattern)),
		strings.Join(entries, ", "),
	), nil
}

// joinURL appends a relative path to a root URL or directory.
func joinURL(root, rel string) string {
	return strings.TrimSuffix(root, "/") + "/" + rel
}

// sqlString renders a single-quoted SQL string literal.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
