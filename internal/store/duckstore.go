// Package store persists parsed logs in DuckDB.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/plc-visualizer/logparse/internal/models"
)

// ErrNotFound is returned when a source has not been saved.
var ErrNotFound = errors.New("source not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		source_id   VARCHAR PRIMARY KEY,
		entry_count INTEGER NOT NULL,
		saved_at    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		source_id  VARCHAR NOT NULL,
		seq        INTEGER NOT NULL,
		timestamp  BIGINT NOT NULL,
		line       INTEGER NOT NULL,
		device_id  VARCHAR NOT NULL,
		signal     VARCHAR NOT NULL,
		signal_key VARCHAR NOT NULL,
		category   VARCHAR,
		source_file VARCHAR,
		val_type   TINYINT NOT NULL,
		val_bool   BOOLEAN,
		val_int    BIGINT,
		val_str    VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		source_id  VARCHAR NOT NULL,
		ord        INTEGER NOT NULL,
		signal_key VARCHAR NOT NULL,
		device_id  VARCHAR NOT NULL,
		signal     VARCHAR NOT NULL,
		sig_type   VARCHAR NOT NULL,
		hits       INTEGER NOT NULL,
		first_seen BIGINT NOT NULL,
		last_seen  BIGINT NOT NULL,
		first_line INTEGER NOT NULL,
		last_line  INTEGER NOT NULL
	)`,
}

// DuckStore keeps parsed logs in a DuckDB database, one source per file.
type DuckStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Option configures a DuckStore.
type Option func(*DuckStore)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(ds *DuckStore) {
		if l != nil {
			ds.logger = l
		}
	}
}

// Open opens (or creates) the database at path. An empty path opens an
// in-memory database.
func Open(path string, opts ...Option) (*DuckStore, error) {
	ds := &DuckStore{path: path, logger: logging.Discard()}
	for _, opt := range opts {
		opt(ds)
	}
	ds.logger = logging.WithComponent(ds.logger, "store")

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	ds.db = sql.OpenDB(connector)
	for _, stmt := range schema {
		if _, err := ds.db.Exec(stmt); err != nil {
			ds.db.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	ds.logger.Debug("store opened", "path", displayPath(path))
	return ds, nil
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

// Save replaces everything stored under sourceID with log.
func (ds *DuckStore) Save(ctx context.Context, sourceID string, log *models.ParsedLog) error {
	if log == nil {
		return fmt.Errorf("save %s: nil log", sourceID)
	}
	start := time.Now()

	conn, err := ds.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	for _, table := range []string{"sources", "entries", "signals"} {
		if _, err := conn.ExecContext(ctx, "DELETE FROM "+table+" WHERE source_id = ?", sourceID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO sources VALUES (?, ?, ?)",
		sourceID, len(log.Entries), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to record source: %w", err)
	}

	// The Appender needs the raw driver connection.
	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		if err := appendEntries(dConn, sourceID, log.Entries); err != nil {
			return err
		}
		return appendSignals(dConn, sourceID, log.Signals)
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	ds.logger.Debug("log saved",
		"source", sourceID,
		"entries", len(log.Entries),
		"signals", log.Signals.Len(),
		"elapsed", time.Since(start),
	)
	return nil
}

func appendEntries(conn *duckdb.Conn, sourceID string, entries []models.LogEntry) error {
	appender, err := duckdb.NewAppenderFromConn(conn, "", "entries")
	if err != nil {
		return fmt.Errorf("failed to create appender: %w", err)
	}
	defer appender.Close()

	for i := range entries {
		e := &entries[i]
		valType, valBool, valInt, valStr := encodeValue(e.Value)
		err := appender.AppendRow(
			sourceID,
			int32(i),
			e.Timestamp.UnixNano(),
			int32(e.Line),
			e.DeviceID,
			e.SignalName,
			e.Key(),
			e.Category,
			e.SourceID,
			valType,
			valBool,
			valInt,
			valStr,
		)
		if err != nil {
			return fmt.Errorf("failed to append entry %d: %w", i, err)
		}
	}
	return appender.Flush()
}

func appendSignals(conn *duckdb.Conn, sourceID string, signals *models.SignalIndex) error {
	appender, err := duckdb.NewAppenderFromConn(conn, "", "signals")
	if err != nil {
		return fmt.Errorf("failed to create appender: %w", err)
	}
	defer appender.Close()

	for i, info := range signals.List() {
		err := appender.AppendRow(
			sourceID,
			int32(i),
			info.Key,
			info.DeviceID,
			info.SignalName,
			string(info.Type),
			int32(info.Count),
			info.FirstSeen.UnixNano(),
			info.LastSeen.UnixNano(),
			int32(info.FirstLine),
			int32(info.LastLine),
		)
		if err != nil {
			return fmt.Errorf("failed to append signal %s: %w", info.Key, err)
		}
	}
	return appender.Flush()
}

// Signals returns the signal index of sourceID in first-occurrence order.
func (ds *DuckStore) Signals(ctx context.Context, sourceID string) (*models.SignalIndex, error) {
	rows, err := ds.db.QueryContext(ctx, `
		SELECT signal_key, device_id, signal, sig_type, hits, first_seen, last_seen, first_line, last_line
		FROM signals WHERE source_id = ? ORDER BY ord
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("signals query failed: %w", err)
	}
	defer rows.Close()

	index := models.NewSignalIndex()
	for rows.Next() {
		var (
			info                models.SignalInfo
			sigType             string
			firstSeen, lastSeen int64
		)
		if err := rows.Scan(&info.Key, &info.DeviceID, &info.SignalName, &sigType, &info.Count,
			&firstSeen, &lastSeen, &info.FirstLine, &info.LastLine); err != nil {
			return nil, err
		}
		info.Type = models.SignalType(sigType)
		info.FirstSeen = fromNanos(firstSeen)
		info.LastSeen = fromNanos(lastSeen)
		index.Insert(&info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if index.Len() == 0 {
		if ok, err := ds.Has(ctx, sourceID); err != nil {
			return nil, err
		} else if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceID)
		}
	}
	return index, nil
}

// Entries returns up to limit entries of sourceID in file order, starting
// at offset. A non-empty signalKey restricts the result to that signal.
// limit <= 0 means no limit.
func (ds *DuckStore) Entries(ctx context.Context, sourceID, signalKey string, offset, limit int) ([]models.LogEntry, error) {
	query := `
		SELECT timestamp, line, device_id, signal, category, source_file, val_type, val_bool, val_int, val_str
		FROM entries WHERE source_id = ?`
	args := []any{sourceID}
	if signalKey != "" {
		query += " AND signal_key = ?"
		args = append(args, signalKey)
	}
	query += " ORDER BY seq"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entries query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, max(limit, 0))
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		// Merged logs carry the originating file per entry.
		if entry.SourceID == "" {
			entry.SourceID = sourceID
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Has reports whether sourceID has been saved.
func (ds *DuckStore) Has(ctx context.Context, sourceID string) (bool, error) {
	var n int
	err := ds.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources WHERE source_id = ?", sourceID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("source query failed: %w", err)
	}
	return n > 0, nil
}

// Sources lists saved source IDs in save order.
func (ds *DuckStore) Sources(ctx context.Context) ([]string, error) {
	rows, err := ds.db.QueryContext(ctx, "SELECT source_id FROM sources ORDER BY saved_at, source_id")
	if err != nil {
		return nil, fmt.Errorf("sources query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns how many entries are stored for sourceID.
func (ds *DuckStore) Count(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := ds.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries WHERE source_id = ?", sourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}

// Delete removes everything stored under sourceID.
func (ds *DuckStore) Delete(ctx context.Context, sourceID string) error {
	for _, table := range []string{"sources", "entries", "signals"} {
		if _, err := ds.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE source_id = ?", sourceID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database.
func (ds *DuckStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}

// Value type constants
const (
	valTypeBool   int8 = 0
	valTypeInt    int8 = 1
	valTypeString int8 = 3
)

func encodeValue(val any) (valType int8, valBool bool, valInt int64, valStr string) {
	switch v := val.(type) {
	case bool:
		return valTypeBool, v, 0, ""
	case int64:
		return valTypeInt, false, v, ""
	case int:
		return valTypeInt, false, int64(v), ""
	case string:
		return valTypeString, false, 0, v
	default:
		return valTypeString, false, 0, fmt.Sprintf("%v", val)
	}
}

func decodeValue(valType int8, valBool bool, valInt int64, valStr string) (any, models.SignalType) {
	switch valType {
	case valTypeBool:
		return valBool, models.SignalTypeBoolean
	case valTypeInt:
		return valInt, models.SignalTypeInteger
	default:
		return valStr, models.SignalTypeString
	}
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (models.LogEntry, error) {
	var (
		tsNs     int64
		line     int
		deviceID string
		signal   string
		category sql.NullString
		source   sql.NullString
		valType  int8
		valBool  sql.NullBool
		valInt   sql.NullInt64
		valStr   sql.NullString
	)
	if err := row.Scan(&tsNs, &line, &deviceID, &signal, &category, &source, &valType, &valBool, &valInt, &valStr); err != nil {
		return models.LogEntry{}, err
	}

	value, stype := decodeValue(valType, valBool.Bool, valInt.Int64, valStr.String)
	return models.LogEntry{
		Timestamp:  fromNanos(tsNs),
		Line:       line,
		DeviceID:   deviceID,
		SignalName: signal,
		Category:   category.String,
		SourceID:   source.String,
		Value:      value,
		SignalType: stype,
	}, nil
}
