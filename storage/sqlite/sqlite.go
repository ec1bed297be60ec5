// Package sqlite provides concrete, durable implementations of
// storage.KeyValueStore, storage.TraceSink, and storage.MetricsRepository
// for single-process/local deployments, backed by modernc.org/sqlite (a
// CGo-free driver) and scanned with scany.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "modernc.org/sqlite"

	"github.com/vllora/gateway/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS spans (
	span_id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL,
	parent_span_id TEXT,
	run_id TEXT,
	thread_id TEXT,
	operation_name TEXT NOT NULL,
	start_time_us INTEGER NOT NULL,
	finish_time_us INTEGER NOT NULL,
	status_code INTEGER NOT NULL,
	error TEXT,
	attributes TEXT
);
CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id);
CREATE INDEX IF NOT EXISTS idx_spans_run_id ON spans(run_id);

CREATE TABLE IF NOT EXISTS metric_observations (
	model TEXT NOT NULL,
	metric TEXT NOT NULL,
	value REAL NOT NULL,
	observed_at INTEGER NOT NULL,
	PRIMARY KEY (model, metric, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_metric_observations_latest ON metric_observations(model, metric, observed_at DESC);
`

// DB wraps a *sql.DB opened against a local SQLite file, applying the
// schema once at Open time the way the teacher's storage.Open does.
type DB struct {
	db *sql.DB
}

// Open opens (and creates, if absent) the SQLite database at path and
// applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// KeyValueStore returns a storage.KeyValueStore backed by this database.
func (d *DB) KeyValueStore() *KeyValueStore {
	return &KeyValueStore{db: d.db}
}

// TraceSink returns a storage.TraceSink backed by this database.
func (d *DB) TraceSink() *TraceSink {
	return &TraceSink{db: d.db}
}

// MetricsRepository returns a storage.MetricsRepository backed by this
// database.
func (d *DB) MetricsRepository() *MetricsRepository {
	return &MetricsRepository{db: d.db, cache: map[string]float64{}}
}

// KeyValueStore implements storage.KeyValueStore over the kv_store table.
// Expired rows are lazily reaped on Get rather than by a background
// sweeper, keeping this store dependency-free beyond the driver itself.
type KeyValueStore struct {
	db *sql.DB
}

var _ storage.KeyValueStore = (*KeyValueStore)(nil)

type kvRow struct {
	Value     []byte `db:"value"`
	ExpiresAt sql.NullInt64 `db:"expires_at"`
}

// Get implements storage.KeyValueStore.
func (s *KeyValueStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row kvRow
	err := sqlscan.Get(ctx, s.db, &row, `SELECT value, expires_at FROM kv_store WHERE key = ?`, key)
	if err != nil {
		if sqlscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if row.ExpiresAt.Valid && row.ExpiresAt.Int64 < time.Now().UnixMicro() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
		return nil, false, nil
	}
	return row.Value, true, nil
}

// Set implements storage.KeyValueStore.
func (s *KeyValueStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(ttl).UnixMicro(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	return err
}

// Delete implements storage.KeyValueStore.
func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

// TraceSink implements storage.TraceSink over the spans table. Submit
// never returns an error to the caller per the interface contract; write
// failures are swallowed since a lost span export must never block or
// fail the request that produced it.
type TraceSink struct {
	db *sql.DB
}

var _ storage.TraceSink = (*TraceSink)(nil)

// Submit implements storage.TraceSink.
func (t *TraceSink) Submit(ctx context.Context, span storage.SpanRecord) {
	attrs, _ := json.Marshal(span.Attributes)
	_, _ = t.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO spans
		 (span_id, trace_id, parent_span_id, run_id, thread_id, operation_name, start_time_us, finish_time_us, status_code, error, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		span.SpanID, span.TraceID, span.ParentSpanID, span.RunID, span.ThreadID,
		span.OperationName, span.StartTimeUS, span.FinishTimeUS, span.StatusCode, span.Error, string(attrs))
}

// MetricsRepository implements storage.MetricsRepository over the
// metric_observations table, keeping an in-memory cache of the latest
// value per (model, metric) so Value doesn't round-trip to disk on the
// Optimized router's hot path; Observe persists durably and updates the
// cache in the same call.
type MetricsRepository struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]float64
}

var _ storage.MetricsRepository = (*MetricsRepository)(nil)

func metricKey(model, metric string) string {
	return model + "\x00" + metric
}

// Observe implements storage.MetricsRepository.
func (m *MetricsRepository) Observe(model string, metric string, value float64) {
	m.mu.Lock()
	m.cache[metricKey(model, metric)] = value
	m.mu.Unlock()

	_, _ = m.db.ExecContext(context.Background(),
		`INSERT INTO metric_observations (model, metric, value, observed_at) VALUES (?, ?, ?, ?)`,
		model, metric, value, time.Now().UnixMicro())
}

// Value implements storage.MetricsRepository, preferring the in-memory
// cache and falling back to the most recent persisted observation.
func (m *MetricsRepository) Value(ctx context.Context, model string, metric string) (float64, bool) {
	m.mu.RLock()
	v, ok := m.cache[metricKey(model, metric)]
	m.mu.RUnlock()
	if ok {
		return v, true
	}

	var value float64
	err := sqlscan.Get(ctx, m.db, &value,
		`SELECT value FROM metric_observations WHERE model = ? AND metric = ? ORDER BY observed_at DESC LIMIT 1`,
		model, metric)
	if err != nil {
		return 0, false
	}
	m.mu.Lock()
	m.cache[metricKey(model, metric)] = value
	m.mu.Unlock()
	return value, true
}
