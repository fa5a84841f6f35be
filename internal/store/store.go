package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eventload/eventload/internal/config"
	elerrors "github.com/eventload/eventload/internal/errors"
	"github.com/eventload/eventload/pkg/types"
)

// pgxDriverName is the database/sql name registered by pgx/v5/stdlib.
const pgxDriverName = "pgx"

// Store is the events table plus the provenance ledger in one database.
// It is opened for a single run and must be closed on every exit path.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the store and creates the schema if needed. For sqlite3
// the database file and its directory are created.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "store DSN is required", errors.New("empty dsn"))
	}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case config.DriverSQLite:
		path := sqlitePath(dsn)
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to create store directory", err)
			}
		}
		db, err = sql.Open(config.DriverSQLite, sqliteDSN(dsn, "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"))
		if err == nil {
			// Single writer
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
	case config.DriverPostgres:
		db, err = sql.Open(pgxDriverName, dsn)
	default:
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "unsupported store driver",
			fmt.Errorf("driver %q", driver))
	}
	if err != nil {
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to open store", err)
	}

	s := &Store{db: db, driver: driver}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "store is unreachable", err)
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to initialize schema", err)
	}
	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// Exists reports whether key was recorded by a completed ingestion.
func (s *Store) Exists(ctx context.Context, key types.SourceFileKey) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT 1 FROM files WHERE source = ?"), key.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to query provenance ledger", err)
	}
	return true, nil
}

// Record inserts a provenance record on its own. Recording a key that is
// already present is a no-op.
func (s *Store) Record(ctx context.Context, rec *types.ProvenanceRecord) error {
	if _, err := s.insertFile(ctx, s.db, rec); err != nil {
		return elerrors.NewStoreError(elerrors.CodeWriteFailed, "failed to record provenance", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertFile reports whether a new ledger row was written. An empty ingest
// id is filled with a fresh UUIDv7.
func (s *Store) insertFile(ctx context.Context, ex execer, rec *types.ProvenanceRecord) (bool, error) {
	if rec.IngestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return false, err
		}
		rec.IngestID = id.String()
	}

	var aggregated int64
	if rec.Aggregated {
		aggregated = 1
	}
	res, err := ex.ExecContext(ctx, s.rebind(insertFileSQL),
		rec.Key.String(), rec.IngestID, rec.RowCount, rec.Checksum, aggregated, rec.IngestedAt.UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Commit appends rows and records provenance in one transaction. The ledger
// insert runs first; if another run already recorded the key, nothing is
// written and the returned error matches elerrors.ErrAlreadyIngested.
func (s *Store) Commit(ctx context.Context, rec *types.ProvenanceRecord, rows []types.EventRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	inserted, err := s.insertFile(ctx, tx, rec)
	if err != nil {
		return elerrors.NewStoreError(elerrors.CodeWriteFailed, "failed to record provenance", err)
	}
	if !inserted {
		return elerrors.ErrAlreadyIngested.WithDetails(map[string]interface{}{"source": rec.Key.String()})
	}

	if err := s.insertEventsTx(ctx, tx, rows); err != nil {
		return elerrors.NewStoreError(elerrors.CodeWriteFailed, "failed to append events", err)
	}

	if err := tx.Commit(); err != nil {
		return elerrors.NewStoreError(elerrors.CodeWriteFailed, "failed to commit transaction", err)
	}
	return nil
}

func (s *Store) insertEventsTx(ctx context.Context, tx *sql.Tx, rows []types.EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertEventSQL))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		var count sql.NullInt64
		if r.Aggregated() {
			count = sql.NullInt64{Int64: r.Count, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Timestamp, r.Email, r.Country, r.IP, r.URI, r.Action, r.Tags, count,
		); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return nil
}

// Events returns every stored row.
func (s *Store) Events(ctx context.Context) ([]types.EventRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, timestamp, email, country, ip, uri, action, tags, count FROM events")
	if err != nil {
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to query events", err)
	}
	defer rows.Close()

	var out []types.EventRow
	for rows.Next() {
		var (
			r     types.EventRow
			count sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Email, &r.Country, &r.IP, &r.URI, &r.Action, &r.Tags, &count); err != nil {
			return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to scan event", err)
		}
		if count.Valid {
			r.Count = count.Int64
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to read events", err)
	}
	return out, nil
}

// Files returns the provenance ledger in ingestion order.
func (s *Store) Files(ctx context.Context) ([]types.ProvenanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT source, ingest_id, row_count, checksum, aggregated, ingested_at FROM files ORDER BY ingested_at, source")
	if err != nil {
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to query provenance ledger", err)
	}
	defer rows.Close()

	var out []types.ProvenanceRecord
	for rows.Next() {
		var (
			rec        types.ProvenanceRecord
			source     string
			aggregated int64
			ingestedAt int64
		)
		if err := rows.Scan(&source, &rec.IngestID, &rec.RowCount, &rec.Checksum, &aggregated, &ingestedAt); err != nil {
			return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to scan provenance record", err)
		}
		rec.Key = types.SourceFileKey(source)
		rec.Aggregated = aggregated != 0
		rec.IngestedAt = time.UnixMilli(ingestedAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to read provenance ledger", err)
	}
	return out, nil
}

// Counts returns the number of event rows and ledger records.
func (s *Store) Counts(ctx context.Context) (events, files int64, err error) {
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&events); err != nil {
		return 0, 0, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to count events", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&files); err != nil {
		return 0, 0, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to count files", err)
	}
	return events, files, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != config.DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqlitePath extracts the filesystem path from a sqlite3 DSN.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// sqliteDSN appends connection parameters to dsn.
func sqliteDSN(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?" + params
}
