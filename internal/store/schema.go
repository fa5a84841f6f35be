// Package store persists ingested events and the provenance ledger in a
// relational database (SQLite by default, PostgreSQL through pgx).
package store

// CreateEventsTableSQL creates the append-only events table. Rows carry no
// uniqueness constraint; the same event may arrive from several source files.
// count is NULL unless the rows were aggregated.
const CreateEventsTableSQL = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT,
    timestamp TEXT,
    email TEXT,
    country TEXT,
    ip TEXT,
    uri TEXT,
    action TEXT,
    tags TEXT,
    count BIGINT
)`

// CreateFilesTableSQL creates the provenance ledger. A source appears here
// only once its rows are committed to events.
const CreateFilesTableSQL = `
CREATE TABLE IF NOT EXISTS files (
    source TEXT PRIMARY KEY,
    ingest_id TEXT NOT NULL,
    row_count BIGINT NOT NULL,
    checksum TEXT NOT NULL,
    aggregated INTEGER NOT NULL DEFAULT 0,
    ingested_at BIGINT NOT NULL
)`

// CreateFilesIndexesSQL supports listing the ledger in ingestion order.
var CreateFilesIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_files_ingested_at ON files(ingested_at)`,
}

// AllSchemaSQL returns all schema creation statements in order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateEventsTableSQL,
		CreateFilesTableSQL,
	}
	return append(stmts, CreateFilesIndexesSQL...)
}

const insertEventSQL = `
INSERT INTO events (id, timestamp, email, country, ip, uri, action, tags, count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertFileSQL = `
INSERT INTO files (source, ingest_id, row_count, checksum, aggregated, ingested_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (source) DO NOTHING`
