package types

import (
	"fmt"
	"strings"
	"time"
)

// SourceFileKey uniquely identifies one source file: {host}/{year}/{month}/{filename}.
// It is the primary key of the provenance ledger and must stay stable across
// runs for the same logical inputs.
type SourceFileKey string

// NewSourceFileKey composes a key from its parts. A trailing slash on host is
// dropped so "s3://b" and "s3://b/" produce the same key.
func NewSourceFileKey(host string, year, month int, filename string) SourceFileKey {
	host = strings.TrimRight(host, "/")
	return SourceFileKey(fmt.Sprintf("%s/%04d/%02d/%s", host, year, month, filename))
}

// String returns the key as a path.
func (k SourceFileKey) String() string {
	return string(k)
}

// ProvenanceRecord is the ledger entry written once a source file's rows are
// durably appended.
type ProvenanceRecord struct {
	Key        SourceFileKey `json:"source"`
	IngestID   string        `json:"ingest_id"`
	RowCount   int64         `json:"row_count"`
	Checksum   string        `json:"checksum"`
	Aggregated bool          `json:"aggregated"`
	IngestedAt time.Time     `json:"ingested_at"`
}
