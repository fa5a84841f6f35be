package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/eventload/eventload/internal/config"
	elerrors "github.com/eventload/eventload/internal/errors"
)

// CheckReport describes a reachable store.
type CheckReport struct {
	Driver string
	Target string
	// SchemaPresent is false for a valid database that has never been loaded.
	SchemaPresent bool
	Events        int64
	Files         int64
}

// Check verifies that an existing store can be opened and read. Unlike Open
// it never creates anything: a missing sqlite3 file is a failure.
func Check(ctx context.Context, driver, dsn string) (*CheckReport, error) {
	report := &CheckReport{Driver: driver, Target: dsn}

	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case config.DriverSQLite:
		path := sqlitePath(dsn)
		report.Target = path
		info, statErr := os.Stat(path)
		if statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "store does not exist", statErr).
					WithDetails(map[string]interface{}{"path": path})
			}
			return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "store is not accessible", statErr)
		}
		if info.IsDir() {
			return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "store path is a directory",
				fmt.Errorf("%s is a directory", path))
		}
		db, err = sql.Open(config.DriverSQLite, sqliteDSN(dsn, "mode=rw&_busy_timeout=5000"))
	case config.DriverPostgres:
		report.Target = "postgres"
		db, err = sql.Open(pgxDriverName, dsn)
	default:
		return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "unsupported store driver",
			fmt.Errorf("driver %q", driver))
	}
	if err != nil {
		return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to open store", err)
	}
	defer db.Close()

	if err := probe(ctx, db, driver); err != nil {
		return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "store failed integrity check", err)
	}

	s := &Store{db: db, driver: driver}
	present, err := s.schemaPresent(ctx)
	if err != nil {
		return report, elerrors.NewStoreError(elerrors.CodeStoreUnavailable, "failed to inspect schema", err)
	}
	report.SchemaPresent = present
	if present {
		if report.Events, report.Files, err = s.Counts(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// probe runs a cheap query that fails on an unreadable database.
func probe(ctx context.Context, db *sql.DB, driver string) error {
	if driver != config.DriverSQLite {
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("quick_check: %s", result)
	}
	return nil
}

func (s *Store) schemaPresent(ctx context.Context) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('events', 'files')"
	if s.driver == config.DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name IN ('events', 'files')"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return false, err
	}
	return n == 2, nil
}
