// Package storage provides read access to the object storage holding the
// source event logs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	elerrors "github.com/eventload/eventload/internal/errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidPath      = errors.New("invalid object path")
	ErrDownloadFailed   = errors.New("download failed")
)

// ObjectStorage abstracts read-only object storage operations.
// Implementations are S3 (anonymous) and the local filesystem.
type ObjectStorage interface {
	// Get returns the full content of an object.
	// objectPath is relative to the storage root, e.g. "2021/04/events.csv".
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Download writes an object to localPath. The file appears only once
	// fully written.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)
}

// Open returns the storage rooted at host: s3://bucket[/prefix], file://dir
// or a plain directory.
func Open(ctx context.Context, host string, cfg S3Config) (ObjectStorage, error) {
	loc, err := ParseLocation(host)
	if err != nil {
		return nil, err
	}
	switch loc.Scheme {
	case SchemeS3:
		return NewS3Storage(ctx, loc.Bucket, loc.Path, cfg)
	default:
		return NewLocalStorage(loc.Path), nil
	}
}

// OpenObject resolves a full object URL into the storage holding it and the
// object path within that storage.
func OpenObject(ctx context.Context, rawURL string, cfg S3Config) (ObjectStorage, string, error) {
	loc, err := ParseLocation(rawURL)
	if err != nil {
		return nil, "", err
	}
	switch loc.Scheme {
	case SchemeS3:
		if loc.Path == "" {
			return nil, "", fmt.Errorf("%w: %q has no object key", ErrInvalidPath, rawURL)
		}
		s, err := NewS3Storage(ctx, loc.Bucket, "", cfg)
		if err != nil {
			return nil, "", err
		}
		return s, loc.Path, nil
	default:
		return NewLocalStorage(filepath.Dir(loc.Path)), filepath.Base(loc.Path), nil
	}
}

// AsSourceError converts a storage error into the SOURCE error taxonomy.
func AsSourceError(objectPath string, err error) error {
	if err == nil {
		return nil
	}
	details := map[string]interface{}{"object": objectPath}
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return elerrors.NewSourceError(elerrors.CodeObjectNotFound, "source object not found", err).WithDetails(details)
	case errors.Is(err, ErrPermissionDenied):
		return elerrors.NewSourceError(elerrors.CodePermissionDenied, "no access to source object", err).WithDetails(details)
	case errors.Is(err, ErrInvalidPath):
		return elerrors.NewSourceError(elerrors.CodeInvalidSource, "invalid source path", err).WithDetails(details)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return elerrors.NewSourceError(elerrors.CodeDownloadFailed, "failed to fetch source object", err).WithDetails(details)
	}
}

// WriteFileAtomic writes data next to localPath and renames it into place.
// A failed write leaves nothing at localPath.
func WriteFileAtomic(localPath string, data []byte) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}
