package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements ObjectStorage over a local directory laid out like
// the bucket. Used for offline runs and tests.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage returns storage rooted at basePath. The directory is not
// created; a missing root simply holds no objects.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// Get reads an object from local storage.
func (l *LocalStorage) Get(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	srcPath, err := l.fullPath(objectPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, classifyFSError(objectPath, err)
	}
	return data, nil
}

// Download copies an object from local storage to localPath.
func (l *LocalStorage) Download(ctx context.Context, objectPath, localPath string) error {
	data, err := l.Get(ctx, objectPath)
	if err != nil {
		return err
	}
	return WriteFileAtomic(localPath, data)
}

// Exists checks if an object exists in local storage.
func (l *LocalStorage) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath, err := l.fullPath(objectPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, classifyFSError(objectPath, err)
	}
	return !info.IsDir(), nil
}

// fullPath returns the filesystem path for an object, rejecting paths that
// escape the base directory.
func (l *LocalStorage) fullPath(objectPath string) (string, error) {
	if objectPath == "" {
		return "", fmt.Errorf("%w: empty object path", ErrInvalidPath)
	}
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(objectPath, "/")))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the storage root", ErrInvalidPath, objectPath)
	}
	return filepath.Join(l.basePath, rel), nil
}

func classifyFSError(objectPath string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objectPath)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, objectPath)
	default:
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && strings.Contains(pathErr.Err.Error(), "is a directory") {
			return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, objectPath)
		}
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, objectPath, err)
	}
}
