package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// Location schemes.
const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Location is a parsed storage URL.
type Location struct {
	Scheme string
	// Bucket is set for s3 locations only.
	Bucket string
	// Path is the key prefix within the bucket (no leading slash) for s3,
	// or a filesystem path for file locations.
	Path string
}

// ParseLocation parses s3://bucket/key, file:///path or a plain filesystem path.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty location", ErrInvalidPath)
	}

	scheme, rest, hasScheme := strings.Cut(raw, "://")
	if !hasScheme {
		return Location{Scheme: SchemeFile, Path: raw}, nil
	}

	switch strings.ToLower(scheme) {
	case SchemeS3:
		u, err := url.Parse(raw)
		if err != nil {
			return Location{}, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if u.Host == "" {
			return Location{}, fmt.Errorf("%w: %q has no bucket", ErrInvalidPath, raw)
		}
		return Location{
			Scheme: SchemeS3,
			Bucket: u.Host,
			Path:   strings.Trim(u.Path, "/"),
		}, nil
	case SchemeFile:
		if rest == "" {
			return Location{}, fmt.Errorf("%w: %q has no path", ErrInvalidPath, raw)
		}
		return Location{Scheme: SchemeFile, Path: rest}, nil
	default:
		return Location{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPath, scheme)
	}
}

// joinKey joins a key prefix and an object path with a single slash.
func joinKey(prefix, objectPath string) string {
	objectPath = strings.TrimLeft(objectPath, "/")
	if prefix == "" {
		return objectPath
	}
	return strings.TrimRight(prefix, "/") + "/" + objectPath
}
