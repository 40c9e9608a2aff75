// Package storage loads the JSON documents the serving core is configured
// with (creative catalog, anti-targeting list) from local files or S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNotFound is returned when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnsupportedLocation is returned for locations no loader handles.
	ErrUnsupportedLocation = errors.New("unsupported document location")
)

// Loader fetches a document by location.
type Loader interface {
	Load(ctx context.Context, location string) ([]byte, error)
}

// FileLoader reads documents from the local filesystem.
type FileLoader struct{}

// Load reads the file at location. A file:// prefix is accepted.
func (FileLoader) Load(_ context.Context, location string) ([]byte, error) {
	path := strings.TrimPrefix(location, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Router dispatches s3:// locations to S3 and everything else to the filesystem.
type Router struct {
	File Loader
	S3   Loader
}

// Load implements Loader.
func (r Router) Load(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrUnsupportedLocation)
	}
	if strings.HasPrefix(location, "s3://") {
		if r.S3 == nil {
			return nil, fmt.Errorf("%w: %s (no S3 client configured)", ErrUnsupportedLocation, location)
		}
		return r.S3.Load(ctx, location)
	}
	if r.File == nil {
		return FileLoader{}.Load(ctx, location)
	}
	return r.File.Load(ctx, location)
}
