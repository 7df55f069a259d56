// Package storage fetches uploaded statement files from a bucket or disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrObjectNotFound is returned when no file exists at the path.
	ErrObjectNotFound = errors.New("object not found")
	// ErrTooLarge is returned when a file exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrInvalidPath is returned for empty paths or paths escaping the root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// FileStore returns the bytes stored at a path.
type FileStore interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// readLimited reads all of r, failing with ErrTooLarge past max bytes.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, max)
	}
	return data, nil
}
