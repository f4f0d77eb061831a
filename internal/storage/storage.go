package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found in storage")

// FileStorage defines the interface for object storage operations.
// Put and Delete are atomic at single-object granularity.
type FileStorage interface {
	// PutObject stores size bytes read from body under objectKey.
	PutObject(ctx context.Context, objectKey string, body io.Reader, size int64, contentType string) error

	// GetObject opens the object for reading. The caller closes the reader.
	GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// DeleteObject removes an object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, objectKey string) error
}
