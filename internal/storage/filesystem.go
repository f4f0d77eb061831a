package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// filesystemStorage keeps objects as files below a root directory.
// Object keys map to slash-separated relative paths.
type filesystemStorage struct {
	root string
}

// NewFilesystemStorage creates the root directory if needed and returns a FileStorage backed by it.
func NewFilesystemStorage(root string) (FileStorage, error) {
	if root == "" {
		return nil, errors.New("filesystem storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &filesystemStorage{root: abs}, nil
}

func (s *filesystemStorage) path(objectKey string) (string, error) {
	rel := filepath.FromSlash(objectKey)
	if objectKey == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return filepath.Join(s.root, rel), nil
}

// PutObject writes to a temporary file in the target directory and renames it
// into place, so readers never observe a partially written object.
func (s *filesystemStorage) PutObject(ctx context.Context, objectKey string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write object %q: %w", objectKey, err)
	}
	if written != size {
		return fmt.Errorf("write object %q: wrote %d bytes, expected %d", objectKey, written, size)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *filesystemStorage) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	target, err := s.path(objectKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *filesystemStorage) DeleteObject(ctx context.Context, objectKey string) error {
	target, err := s.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", objectKey, err)
	}
	return nil
}
