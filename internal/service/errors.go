package service

import (
	"errors"
	"fmt"

	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/repository"
)

// --- Error Definitions ---
var (
	ErrPayloadTooLarge      = errors.New("attachment exceeds the maximum upload size")
	ErrUnsupportedMediaType = errors.New("attachment content type is not allowed")
	ErrStorageUnavailable   = errors.New("attachment storage is unavailable")
	ErrURLResolution        = errors.New("attachment download URL could not be resolved")

	// ErrDecryptionUnavailable is returned when a stored credential cannot be decrypted with the current key.
	ErrDecryptionUnavailable = credential.ErrDecryptionUnavailable

	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// notFound maps the repository's miss to the service sentinel and wraps everything else.
func notFound(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
