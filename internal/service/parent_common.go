package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/monitoring"
)

// prepareFiles validates every file before anything is written.
func prepareFiles(attachments AttachmentService, files []FileSource) ([]*PreparedFile, error) {
	prepared := make([]*PreparedFile, 0, len(files))
	for _, f := range files {
		p, err := attachments.Prepare(f)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}
	return prepared, nil
}

// storeFiles writes prepared files for a freshly created parent.
func storeFiles(ctx context.Context, attachments AttachmentService, parentID string, files []*PreparedFile) ([]domain.Attachment, error) {
	stored := make([]domain.Attachment, 0, len(files))
	for _, f := range files {
		a, err := attachments.Store(ctx, parentID, f)
		if err != nil {
			return nil, err
		}
		stored = append(stored, *a)
	}
	return stored, nil
}

func validateMailboxOwner(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return invalid("email is not a valid address")
	}
	return nil
}

// storePassword encrypts a new password; an empty value keeps current.
func storePassword(cipher *credential.Cipher, current, incoming string) (string, error) {
	if incoming == "" {
		return current, nil
	}
	stored, err := cipher.Store(incoming)
	if err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return stored, nil
}

// revealPassword decrypts for explicit display. Undecryptable values surface
// as ErrDecryptionUnavailable and are never logged.
func revealPassword(cipher *credential.Cipher, metrics *monitoring.Metrics, log *zap.Logger, id, stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	plain, err := cipher.Decrypt(stored)
	metrics.RecordDecryption(err == nil)
	if err != nil {
		log.Warn("Stored credential could not be decrypted", zap.String("id", id))
		return "", ErrDecryptionUnavailable
	}
	return plain, nil
}
