package repository

import (
	"alcyxob/emstore/internal/domain"
	"context"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrDuplicateKey = RepositoryError("duplicate key")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// CampaignRepository defines the interface for interacting with campaign rows.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	// Delete removes the campaign and, in the same transaction, every attachment
	// row still referencing it. Email entries of the campaign are kept with
	// their campaign cleared.
	Delete(ctx context.Context, id string) error
}

// SubmissionRepository defines the interface for interacting with inbound submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Submission, error)
	Update(ctx context.Context, submission *domain.Submission) error
	// Delete removes the submission and its remaining attachment rows atomically.
	Delete(ctx context.Context, id string) error
}

// AttachmentRepository persists attachment metadata for one parent kind.
type AttachmentRepository interface {
	Kind() domain.ParentKind
	Create(ctx context.Context, attachment *domain.Attachment) error
	// GetByID returns the full row, including inline bytes when present.
	GetByID(ctx context.Context, id string) (*domain.Attachment, error)
	// ListByParent returns metadata only (no inline bytes), newest first.
	ListByParent(ctx context.Context, parentID string, filter domain.AttachmentFilter) ([]domain.Attachment, error)
	// ListMissingURL returns up to limit rows whose download URL has not been resolved yet.
	ListMissingURL(ctx context.Context, limit int) ([]domain.Attachment, error)
	// SetDownloadURL is a metadata-only update; it never touches the stored bytes.
	SetDownloadURL(ctx context.Context, id, url string) error
	Delete(ctx context.Context, id string) error
}

// EmailEntryRepository persists subscriber entries. Emails are unique per owner.
type EmailEntryRepository interface {
	// Create returns ErrDuplicateKey when the owner already has the email.
	Create(ctx context.Context, entry *domain.EmailEntry) error
	// CreateMany inserts all entries or none.
	CreateMany(ctx context.Context, entries []domain.EmailEntry) error
	GetByID(ctx context.Context, id string) (*domain.EmailEntry, error)
	// ListByOwner returns entries oldest signup first.
	ListByOwner(ctx context.Context, ownerID string, filter domain.EmailEntryFilter) ([]domain.EmailEntry, error)
	// ExistingEmails returns which of emails the owner already has.
	ExistingEmails(ctx context.Context, ownerID string, emails []string) ([]string, error)
	Update(ctx context.Context, entry *domain.EmailEntry) error
	Delete(ctx context.Context, id string) error
}

// Pinger is implemented by backends that can report their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
