package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alcyxob/emstore/internal/credential"
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/monitoring"
	"alcyxob/emstore/internal/repository"
)

// SubmissionInput carries the writable fields of an inbound submission. An empty Password on
// update keeps the stored credential.
type SubmissionInput struct {
	Name        string
	Email       string
	Password    string
	Mailbox     domain.Mailbox
	IsProcessed bool
	Notes       string
}

type SubmissionService interface {
	Create(ctx context.Context, ownerID string, in SubmissionInput, files []FileSource) (*domain.Submission, []domain.Attachment, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Submission, error)
	List(ctx context.Context, ownerID string) ([]domain.Submission, error)
	Update(ctx context.Context, ownerID, id string, in SubmissionInput) (*domain.Submission, error)
	// Delete cascades to the submission's attachments.
	Delete(ctx context.Context, ownerID, id string) error
	RevealPassword(ctx context.Context, ownerID, id string) (string, error)
}

type submissionService struct {
	repo        repository.SubmissionRepository
	attachments AttachmentService
	cipher      *credential.Cipher
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

func NewSubmissionService(
	repo repository.SubmissionRepository,
	attachments AttachmentService,
	cipher *credential.Cipher,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) SubmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &submissionService{
		repo:        repo,
		attachments: attachments,
		cipher:      cipher,
		metrics:     metrics,
		log:         log.With(zap.String("service", "submission")),
	}
}

func (s *submissionService) Create(ctx context.Context, ownerID string, in SubmissionInput, files []FileSource) (*domain.Submission, []domain.Attachment, error) {
	if err := validateMailboxOwner(in.Name, in.Email); err != nil {
		return nil, nil, err
	}
	// Any invalid file fails the request before the submission exists.
	prepared, err := prepareFiles(s.attachments, files)
	if err != nil {
		return nil, nil, err
	}

	password, err := storePassword(s.cipher, "", in.Password)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	sub := &domain.Submission{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        in.Name,
		Email:       in.Email,
		Password:    password,
		Mailbox:     in.Mailbox,
		IsProcessed: in.IsProcessed,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sub.Mailbox.ApplyProviderDefaults()

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, nil, fmt.Errorf("create submission: %w", err)
	}

	stored, err := storeFiles(ctx, s.attachments, sub.ID, prepared)
	if err != nil {
		s.log.Warn("Attachment upload failed, rolling back submission", zap.String("id", sub.ID), zap.Error(err))
		if delErr := s.cascade(context.WithoutCancel(ctx), sub.ID); delErr != nil {
			s.log.Error("Rollback of submission failed", zap.String("id", sub.ID), zap.Error(delErr))
		}
		return nil, nil, err
	}

	s.log.Info("Submission created", zap.String("id", sub.ID), zap.String("owner", ownerID), zap.Int("attachments", len(stored)))
	return sub, stored, nil
}

func (s *submissionService) Get(ctx context.Context, ownerID, id string) (*domain.Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get submission")
	}
	// Foreign records are indistinguishable from missing ones.
	if sub.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (s *submissionService) List(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return list, nil
}

func (s *submissionService) Update(ctx context.Context, ownerID, id string, in SubmissionInput) (*domain.Submission, error) {
	sub, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := validateMailboxOwner(in.Name, in.Email); err != nil {
		return nil, err
	}
	password, err := storePassword(s.cipher, sub.Password, in.Password)
	if err != nil {
		return nil, err
	}

	sub.Name = in.Name
	sub.Email = in.Email
	sub.Password = password
	sub.Mailbox = in.Mailbox
	sub.Mailbox.ApplyProviderDefaults()
	sub.IsProcessed = in.IsProcessed
	sub.Notes = in.Notes
	sub.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, notFound(err, "update submission")
	}
	return sub, nil
}

func (s *submissionService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.cascade(ctx, id); err != nil {
		return err
	}
	s.log.Info("Submission deleted", zap.String("id", id))
	return nil
}

// cascade removes attachments one by one, then the submission row together
// with any attachment rows that survived.
func (s *submissionService) cascade(ctx context.Context, id string) error {
	if err := s.attachments.DeleteAllForParent(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, "delete submission")
	}
	return nil
}

func (s *submissionService) RevealPassword(ctx context.Context, ownerID, id string) (string, error) {
	sub, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	return revealPassword(s.cipher, s.metrics, s.log, sub.ID, sub.Password)
}
