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

// CampaignInput carries the writable campaign fields. An empty Password on
// update keeps the stored credential.
type CampaignInput struct {
	Name     string
	Subject  string
	Body     string
	Email    string
	Password string
	Mailbox  domain.Mailbox
	Notes    string
}

type CampaignService interface {
	Create(ctx context.Context, ownerID string, in CampaignInput, files []FileSource) (*domain.Campaign, []domain.Attachment, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
	List(ctx context.Context, ownerID string) ([]domain.Campaign, error)
	Update(ctx context.Context, ownerID, id string, in CampaignInput) (*domain.Campaign, error)
	// Delete cascades to the campaign's attachments.
	Delete(ctx context.Context, ownerID, id string) error
	RevealPassword(ctx context.Context, ownerID, id string) (string, error)
}

type campaignService struct {
	repo        repository.CampaignRepository
	attachments AttachmentService
	cipher      *credential.Cipher
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

func NewCampaignService(
	repo repository.CampaignRepository,
	attachments AttachmentService,
	cipher *credential.Cipher,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) CampaignService {
	if log == nil {
		log = zap.NewNop()
	}
	return &campaignService{
		repo:        repo,
		attachments: attachments,
		cipher:      cipher,
		metrics:     metrics,
		log:         log.With(zap.String("service", "campaign")),
	}
}

func (s *campaignService) Create(ctx context.Context, ownerID string, in CampaignInput, files []FileSource) (*domain.Campaign, []domain.Attachment, error) {
	if err := validateMailboxOwner(in.Name, in.Email); err != nil {
		return nil, nil, err
	}
	// Any invalid file fails the request before the campaign exists.
	prepared, err := prepareFiles(s.attachments, files)
	if err != nil {
		return nil, nil, err
	}

	password, err := storePassword(s.cipher, "", in.Password)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      in.Name,
		Subject:   in.Subject,
		Body:      in.Body,
		Email:     in.Email,
		Password:  password,
		Mailbox:   in.Mailbox,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Mailbox.ApplyProviderDefaults()

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("create campaign: %w", err)
	}

	stored, err := storeFiles(ctx, s.attachments, c.ID, prepared)
	if err != nil {
		s.log.Warn("Attachment upload failed, rolling back campaign", zap.String("id", c.ID), zap.Error(err))
		if delErr := s.cascade(context.WithoutCancel(ctx), c.ID); delErr != nil {
			s.log.Error("Rollback of campaign failed", zap.String("id", c.ID), zap.Error(delErr))
		}
		return nil, nil, err
	}

	s.log.Info("Campaign created", zap.String("id", c.ID), zap.String("owner", ownerID), zap.Int("attachments", len(stored)))
	return c, stored, nil
}

func (s *campaignService) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get campaign")
	}
	// Foreign records are indistinguishable from missing ones.
	if c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *campaignService) List(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return list, nil
}

func (s *campaignService) Update(ctx context.Context, ownerID, id string, in CampaignInput) (*domain.Campaign, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := validateMailboxOwner(in.Name, in.Email); err != nil {
		return nil, err
	}
	password, err := storePassword(s.cipher, c.Password, in.Password)
	if err != nil {
		return nil, err
	}

	c.Name = in.Name
	c.Subject = in.Subject
	c.Body = in.Body
	c.Email = in.Email
	c.Password = password
	c.Mailbox = in.Mailbox
	c.Mailbox.ApplyProviderDefaults()
	c.Notes = in.Notes
	c.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, notFound(err, "update campaign")
	}
	return c, nil
}

func (s *campaignService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.cascade(ctx, id); err != nil {
		return err
	}
	s.log.Info("Campaign deleted", zap.String("id", id))
	return nil
}

// cascade removes attachments one by one, then the campaign row together
// with any attachment rows that survived.
func (s *campaignService) cascade(ctx context.Context, id string) error {
	if err := s.attachments.DeleteAllForParent(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, "delete campaign")
	}
	return nil
}

func (s *campaignService) RevealPassword(ctx context.Context, ownerID, id string) (string, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	return revealPassword(s.cipher, s.metrics, s.log, c.ID, c.Password)
}
