package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
)

// ErrDuplicateEntry is returned when the owner already has an entry for the email.
var ErrDuplicateEntry = errors.New("email entry already exists")

// DuplicateEmailsError rejects a bulk request that names the same email twice.
type DuplicateEmailsError struct {
	Emails []string
}

func (e *DuplicateEmailsError) Error() string {
	return fmt.Sprintf("duplicate emails in request: %s", strings.Join(e.Emails, ", "))
}

func (e *DuplicateEmailsError) Unwrap() error { return ErrInvalidInput }

// EmailEntryInput carries the writable fields of an entry. The follow-up
// status fields are not writable through it.
type EmailEntryInput struct {
	Name        string
	Email       string
	ClientEmail string
	CampaignID  *string
	Unsubscribe bool
}

// BulkResult reports a bulk create. Emails the owner already has are skipped, not failed.
type BulkResult struct {
	Created    []domain.EmailEntry
	Duplicates []string
	Total      int
}

type EmailEntryService interface {
	Create(ctx context.Context, ownerID string, in EmailEntryInput) (*domain.EmailEntry, error)
	// CreateBulk validates every entry first; nothing is written if one is invalid.
	// campaignID, when set, overrides the campaign of every entry.
	CreateBulk(ctx context.Context, ownerID string, campaignID *string, in []EmailEntryInput) (*BulkResult, error)
	Get(ctx context.Context, ownerID, id string) (*domain.EmailEntry, error)
	List(ctx context.Context, ownerID string, filter domain.EmailEntryFilter) ([]domain.EmailEntry, error)
	Update(ctx context.Context, ownerID, id string, in EmailEntryInput) (*domain.EmailEntry, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type emailEntryService struct {
	repo      repository.EmailEntryRepository
	campaigns repository.CampaignRepository
	log       *zap.Logger
}

func NewEmailEntryService(repo repository.EmailEntryRepository, campaigns repository.CampaignRepository, log *zap.Logger) EmailEntryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &emailEntryService{repo: repo, campaigns: campaigns, log: log.With(zap.String("service", "email_entry"))}
}

func (s *emailEntryService) Create(ctx context.Context, ownerID string, in EmailEntryInput) (*domain.EmailEntry, error) {
	in, err := normalizeEntryInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkCampaign(ctx, ownerID, in.CampaignID); err != nil {
		return nil, err
	}

	e := &domain.EmailEntry{OwnerID: ownerID}
	applyEntryInput(e, in)
	if err := s.repo.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, in.Email)
		}
		return nil, fmt.Errorf("create email entry: %w", err)
	}
	s.log.Info("Email entry created", zap.String("id", e.ID), zap.String("owner", ownerID))
	return e, nil
}

func (s *emailEntryService) CreateBulk(ctx context.Context, ownerID string, campaignID *string, in []EmailEntryInput) (*BulkResult, error) {
	if len(in) == 0 {
		return nil, invalid("at least one entry is required")
	}

	normalized := make([]EmailEntryInput, len(in))
	seen := make(map[string]bool, len(in))
	var repeated []string
	for i, raw := range in {
		if campaignID != nil {
			raw.CampaignID = campaignID
		}
		n, err := normalizeEntryInput(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[n.Email] {
			repeated = append(repeated, n.Email)
		}
		seen[n.Email] = true
		normalized[i] = n
	}
	if len(repeated) > 0 {
		return nil, &DuplicateEmailsError{Emails: repeated}
	}

	checked := map[string]bool{}
	for _, n := range normalized {
		if n.CampaignID == nil || checked[*n.CampaignID] {
			continue
		}
		if err := s.checkCampaign(ctx, ownerID, n.CampaignID); err != nil {
			return nil, err
		}
		checked[*n.CampaignID] = true
	}

	emails := make([]string, len(normalized))
	for i, n := range normalized {
		emails[i] = n.Email
	}
	existing, err := s.repo.ExistingEmails(ctx, ownerID, emails)
	if err != nil {
		return nil, fmt.Errorf("check existing emails: %w", err)
	}
	skip := make(map[string]bool, len(existing))
	for _, e := range existing {
		skip[e] = true
	}

	res := &BulkResult{Created: []domain.EmailEntry{}, Duplicates: []string{}, Total: len(normalized)}
	for _, n := range normalized {
		if skip[n.Email] {
			res.Duplicates = append(res.Duplicates, n.Email)
			continue
		}
		e := domain.EmailEntry{OwnerID: ownerID}
		applyEntryInput(&e, n)
		res.Created = append(res.Created, e)
	}

	if err := s.repo.CreateMany(ctx, res.Created); err != nil {
		// Another request inserted one of these emails after the existence check.
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrDuplicateEntry
		}
		return nil, fmt.Errorf("create email entries: %w", err)
	}
	s.log.Info("Bulk email entries processed",
		zap.String("owner", ownerID), zap.Int("created", len(res.Created)), zap.Int("duplicates", len(res.Duplicates)))
	return res, nil
}

func (s *emailEntryService) Get(ctx context.Context, ownerID, id string) (*domain.EmailEntry, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get email entry")
	}
	if e.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *emailEntryService) List(ctx context.Context, ownerID string, filter domain.EmailEntryFilter) ([]domain.EmailEntry, error) {
	list, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list email entries: %w", err)
	}
	return list, nil
}

func (s *emailEntryService) Update(ctx context.Context, ownerID, id string, in EmailEntryInput) (*domain.EmailEntry, error) {
	e, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	in, err = normalizeEntryInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkCampaign(ctx, ownerID, in.CampaignID); err != nil {
		return nil, err
	}

	applyEntryInput(e, in)
	if err := s.repo.Update(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, in.Email)
		}
		return nil, notFound(err, "update email entry")
	}
	return e, nil
}

func (s *emailEntryService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err, "delete email entry")
	}
	return nil
}

// checkCampaign rejects links to campaigns the owner cannot see.
func (s *emailEntryService) checkCampaign(ctx context.Context, ownerID string, campaignID *string) error {
	if campaignID == nil {
		return nil
	}
	c, err := s.campaigns.GetByID(ctx, *campaignID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && c.OwnerID != ownerID) {
		return invalid("campaign " + *campaignID + " does not exist")
	}
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	return nil
}

func normalizeEntryInput(in EmailEntryInput) (EmailEntryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = domain.NormalizeEmail(in.Email)
	in.ClientEmail = strings.TrimSpace(in.ClientEmail)
	if in.Name == "" {
		return in, invalid("name is required")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return in, invalid(fmt.Sprintf("email %q is not a valid address", in.Email))
	}
	if in.ClientEmail != "" {
		if _, err := mail.ParseAddress(in.ClientEmail); err != nil {
			return in, invalid(fmt.Sprintf("client email %q is not a valid address", in.ClientEmail))
		}
	}
	if in.CampaignID != nil && strings.TrimSpace(*in.CampaignID) == "" {
		in.CampaignID = nil
	}
	return in, nil
}

func applyEntryInput(e *domain.EmailEntry, in EmailEntryInput) {
	e.Name = in.Name
	e.Email = in.Email
	e.ClientEmail = in.ClientEmail
	e.CampaignID = in.CampaignID
	e.Unsubscribe = in.Unsubscribe
}
