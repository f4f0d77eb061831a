package postgres

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entryBatchSize = 500

type emailEntryRepository struct {
	db *gorm.DB
}

// NewEmailEntryRepository creates an email entry repository backed by PostgreSQL.
func NewEmailEntryRepository(db *gorm.DB) repository.EmailEntryRepository {
	return &emailEntryRepository{db: db}
}

func prepareEntry(e *domain.EmailEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Email = domain.NormalizeEmail(e.Email)
	if e.SignupDate.IsZero() {
		e.SignupDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
}

func (r *emailEntryRepository) Create(ctx context.Context, e *domain.EmailEntry) error {
	prepareEntry(e)
	return translateErr(r.db.WithContext(ctx).Create(e).Error)
}

func (r *emailEntryRepository) CreateMany(ctx context.Context, entries []domain.EmailEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		prepareEntry(&entries[i])
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&entries, entryBatchSize).Error
	})
	return translateErr(err)
}

func (r *emailEntryRepository) GetByID(ctx context.Context, id string) (*domain.EmailEntry, error) {
	var e domain.EmailEntry
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &e, nil
}

func (r *emailEntryRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.EmailEntryFilter) ([]domain.EmailEntry, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if filter.CampaignID != "" {
		q = q.Where("campaign_id = ?", filter.CampaignID)
	}
	entries := []domain.EmailEntry{}
	err := q.Order("signup_date").Order("created_at").Order("id").Find(&entries).Error
	return entries, err
}

func (r *emailEntryRepository) ExistingEmails(ctx context.Context, ownerID string, emails []string) ([]string, error) {
	out := []string{}
	if len(emails) == 0 {
		return out, nil
	}
	normalized := make([]string, len(emails))
	for i, e := range emails {
		normalized[i] = domain.NormalizeEmail(e)
	}
	err := r.db.WithContext(ctx).Model(&domain.EmailEntry{}).
		Where("owner_id = ? AND email IN ?", ownerID, normalized).
		Pluck("email", &out).Error
	return out, err
}

func (r *emailEntryRepository) Update(ctx context.Context, e *domain.EmailEntry) error {
	e.Email = domain.NormalizeEmail(e.Email)
	res := r.db.WithContext(ctx).Model(e).Omit("id", "owner_id", "created_at").Select("*").Updates(e)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *emailEntryRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.EmailEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
