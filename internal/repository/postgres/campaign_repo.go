package postgres

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type campaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a campaign repository backed by PostgreSQL.
func NewCampaignRepository(db *gorm.DB) repository.CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *campaignRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	campaigns := []domain.Campaign{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&campaigns).Error
	return campaigns, err
}

func (r *campaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	res := r.db.WithContext(ctx).Model(c).Omit("id", "owner_id", "created_at").Select("*").Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *campaignRepository) Delete(ctx context.Context, id string) error {
	return deleteParent(ctx, r.db, &domain.Campaign{}, domain.KindCampaign, id, func(tx *gorm.DB) error {
		return tx.Model(&domain.EmailEntry{}).Where("campaign_id = ?", id).Update("campaign_id", nil).Error
	})
}

// deleteParent removes the parent row and the attachment rows still pointing at it in one transaction.
// Each extra step runs inside the same transaction before the parent row goes.
func deleteParent(ctx context.Context, db *gorm.DB, model interface{}, kind domain.ParentKind, id string, extra ...func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range extra {
			if err := step(tx); err != nil {
				return err
			}
		}
		if err := tx.Table(attachmentTable(kind)).Where("parent_id = ?", id).Delete(&domain.Attachment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}
