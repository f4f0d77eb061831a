package postgres

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository creates a submission repository backed by PostgreSQL.
func NewSubmissionRepository(db *gorm.DB) repository.SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, s *domain.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	var s domain.Submission
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *submissionRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	submissions := []domain.Submission{}
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&submissions).Error
	return submissions, err
}

func (r *submissionRepository) Update(ctx context.Context, s *domain.Submission) error {
	res := r.db.WithContext(ctx).Model(s).Omit("id", "owner_id", "created_at").Select("*").Updates(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *submissionRepository) Delete(ctx context.Context, id string) error {
	return deleteParent(ctx, r.db, &domain.Submission{}, domain.KindSubmission, id)
}
