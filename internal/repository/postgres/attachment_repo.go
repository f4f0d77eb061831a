package postgres

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type attachmentRepository struct {
	db    *gorm.DB
	kind  domain.ParentKind
	table string
}

// NewAttachmentRepository creates an attachment repository for one parent kind.
// Each kind lives in its own table.
func NewAttachmentRepository(db *gorm.DB, kind domain.ParentKind) repository.AttachmentRepository {
	return &attachmentRepository{db: db, kind: kind, table: attachmentTable(kind)}
}

func (r *attachmentRepository) Kind() domain.ParentKind { return r.kind }

func (r *attachmentRepository) scoped(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *attachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	a.ParentKind = r.kind
	err := r.scoped(ctx).Create(a).Error
	return translateErr(err)
}

func (r *attachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	var a domain.Attachment
	if err := r.scoped(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	a.ParentKind = r.kind
	return &a, nil
}

func (r *attachmentRepository) ListByParent(ctx context.Context, parentID string, filter domain.AttachmentFilter) ([]domain.Attachment, error) {
	q := r.scoped(ctx).Omit("blob_data").Where("parent_id = ?", parentID)
	if filter.ContentType != "" {
		q = q.Where(`content_type ILIKE ? ESCAPE '\'`, containsPattern(filter.ContentType))
	}
	if filter.Search != "" {
		q = q.Where(`original_filename ILIKE ? ESCAPE '\'`, containsPattern(filter.Search))
	}
	list := []domain.Attachment{}
	if err := q.Order("created_at DESC").Order("id").Find(&list).Error; err != nil {
		return nil, err
	}
	return r.withKind(list), nil
}

func (r *attachmentRepository) ListMissingURL(ctx context.Context, limit int) ([]domain.Attachment, error) {
	q := r.scoped(ctx).Omit("blob_data").
		Where("download_url IS NULL OR download_url = ''").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	list := []domain.Attachment{}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return r.withKind(list), nil
}

func (r *attachmentRepository) SetDownloadURL(ctx context.Context, id, url string) error {
	res := r.scoped(ctx).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"download_url": url,
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id string) error {
	res := r.scoped(ctx).Where("id = ?", id).Delete(&domain.Attachment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *attachmentRepository) withKind(list []domain.Attachment) []domain.Attachment {
	for i := range list {
		list[i].ParentKind = r.kind
	}
	return list
}
