package memory

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"bytes"
	"context"
	"sort"
	"time"
)

type attachmentRepo struct {
	s    *Store
	kind domain.ParentKind
}

func (r *attachmentRepo) Kind() domain.ParentKind { return r.kind }

func (r *attachmentRepo) table() map[string]domain.Attachment {
	return r.s.attachments[r.kind]
}

func (r *attachmentRepo) Create(ctx context.Context, a *domain.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.table()[a.ID]; exists {
		return repository.ErrDuplicateKey
	}
	a.ParentKind = r.kind
	r.table()[a.ID] = clone(*a, true)
	return nil
}

func (r *attachmentRepo) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.table()[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a = clone(a, true)
	return &a, nil
}

func (r *attachmentRepo) ListByParent(ctx context.Context, parentID string, filter domain.AttachmentFilter) ([]domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.Attachment{}
	for _, a := range r.table() {
		if a.ParentID == parentID && filter.Matches(&a) {
			out = append(out, clone(a, false))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *attachmentRepo) ListMissingURL(ctx context.Context, limit int) ([]domain.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.Attachment{}
	for _, a := range r.table() {
		if !a.HasURL() {
			out = append(out, clone(a, false))
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *attachmentRepo) SetDownloadURL(ctx context.Context, id, url string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.table()[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.DownloadURL = &url
	a.UpdatedAt = time.Now().UTC()
	r.table()[id] = a
	return nil
}

func (r *attachmentRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.table()[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.table(), id)
	return nil
}

func clone(a domain.Attachment, withData bool) domain.Attachment {
	if withData && a.BlobData != nil {
		a.BlobData = bytes.Clone(a.BlobData)
	} else {
		a.BlobData = nil
	}
	if a.DownloadURL != nil {
		u := *a.DownloadURL
		a.DownloadURL = &u
	}
	return a
}

func sortNewestFirst(list []domain.Attachment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
