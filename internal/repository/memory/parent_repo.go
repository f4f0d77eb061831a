package memory

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

type campaignRepo struct {
	s *Store
}

func (r *campaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *campaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *campaignRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.Campaign{}
	for _, c := range r.s.campaigns {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *campaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.campaigns[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	r.s.campaigns[c.ID] = *c
	return nil
}

func (r *campaignRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.campaigns[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.deleteAttachmentsOf(domain.KindCampaign, id)
	r.s.detachEntriesFrom(id)
	delete(r.s.campaigns, id)
	return nil
}

type submissionRepo struct {
	s *Store
}

func (r *submissionRepo) Create(ctx context.Context, sub *domain.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt, sub.UpdatedAt = now, now
	r.s.submissions[sub.ID] = *sub
	return nil
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (r *submissionRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.Submission{}
	for _, sub := range r.s.submissions {
		if sub.OwnerID == ownerID {
			out = append(out, sub)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *submissionRepo) Update(ctx context.Context, sub *domain.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.submissions[sub.ID]
	if !ok {
		return repository.ErrNotFound
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	r.s.submissions[sub.ID] = *sub
	return nil
}

func (r *submissionRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.submissions[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.deleteAttachmentsOf(domain.KindSubmission, id)
	delete(r.s.submissions, id)
	return nil
}
