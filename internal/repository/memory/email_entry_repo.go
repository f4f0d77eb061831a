package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
)

type emailEntryRepo struct {
	s *Store
}

// taken must be called with the lock held.
func (r *emailEntryRepo) taken(ownerID, email string) bool {
	for _, e := range r.s.entries {
		if e.OwnerID == ownerID && e.Email == email {
			return true
		}
	}
	return false
}

func prepareEntry(e *domain.EmailEntry, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Email = domain.NormalizeEmail(e.Email)
	e.CreatedAt, e.UpdatedAt = now, now
	if e.SignupDate.IsZero() {
		e.SignupDate = now.Truncate(24 * time.Hour)
	}
}

func (r *emailEntryRepo) Create(ctx context.Context, e *domain.EmailEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prepareEntry(e, time.Now().UTC())
	if r.taken(e.OwnerID, e.Email) {
		return repository.ErrDuplicateKey
	}
	r.s.entries[e.ID] = cloneEntry(*e)
	return nil
}

func (r *emailEntryRepo) CreateMany(ctx context.Context, entries []domain.EmailEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	seen := map[string]bool{}
	for i := range entries {
		prepareEntry(&entries[i], now)
		key := entries[i].OwnerID + "\x00" + entries[i].Email
		if seen[key] || r.taken(entries[i].OwnerID, entries[i].Email) {
			return repository.ErrDuplicateKey
		}
		seen[key] = true
	}
	for _, e := range entries {
		r.s.entries[e.ID] = cloneEntry(e)
	}
	return nil
}

func (r *emailEntryRepo) GetByID(ctx context.Context, id string) (*domain.EmailEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (r *emailEntryRepo) ListByOwner(ctx context.Context, ownerID string, filter domain.EmailEntryFilter) ([]domain.EmailEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []domain.EmailEntry{}
	for _, e := range r.s.entries {
		if e.OwnerID == ownerID && filter.Matches(&e) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SignupDate.Equal(out[j].SignupDate) {
			return out[i].SignupDate.Before(out[j].SignupDate)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *emailEntryRepo) ExistingEmails(ctx context.Context, ownerID string, emails []string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []string{}
	for _, email := range emails {
		if r.taken(ownerID, domain.NormalizeEmail(email)) {
			out = append(out, email)
		}
	}
	return out, nil
}

func (r *emailEntryRepo) Update(ctx context.Context, e *domain.EmailEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.entries[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	e.Email = domain.NormalizeEmail(e.Email)
	if e.Email != existing.Email && r.taken(existing.OwnerID, e.Email) {
		return repository.ErrDuplicateKey
	}
	e.OwnerID = existing.OwnerID
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	r.s.entries[e.ID] = cloneEntry(*e)
	return nil
}

func (r *emailEntryRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.entries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.entries, id)
	return nil
}

func cloneEntry(e domain.EmailEntry) domain.EmailEntry {
	for _, p := range []**string{&e.CampaignID, &e.DayOne, &e.DayTwo, &e.DayFour, &e.DayFive, &e.DaySeven, &e.DayNine} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return e
}
