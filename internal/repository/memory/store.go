// Package memory is an in-process metadata store. It backs local development
// (database.driver=memory) and the service tests.
package memory

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"sync"
)

// Store keeps every table in maps guarded by a single lock, so parent deletes
// cascade to attachment rows atomically.
type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	campaigns   map[string]domain.Campaign
	submissions map[string]domain.Submission
	attachments map[domain.ParentKind]map[string]domain.Attachment
	entries     map[string]domain.EmailEntry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		campaigns:   make(map[string]domain.Campaign),
		submissions: make(map[string]domain.Submission),
		attachments: map[domain.ParentKind]map[string]domain.Attachment{
			domain.KindCampaign:   make(map[string]domain.Attachment),
			domain.KindSubmission: make(map[string]domain.Attachment),
		},
		entries: make(map[string]domain.EmailEntry),
	}
}

func (s *Store) Users() repository.UserRepository              { return &userRepo{s: s} }
func (s *Store) Campaigns() repository.CampaignRepository      { return &campaignRepo{s: s} }
func (s *Store) Submissions() repository.SubmissionRepository  { return &submissionRepo{s: s} }
func (s *Store) EmailEntries() repository.EmailEntryRepository { return &emailEntryRepo{s: s} }

// Attachments returns the attachment table for the given parent kind.
func (s *Store) Attachments(kind domain.ParentKind) repository.AttachmentRepository {
	return &attachmentRepo{s: s, kind: kind}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// deleteAttachmentsOf must be called with s.mu held for writing.
func (s *Store) deleteAttachmentsOf(kind domain.ParentKind, parentID string) {
	for id, a := range s.attachments[kind] {
		if a.ParentID == parentID {
			delete(s.attachments[kind], id)
		}
	}
}

// detachEntriesFrom must be called with s.mu held for writing.
func (s *Store) detachEntriesFrom(campaignID string) {
	for id, e := range s.entries {
		if e.CampaignID != nil && *e.CampaignID == campaignID {
			e.CampaignID = nil
			s.entries[id] = e
		}
	}
}
