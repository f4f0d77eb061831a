package domain

import (
	"path"
	"strings"
	"time"
)

// ParentKind identifies which kind of record owns an attachment.
type ParentKind string

const (
	KindCampaign   ParentKind = "campaign"
	KindSubmission ParentKind = "submission"
)

// Valid reports whether k is one of the known parent kinds.
func (k ParentKind) Valid() bool {
	return k == KindCampaign || k == KindSubmission
}

// ParseParentKind accepts both the singular kind and the plural route segment ("campaigns").
func ParseParentKind(s string) (ParentKind, bool) {
	k := ParentKind(strings.TrimSuffix(strings.ToLower(s), "s"))
	return k, k.Valid()
}

// Attachment is a file attached to a campaign or an inbound submission.
// Exactly one of BlobKey and BlobData is populated, depending on the storage
// backend the deployment runs with.
type Attachment struct {
	ID               string     `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	ParentKind       ParentKind `gorm:"-" bson:"-" json:"parentKind"` // Set by the repository from the table it reads
	ParentID         string     `gorm:"type:varchar(36);index;not null" bson:"parentId" json:"parentId"`
	BlobKey          string     `gorm:"type:varchar(500)" bson:"blobKey,omitempty" json:"-"` // Object key in the blob store
	BlobData         []byte     `gorm:"type:bytea" bson:"blobData,omitempty" json:"-"`       // Inline bytes (inline backend only)
	OriginalFilename string     `gorm:"type:varchar(255);not null" bson:"originalFilename" json:"originalFilename"`
	ContentType      string     `gorm:"type:varchar(100);not null" bson:"contentType" json:"contentType"`
	SizeBytes        int64      `gorm:"not null" bson:"sizeBytes" json:"sizeBytes"`
	DownloadURL      *string    `gorm:"type:varchar(500)" bson:"downloadUrl,omitempty" json:"downloadUrl"`
	CreatedAt        time.Time  `gorm:"not null" bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"not null" bson:"updatedAt" json:"updatedAt"`
}

// Inline reports whether the attachment bytes live in the metadata row.
func (a *Attachment) Inline() bool {
	return a.BlobKey == ""
}

// HasURL reports whether a download URL has already been resolved and cached.
func (a *Attachment) HasURL() bool {
	return a.DownloadURL != nil && *a.DownloadURL != ""
}

// Extension returns the lowercased extension of the original filename, including the dot.
func (a *Attachment) Extension() string {
	return strings.ToLower(path.Ext(a.OriginalFilename))
}

// AttachmentFilter narrows attachment listings.
type AttachmentFilter struct {
	ContentType string // substring match, case-insensitive
	Search      string // substring match on the original filename, case-insensitive
}

// Matches applies the filter to a single attachment.
func (f AttachmentFilter) Matches(a *Attachment) bool {
	if f.ContentType != "" && !strings.Contains(strings.ToLower(a.ContentType), strings.ToLower(f.ContentType)) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(a.OriginalFilename), strings.ToLower(f.Search)) {
		return false
	}
	return true
}
