package domain

import (
	"strings"
	"time"
)

// EmailEntry is a subscriber signed up through a submission form. The Day*
// fields record the status of each follow-up mail and are written by the
// sending side only.
type EmailEntry struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	OwnerID     string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_email_entries_owner_email" bson:"ownerId" json:"ownerId"`
	CampaignID  *string   `gorm:"type:varchar(36);index" bson:"campaignId,omitempty" json:"campaignId"` // Cleared when the campaign is deleted
	Name        string    `gorm:"type:text;not null" bson:"name" json:"name"`
	Email       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_email_entries_owner_email" bson:"email" json:"email"` // Lowercased
	ClientEmail string    `gorm:"type:varchar(255)" bson:"clientEmail,omitempty" json:"clientEmail,omitempty"`
	SignupDate  time.Time `gorm:"type:date;not null" bson:"signupDate" json:"signupDate"`
	DayOne      *string   `gorm:"type:text" bson:"dayOne,omitempty" json:"dayOne"`
	DayTwo      *string   `gorm:"type:text" bson:"dayTwo,omitempty" json:"dayTwo"`
	DayFour     *string   `gorm:"type:text" bson:"dayFour,omitempty" json:"dayFour"`
	DayFive     *string   `gorm:"type:text" bson:"dayFive,omitempty" json:"dayFive"`
	DaySeven    *string   `gorm:"type:text" bson:"daySeven,omitempty" json:"daySeven"`
	DayNine     *string   `gorm:"type:text" bson:"dayNine,omitempty" json:"dayNine"`
	Unsubscribe bool      `gorm:"not null;default:false" bson:"unsubscribe" json:"unsubscribe"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NormalizeEmail is the form entry emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailEntryFilter narrows entry listings. An empty CampaignID lists every entry of the owner.
type EmailEntryFilter struct {
	CampaignID string
}

// Matches applies the filter to a single entry.
func (f EmailEntryFilter) Matches(e *EmailEntry) bool {
	if f.CampaignID == "" {
		return true
	}
	return e.CampaignID != nil && *e.CampaignID == f.CampaignID
}
