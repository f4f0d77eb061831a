package domain

import "time"

// Submission is an inbound mailbox configuration submitted through the unread-email form.
type Submission struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	OwnerID     string    `gorm:"type:varchar(36);index" bson:"ownerId" json:"ownerId"`
	Name        string    `gorm:"type:varchar(255);not null" bson:"name" json:"name"`
	Email       string    `gorm:"type:varchar(255);not null" bson:"email" json:"email"`
	Password    string    `gorm:"type:varchar(1024)" bson:"password,omitempty" json:"-"`
	Mailbox     Mailbox   `gorm:"embedded" bson:"mailbox" json:"mailbox"`
	IsProcessed bool      `gorm:"not null;default:false" bson:"isProcessed" json:"isProcessed"`
	Notes       string    `gorm:"type:text" bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}
