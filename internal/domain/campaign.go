package domain

import "time"

// Campaign is an email campaign together with the mailbox configuration used to send it.
// Password always holds ciphertext once the record has been written.
type Campaign struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	OwnerID   string    `gorm:"type:varchar(36);index" bson:"ownerId" json:"ownerId"` // User who created the campaign
	Name      string    `gorm:"type:varchar(255);not null" bson:"name" json:"name"`
	Subject   string    `gorm:"type:varchar(255)" bson:"subject" json:"subject"`
	Body      string    `gorm:"type:text" bson:"body" json:"body"`
	Email     string    `gorm:"type:varchar(255);not null" bson:"email" json:"email"`
	Password  string    `gorm:"type:varchar(1024)" bson:"password,omitempty" json:"-"`
	Mailbox   Mailbox   `gorm:"embedded" bson:"mailbox" json:"mailbox"`
	Notes     string    `gorm:"type:text" bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
