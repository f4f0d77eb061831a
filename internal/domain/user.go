package domain

import "time"

// User is an account that owns campaigns and submissions.
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	Name         string    `gorm:"type:varchar(255)" bson:"name" json:"name"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" bson:"email" json:"email"` // Should be unique
	PasswordHash string    `gorm:"type:varchar(255);not null" bson:"passwordHash" json:"-"`          // Never expose this via JSON
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
