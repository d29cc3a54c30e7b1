package models

import "time"

// User represents an application user. Sub is the stable subject used as the
// owner reference on notes and attachments.
type User struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	Sub          string     `bson:"sub" json:"sub"`
	Email        string     `bson:"email" json:"email"`
	Name         string     `bson:"name" json:"name"`
	PasswordHash string     `bson:"passwordHash,omitempty" json:"-"`
	VerifiedAt   *time.Time `bson:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`
	CreatedAt    time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Verified reports whether the user confirmed their email address.
func (u *User) Verified() bool { return u.VerifiedAt != nil }
