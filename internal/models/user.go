package models

import (
	"time"
)

// UserProfile is keyed by the auth provider's uid.
type UserProfile struct {
	ID            string    `bson:"_id" json:"id"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
	DisplayName   string    `bson:"display_name" json:"display_name"`
	Username      string    `bson:"username,omitempty" json:"username,omitempty"`
	UsernameLower string    `bson:"username_lower,omitempty" json:"-"`
	PhotoURL      string    `bson:"photo_url,omitempty" json:"photo_url,omitempty"`
	Bio           string    `bson:"bio,omitempty" json:"bio,omitempty"`
	Location      string    `bson:"location,omitempty" json:"location,omitempty"`
	Phone         string    `bson:"phone,omitempty" json:"-"`

	OnboardingCompleted bool `bson:"onboarding_completed" json:"onboarding_completed"`
}

// UsernameRecord is the username -> uid index entry. The id is the lowercased username.
type UsernameRecord struct {
	Username  string    `bson:"_id" json:"username"`
	UID       string    `bson:"uid" json:"uid"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// PublicProfile is the display identity other users see.
type PublicProfile struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Public strips private fields.
func (p *UserProfile) Public() PublicProfile {
	return PublicProfile{
		UID:         p.ID,
		DisplayName: p.DisplayName,
		Username:    p.Username,
		PhotoURL:    p.PhotoURL,
	}
}
