package domain

import "time"

type User struct {
	ID         string    `bson:"_id" json:"id"`
	ExternalID string    `bson:"external_id" json:"-"`
	Name       string    `bson:"name" json:"name"`
	AvatarURL  string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Email      string    `bson:"email,omitempty" json:"email,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// MemberProfile is the public summary of a conversation member.
type MemberProfile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (u *User) Profile() MemberProfile {
	return MemberProfile{UserID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL, Email: u.Email}
}

// Identity is the verified claim set of a bearer token. Subject is the
// stable external key of the user.
type Identity struct {
	Subject string
	Name    string
	Email   string
	Picture string
}
