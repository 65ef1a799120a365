package domain

import "time"

// TypingState marks a user as typing in a conversation until ExpiresAt.
// A state whose ExpiresAt is not after now must be treated as absent.
type TypingState struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	ExpiresAt      time.Time `bson:"expires_at" json:"expires_at"`
}

func (t *TypingState) ActiveAt(now time.Time) bool {
	return t.ExpiresAt.After(now)
}

type Presence struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	LastSeenAt time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// OnlineStatus reports LastSeen as unix milliseconds, zero when the user
// never sent a heartbeat.
type OnlineStatus struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	LastSeen int64  `json:"last_seen"`
}
