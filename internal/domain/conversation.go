package domain

import "time"

const KindDirect = "direct"

type Conversation struct {
	ID                  string     `bson:"_id" json:"id"`
	Kind                string     `bson:"kind" json:"kind"`
	PairKey             string     `bson:"pair_key" json:"-"`
	CreatedBy           string     `bson:"created_by" json:"created_by"`
	CreatedAt           time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at" json:"updated_at"`
	LastMessageText     string     `bson:"last_message_text" json:"last_message_text"`
	LastMessageAt       *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	LastMessageSenderID string     `bson:"last_message_sender_id,omitempty" json:"last_message_sender_id,omitempty"`
}

// ActivityAt is the most recent of last message, update and creation time.
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil && !c.LastMessageAt.IsZero() {
		return *c.LastMessageAt
	}
	if !c.UpdatedAt.IsZero() {
		return c.UpdatedAt
	}
	return c.CreatedAt
}

type Membership struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	JoinedAt       time.Time `bson:"joined_at" json:"joined_at"`
	LastReadAt     time.Time `bson:"last_read_at" json:"last_read_at"`
	UnreadCount    int       `bson:"unread_count" json:"unread_count"`
}

// ConversationView is one row of a user's conversation list.
type ConversationView struct {
	ID                  string          `json:"id"`
	Kind                string          `json:"kind"`
	Title               string          `json:"title"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	LastMessageText     string          `json:"last_message_text"`
	LastMessageAt       *time.Time      `json:"last_message_at,omitempty"`
	LastMessageSenderID string          `json:"last_message_sender_id,omitempty"`
	UnreadCount         int             `json:"unread_count"`
	Members             []MemberProfile `json:"members"`
}
