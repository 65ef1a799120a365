package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store runs fn inside a transaction. All reads and writes made through tx
// commit together when fn returns nil and are discarded otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close(ctx context.Context) error
}

type Tx interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) error
	UpdateUserProfile(ctx context.Context, u *domain.User) error
	// SearchUsers matches name case-insensitively; an empty term matches all.
	SearchUsers(ctx context.Context, term, excludeID string, limit int) ([]*domain.User, error)

	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	GetConversationByPairKey(ctx context.Context, pairKey string) (*domain.Conversation, error)
	InsertConversation(ctx context.Context, c *domain.Conversation) error
	SetLastMessage(ctx context.Context, conversationID, senderID, text string, at time.Time) error

	GetMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error)
	InsertMembership(ctx context.Context, m *domain.Membership) error
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	// ListMembershipsByConversation returns memberships ordered by join time.
	ListMembershipsByConversation(ctx context.Context, conversationID string) ([]*domain.Membership, error)
	IncrementUnread(ctx context.Context, conversationID, excludeUserID string) error
	ResetUnread(ctx context.Context, conversationID, userID string, readAt time.Time) error

	InsertMessage(ctx context.Context, m *domain.Message) error
	// ListMessages returns messages in ascending creation order.
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)

	GetTyping(ctx context.Context, conversationID, userID string) (*domain.TypingState, error)
	// UpsertTyping sets the expiry of the (conversation, user) state,
	// creating it with id when absent.
	UpsertTyping(ctx context.Context, id, conversationID, userID string, expiresAt time.Time) error
	DeleteTyping(ctx context.Context, conversationID, userID string) error
	// ListActiveTyping returns states of the conversation expiring after now.
	ListActiveTyping(ctx context.Context, conversationID string, now time.Time) ([]*domain.TypingState, error)

	GetPresence(ctx context.Context, userID string) (*domain.Presence, error)
	// TouchPresence raises last_seen_at to at and never lowers it. It returns
	// the presence record id.
	TouchPresence(ctx context.Context, id, userID string, at time.Time) (string, error)
}
