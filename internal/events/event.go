package events

import (
	"context"
	"time"
)

const (
	ConversationCreated = "conversation.created"
	MessageSent         = "message.sent"
	ConversationRead    = "conversation.read"
	TypingChanged       = "typing.changed"
	PresenceChanged     = "presence.changed"
	ProfileUpdated      = "profile.updated"
)

// Event tells subscribers that data behind Topics changed. It carries no
// payload; readers re-run their queries.
type Event struct {
	Type   string    `json:"type"`
	Topics []string  `json:"topics"`
	At     time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type Handler func(ev Event)

func UserTopic(userID string) string             { return "user:" + userID }
func MessagesTopic(conversationID string) string { return "messages:" + conversationID }
func TypingTopic(conversationID string) string   { return "typing:" + conversationID }
func PresenceTopic(userID string) string         { return "presence:" + userID }

// UserTopics returns one user topic per id.
func UserTopics(userIDs ...string) []string {
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, UserTopic(id))
	}
	return out
}
