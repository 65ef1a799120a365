package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
)

// MemoryStore keeps all documents in process. Transactions are serialized
// and each one works on a copy of the state that is swapped in on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	users         map[string]domain.User
	conversations map[string]domain.Conversation
	memberships   []domain.Membership
	messages      []domain.Message
	typing        map[string]domain.TypingState
	presence      map[string]domain.Presence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		users:         map[string]domain.User{},
		conversations: map[string]domain.Conversation{},
		typing:        map[string]domain.TypingState{},
		presence:      map[string]domain.Presence{},
	}}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func (st *memState) clone() *memState {
	out := &memState{
		users:         make(map[string]domain.User, len(st.users)),
		conversations: make(map[string]domain.Conversation, len(st.conversations)),
		memberships:   append([]domain.Membership(nil), st.memberships...),
		messages:      append([]domain.Message(nil), st.messages...),
		typing:        make(map[string]domain.TypingState, len(st.typing)),
		presence:      make(map[string]domain.Presence, len(st.presence)),
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.conversations {
		if v.LastMessageAt != nil {
			at := *v.LastMessageAt
			v.LastMessageAt = &at
		}
		out.conversations[k] = v
	}
	for k, v := range st.typing {
		out.typing[k] = v
	}
	for k, v := range st.presence {
		out.presence[k] = v
	}
	return out
}

type memTx struct {
	st *memState
}

func typingKey(conversationID, userID string) string {
	return conversationID + "|" + userID
}

func (t *memTx) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memTx) GetUserByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	for _, u := range t.st.users {
		if u.ExternalID == externalID {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertUser(_ context.Context, u *domain.User) error {
	if _, ok := t.st.users[u.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range t.st.users {
		if existing.ExternalID == u.ExternalID {
			return ErrDuplicate
		}
	}
	t.st.users[u.ID] = *u
	return nil
}

func (t *memTx) UpdateUserProfile(_ context.Context, u *domain.User) error {
	cur, ok := t.st.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = u.Name
	cur.AvatarURL = u.AvatarURL
	cur.Email = u.Email
	cur.UpdatedAt = u.UpdatedAt
	t.st.users[u.ID] = cur
	return nil
}

func (t *memTx) SearchUsers(_ context.Context, term, excludeID string, limit int) ([]*domain.User, error) {
	all := make([]domain.User, 0, len(t.st.users))
	for _, u := range t.st.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	needle := strings.ToLower(term)
	out := []*domain.User{}
	for i := range all {
		u := all[i]
		if u.ID == excludeID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(u.Name), needle) {
			continue
		}
		out = append(out, &u)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	c, ok := t.st.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (t *memTx) GetConversationByPairKey(_ context.Context, pairKey string) (*domain.Conversation, error) {
	for _, c := range t.st.conversations {
		if c.PairKey == pairKey {
			c := c
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertConversation(_ context.Context, c *domain.Conversation) error {
	if _, ok := t.st.conversations[c.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range t.st.conversations {
		if c.PairKey != "" && existing.PairKey == c.PairKey {
			return ErrDuplicate
		}
	}
	t.st.conversations[c.ID] = *c
	return nil
}

func (t *memTx) SetLastMessage(_ context.Context, conversationID, senderID, text string, at time.Time) error {
	c, ok := t.st.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.LastMessageText = text
	c.LastMessageAt = &at
	c.LastMessageSenderID = senderID
	c.UpdatedAt = at
	t.st.conversations[conversationID] = c
	return nil
}

func (t *memTx) GetMembership(_ context.Context, conversationID, userID string) (*domain.Membership, error) {
	for _, m := range t.st.memberships {
		if m.ConversationID == conversationID && m.UserID == userID {
			m := m
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertMembership(_ context.Context, m *domain.Membership) error {
	for _, existing := range t.st.memberships {
		if existing.ID == m.ID || (existing.ConversationID == m.ConversationID && existing.UserID == m.UserID) {
			return ErrDuplicate
		}
	}
	t.st.memberships = append(t.st.memberships, *m)
	return nil
}

func (t *memTx) ListMembershipsByUser(_ context.Context, userID string) ([]*domain.Membership, error) {
	out := []*domain.Membership{}
	for _, m := range t.st.memberships {
		if m.UserID == userID {
			m := m
			out = append(out, &m)
		}
	}
	return out, nil
}

func (t *memTx) ListMembershipsByConversation(_ context.Context, conversationID string) ([]*domain.Membership, error) {
	out := []*domain.Membership{}
	for _, m := range t.st.memberships {
		if m.ConversationID == conversationID {
			m := m
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (t *memTx) IncrementUnread(_ context.Context, conversationID, excludeUserID string) error {
	for i := range t.st.memberships {
		m := &t.st.memberships[i]
		if m.ConversationID == conversationID && m.UserID != excludeUserID {
			m.UnreadCount++
		}
	}
	return nil
}

func (t *memTx) ResetUnread(_ context.Context, conversationID, userID string, readAt time.Time) error {
	for i := range t.st.memberships {
		m := &t.st.memberships[i]
		if m.ConversationID == conversationID && m.UserID == userID {
			m.UnreadCount = 0
			m.LastReadAt = readAt
			return nil
		}
	}
	return ErrNotFound
}

func (t *memTx) InsertMessage(_ context.Context, m *domain.Message) error {
	for _, existing := range t.st.messages {
		if existing.ID == m.ID {
			return ErrDuplicate
		}
	}
	t.st.messages = append(t.st.messages, *m)
	return nil
}

func (t *memTx) ListMessages(_ context.Context, conversationID string) ([]*domain.Message, error) {
	out := []*domain.Message{}
	for _, m := range t.st.messages {
		if m.ConversationID == conversationID {
			m := m
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) GetTyping(_ context.Context, conversationID, userID string) (*domain.TypingState, error) {
	ts, ok := t.st.typing[typingKey(conversationID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &ts, nil
}

func (t *memTx) UpsertTyping(_ context.Context, id, conversationID, userID string, expiresAt time.Time) error {
	key := typingKey(conversationID, userID)
	ts, ok := t.st.typing[key]
	if !ok {
		ts = domain.TypingState{ID: id, ConversationID: conversationID, UserID: userID}
	}
	ts.ExpiresAt = expiresAt
	t.st.typing[key] = ts
	return nil
}

func (t *memTx) DeleteTyping(_ context.Context, conversationID, userID string) error {
	delete(t.st.typing, typingKey(conversationID, userID))
	return nil
}

func (t *memTx) ListActiveTyping(_ context.Context, conversationID string, now time.Time) ([]*domain.TypingState, error) {
	out := []*domain.TypingState{}
	for _, ts := range t.st.typing {
		if ts.ConversationID == conversationID && ts.ExpiresAt.After(now) {
			ts := ts
			out = append(out, &ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *memTx) GetPresence(_ context.Context, userID string) (*domain.Presence, error) {
	p, ok := t.st.presence[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) TouchPresence(_ context.Context, id, userID string, at time.Time) (string, error) {
	p, ok := t.st.presence[userID]
	if !ok {
		p = domain.Presence{ID: id, UserID: userID, LastSeenAt: at}
	} else if at.After(p.LastSeenAt) {
		p.LastSeenAt = at
	}
	t.st.presence[userID] = p
	return p.ID, nil
}
