package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/repository"
)

const anonymousName = "Anonymous"

type Profile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// ResolveUser maps a verified identity to its user record, creating the
// record on first sight.
func (s *Service) ResolveUser(ctx context.Context, ident *domain.Identity) (*domain.User, error) {
	if ident == nil || ident.Subject == "" {
		return nil, fmt.Errorf("resolve user: %w", domain.ErrUnauthorized)
	}
	var u *domain.User
	resolve := func() error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			u, err = tx.GetUserByExternalID(ctx, ident.Subject)
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			u = s.newUser(ident, Profile{Name: ident.Name, AvatarURL: ident.Picture, Email: ident.Email})
			return tx.InsertUser(ctx, u)
		})
	}
	err := resolve()
	if errors.Is(err, repository.ErrDuplicate) {
		err = resolve()
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) newUser(ident *domain.Identity, p Profile) *domain.User {
	now := s.now()
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = displayName(ident)
	}
	return &domain.User{
		ID:         newID(),
		ExternalID: ident.Subject,
		Name:       name,
		AvatarURL:  p.AvatarURL,
		Email:      p.Email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func displayName(ident *domain.Identity) string {
	if n := strings.TrimSpace(ident.Name); n != "" {
		return n
	}
	if ident.Email != "" {
		return ident.Email
	}
	return anonymousName
}

// Me returns the user record by id.
func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	var u *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, userID)
		return notFound(err, "user %s", userID)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpsertProfile refreshes the caller's profile fields, creating the user
// when absent, and returns the user id.
func (s *Service) UpsertProfile(ctx context.Context, ident *domain.Identity, p Profile) (string, error) {
	if ident == nil || ident.Subject == "" {
		return "", fmt.Errorf("upsert profile: %w", domain.ErrUnauthorized)
	}
	var (
		userID   string
		affected []string
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.GetUserByExternalID(ctx, ident.Subject)
		if errors.Is(err, repository.ErrNotFound) {
			u = s.newUser(ident, p)
			userID = u.ID
			affected = []string{u.ID}
			return tx.InsertUser(ctx, u)
		}
		if err != nil {
			return err
		}
		if name := strings.TrimSpace(p.Name); name != "" {
			u.Name = name
		}
		u.AvatarURL = p.AvatarURL
		u.Email = p.Email
		u.UpdatedAt = s.now()
		if err := tx.UpdateUserProfile(ctx, u); err != nil {
			return err
		}
		userID = u.ID
		affected, err = contacts(ctx, tx, u.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, events.ProfileUpdated, events.UserTopics(affected...)...)
	return userID, nil
}

// contacts returns the user and everyone sharing a conversation with them.
func contacts(ctx context.Context, tx repository.Tx, userID string) ([]string, error) {
	seen := map[string]bool{userID: true}
	out := []string{userID}
	ms, err := tx.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		ids, err := memberIDs(ctx, tx, m.ConversationID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// SearchUsers matches names case-insensitively. A blank term lists the
// first users instead. The caller is never included.
func (s *Service) SearchUsers(ctx context.Context, meID, term string) ([]*domain.User, error) {
	term = strings.TrimSpace(term)
	limit := s.cfg.SearchLimit
	if term == "" {
		limit = s.cfg.BrowseLimit
	}
	var out []*domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.SearchUsers(ctx, term, meID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
