package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("creates once", func(t *testing.T) {
		ident := &domain.Identity{Subject: "sub-1", Name: "Ann", Email: "ann@example.com", Picture: "http://img/ann"}
		u1, err := f.svc.ResolveUser(ctx, ident)
		require.NoError(t, err)
		u2, err := f.svc.ResolveUser(ctx, ident)
		require.NoError(t, err)
		assert.Equal(t, u1.ID, u2.ID)
		assert.Equal(t, "Ann", u1.Name)
		assert.Equal(t, "http://img/ann", u1.AvatarURL)
	})

	t.Run("falls back to email", func(t *testing.T) {
		u, err := f.svc.ResolveUser(ctx, &domain.Identity{Subject: "sub-2", Email: "x@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "x@example.com", u.Name)
	})

	t.Run("no identity", func(t *testing.T) {
		_, err := f.svc.ResolveUser(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		_, err = f.svc.ResolveUser(ctx, &domain.Identity{})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestUpsertProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bob := f.user(t, "Bob")

	ident := &domain.Identity{Subject: "ext-ann", Name: "Ann"}
	id, err := f.svc.UpsertProfile(ctx, ident, Profile{Name: "Ann"})
	require.NoError(t, err)
	f.direct(t, id, bob)

	again, err := f.svc.UpsertProfile(ctx, ident, Profile{Name: "Annie", AvatarURL: "http://img/a", Email: "a@x"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	me, err := f.svc.Me(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Annie", me.Name)
	assert.Equal(t, "http://img/a", me.AvatarURL)

	ev := f.pub.last()
	assert.Equal(t, events.ProfileUpdated, ev.Type)
	assert.ElementsMatch(t, events.UserTopics(id, bob), ev.Topics)

	_, err = f.svc.Me(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearchUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	me := f.user(t, "Alex")
	for i := 0; i < 60; i++ {
		f.user(t, fmt.Sprintf("user%02d", i))
	}
	f.user(t, "ALINA")

	got, err := f.svc.SearchUsers(ctx, me, "  al ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ALINA", got[0].Name)

	got, err = f.svc.SearchUsers(ctx, me, "user")
	require.NoError(t, err)
	assert.Len(t, got, 30)

	got, err = f.svc.SearchUsers(ctx, me, "")
	require.NoError(t, err)
	assert.Len(t, got, 50)
	for _, u := range got {
		assert.NotEqual(t, me, u.ID)
	}
}
