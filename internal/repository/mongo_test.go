package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// newMockStore answers the six createIndexes calls of NewMongoStore.
func newMockStore(mt *mtest.T) (*MongoStore, *mongoTx) {
	mt.Helper()
	for i := 0; i < 6; i++ {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
	}
	s, err := NewMongoStore(context.Background(), mt.Client, "chat")
	require.NoError(mt, err)
	return s, &mongoTx{s: s}
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("unique indexes", func(mt *mtest.T) {
		newMockStore(mt)

		unique := map[string]string{}
		for i := 0; i < 6; i++ {
			ev := mt.GetStartedEvent()
			require.NotNil(mt, ev)
			require.Equal(mt, "createIndexes", ev.CommandName)
			coll := ev.Command.Lookup("createIndexes").StringValue()
			idx := ev.Command.Lookup("indexes", "0")
			if u, ok := idx.Document().Lookup("unique").BooleanOK(); ok && u {
				unique[coll] = idx.Document().Lookup("name").StringValue()
			}
		}
		assert.Equal(mt, map[string]string{
			"users":         "external_id_uniq",
			"conversations": "pair_key_uniq",
			"memberships":   "conv_user_uniq",
			"typing_states": "conv_user_uniq",
			"presence":      "user_uniq",
		}, unique)
	})

	mt.Run("duplicate key maps to ErrDuplicate", func(mt *mtest.T) {
		_, tx := newMockStore(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: chat.conversations index: pair_key_uniq",
		}))

		err := tx.InsertConversation(ctx, &domain.Conversation{ID: "c2", Kind: domain.KindDirect, PairKey: "a:b"})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})

	mt.Run("missing document maps to ErrNotFound", func(mt *mtest.T) {
		_, tx := newMockStore(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.users", mtest.FirstBatch))

		_, err := tx.GetUser(ctx, "ghost")
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("typing expiry survives a round trip", func(mt *mtest.T) {
		_, tx := newMockStore(mt)
		raw := time.Date(2024, 5, 1, 12, 0, 2, 500_123_456, time.UTC)
		exp := raw.Truncate(time.Millisecond)

		mt.ClearEvents()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, tx.UpsertTyping(ctx, "t1", "c1", "u1", exp))

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		sent := ev.Command.Lookup("updates", "0", "u", "$set", "expires_at").Time()
		assert.True(mt, sent.Equal(exp))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat.typing_states", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "t1"},
			{Key: "conversation_id", Value: "c1"},
			{Key: "user_id", Value: "u1"},
			{Key: "expires_at", Value: primitive.NewDateTimeFromTime(sent)},
		}))
		st, err := tx.GetTyping(ctx, "c1", "u1")
		require.NoError(mt, err)
		assert.True(mt, st.ExpiresAt.Equal(exp), "millisecond values compare equal after storage")
		assert.False(mt, st.ExpiresAt.Equal(raw), "sub-millisecond values are lost in storage")
	})

	mt.Run("presence touch never moves backwards", func(mt *mtest.T) {
		_, tx := newMockStore(mt)
		later := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
		earlier := later.Add(-10 * time.Second)

		mt.ClearEvents()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: "p-first"},
			{Key: "user_id", Value: "u1"},
			{Key: "last_seen_at", Value: primitive.NewDateTimeFromTime(later)},
		}}))
		id, err := tx.TouchPresence(ctx, "p-new", "u1", earlier)
		require.NoError(mt, err)
		assert.Equal(mt, "p-first", id, "existing record keeps its id")

		ev := mt.GetStartedEvent()
		require.NotNil(mt, ev)
		require.Equal(mt, "findAndModify", ev.CommandName)
		assert.True(mt, ev.Command.Lookup("update", "$max", "last_seen_at").Time().Equal(earlier))
		assert.Equal(mt, "p-new", ev.Command.Lookup("update", "$setOnInsert", "_id").StringValue())
		_, hasSet := ev.Command.Lookup("update", "$set").DocumentOK()
		assert.False(mt, hasSet, "last_seen_at is only written through $max")
		assert.True(mt, ev.Command.Lookup("upsert").Boolean())
		assert.True(mt, ev.Command.Lookup("new").Boolean())
	})
}
