package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// MongoStore requires a replica set or sharded cluster for transactions.
type MongoStore struct {
	client    *mongo.Client
	users     *mongo.Collection
	convs     *mongo.Collection
	members   *mongo.Collection
	messages  *mongo.Collection
	typing    *mongo.Collection
	presence  *mongo.Collection
	txTimeout time.Duration
}

func NewMongoStore(ctx context.Context, client *mongo.Client, dbName string) (*MongoStore, error) {
	db := client.Database(dbName)
	s := &MongoStore{
		client:    client,
		users:     db.Collection("users"),
		convs:     db.Collection("conversations"),
		members:   db.Collection("memberships"),
		messages:  db.Collection("messages"),
		typing:    db.Collection("typing_states"),
		presence:  db.Collection("presence"),
		txTimeout: 10 * time.Second,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	unique := func(name string) *options.IndexOptions {
		return options.Index().SetUnique(true).SetName(name)
	}
	plan := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: unique("external_id_uniq")},
			{Keys: bson.D{{Key: "created_at", Value: 1}}, Options: options.Index().SetName("created_idx")},
		}},
		{s.convs, []mongo.IndexModel{
			{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: unique("pair_key_uniq")},
		}},
		{s.members, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique("conv_user_uniq")},
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetName("user_idx")},
		}},
		{s.messages, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}, Options: options.Index().SetName("conv_created_idx")},
		}},
		{s.typing, []mongo.IndexModel{
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique("conv_user_uniq")},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "expires_at", Value: 1}}, Options: options.Index().SetName("conv_expires_idx")},
		}},
		{s.presence, []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique("user_uniq")},
		}},
	}
	for _, p := range plan {
		if _, err := p.coll.Indexes().CreateMany(ctx, p.models); err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{s: s})
	}, opts)
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	}
	return err
}

type mongoTx struct {
	s *MongoStore
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (*T, error) {
	var out T
	if err := coll.FindOne(ctx, filter).Decode(&out); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]*T, error) {
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*T{}
	for cur.Next(ctx) {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}

func (t *mongoTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return findOne[domain.User](ctx, t.s.users, bson.M{"_id": id})
}

func (t *mongoTx) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return findOne[domain.User](ctx, t.s.users, bson.M{"external_id": externalID})
}

func (t *mongoTx) InsertUser(ctx context.Context, u *domain.User) error {
	_, err := t.s.users.InsertOne(ctx, u)
	return mapErr(err)
}

func (t *mongoTx) UpdateUserProfile(ctx context.Context, u *domain.User) error {
	res, err := t.s.users.UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{
		"name":       u.Name,
		"avatar_url": u.AvatarURL,
		"email":      u.Email,
		"updated_at": u.UpdatedAt,
	}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) SearchUsers(ctx context.Context, term, excludeID string, limit int) ([]*domain.User, error) {
	filter := bson.M{"_id": bson.M{"$ne": excludeID}}
	if term != "" {
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[domain.User](ctx, t.s.users, filter, opts)
}

func (t *mongoTx) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return findOne[domain.Conversation](ctx, t.s.convs, bson.M{"_id": id})
}

func (t *mongoTx) GetConversationByPairKey(ctx context.Context, pairKey string) (*domain.Conversation, error) {
	return findOne[domain.Conversation](ctx, t.s.convs, bson.M{"pair_key": pairKey})
}

func (t *mongoTx) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	_, err := t.s.convs.InsertOne(ctx, c)
	return mapErr(err)
}

func (t *mongoTx) SetLastMessage(ctx context.Context, conversationID, senderID, text string, at time.Time) error {
	res, err := t.s.convs.UpdateByID(ctx, conversationID, bson.M{"$set": bson.M{
		"last_message_text":      text,
		"last_message_at":        at,
		"last_message_sender_id": senderID,
		"updated_at":             at,
	}})
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) GetMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error) {
	return findOne[domain.Membership](ctx, t.s.members, bson.M{"conversation_id": conversationID, "user_id": userID})
}

func (t *mongoTx) InsertMembership(ctx context.Context, m *domain.Membership) error {
	_, err := t.s.members.InsertOne(ctx, m)
	return mapErr(err)
}

func (t *mongoTx) ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	return findAll[domain.Membership](ctx, t.s.members, bson.M{"user_id": userID}, options.Find())
}

func (t *mongoTx) ListMembershipsByConversation(ctx context.Context, conversationID string) ([]*domain.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[domain.Membership](ctx, t.s.members, bson.M{"conversation_id": conversationID}, opts)
}

func (t *mongoTx) IncrementUnread(ctx context.Context, conversationID, excludeUserID string) error {
	_, err := t.s.members.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "user_id": bson.M{"$ne": excludeUserID}},
		bson.M{"$inc": bson.M{"unread_count": 1}},
	)
	return mapErr(err)
}

func (t *mongoTx) ResetUnread(ctx context.Context, conversationID, userID string, readAt time.Time) error {
	res, err := t.s.members.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{"$set": bson.M{"unread_count": 0, "last_read_at": readAt}},
	)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) InsertMessage(ctx context.Context, m *domain.Message) error {
	_, err := t.s.messages.InsertOne(ctx, m)
	return mapErr(err)
}

func (t *mongoTx) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[domain.Message](ctx, t.s.messages, bson.M{"conversation_id": conversationID}, opts)
}

func (t *mongoTx) GetTyping(ctx context.Context, conversationID, userID string) (*domain.TypingState, error) {
	return findOne[domain.TypingState](ctx, t.s.typing, bson.M{"conversation_id": conversationID, "user_id": userID})
}

func (t *mongoTx) UpsertTyping(ctx context.Context, id, conversationID, userID string, expiresAt time.Time) error {
	_, err := t.s.typing.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{
			"$set":         bson.M{"expires_at": expiresAt},
			"$setOnInsert": bson.M{"_id": id},
		},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}

func (t *mongoTx) DeleteTyping(ctx context.Context, conversationID, userID string) error {
	_, err := t.s.typing.DeleteOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID})
	return mapErr(err)
}

func (t *mongoTx) ListActiveTyping(ctx context.Context, conversationID string, now time.Time) ([]*domain.TypingState, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	return findAll[domain.TypingState](ctx, t.s.typing,
		bson.M{"conversation_id": conversationID, "expires_at": bson.M{"$gt": now}}, opts)
}

func (t *mongoTx) GetPresence(ctx context.Context, userID string) (*domain.Presence, error) {
	return findOne[domain.Presence](ctx, t.s.presence, bson.M{"user_id": userID})
}

func (t *mongoTx) TouchPresence(ctx context.Context, id, userID string, at time.Time) (string, error) {
	res := t.s.presence.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$max":         bson.M{"last_seen_at": at},
			"$setOnInsert": bson.M{"_id": id},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var p domain.Presence
	if err := res.Decode(&p); err != nil {
		return "", mapErr(err)
	}
	return p.ID, nil
}
