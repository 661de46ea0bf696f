package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/pkg/logger"
)

const (
	conversationsCollection = "conversations"
	sessionsCollection      = "sessions"
)

// MongoStore keeps conversations as single documents so that every append
// or completion is one atomic update.
type MongoStore struct {
	client        *mongo.Client
	conversations *mongo.Collection
	sessions      *mongo.Collection
	log           *logger.Logger
}

var _ Store = (*MongoStore)(nil)

// conversationDoc adds the open flag backing the partial unique index.
type conversationDoc struct {
	model.Conversation `bson:",inline"`
	Open               bool `bson:"open"`
}

// sessionDoc tolerates sessions written by other services, where _id may be
// an ObjectID and experience a number.
type sessionDoc struct {
	ID            any       `bson:"_id"`
	UserID        any       `bson:"userId"`
	User          any       `bson:"user"`
	Role          string    `bson:"role"`
	Experience    any       `bson:"experience"`
	TopicsToFocus string    `bson:"topicsToFocus"`
	Description   string    `bson:"description"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string, log *logger.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo: MONGO_URI is not set")
	}
	if database == "" {
		database = "mock_interview"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		conversations: db.Collection(conversationsCollection),
		sessions:      db.Collection(sessionsCollection),
		log:           log.Named("mongo"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s.log.Info("Connected to MongoDB", zap.String("database", database))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().
				SetName("one_open_per_session_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"open": true}),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: create indexes: %w", err)
	}
	return nil
}

// CreateOrReuse upserts the open conversation for the pair. Two racing
// upserts can both miss and insert; the loser hits the unique index and
// reads the winner's document.
func (s *MongoStore) CreateOrReuse(ctx context.Context, sessionID, userID string) (*model.Conversation, bool, error) {
	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV7()).String()
	filter := bson.M{"sessionId": sessionID, "userId": userID, "open": true}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":       id,
		"status":    model.StatusActive,
		"messages":  []model.Message{},
		"startedAt": now,
		"createdAt": now,
		"updatedAt": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc conversationDoc
	err := s.conversations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = s.conversations.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, "failed to create conversation")
	}

	return doc.Conversation.Clone(), doc.ID == id, nil
}

// AppendMessages pushes msgs in one update guarded on a non-terminal status
// and, when expectedLen is set, on the current array size.
func (s *MongoStore) AppendMessages(ctx context.Context, id string, expectedLen int, msgs ...model.Message) (*model.Conversation, error) {
	filter := openFilter(id, expectedLen)
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": msgs}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return s.updateOpen(ctx, id, filter, update, "failed to append messages")
}

// MarkCompleted writes the terminal state in one update.
func (s *MongoStore) MarkCompleted(ctx context.Context, id string, c model.Completion) (*model.Conversation, error) {
	now := time.Now().UTC()
	filter := openFilter(id, expected(c))
	update := bson.M{"$set": bson.M{
		"status":        model.StatusCompleted,
		"open":          false,
		"finalFeedback": c.FinalFeedback,
		"duration":      c.Duration,
		"completedAt":   now,
		"updatedAt":     now,
	}}
	if c.Closing != nil {
		update["$push"] = bson.M{"messages": *c.Closing}
	}
	return s.updateOpen(ctx, id, filter, update, "failed to complete conversation")
}

func openFilter(id string, expectedLen int) bson.M {
	filter := bson.M{"_id": id, "status": bson.M{"$ne": model.StatusCompleted}}
	if expectedLen != model.AnyLength {
		filter["messages"] = bson.M{"$size": expectedLen}
	}
	return filter
}

// updateOpen applies update to a non-terminal conversation. When the filter
// misses it reports whether the document is gone, completed, or was
// appended to by someone else.
func (s *MongoStore) updateOpen(ctx context.Context, id string, filter, update bson.M, failure string) (*model.Conversation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc conversationDoc
	err := s.conversations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missed(ctx, id)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "%s", failure)
	}
	return doc.Conversation.Clone(), nil
}

func (s *MongoStore) missed(ctx context.Context, id string) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status.IsTerminal() {
		return apperr.ErrConversationCompleted
	}
	return apperr.ErrConversationChanged
}

// Get returns a conversation by ID.
func (s *MongoStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var doc conversationDoc
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrConversationNotFound
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load conversation")
	}
	return doc.Conversation.Clone(), nil
}

// ListByUser returns the user's conversations, newest first.
func (s *MongoStore) ListByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.conversations.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to list conversations")
	}
	defer cur.Close(ctx)

	out := []model.Conversation{}
	for cur.Next(ctx) {
		var doc conversationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Persistence(err, "failed to decode conversation")
		}
		out = append(out, *doc.Conversation.Clone())
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Persistence(err, "failed to list conversations")
	}
	return out, nil
}

// GetSession looks a session up by string or ObjectID key.
func (s *MongoStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	keys := bson.A{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		keys = append(keys, oid)
	}

	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": bson.M{"$in": keys}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load session")
	}

	owner := idString(doc.UserID)
	if owner == "" {
		owner = idString(doc.User)
	}
	return &model.Session{
		ID:            id,
		UserID:        owner,
		Role:          doc.Role,
		Experience:    model.Experience(strings.TrimSpace(idString(doc.Experience))),
		TopicsToFocus: doc.TopicsToFocus,
		Description:   doc.Description,
		CreatedAt:     doc.CreatedAt,
	}, nil
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	default:
		return fmt.Sprint(t)
	}
}

// Ping checks the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
