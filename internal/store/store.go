// Package store persists conversations and reads interview sessions.
//
// Every mutating operation is atomic per conversation: appends never lose
// updates, guarded writes never apply to a log that moved underneath them,
// and at most one non-terminal conversation exists per (session, user) pair.
package store

import (
	"context"
	"fmt"

	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/pkg/logger"
)

// ConversationStore is the persistence contract for conversations.
type ConversationStore interface {
	// CreateOrReuse returns the non-terminal conversation for the pair,
	// creating it when none exists. created reports which happened.
	CreateOrReuse(ctx context.Context, sessionID, userID string) (conv *model.Conversation, created bool, err error)

	// AppendMessages atomically appends msgs in order. It fails with
	// apperr.ErrConversationCompleted on a completed conversation. When
	// expectedLen is not model.AnyLength the write only applies if the log
	// holds exactly expectedLen messages, otherwise it fails with
	// apperr.ErrConversationChanged.
	AppendMessages(ctx context.Context, id string, expectedLen int, msgs ...model.Message) (*model.Conversation, error)

	// MarkCompleted moves the conversation to completed, storing the
	// feedback, duration and optional closing message in one write.
	// Completion.ExpectedLen guards it the same way as AppendMessages.
	MarkCompleted(ctx context.Context, id string, c model.Completion) (*model.Conversation, error)

	// Get returns a conversation by ID.
	Get(ctx context.Context, id string) (*model.Conversation, error)

	// ListByUser returns the user's conversations, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.Conversation, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// SessionStore reads interview sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
}

// Store is a backend that serves both conversations and sessions.
type Store interface {
	ConversationStore
	SessionStore
}

// expected returns the guard length of c.
func expected(c model.Completion) int {
	if c.ExpectedLen == nil {
		return model.AnyLength
	}
	return *c.ExpectedLen
}

// Driver names a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverMongo    Driver = "mongo"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver        Driver
	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
