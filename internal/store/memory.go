package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/model"
)

// MemoryStore keeps everything in process. One mutex serialises every
// read-modify-write, which gives the same atomicity the database backends
// get from single-document updates.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	open          map[pairKey]string
	sessions      map[string]*model.Session
	now           func() time.Time
}

type pairKey struct {
	sessionID string
	userID    string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		open:          make(map[pairKey]string),
		sessions:      make(map[string]*model.Session),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PutSession seeds or replaces a session.
func (s *MemoryStore) PutSession(sess model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sess
	s.sessions[sess.ID] = &cp
}

// GetSession returns a session by ID.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// CreateOrReuse returns the open conversation for the pair or creates one.
func (s *MemoryStore) CreateOrReuse(ctx context.Context, sessionID, userID string) (*model.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{sessionID: sessionID, userID: userID}
	if id, ok := s.open[key]; ok {
		return s.conversations[id].Clone(), false, nil
	}

	now := s.now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		UserID:    userID,
		Status:    model.StatusActive,
		Messages:  []model.Message{},
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	s.open[key] = conv.ID

	return conv.Clone(), true, nil
}

// AppendMessages appends msgs in order.
func (s *MemoryStore) AppendMessages(ctx context.Context, id string, expectedLen int, msgs ...model.Message) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.writable(id, expectedLen)
	if err != nil {
		return nil, err
	}

	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = s.now()

	return conv.Clone(), nil
}

// MarkCompleted moves the conversation to completed.
func (s *MemoryStore) MarkCompleted(ctx context.Context, id string, c model.Completion) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.writable(id, expected(c))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if c.Closing != nil {
		conv.Messages = append(conv.Messages, *c.Closing)
	}
	fb := c.FinalFeedback
	d := c.Duration
	conv.Status = model.StatusCompleted
	conv.FinalFeedback = &fb
	conv.Duration = &d
	conv.CompletedAt = &now
	conv.UpdatedAt = now
	delete(s.open, pairKey{sessionID: conv.SessionID, userID: conv.UserID})

	return conv.Clone(), nil
}

// writable returns the stored conversation if a write to it may proceed.
// Callers hold s.mu.
func (s *MemoryStore) writable(id string, expectedLen int) (*model.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.ErrConversationNotFound
	}
	if conv.Status.IsTerminal() {
		return nil, apperr.ErrConversationCompleted
	}
	if expectedLen != model.AnyLength && len(conv.Messages) != expectedLen {
		return nil, apperr.ErrConversationChanged
	}
	return conv, nil
}

// Get returns a conversation by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// ListByUser returns the user's conversations, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Conversation{}
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, *conv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			// UUIDv7 IDs sort by creation time.
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
