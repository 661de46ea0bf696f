package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/model"
	"github.com/prepwise/mock-interview/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT '',
	experience      TEXT NOT NULL DEFAULT '',
	topics_to_focus TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	status         TEXT NOT NULL,
	messages       JSONB NOT NULL DEFAULT '[]'::jsonb,
	final_feedback JSONB,
	duration       DOUBLE PRECISION,
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS conversations_one_open
	ON conversations (session_id, user_id)
	WHERE status IN ('active', 'paused');

CREATE INDEX IF NOT EXISTS conversations_user_created
	ON conversations (user_id, created_at DESC);
`

const conversationColumns = `id, session_id, user_id, status, messages, final_feedback, duration,
	started_at, completed_at, created_at, updated_at`

// PostgresStore keeps the message log in a JSONB column so appends are a
// single UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string, log *logger.Logger) (*PostgresStore, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	s := &PostgresStore{pool: pool, log: log.Named("postgres")}
	s.log.Info("Connected to PostgreSQL")
	return s, nil
}

// Connect creates a pgx pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts ...func(*pgxpool.Config)) (*pgxpool.Pool, error) {
	normalized := normalizeDSN(dsn)
	if normalized == "" {
		return nil, errors.New("postgres: DATABASE_URL is not set")
	}

	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// normalizeDSN strips driver suffixes some .env files carry.
func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	for _, r := range []struct{ from, to string }{
		{"postgresql+asyncpg://", "postgresql://"},
		{"postgres+asyncpg://", "postgres://"},
		{"postgresql+pgx://", "postgresql://"},
		{"postgres+pgx://", "postgres://"},
	} {
		s = strings.Replace(s, r.from, r.to, 1)
	}
	return s
}

// CreateOrReuse inserts a conversation unless the partial unique index
// already holds an open one for the pair, then reads whichever row won. A
// completion landing between the two statements empties the read, so the
// insert is tried once more.
func (s *PostgresStore) CreateOrReuse(ctx context.Context, sessionID, userID string) (*model.Conversation, bool, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var conv *model.Conversation
		var created bool
		conv, created, err = s.createOrReuse(ctx, sessionID, userID)
		if err == nil {
			return conv, created, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			break
		}
	}
	return nil, false, apperr.Persistence(err, "failed to create conversation")
}

func (s *PostgresStore) createOrReuse(ctx context.Context, sessionID, userID string) (*model.Conversation, bool, error) {
	now := time.Now().UTC()
	id := uuid.Must(uuid.NewV7()).String()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, session_id, user_id, status, messages, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $5, $5)
		ON CONFLICT (session_id, user_id) WHERE status IN ('active', 'paused') DO NOTHING
		RETURNING `+conversationColumns,
		id, sessionID, userID, model.StatusActive, now,
	)
	conv, err := scanConversation(row)
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	row = s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE session_id = $1 AND user_id = $2 AND status IN ('active', 'paused')`,
		sessionID, userID,
	)
	conv, err = scanConversation(row)
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

// AppendMessages concatenates msgs onto the JSONB log in one statement.
// A non-negative expectedLen also requires the current log length to match.
func (s *PostgresStore) AppendMessages(ctx context.Context, id string, expectedLen int, msgs ...model.Message) (*model.Conversation, error) {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to encode messages")
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET messages = messages || $2::jsonb, updated_at = $3
		WHERE id = $1 AND status <> 'completed'
			AND ($4::int < 0 OR jsonb_array_length(messages) = $4::int)
		RETURNING `+conversationColumns,
		id, payload, time.Now().UTC(), expectedLen,
	)
	return s.scanUpdated(ctx, id, row, "failed to append messages")
}

// MarkCompleted writes the terminal state in one statement.
func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, c model.Completion) (*model.Conversation, error) {
	feedback, err := json.Marshal(c.FinalFeedback)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to encode feedback")
	}
	closing := []byte("[]")
	if c.Closing != nil {
		if closing, err = json.Marshal([]model.Message{*c.Closing}); err != nil {
			return nil, apperr.Persistence(err, "failed to encode closing message")
		}
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET status = 'completed',
			messages = messages || $2::jsonb,
			final_feedback = $3::jsonb,
			duration = $4,
			completed_at = $5,
			updated_at = $5
		WHERE id = $1 AND status <> 'completed'
			AND ($6::int < 0 OR jsonb_array_length(messages) = $6::int)
		RETURNING `+conversationColumns,
		id, closing, feedback, c.Duration, now, expected(c),
	)
	return s.scanUpdated(ctx, id, row, "failed to complete conversation")
}

func (s *PostgresStore) scanUpdated(ctx context.Context, id string, row pgx.Row, failure string) (*model.Conversation, error) {
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status.IsTerminal() {
			return nil, apperr.ErrConversationCompleted
		}
		return nil, apperr.ErrConversationChanged
	}
	if err != nil {
		return nil, apperr.Persistence(err, "%s", failure)
	}
	return conv, nil
}

// Get returns a conversation by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrConversationNotFound
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load conversation")
	}
	return conv, nil
}

// ListByUser returns the user's conversations, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "failed to list conversations")
	}
	defer rows.Close()

	out := []model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, apperr.Persistence(err, "failed to decode conversation")
		}
		out = append(out, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err, "failed to list conversations")
	}
	return out, nil
}

// GetSession returns a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	var experience string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, role, experience, topics_to_focus, description, created_at
		FROM interview_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Role, &experience, &sess.TopicsToFocus, &sess.Description, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperr.Persistence(err, "failed to load session")
	}
	sess.Experience = model.Experience(strings.TrimSpace(experience))
	return &sess, nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		conv     model.Conversation
		messages []byte
		feedback []byte
	)
	err := row.Scan(
		&conv.ID, &conv.SessionID, &conv.UserID, &conv.Status, &messages, &feedback, &conv.Duration,
		&conv.StartedAt, &conv.CompletedAt, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []model.Message{}
	}
	if len(feedback) > 0 {
		var fb model.FinalFeedback
		if err := json.Unmarshal(feedback, &fb); err != nil {
			return nil, fmt.Errorf("decode final feedback: %w", err)
		}
		conv.FinalFeedback = &fb
	}
	return &conv, nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	s.log.Debug("PostgreSQL pool closed")
	return nil
}
