package store

import (
	"context"
	"os"
	"testing"

	"github.com/prepwise/mock-interview/pkg/logger"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/db", "postgres://u:p@localhost:5432/db"},
		{"  postgresql+asyncpg://u@h/db ", "postgresql://u@h/db"},
		{"postgres+pgx://u@h/db", "postgres://u@h/db"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeDSN(tt.in); got != tt.want {
			t.Errorf("normalizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestPostgresStore runs against a live database when DATABASE_URL is set.
// Rows written by the run are deleted afterwards.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, dsn, logger.NewNop())
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	prefix := testPrefix()
	t.Cleanup(func() {
		if _, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE session_id LIKE $1`, prefix+"%"); err != nil {
			t.Logf("cleanup: %v", err)
		}
		s.Close(ctx)
	})

	testConversationStore(t, s, prefix)
}
