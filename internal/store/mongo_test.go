package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/prepwise/mock-interview/pkg/logger"
)

// TestMongoStore runs against a live server when MONGO_URI is set. Each run
// uses its own database and drops it afterwards.
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()

	prefix := testPrefix()
	database := "interview_test_" + strings.TrimSuffix(prefix, "-")
	s, err := NewMongoStore(ctx, uri, database, logger.NewNop())
	if err != nil {
		t.Fatalf("NewMongoStore() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.client.Database(database).Drop(ctx); err != nil {
			t.Logf("drop %s: %v", database, err)
		}
		s.Close(ctx)
	})

	testConversationStore(t, s, prefix)
}
