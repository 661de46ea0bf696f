package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/prepwise/mock-interview/internal/apperr"
	"github.com/prepwise/mock-interview/internal/model"
)

// testConversationStore runs the behavior every backend must share. IDs are
// built from prefix so runs against a shared database do not collide.
func testConversationStore(t *testing.T, s ConversationStore, prefix string) {
	ctx := context.Background()
	n := 0
	pair := func() (string, string) {
		n++
		return fmt.Sprintf("%ssess-%d", prefix, n), fmt.Sprintf("%suser-%d", prefix, n)
	}
	open := func(t *testing.T) *model.Conversation {
		t.Helper()
		sess, user := pair()
		conv, _, err := s.CreateOrReuse(ctx, sess, user)
		if err != nil {
			t.Fatalf("CreateOrReuse() error = %v", err)
		}
		return conv
	}

	t.Run("create is idempotent", func(t *testing.T) {
		sess, user := pair()
		first, created, err := s.CreateOrReuse(ctx, sess, user)
		if err != nil {
			t.Fatalf("CreateOrReuse() error = %v", err)
		}
		if !created {
			t.Error("first call should create")
		}
		if first.Status != model.StatusActive || len(first.Messages) != 0 {
			t.Errorf("new conversation = %+v", first)
		}

		second, created, err := s.CreateOrReuse(ctx, sess, user)
		if err != nil {
			t.Fatalf("CreateOrReuse() error = %v", err)
		}
		if created || second.ID != first.ID {
			t.Errorf("second call = (%s, created %v), want reuse of %s", second.ID, created, first.ID)
		}

		other, _, err := s.CreateOrReuse(ctx, sess, user+"-other")
		if err != nil {
			t.Fatalf("CreateOrReuse() error = %v", err)
		}
		if other.ID == first.ID {
			t.Error("different users must get different conversations")
		}
	})

	t.Run("create after completion starts fresh", func(t *testing.T) {
		sess, user := pair()
		first, _, _ := s.CreateOrReuse(ctx, sess, user)
		if _, err := s.MarkCompleted(ctx, first.ID, model.Completion{FinalFeedback: model.FinalFeedback{OverallFeedback: "ok"}}); err != nil {
			t.Fatalf("MarkCompleted() error = %v", err)
		}

		next, created, err := s.CreateOrReuse(ctx, sess, user)
		if err != nil {
			t.Fatalf("CreateOrReuse() error = %v", err)
		}
		if !created || next.ID == first.ID {
			t.Error("a completed conversation must not be reused")
		}
	})

	t.Run("concurrent creates yield one conversation", func(t *testing.T) {
		sess, user := pair()
		const workers = 20
		ids := make(chan string, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conv, _, err := s.CreateOrReuse(ctx, sess, user)
				if err != nil {
					t.Errorf("CreateOrReuse() error = %v", err)
					return
				}
				ids <- conv.ID
			}()
		}
		wg.Wait()
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			seen[id] = true
		}
		if len(seen) != 1 {
			t.Errorf("got %d distinct conversations, want 1", len(seen))
		}
	})

	t.Run("append preserves order", func(t *testing.T) {
		conv := open(t)
		q := model.NewInterviewerMessage("Q1", "", model.QuestionIntroduction, model.DifficultyEasy)
		if _, err := s.AppendMessages(ctx, conv.ID, model.AnyLength, q); err != nil {
			t.Fatal(err)
		}
		got, err := s.AppendMessages(ctx, conv.ID, model.AnyLength,
			model.NewCandidateMessage("A1"),
			model.NewInterviewerMessage("Q2", "good", model.QuestionTechnical, ""),
		)
		if err != nil {
			t.Fatal(err)
		}

		want := []string{"Q1", "A1", "Q2"}
		if len(got.Messages) != len(want) {
			t.Fatalf("len(Messages) = %d, want %d", len(got.Messages), len(want))
		}
		for i, w := range want {
			if got.Messages[i].Text != w {
				t.Errorf("Messages[%d] = %q, want %q", i, got.Messages[i].Text, w)
			}
		}
	})

	t.Run("concurrent appends lose nothing", func(t *testing.T) {
		conv := open(t)
		const workers = 50
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.AppendMessages(ctx, conv.ID, model.AnyLength, model.NewCandidateMessage(fmt.Sprintf("m%d", i))); err != nil {
					t.Errorf("AppendMessages() error = %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, _ := s.Get(ctx, conv.ID)
		if len(got.Messages) != workers {
			t.Errorf("len(Messages) = %d, want %d", len(got.Messages), workers)
		}
	})

	t.Run("guarded append rejects a moved log", func(t *testing.T) {
		conv := open(t)
		if _, err := s.AppendMessages(ctx, conv.ID, 0, model.NewInterviewerMessage("Q1", "", "", "")); err != nil {
			t.Fatalf("AppendMessages(0) error = %v", err)
		}
		_, err := s.AppendMessages(ctx, conv.ID, 0, model.NewInterviewerMessage("Q1 again", "", "", ""))
		if !errors.Is(err, apperr.ErrConversationChanged) {
			t.Errorf("stale AppendMessages() error = %v, want ErrConversationChanged", err)
		}
		if _, err := s.AppendMessages(ctx, conv.ID, 1, model.NewCandidateMessage("A1")); err != nil {
			t.Errorf("AppendMessages(1) error = %v", err)
		}

		got, _ := s.Get(ctx, conv.ID)
		if len(got.Messages) != 2 {
			t.Errorf("len(Messages) = %d, want 2", len(got.Messages))
		}
	})

	t.Run("concurrent guarded appends admit one writer", func(t *testing.T) {
		conv := open(t)
		const workers = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ok      int
			changed int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.AppendMessages(ctx, conv.ID, 0, model.NewInterviewerMessage(fmt.Sprintf("opening %d", i), "", "", ""))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, apperr.ErrConversationChanged):
					changed++
				default:
					t.Errorf("AppendMessages() error = %v", err)
				}
			}(i)
		}
		wg.Wait()

		if ok != 1 || changed != workers-1 {
			t.Errorf("ok = %d, changed = %d, want 1 and %d", ok, changed, workers-1)
		}
		got, _ := s.Get(ctx, conv.ID)
		if len(got.Messages) != 1 {
			t.Errorf("len(Messages) = %d, want 1", len(got.Messages))
		}
	})

	t.Run("guarded completion rejects a moved log", func(t *testing.T) {
		conv := open(t)
		s.AppendMessages(ctx, conv.ID, model.AnyLength, model.NewInterviewerMessage("Q1", "", "", ""))

		stale := 0
		_, err := s.MarkCompleted(ctx, conv.ID, model.Completion{
			FinalFeedback: model.FinalFeedback{OverallFeedback: "ok"},
			ExpectedLen:   &stale,
		})
		if !errors.Is(err, apperr.ErrConversationChanged) {
			t.Fatalf("MarkCompleted() error = %v, want ErrConversationChanged", err)
		}
		got, _ := s.Get(ctx, conv.ID)
		if got.Status != model.StatusActive {
			t.Errorf("status = %v, want active", got.Status)
		}
	})

	t.Run("completed conversation is immutable", func(t *testing.T) {
		conv := open(t)
		closing := model.NewInterviewerMessage("Thanks for your time.", "", "", "")
		done, err := s.MarkCompleted(ctx, conv.ID, model.Completion{
			FinalFeedback: model.FinalFeedback{OverallFeedback: "Solid", Score: "7"},
			Duration:      42,
			Closing:       &closing,
		})
		if err != nil {
			t.Fatalf("MarkCompleted() error = %v", err)
		}
		if done.Status != model.StatusCompleted || done.CompletedAt == nil {
			t.Errorf("status = %v, completedAt = %v", done.Status, done.CompletedAt)
		}
		if done.Duration == nil || *done.Duration != 42 {
			t.Errorf("Duration = %v, want 42", done.Duration)
		}
		if last := done.LastMessage(); last == nil || last.Text != "Thanks for your time." {
			t.Errorf("closing message not appended: %+v", last)
		}

		_, err = s.AppendMessages(ctx, conv.ID, model.AnyLength, model.NewCandidateMessage("late"))
		if !errors.Is(err, apperr.ErrConversationCompleted) {
			t.Errorf("AppendMessages() error = %v, want ErrConversationCompleted", err)
		}
		_, err = s.MarkCompleted(ctx, conv.ID, model.Completion{})
		if !errors.Is(err, apperr.ErrConversationCompleted) {
			t.Errorf("MarkCompleted() error = %v, want ErrConversationCompleted", err)
		}

		got, _ := s.Get(ctx, conv.ID)
		if len(got.Messages) != 1 || got.FinalFeedback == nil || got.FinalFeedback.OverallFeedback != "Solid" {
			t.Errorf("completed conversation changed: %+v", got)
		}
	})

	t.Run("missing conversation", func(t *testing.T) {
		missing := uuid.Must(uuid.NewV7()).String()
		if _, err := s.Get(ctx, missing); !errors.Is(err, apperr.ErrConversationNotFound) {
			t.Errorf("Get() error = %v", err)
		}
		if _, err := s.AppendMessages(ctx, missing, model.AnyLength, model.NewCandidateMessage("x")); !errors.Is(err, apperr.ErrConversationNotFound) {
			t.Errorf("AppendMessages() error = %v", err)
		}
		if _, err := s.MarkCompleted(ctx, missing, model.Completion{}); !errors.Is(err, apperr.ErrConversationNotFound) {
			t.Errorf("MarkCompleted() error = %v", err)
		}
	})
}

func testPrefix() string {
	return "t" + uuid.NewString()[:8] + "-"
}
