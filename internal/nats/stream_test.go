package nats

import (
	"context"
	"testing"

	"github.com/prepwise/mock-interview/internal/model"
)

func TestEventSubject(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		conv     string
		typ      model.EventType
		expected string
	}{
		{"plain", "user-1", "conv-1", model.EventMessageAppended, "interview.user-1.conv-1.message_appended"},
		{"dotted user", "a.b@example.com", "c1", model.EventConversationCreated, "interview.a_b@example_com.c1.conversation_created"},
		{"wildcards", "u*", "c>", model.EventConversationCompleted, "interview.u_.c_.conversation_completed"},
		{"empty user", "", "c1", model.EventMessageAppended, "interview._.c1.message_appended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EventSubject(tt.user, tt.conv, tt.typ); got != tt.expected {
				t.Errorf("EventSubject() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConversationFilter(t *testing.T) {
	if got := ConversationFilter("user-1", "conv-1"); got != "interview.user-1.conv-1.>" {
		t.Errorf("ConversationFilter() = %q", got)
	}
}

func TestLocalBusDelivery(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	var got []model.EventType
	stop, err := bus.Subscribe(ctx, "user-1", "conv-1", func(e model.ConversationEvent) {
		got = append(got, e.Type)
	})
	if err != nil {
		t.Fatal(err)
	}

	bus.Publish(ctx, &model.ConversationEvent{UserID: "user-1", ConversationID: "conv-1", Type: model.EventMessageAppended})
	bus.Publish(ctx, &model.ConversationEvent{UserID: "user-1", ConversationID: "conv-2", Type: model.EventMessageAppended})
	bus.Publish(ctx, &model.ConversationEvent{UserID: "user-2", ConversationID: "conv-1", Type: model.EventMessageAppended})

	stop()
	stop()
	bus.Publish(ctx, &model.ConversationEvent{UserID: "user-1", ConversationID: "conv-1", Type: model.EventConversationCompleted})

	if len(got) != 1 || got[0] != model.EventMessageAppended {
		t.Errorf("delivered = %v, want [message.appended]", got)
	}
	if len(bus.subs) != 0 {
		t.Errorf("subscriptions left = %d, want 0", len(bus.subs))
	}
}
