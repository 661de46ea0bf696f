package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prepwise/mock-interview/internal/middleware"
	"github.com/prepwise/mock-interview/internal/model"
	natsclient "github.com/prepwise/mock-interview/internal/nats"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/pkg/logger"
	"github.com/prepwise/mock-interview/pkg/metrics"
)

const (
	defaultHeartbeat = 30 * time.Second
	eventBuffer      = 64
)

// StreamHandler serves a conversation as server-sent events.
type StreamHandler struct {
	service   *service.ConversationService
	bus       natsclient.Bus
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler. bus may be nil, in which
// case the stream ends after the replay.
func NewStreamHandler(svc *service.ConversationService, bus natsclient.Bus, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service:   svc,
		bus:       bus,
		logger:    log.Named("stream"),
		heartbeat: defaultHeartbeat,
	}
}

// Stream handles GET /api/v1/conversations/{id}/stream. It replays the
// stored log as message events, then forwards live conversation events
// until the client leaves or the conversation completes.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")
	log := middleware.RequestLogger(ctx, h.logger).With(zap.String("conversation_id", conversationID))

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if _, err := h.service.Get(ctx, userID, conversationID); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before taking the snapshot so nothing falls between them.
	events := make(chan model.ConversationEvent, eventBuffer)
	live := false
	if h.bus != nil {
		stop, err := h.bus.Subscribe(ctx, userID, conversationID, func(e model.ConversationEvent) {
			select {
			case events <- e:
			default:
				log.Warn("dropping event for slow stream client", zap.String("type", string(e.Type)))
			}
		})
		if err != nil {
			log.Warn("live updates unavailable", zap.Error(err))
		} else {
			live = true
			defer stop()
		}
	}

	conv, err := h.service.Get(ctx, userID, conversationID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	// Streams outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug("could not clear write deadline", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversationId": conversationID,
		"status":         string(conv.Status),
	})
	for _, msg := range conv.Messages {
		if err := sendSSEEvent(w, flusher, "message", msg); err != nil {
			return
		}
	}
	replayed := len(conv.Messages)
	sendSSEEvent(w, flusher, "replay_complete", &model.ReplayCompleteEvent{
		MessageCount: replayed,
		Live:         live && !conv.Status.IsTerminal(),
	})

	log.Debug("stream replay complete", zap.Int("messages_replayed", replayed))

	if !live || conv.Status.IsTerminal() {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{Timestamp: time.Now().UTC()})

		case e := <-events:
			if e.MessageCount <= replayed && e.Type == model.EventMessageAppended {
				continue
			}
			if e.MessageCount > replayed {
				replayed = e.MessageCount
			}
			if err := sendSSEEvent(w, flusher, string(e.Type), e); err != nil {
				return
			}
			if e.Type == model.EventConversationCompleted {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
