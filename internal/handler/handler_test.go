package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/prepwise/mock-interview/internal/generation"
	"github.com/prepwise/mock-interview/internal/llm/llmtest"
	"github.com/prepwise/mock-interview/internal/model"
	natsclient "github.com/prepwise/mock-interview/internal/nats"
	"github.com/prepwise/mock-interview/internal/service"
	"github.com/prepwise/mock-interview/internal/store"
	"github.com/prepwise/mock-interview/pkg/logger"
)

const (
	jwtSecret = "handler-test-secret"

	startReply    = `{"message":"Hi! Tell me about REST.","questionType":"introduction","difficulty":"easy","expectsResponse":true}`
	continueReply = `{"message":"Good, what about idempotence?","feedback":"Solid basics","questionType":"follow-up","difficulty":"medium","expectsResponse":true}`
	endReply      = `{"message":"Thanks!","overallFeedback":"Clear answers.","strengths":["REST"],"improvements":[],"score":"7/10","recommendedActions":[],"expectsResponse":false}`
)

type testAPI struct {
	handler http.Handler
	store   *store.MemoryStore
	stub    *llmtest.Stub
}

func newTestAPI(t *testing.T, replies ...string) *testAPI {
	t.Helper()
	return newTestAPIWith(t, nil, replies...)
}

// newTestAPIWith lets configure adjust the router settings before the
// router is built.
func newTestAPIWith(t *testing.T, configure func(*RouterConfig), replies ...string) *testAPI {
	t.Helper()

	log := logger.NewNop()
	st := store.NewMemoryStore()
	st.PutSession(model.Session{
		ID:            "sess-1",
		UserID:        "user-1",
		Role:          "Backend Engineer",
		Experience:    "2",
		TopicsToFocus: "Node.js, databases",
	})
	bus := natsclient.NewLocalBus()
	stub := llmtest.New(replies...)
	gen := generation.New(stub, generation.Config{Model: "stub-model", Timeout: time.Second}, log)
	convs := service.NewConversationService(st, st, bus, log)

	cfg := RouterConfig{
		Logger:        log,
		Conversations: convs,
		Interview:     service.NewInterviewService(convs, gen, log),
		Generator:     gen,
		Store:         st,
		Bus:           bus,
		JWTSecret:     jwtSecret,
	}
	if configure != nil {
		configure(&cfg)
	}

	return &testAPI{
		handler: NewRouter(cfg),
		store:   st,
		stub:    stub,
	}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (a *testAPI) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func (a *testAPI) create(t *testing.T) string {
	t.Helper()
	rec := a.do(t, "user-1", http.MethodPost, "/api/v1/conversations/create", map[string]string{"sessionId": "sess-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[model.ConversationResponse](t, rec).Conversation.ID
}

func TestInterviewFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t, startReply, continueReply, endReply)

	id := api.create(t)

	rec := api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/create", map[string]string{"sessionId": "sess-1"})
	if rec.Code != http.StatusOK {
		t.Errorf("reuse status = %d, want 200", rec.Code)
	}
	if got := decode[model.ConversationResponse](t, rec).Conversation.ID; got != id {
		t.Errorf("reused ID = %s, want %s", got, id)
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	started := decode[model.AppendMessageResponse](t, rec)
	if started.NewMessage == nil || started.NewMessage.Text != "Hi! Tell me about REST." {
		t.Errorf("start newMessage = %+v", started.NewMessage)
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/advance", model.AdvanceRequest{UserResponse: "REST uses HTTP verbs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("advance status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := len(decode[model.AppendMessageResponse](t, rec).Conversation.Messages); n != 3 {
		t.Errorf("messages after advance = %d, want 3", n)
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/finish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish status = %d: %s", rec.Code, rec.Body.String())
	}
	done := decode[model.ConversationResponse](t, rec).Conversation
	if done.Status != model.StatusCompleted || done.FinalFeedback == nil || done.FinalFeedback.Score != "7/10" {
		t.Errorf("finished conversation = %+v", done)
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/advance", model.AdvanceRequest{UserResponse: "wait"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("advance after finish status = %d, want 400", rec.Code)
	}

	rec = api.do(t, "user-1", http.MethodGet, "/api/v1/conversations/my-conversations", nil)
	if got := decode[model.ListConversationsResponse](t, rec).Conversations; len(got) != 1 {
		t.Errorf("my-conversations len = %d, want 1", len(got))
	}
}

func TestClientDrivenConversation(t *testing.T) {
	api := newTestAPI(t)
	id := api.create(t)

	rec := api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/message", model.AppendMessageRequest{
		Sender:       model.SenderInterviewer,
		Message:      "Tell me about yourself.",
		QuestionType: model.QuestionIntroduction,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("message status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[model.AppendMessageResponse](t, rec)
	if resp.NewMessage == nil || resp.NewMessage.Text != "Tell me about yourself." {
		t.Errorf("newMessage = %+v", resp.NewMessage)
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/complete", model.CompleteConversationRequest{
		FinalFeedback: &model.FinalFeedback{OverallFeedback: "Good", Score: "8"},
		Duration:      120,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, "user-1", http.MethodGet, "/api/v1/conversations/"+id, nil)
	conv := decode[model.ConversationResponse](t, rec).Conversation
	if conv.Duration == nil || *conv.Duration != 120 {
		t.Errorf("Duration = %v, want 120", conv.Duration)
	}
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, "not json at all")
	id := api.create(t)

	tests := []struct {
		name       string
		user       string
		method     string
		path       string
		body       any
		wantStatus int
		wantDetail bool
	}{
		{"unauthenticated", "", http.MethodGet, "/api/v1/conversations/my-conversations", nil, http.StatusUnauthorized, false},
		{"bad id", "user-1", http.MethodGet, "/api/v1/conversations/abc", nil, http.StatusBadRequest, false},
		{"missing conversation", "user-1", http.MethodGet, "/api/v1/conversations/0190b7a4-2c1e-7b3a-9f00-1a2b3c4d5e6f", nil, http.StatusNotFound, false},
		{"foreign conversation", "user-2", http.MethodGet, "/api/v1/conversations/" + id, nil, http.StatusForbidden, false},
		{"missing session id", "user-1", http.MethodPost, "/api/v1/conversations/create", map[string]string{}, http.StatusBadRequest, false},
		{"bad sender", "user-1", http.MethodPost, "/api/v1/conversations/" + id + "/message", map[string]string{"sender": "bot", "message": "x"}, http.StatusBadRequest, false},
		{"missing params", "user-1", http.MethodPost, "/api/v1/ai/start-conversation", map[string]string{"role": "SRE"}, http.StatusBadRequest, false},
		{"malformed generation", "user-1", http.MethodPost, "/api/v1/ai/start-conversation", map[string]any{"role": "SRE", "experience": 3, "topicsToFocus": "k8s"}, http.StatusInternalServerError, true},
		{"exhausted generation", "user-1", http.MethodPost, "/api/v1/ai/generate-explanation", map[string]string{"question": "What is CAP?"}, http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.user, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decode[map[string]any](t, rec)
			if msg, _ := body["message"].(string); msg == "" {
				t.Errorf("body %v has no message", body)
			}
			if _, ok := body["error"]; ok != tt.wantDetail {
				t.Errorf("error detail present = %v, want %v", ok, tt.wantDetail)
			}
		})
	}
}

func TestUpstreamErrorsAreRetryable(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, "user-1", http.MethodPost, "/api/v1/ai/generate-explanation", map[string]string{"question": "What is CAP?"})

	body := decode[errorResponse](t, rec)
	if body.Retryable == nil || !*body.Retryable {
		t.Errorf("retryable = %v, want true", body.Retryable)
	}
}

func TestStatelessAIEndpoints(t *testing.T) {
	api := newTestAPI(t, continueReply, `[{"question":"What is REST?","answer":"A style."}]`)

	rec := api.do(t, "user-1", http.MethodPost, "/api/v1/ai/continue-conversation", map[string]any{
		"role":          "Backend Engineer",
		"experience":    2,
		"topicsToFocus": "Node.js",
		"conversationHistory": []map[string]string{
			{"sender": "interviewer", "message": "Tell me about REST."},
		},
		"userResponse": "REST uses HTTP verbs",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("continue status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[generation.ContinueResult](t, rec)
	if res.Feedback != "Solid basics" || !res.ExpectsResponse {
		t.Errorf("continue result = %+v", res)
	}
	if !strings.Contains(api.stub.Prompts()[0], "Tell me about REST.") {
		t.Error("client history should be embedded in the prompt")
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/ai/end-conversation", map[string]any{
		"role": "Backend Engineer", "experience": 2, "topicsToFocus": "Node.js",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("end without history status = %d, want 400", rec.Code)
	}
	if api.stub.Calls() != 1 {
		t.Errorf("generation calls = %d, want 1", api.stub.Calls())
	}

	rec = api.do(t, "user-1", http.MethodPost, "/api/v1/ai/generate-questions", map[string]any{
		"role": "Backend Engineer", "experience": "2", "topicsToFocus": "Node.js", "numberOfQuestions": 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("questions status = %d: %s", rec.Code, rec.Body.String())
	}
	if qs := decode[[]generation.QuestionAnswer](t, rec); len(qs) != 1 {
		t.Errorf("questions = %+v", qs)
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/health", "/ready"} {
		rec := api.do(t, "", http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestPublicRoutesAreRateLimited(t *testing.T) {
	api := newTestAPIWith(t, func(cfg *RouterConfig) {
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/metrics", http.StatusTooManyRequests},
		{"/health", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		if rec := api.do(t, "", http.MethodGet, tt.path, nil); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestStreamReplaysCompletedConversation(t *testing.T) {
	api := newTestAPI(t)
	id := api.create(t)
	api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/message", model.AppendMessageRequest{Sender: model.SenderInterviewer, Message: "Q1"})
	api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/complete", model.CompleteConversationRequest{FinalFeedback: &model.FinalFeedback{OverallFeedback: "ok"}})

	rec := api.do(t, "user-1", http.MethodGet, "/api/v1/conversations/"+id+"/stream", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"event: connected", "event: message", `"message":"Q1"`, "event: replay_complete", `"live":false`} {
		if !strings.Contains(body, want) {
			t.Errorf("stream body missing %q:\n%s", want, body)
		}
	}
}

func TestStreamDeliversLiveEvents(t *testing.T) {
	tests := []struct {
		name         string
		writeTimeout time.Duration
		idle         time.Duration
	}{
		{name: "immediate"},
		{name: "past write timeout", writeTimeout: 200 * time.Millisecond, idle: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			id := api.create(t)

			srv := httptest.NewUnstartedServer(api.handler)
			srv.Config.WriteTimeout = tt.writeTimeout
			srv.Start()
			defer srv.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/conversations/"+id+"/stream", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, "user-1"))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			lines := bufio.NewScanner(resp.Body)
			waitFor := func(event string) string {
				t.Helper()
				for lines.Scan() {
					if lines.Text() == "event: "+event {
						lines.Scan()
						return strings.TrimPrefix(lines.Text(), "data: ")
					}
				}
				t.Fatalf("stream ended before %s: %v", event, lines.Err())
				return ""
			}

			waitFor("replay_complete")
			time.Sleep(tt.idle)

			api.do(t, "user-1", http.MethodPost, "/api/v1/conversations/"+id+"/message", model.AppendMessageRequest{Sender: model.SenderCandidate, Message: "live answer"})

			var event model.ConversationEvent
			if err := json.Unmarshal([]byte(waitFor(string(model.EventMessageAppended))), &event); err != nil {
				t.Fatal(err)
			}
			if len(event.Messages) != 1 || event.Messages[0].Text != "live answer" {
				t.Errorf("live event = %+v", event)
			}
			if event.MessageCount != 1 {
				t.Errorf("MessageCount = %d, want 1", event.MessageCount)
			}
		})
	}
}
