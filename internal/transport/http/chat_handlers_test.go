package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/vovakirdan/wiredesk/internal/core"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestUserSession(t *testing.T) {
	env := newTestEnv(t)

	var session SessionResponse
	if code := env.do(t, http.MethodPost, "/api/session", "", nil, &session); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if session.Token == "" || session.UserID == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := env.auth.ValidateToken(session.Token)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.Subject != session.UserID {
		t.Fatalf("expected subject %q, got %q", session.UserID, claims.Subject)
	}
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.userToken(t, "u1")

	var errResp ErrorResponse
	if code := env.do(t, http.MethodPost, "/api/chats/messages/user", "", SubmitMessageRequest{Message: "hi"}, &errResp); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/chats/messages/user", "garbage", SubmitMessageRequest{Message: "hi"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/chats/messages/agent", userToken, SubmitMessageRequest{ChatID: "c1", Message: "hi"}, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for user on agent route, got %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/chats/c1/claim", userToken, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for user claim, got %d", code)
	}
}

func TestSupportConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.userToken(t, "u1")
	agentA := env.agentToken(t, "agent-a")
	agentB := env.agentToken(t, "agent-b")

	// First user message opens a chat.
	var first MessageResponse
	code := env.do(t, http.MethodPost, "/api/chats/messages/user", userToken, SubmitMessageRequest{Message: "my parcel is lost"}, &first)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if first.ChatID == "" || first.SenderType != "user" || first.SenderID != "u1" {
		t.Fatalf("unexpected message: %+v", first)
	}

	var chat ChatResponse
	if code := env.do(t, http.MethodGet, "/api/chats/"+first.ChatID, agentA, nil, &chat); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if chat.Assigned {
		t.Fatalf("new chat must be unassigned")
	}

	// Agent A claims it; agent B is too late.
	var claim ClaimResponse
	if code := env.do(t, http.MethodPost, "/api/chats/"+first.ChatID+"/claim", agentA, nil, &claim); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !claim.Chat.Assigned || claim.AgentID != "agent-a" || len(claim.AssignedChats) != 1 {
		t.Fatalf("unexpected claim: %+v", claim)
	}
	var conflict ErrorResponse
	if code := env.do(t, http.MethodPost, "/api/chats/"+first.ChatID+"/claim", agentB, nil, &conflict); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if conflict.Code != core.ErrCodeChatUnavailable {
		t.Fatalf("unexpected error code %q", conflict.Code)
	}

	// Agent replies; history shows both messages in order.
	var reply MessageResponse
	code = env.do(t, http.MethodPost, "/api/chats/messages/agent", agentA, SubmitMessageRequest{ChatID: first.ChatID, Message: "looking into it"}, &reply)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var history []MessageResponse
	if code := env.do(t, http.MethodGet, "/api/chats/"+first.ChatID+"/messages", userToken, nil, &history); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(history) != 2 || history[0].ID != first.ID || history[1].ID != reply.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	var agentChats []ChatResponse
	if code := env.do(t, http.MethodGet, "/api/agents/agent-a/chats", agentA, nil, &agentChats); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(agentChats) != 1 || agentChats[0].ID != first.ChatID {
		t.Fatalf("unexpected agent chats: %+v", agentChats)
	}
}

func TestAgentMessageToMissingChat(t *testing.T) {
	env := newTestEnv(t)
	agent := env.agentToken(t, "a1")

	var errResp ErrorResponse
	code := env.do(t, http.MethodPost, "/api/chats/messages/agent", agent, SubmitMessageRequest{ChatID: "ghost", Message: "hello?"}, &errResp)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if errResp.Code != core.ErrCodeChatNotFound {
		t.Fatalf("unexpected error code %q", errResp.Code)
	}
}

func TestSubmitValidationReasons(t *testing.T) {
	env := newTestEnv(t)
	user := env.userToken(t, "u1")
	agent := env.agentToken(t, "a1")

	tests := []struct {
		name  string
		path  string
		token string
		body  any
		want  string
	}{
		{
			name:  "empty message",
			path:  "/api/chats/messages/user",
			token: user,
			body:  SubmitMessageRequest{ChatID: "c1"},
			want:  "message content is required",
		},
		{
			name:  "blank message",
			path:  "/api/chats/messages/user",
			token: user,
			body:  SubmitMessageRequest{ChatID: "c1", Message: "   "},
			want:  "message content is required",
		},
		{
			name:  "canned without template",
			path:  "/api/chats/messages/canned",
			token: agent,
			body:  SubmitCannedRequest{ChatID: "c1"},
			want:  "canned message id is required",
		},
		{
			name:  "canned without chat",
			path:  "/api/chats/messages/canned",
			token: agent,
			body:  SubmitCannedRequest{CannedID: 1},
			want:  "chat id is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp ErrorResponse
			if code := env.do(t, http.MethodPost, tt.path, tt.token, tt.body, &errResp); code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", code)
			}
			if errResp.Code != core.ErrCodeValidation || errResp.Error != tt.want {
				t.Fatalf("expected %s %q, got %+v", core.ErrCodeValidation, tt.want, errResp)
			}
		})
	}
}

func TestClaimForAnotherAgent(t *testing.T) {
	env := newTestEnv(t)
	lead := env.agentToken(t, "lead")
	env.agentToken(t, "junior")

	if _, err := env.store.GetChat(context.Background(), "c1"); err == nil {
		t.Fatalf("chat should not exist yet")
	}
	userToken := env.userToken(t, "u1")
	if code := env.do(t, http.MethodPost, "/api/chats/messages/user", userToken, SubmitMessageRequest{ChatID: "c1", Message: "hi"}, nil); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var errResp ErrorResponse
	if code := env.do(t, http.MethodPost, "/api/chats/c1/claim", lead, ClaimRequest{AgentID: "nobody"}, &errResp); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agent, got %d", code)
	}

	var claim ClaimResponse
	if code := env.do(t, http.MethodPost, "/api/chats/c1/claim", lead, ClaimRequest{AgentID: "junior"}, &claim); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if claim.AgentID != "junior" {
		t.Fatalf("expected junior to own the chat, got %q", claim.AgentID)
	}
}

func TestUrgencyAndSearch(t *testing.T) {
	env := newTestEnv(t)
	agent := env.agentToken(t, "a1")
	userToken := env.userToken(t, "u1")

	var msg MessageResponse
	if code := env.do(t, http.MethodPost, "/api/chats/messages/user", userToken, SubmitMessageRequest{ChatID: "c1", Message: "Card charged twice"}, &msg); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var marked MessageResponse
	if code := env.do(t, http.MethodPatch, fmt.Sprintf("/api/messages/%d/urgent", msg.ID), agent, nil, &marked); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !marked.IsUrgent {
		t.Fatalf("expected urgent message")
	}
	if code := env.do(t, http.MethodPatch, "/api/messages/abc/urgent", agent, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", code)
	}

	var chat ChatResponse
	if code := env.do(t, http.MethodPatch, "/api/chats/c1/urgent", agent, nil, &chat); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !chat.IsUrgent {
		t.Fatalf("expected urgent chat")
	}

	var urgent []MessageResponse
	if code := env.do(t, http.MethodGet, "/api/messages/urgent", agent, nil, &urgent); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(urgent) != 1 || urgent[0].ID != msg.ID {
		t.Fatalf("unexpected urgent list: %+v", urgent)
	}

	var found []MessageResponse
	if code := env.do(t, http.MethodGet, "/api/messages/search?q=charged", agent, nil, &found); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(found))
	}
	if code := env.do(t, http.MethodGet, "/api/messages/search?q=", agent, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", code)
	}
}

func TestCannedMessageEndpoint(t *testing.T) {
	env := newTestEnv(t)
	agent := env.agentToken(t, "a1")

	canned, err := env.store.CreateCannedMessage(context.Background(), "hello", "Hi! How can I help?")
	if err != nil {
		t.Fatalf("create canned: %v", err)
	}
	userToken := env.userToken(t, "u1")
	if code := env.do(t, http.MethodPost, "/api/chats/messages/user", userToken, SubmitMessageRequest{ChatID: "c1", Message: "hey"}, nil); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	var msg MessageResponse
	if code := env.do(t, http.MethodPost, "/api/chats/messages/canned", agent, SubmitCannedRequest{ChatID: "c1", CannedID: canned.ID}, &msg); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if msg.Message != canned.Content || msg.SenderType != "agent" {
		t.Fatalf("unexpected canned message: %+v", msg)
	}

	var errResp ErrorResponse
	if code := env.do(t, http.MethodPost, "/api/chats/messages/canned", agent, SubmitCannedRequest{ChatID: "c1", CannedID: canned.ID + 9}, &errResp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if errResp.Code != core.ErrCodeCannedNotFound {
		t.Fatalf("unexpected code %q", errResp.Code)
	}
}

func TestErrorToResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{
			name:   "store unavailable hides cause",
			err:    &core.CoreError{Code: core.ErrCodeStoreUnavailable, Message: "store temporarily unavailable", Kind: core.ErrStoreUnavailable, Err: errors.New("disk I/O error")},
			status: http.StatusServiceUnavailable,
			code:   core.ErrCodeStoreUnavailable,
			msg:    "service temporarily unavailable",
		},
		{
			name:   "inconsistency is generic",
			err:    &core.CoreError{Code: core.ErrCodeAssignmentInconsistency, Message: "chat assigned without owning agent", Kind: core.ErrAssignmentInconsistency},
			status: http.StatusInternalServerError,
			code:   "internal_error",
			msg:    "internal server error",
		},
		{
			name:   "wrapped sentinel",
			err:    fmt.Errorf("get chat: %w", core.ErrChatNotFound),
			status: http.StatusNotFound,
			code:   core.ErrCodeChatNotFound,
			msg:    "chat not found",
		},
		{
			name:   "unknown",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
			msg:    "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := errorToResponse(tt.err)
			if status != tt.status || resp.Code != tt.code || resp.Error != tt.msg {
				t.Fatalf("got %d %+v", status, resp)
			}
		})
	}
}
