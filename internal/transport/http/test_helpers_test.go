package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/config"
	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/service/desk"
	"github.com/vovakirdan/wiredesk/internal/store"
	"github.com/vovakirdan/wiredesk/internal/store/sqlite"
)

type testEnv struct {
	server   *httptest.Server
	handler  http.Handler
	store    *sqlite.SQLiteStore
	auth     *auth.Service
	registry *core.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.New(nil)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	registry := core.NewRegistry(&disabledLogger)
	assignment := core.NewAssignmentService(st, st, nil, time.Second, &disabledLogger)
	pipeline := core.NewPipeline(st, assignment, core.NewBroadcaster(registry, &disabledLogger), time.Second, &disabledLogger)

	server := NewServer(Services{
		Pipeline:   pipeline,
		Assignment: assignment,
		Registry:   registry,
		Desk:       desk.New(st),
		Auth:       authService,
	}, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(registry.Close)

	return &testEnv{
		server:   ts,
		handler:  server.Handler,
		store:    st,
		auth:     authService,
		registry: registry,
	}
}

func (e *testEnv) agentToken(t *testing.T, id string) string {
	t.Helper()

	ctx := context.Background()
	if _, err := e.store.GetAgent(ctx, id); err != nil {
		if err := e.store.CreateAgent(ctx, &store.Agent{ID: id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}
	token, _, err := e.auth.IssueToken(ctx, store.SenderAgent, id)
	if err != nil {
		t.Fatalf("issue agent token: %v", err)
	}
	return token
}

func (e *testEnv) userToken(t *testing.T, id string) string {
	t.Helper()

	token, _, err := e.auth.IssueToken(context.Background(), store.SenderUser, id)
	if err != nil {
		t.Fatalf("issue user token: %v", err)
	}
	return token
}

// do sends a request through the router and decodes a JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.handler.ServeHTTP(resp, req)

	if out != nil {
		if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
			t.Fatalf("unmarshal response (%d %s): %v", resp.Code, resp.Body.String(), err)
		}
	}
	return resp.Code
}
