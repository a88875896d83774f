package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wiredesk/internal/store"
	"github.com/vovakirdan/wiredesk/internal/store/sqlite"
)

type testStack struct {
	store      *sqlite.SQLiteStore
	registry   *Registry
	assignment *AssignmentService
	pipeline   *Pipeline
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry := NewRegistry(nil)
	t.Cleanup(registry.Close)

	assignment := NewAssignmentService(st, st, nil, time.Second, nil)
	pipeline := NewPipeline(st, assignment, NewBroadcaster(registry, nil), time.Second, nil)

	return &testStack{
		store:      st,
		registry:   registry,
		assignment: assignment,
		pipeline:   pipeline,
	}
}

func (ts *testStack) mustAgent(t *testing.T, id string) {
	t.Helper()
	if err := ts.store.CreateAgent(context.Background(), &store.Agent{ID: id, Email: id + "@example.com"}); err != nil {
		t.Fatalf("create agent: %v", err)
	}
}

func (ts *testStack) mustSession(t *testing.T, id string, kind store.SenderType, buffer int) *Session {
	t.Helper()
	s := NewSession(id, kind, id, buffer)
	if err := ts.registry.Register(s); err != nil {
		t.Fatalf("register session: %v", err)
	}
	return s
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed while waiting for kind %v", kind)
			}
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
