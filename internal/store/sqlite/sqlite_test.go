package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wiredesk/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateChatDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateChat(ctx, &store.Chat{ID: "c1"}); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	err := s.CreateChat(ctx, &store.Chat{ID: "c1"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	chat, err := s.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.Assigned || chat.IsUrgent {
		t.Fatalf("unexpected flags on new chat: %+v", chat)
	}

	if _, err := s.GetChat(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimChatOnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateChat(ctx, &store.Chat{ID: "c1"}); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	const claimers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimChat(ctx, "c1")
			if err != nil {
				t.Errorf("claim chat: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", wins)
	}

	ok, err := s.ClaimChat(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("claim on missing chat: ok=%v err=%v", ok, err)
	}
}

func TestAddAssignedChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAgent(ctx, &store.Agent{ID: "a1", Email: "a1@example.com"}); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if err := s.CreateAgent(ctx, &store.Agent{ID: "a2", Email: "a1@example.com"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused email, got %v", err)
	}
	for _, id := range []string{"c1", "c2"} {
		if err := s.CreateChat(ctx, &store.Chat{ID: id}); err != nil {
			t.Fatalf("create chat: %v", err)
		}
	}

	if err := s.AddAssignedChat(ctx, "a1", "c1"); err != nil {
		t.Fatalf("add assigned chat: %v", err)
	}
	// Re-adding is a no-op: the set never holds duplicates.
	if err := s.AddAssignedChat(ctx, "a1", "c1"); err != nil {
		t.Fatalf("re-add assigned chat: %v", err)
	}
	if err := s.AddAssignedChat(ctx, "a1", "c2"); err != nil {
		t.Fatalf("add assigned chat: %v", err)
	}
	if err := s.AddAssignedChat(ctx, "nobody", "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing agent, got %v", err)
	}

	agent, err := s.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if len(agent.AssignedChats) != 2 {
		t.Fatalf("expected 2 assigned chats, got %v", agent.AssignedChats)
	}

	chats, err := s.ListAgentChats(ctx, "a1")
	if err != nil {
		t.Fatalf("list agent chats: %v", err)
	}
	if len(chats) != 2 || chats[0].ID != "c1" || chats[1].ID != "c2" {
		t.Fatalf("unexpected agent chats: %+v", chats)
	}
}

func TestListMessagesOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	inputs := []struct {
		body string
		at   time.Time
	}{
		{"first", base},
		{"tie-a", base.Add(time.Second)},
		{"tie-b", base.Add(time.Second)},
		{"last", base.Add(2 * time.Second)},
	}
	for _, in := range inputs {
		msg := &store.Message{
			SenderType: store.SenderUser,
			SenderID:   "u1",
			ChatID:     "c1",
			Body:       in.body,
			CreatedAt:  in.at,
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		if msg.ID == 0 {
			t.Fatalf("expected message id to be assigned")
		}
	}

	messages, err := s.ListMessages(ctx, "c1", 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	want := []string{"first", "tie-a", "tie-b", "last"}
	if len(messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(messages))
	}
	for i, msg := range messages {
		if msg.Body != want[i] {
			t.Errorf("expected %q at index %d, got %q", want[i], i, msg.Body)
		}
	}
	if !messages[0].CreatedAt.Equal(base) {
		t.Errorf("expected created_at round trip, got %v", messages[0].CreatedAt)
	}

	before := messages[2].ID
	older, err := s.ListMessages(ctx, "c1", 10, &before)
	if err != nil {
		t.Fatalf("list older messages: %v", err)
	}
	if len(older) != 2 || older[1].Body != "tie-a" {
		t.Fatalf("unexpected page: %+v", older)
	}
}

func TestListMessagesPagesOnOrderingKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The third message was stamped after a clock step back, so ids and timestamps disagree.
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	stamps := []struct {
		body string
		at   time.Time
	}{
		{"b", base.Add(10 * time.Second)},
		{"c", base.Add(20 * time.Second)},
		{"a", base.Add(5 * time.Second)},
	}
	ids := make(map[string]int64)
	for _, st := range stamps {
		msg := &store.Message{SenderType: store.SenderUser, SenderID: "u1", ChatID: "c1", Body: st.body, CreatedAt: st.at}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		ids[st.body] = msg.ID
	}

	tests := []struct {
		name   string
		before string
		want   []string
	}{
		{name: "before oldest id", before: "b", want: []string{"a"}},
		{name: "before newest", before: "c", want: []string{"a", "b"}},
		{name: "before earliest timestamp", before: "a", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := ids[tt.before]
			page, err := s.ListMessages(ctx, "c1", 10, &before)
			if err != nil {
				t.Fatalf("list messages: %v", err)
			}
			if len(page) != len(tt.want) {
				t.Fatalf("expected %v, got %d messages", tt.want, len(page))
			}
			for i, msg := range page {
				if msg.Body != tt.want[i] {
					t.Fatalf("expected %q at index %d, got %q", tt.want[i], i, msg.Body)
				}
			}
		})
	}

	missing := int64(9999)
	page, err := s.ListMessages(ctx, "c1", 10, &missing)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page for unknown cursor, got %d", len(page))
	}
}

func TestSearchAndUrgentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bodies := []string{"My order is late", "Where is my ORDER?", "thanks", "100% broken"}
	var ids []int64
	for _, b := range bodies {
		msg := &store.Message{SenderType: store.SenderUser, SenderID: "u1", ChatID: "c1", Body: b, CreatedAt: time.Now()}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "case insensitive", query: "order", want: 2},
		{name: "no match", query: "refund", want: 0},
		{name: "percent is literal", query: "100%", want: 1},
		{name: "underscore is literal", query: "_", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchMessages(ctx, tt.query, 50)
			if err != nil {
				t.Fatalf("search messages: %v", err)
			}
			if len(results) != tt.want {
				t.Fatalf("expected %d results, got %d", tt.want, len(results))
			}
		})
	}

	marked, err := s.MarkMessageUrgent(ctx, ids[3])
	if err != nil {
		t.Fatalf("mark urgent: %v", err)
	}
	if !marked.IsUrgent {
		t.Fatalf("expected message to be urgent")
	}
	if _, err := s.MarkMessageUrgent(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	urgent, err := s.ListUrgentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("list urgent: %v", err)
	}
	if len(urgent) != 1 || urgent[0].ID != ids[3] {
		t.Fatalf("unexpected urgent messages: %+v", urgent)
	}
}

func TestCannedMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateCannedMessage(ctx, "greeting", "Hi, how can we help?")
	if err != nil {
		t.Fatalf("create canned: %v", err)
	}
	got, err := s.GetCannedMessage(ctx, created.ID)
	if err != nil {
		t.Fatalf("get canned: %v", err)
	}
	if got.Content != "Hi, how can we help?" {
		t.Fatalf("unexpected canned content: %q", got.Content)
	}
	if _, err := s.GetCannedMessage(ctx, created.ID+1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
