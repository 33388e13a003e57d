package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func conversationPage(count int, hasMore bool, nextCursor string) string {
	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, fmt.Sprintf(`{"conversation_id":"conv_%s_%d"}`, nextCursor, i))
	}
	page := fmt.Sprintf(`{"conversations":[%s],"has_more":%t`, strings.Join(items, ","), hasMore)
	if nextCursor != "" {
		page += fmt.Sprintf(`,"next_cursor":%q`, nextCursor)
	}
	return page + "}"
}

func TestAllConversationsWalksCursorPages(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(conversationPage(100, true, "c2")))
		case "c2":
			_, _ = w.Write([]byte(conversationPage(100, true, "c3")))
		case "c3":
			_, _ = w.Write([]byte(conversationPage(37, false, "")))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllConversations(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("AllConversations error: %v", err)
	}

	if len(items) != 237 {
		t.Fatalf("expected 237 items, got %d", len(items))
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected exactly 3 requests, got %d", got)
	}
}

func TestAllConversationsWalksPageNumbersUntil404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			_, _ = w.Write([]byte(`{"conversations":[{"conversation_id":"a"},{"conversation_id":"b"}],"next_page":2}`))
		case "2":
			_, _ = w.Write([]byte(`{"conversations":[{"conversation_id":"c"},{"conversation_id":"d"}],"next_page":3}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllConversations(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("expected mid-walk 404 to end pagination cleanly, got %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
}

func TestAllConversationsBareArrayIsSingleFetch(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`[{"conversation_id":"a"},{"conversation_id":"b"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllConversations(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("AllConversations error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected a single request for a bare array, got %d", got)
	}
}

func TestAllConversationsStopsAfterConsecutiveEmptyPages(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		// Pagination metadata present but never a stop signal.
		_, _ = w.Write([]byte(`{"conversations":[],"total":0}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllConversations(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("AllConversations error: %v", err)
	}

	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected walk to stop after 2 empty pages, got %d requests", got)
	}
}

func TestAllConversationsHonorsPageCap(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(conversationPage(5, true, fmt.Sprintf("c%d", requests.Load()))))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllConversations(context.Background(), 5, 4)
	if err != nil {
		t.Fatalf("AllConversations error: %v", err)
	}

	if got := requests.Load(); got != 4 {
		t.Fatalf("expected the page cap to stop the walk at 4 requests, got %d", got)
	}
	if len(items) != 20 {
		t.Fatalf("expected 20 items, got %d", len(items))
	}
}

func TestAllConversationsReturnsPartialResultsOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(conversationPage(10, true, "c2")))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllConversations(context.Background(), 10, 0)
	if err == nil {
		t.Fatal("expected the forbidden page to surface an error")
	}
	if len(items) != 10 {
		t.Fatalf("expected the first page to survive the failure, got %d items", len(items))
	}
}

func TestAllAgentsWalksPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"agents":[{"agent_id":"ag_1","name":"Sales"}],"has_more":true,"next_cursor":"c2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"agents":[{"agent_id":"ag_2","name":"Support"}],"has_more":false}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	items, err := client.AllAgents(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("AllAgents error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(items))
	}
	var agent struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal(items[1], &agent); err != nil || agent.AgentID != "ag_2" {
		t.Fatalf("unexpected second agent %s (err %v)", items[1], err)
	}
}
