package elevenlabs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, serverURL string, options ...Option) *Client {
	t.Helper()
	client, err := NewClient(serverURL, "test-key", options...)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	client.sleep = func(context.Context, time.Duration) error { return nil }
	return client
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	if _, err := NewClient("not-a-url", "key"); err == nil {
		t.Fatal("expected error for base url without scheme")
	}
}

func TestGetConversationSendsAPIKeyHeader(t *testing.T) {
	var gotKey, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"conversation_id":"conv_1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.GetConversation(context.Background(), "conv_1"); err != nil {
		t.Fatalf("GetConversation error: %v", err)
	}

	if gotKey != "test-key" {
		t.Fatalf("expected xi-api-key header, got %q", gotKey)
	}
	if gotPath != "/convai/conversations/conv_1" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestListConversationsDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conversations":[{"conversation_id":"a"},{"conversation_id":"b"}],"has_more":false,"next_cursor":null}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.ListConversations(context.Background(), PageRequest{PageSize: 10})
	if err != nil {
		t.Fatalf("ListConversations error: %v", err)
	}

	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.HasMore == nil || *page.HasMore {
		t.Fatalf("expected has_more=false, got %+v", page.HasMore)
	}
	if !page.Paginated() {
		t.Fatal("expected envelope page to report pagination metadata")
	}
}

func TestListConversationsDecodesBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"conversation_id":"a"},{"conversation_id":"b"},{"conversation_id":"c"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	page, err := client.ListConversations(context.Background(), PageRequest{})
	if err != nil {
		t.Fatalf("ListConversations error: %v", err)
	}

	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if page.Paginated() {
		t.Fatal("bare array must not report pagination metadata")
	}
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"conversation_id":"conv_1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.GetConversation(context.Background(), "conv_1"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"not found"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetConversation(context.Background(), "conv_missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.NotFound() {
		t.Fatalf("expected not-found HTTPError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected single attempt for 404, got %d", got)
	}
}

func TestGetTranscriptFallsBackToDetailTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/convai/conversations/conv_1/transcript":
			w.WriteHeader(http.StatusNotFound)
		case "/convai/conversations/conv_1":
			_, _ = w.Write([]byte(`{
				"conversation_id": "conv_1",
				"transcript": [
					{"role": "agent", "message": "Hello, how can I help?"},
					{"role": "user", "message": "..."},
					{"role": "user", "message": "I need to reschedule."},
					{"role": "agent", "message": ""}
				]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	text, err := client.GetTranscript(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("GetTranscript error: %v", err)
	}

	want := "Agent: Hello, how can I help?\n\nUser: I need to reschedule."
	if text != want {
		t.Fatalf("unexpected transcript:\n%q\nwant:\n%q", text, want)
	}
}

func TestGetTranscriptPrefersDedicatedEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/convai/conversations/conv_1/transcript" {
			t.Errorf("unexpected request to %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"text":"Agent: Hi there."}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	text, err := client.GetTranscript(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("GetTranscript error: %v", err)
	}
	if text != "Agent: Hi there." {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestStreamAudioDefaultsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	body, contentType, err := client.StreamAudio(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("StreamAudio error: %v", err)
	}
	defer body.Close()

	if contentType != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg default, got %q", contentType)
	}
}

func TestStreamAudioReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, _, err := client.StreamAudio(context.Background(), "conv_1")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.NotFound() {
		t.Fatalf("expected not-found HTTPError, got %v", err)
	}
}
