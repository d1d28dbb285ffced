package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/auth"
)

func testToken(ctx context.Context) (string, error) { return "tok-123", nil }

func newClient(bases ...string) *Client {
	return New(Config{BaseURLs: bases, Token: testToken}, nil)
}

func TestListConversationsSendsBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		if r.URL.Path != "/messages/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "20" {
			t.Errorf("limit = %s", r.URL.Query().Get("limit"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]any{
				{"conversationId": "c1", "lastMessage": "hi", "unreadCount": 2},
			},
		})
	}))
	defer srv.Close()

	convs, err := newClient(srv.URL).ListConversations(context.Background(), 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" || convs[0].UnreadCount != 2 {
		t.Errorf("conversations = %+v", convs)
	}
	if got := gotAuth.Load(); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestFallbackToAlternateBase(t *testing.T) {
	var primaryHits, altHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer primary.Close()
	alt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		altHits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"messageId": "m2", "text": "later", "timestamp": 2000},
				{"messageId": "m1", "text": "first", "timestamp": 1000},
			},
		})
	}))
	defer alt.Close()

	msgs, err := newClient(primary.URL, alt.URL).ListMessages(context.Background(), "c1", 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m2" {
		t.Errorf("messages = %+v", msgs)
	}
	if primaryHits.Load() != 1 || altHits.Load() != 1 {
		t.Errorf("hits = %d/%d, want exactly one request per base", primaryHits.Load(), altHits.Load())
	}
}

func TestNonRetryableStatusStopsFallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
	}))
	defer primary.Close()
	var altHits atomic.Int32
	alt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		altHits.Add(1)
	}))
	defer alt.Close()

	_, err := newClient(primary.URL, alt.URL).SendMessage(context.Background(), "c1", "")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400 gateway error", err)
	}
	if altHits.Load() != 0 {
		t.Error("a 400 must not be retried against the alternate base")
	}
}

func TestAllBasesFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, srv.URL).ListConversations(context.Background(), 10)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want 503 gateway error", err)
	}
}

func TestCreateConversationConflictReturnsExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":          "conversation already exists",
			"conversationId": "c-existing",
		})
	}))
	defer srv.Close()

	conv, err := newClient(srv.URL).CreateConversation(context.Background(), "u2", "job-9")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != "c-existing" {
		t.Errorf("conversation id = %q, want the existing one", conv.ID)
	}
}

func TestCreateConversationSendsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		if body["otherUserId"] != "u2" || body["jobId"] != "job-9" {
			t.Errorf("body = %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"conversationId": "c-new"})
	}))
	defer srv.Close()

	conv, err := newClient(srv.URL).CreateConversation(context.Background(), "u2", "job-9")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID != "c-new" {
		t.Errorf("conversation id = %q", conv.ID)
	}
}

func TestMarkRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || !strings.HasSuffix(r.URL.Path, "/messages/conversations/c1/read") {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"conversationId": "c1", "unreadCount": 0})
	}))
	defer srv.Close()

	conv, err := newClient(srv.URL).MarkRead(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv.UnreadCount != 0 {
		t.Errorf("unreadCount = %d", conv.UnreadCount)
	}
}

func TestMissingTokenSource(t *testing.T) {
	c := New(Config{BaseURLs: []string{"http://127.0.0.1:0"}}, nil)
	_, err := c.ListConversations(context.Background(), 10)
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}
