package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// Webhook 429 with a Retry-After: k header sleeps k seconds (k=1 here to
// keep runtime low).
func TestWebhookSender_HonorsRetryAfter(t *testing.T) {
	var attempts int32
	var firstAttempt, secondAttempt time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			firstAttempt = time.Now()
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		secondAttempt = time.Now()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.Client(), nil)
	err := sender.Send(context.Background(), server.URL, WebhookMessage{Project: "demo", TaskCompleted: "did things"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	gap := secondAttempt.Sub(firstAttempt)
	if gap < 900*time.Millisecond {
		t.Errorf("retry gap = %v, want >= ~1s per Retry-After", gap)
	}
}

func TestWebhookSender_PermanentErrorStopsRetrying(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.Client(), nil)
	err := sender.Send(context.Background(), server.URL, WebhookMessage{Project: "demo"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("attempts = %d, want exactly 1 for a permanent 4xx", attempts)
	}
}
