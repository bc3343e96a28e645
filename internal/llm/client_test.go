package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talgya/hybrid-sim/internal/hybrid"
)

func TestNewClientDisabledWithoutKey(t *testing.T) {
	c := NewClient(ClientConfig{})
	if c != nil || c.Enabled() {
		t.Fatal("client without a key should be nil and disabled")
	}
	if _, err := c.Complete(context.Background(), "", "hi", 10); err == nil {
		t.Fatal("expected error from disabled client")
	}
}

func TestCompleteReturnsText(t *testing.T) {
	srv, calls := fakeModel(t, map[string]string{"ping": "pong"})
	got, err := newTestClient(srv.URL, 60).Complete(context.Background(), "sys", "ping", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got != "pong" || calls.Load() != 1 {
		t.Fatalf("Complete = %q after %d calls", got, calls.Load())
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, 60).Complete(context.Background(), "", "hi", 10); err == nil {
		t.Fatal("expected API error")
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content": [], "usage": {}}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, 60).Complete(context.Background(), "", "hi", 10); err == nil {
		t.Fatal("expected empty response error")
	}
}

func TestCompleteWaitsOnLimiter(t *testing.T) {
	srv, calls := fakeModel(t, map[string]string{"ping": "pong"})
	c := newTestClient(srv.URL, 1)

	if _, err := c.Complete(context.Background(), "", "ping", 10); err != nil {
		t.Fatal(err)
	}
	// The bucket is empty for the next minute.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "", "ping", 10); err == nil {
		t.Fatal("expected the limiter to give up at the deadline")
	}
	if calls.Load() != 1 {
		t.Fatalf("server calls = %d, want 1", calls.Load())
	}
}

func TestStringList(t *testing.T) {
	doc, err := extractJSON(`noise {"items": ["a", {"description": "b"}, 3, {"other": 1}]} trailing`)
	if err != nil {
		t.Fatal(err)
	}
	got := stringList(doc.Get("items"), nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("stringList = %v", got)
	}
	if got := stringList(doc.Get("missing"), []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("fallback = %v", got)
	}
}

func TestParseMoodRejectsUnknownMood(t *testing.T) {
	fallback := heuristicMood(calmResults(), nil)
	got, err := parseMood(`{"overall": "melancholic"}`, fallback)
	if err == nil {
		t.Fatal("expected error for unknown mood")
	}
	if got.Overall != fallback.Overall {
		t.Fatalf("mood = %s, want fallback %s", got.Overall, fallback.Overall)
	}
}

func TestNarrateResolution(t *testing.T) {
	srv, _ := fakeModel(t, map[string]string{"Grain Riots": "  The granaries opened at dawn.  "})
	ev := hybrid.EmergentEvent{Title: "Grain Riots", Description: "Bread is scarce."}
	choice := hybrid.PlayerChoice{Title: "Open the granaries"}

	got, err := NarrateResolution(context.Background(), newTestClient(srv.URL, 60), ev, choice)
	if err != nil {
		t.Fatal(err)
	}
	if got != "The granaries opened at dawn." {
		t.Fatalf("narration = %q", got)
	}
	if _, err := NarrateResolution(context.Background(), nil, ev, choice); err == nil {
		t.Fatal("expected error without a client")
	}
}
