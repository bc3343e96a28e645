package entropy

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNilClientFallsBack(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client reports enabled")
	}
	for range 100 {
		if f := c.Float(); f < 0 || f >= 1 {
			t.Fatalf("Float = %v outside [0, 1)", f)
		}
		if s := c.Seed(); s < 0 {
			t.Fatalf("Seed = %d, want non-negative", s)
		}
	}
	if NewClient("") != nil {
		t.Fatal("client created without a key")
	}
}

func TestPoolRefillsFromAPI(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"random":{"data":[0.25,0.5,1.5]}},"id":1}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL

	if got := c.Float(); got != 0.25 {
		t.Fatalf("first Float = %v, want 0.25", got)
	}
	if got := c.Seed(); got != 1<<52 {
		t.Fatalf("Seed = %d, want %d", got, int64(1<<52))
	}
	// 1.5 is discarded, so the pool is now empty and refills.
	if got := c.Float(); got != 0.25 || calls.Load() != 2 {
		t.Fatalf("Float after drain = %v with %d calls", got, calls.Load())
	}
}

func TestAPIErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":401,"message":"bad key"},"id":1}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL
	if f := c.Float(); f < 0 || f >= 1 {
		t.Fatalf("fallback Float = %v", f)
	}
}
