package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/hybrid"
	"github.com/talgya/hybrid-sim/internal/persistence"
	"github.com/talgya/hybrid-sim/internal/simulation"
)

const (
	adminKey = "admin-secret"
	relayKey = "relay-secret"
)

type testEnv struct {
	srv   *Server
	sched *engine.Scheduler
	db    *persistence.DB
	ts    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := engine.DefaultConfig()
	cfg.DisableNarrative = true
	cfg.TickTimeout = 5 * time.Second
	sched := engine.New(cfg, simulation.New(), nil, db, hybrid.NewIntegrator(hybrid.DefaultRules()),
		engine.WithSeedSource(engine.SeedFunc(func() int64 { return 7 })))

	srv := &Server{Sched: sched, DB: db, AdminKey: adminKey, RelayKey: relayKey, ActionsPerMin: 100}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		sched.Shutdown(context.Background())
		db.Close()
	})
	return &testEnv{srv: srv, sched: sched, db: db, ts: ts}
}

func (e *testEnv) do(t *testing.T, method, path, key, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestAdminAuth(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", "", `{"id":"c1"}`), http.StatusUnauthorized)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", "wrong", `{"id":"c1"}`), http.StatusUnauthorized)

	e.srv.AdminKey = ""
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusForbidden)
}

func TestCampaignLifecycle(t *testing.T) {
	e := newTestEnv(t)

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1","mode":"accelerated","start":true}`), http.StatusCreated)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusConflict)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/start", adminKey, ""), http.StatusConflict)

	list := decode[[]campaignView](t, e.do(t, "GET", "/api/v1/campaigns", "", ""))
	if len(list) != 1 || !list[0].Registered || !list[0].Active || list[0].Mode != campaign.ModeAccelerated {
		t.Fatalf("campaigns = %+v", list)
	}

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/stop", adminKey, ""), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/mode", adminKey, `{"mode":"idle"}`), http.StatusOK)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/mode", adminKey, `{"mode":"warp"}`), http.StatusBadRequest)

	recs, _ := e.db.ListCampaigns(context.Background())
	if recs[0].Active || recs[0].Mode != campaign.ModeIdle {
		t.Fatalf("stored campaign = %+v", recs[0])
	}

	expectStatus(t, e.do(t, "DELETE", "/api/v1/campaigns/c1", adminKey, ""), http.StatusNoContent)
	expectStatus(t, e.do(t, "GET", "/api/v1/campaigns/c1", "", ""), http.StatusNotFound)
	// Unregister keeps the stored state.
	expectStatus(t, e.do(t, "GET", "/api/v1/campaigns/c1/state", "", ""), http.StatusOK)

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)
	expectStatus(t, e.do(t, "DELETE", "/api/v1/campaigns/c1?purge=true", adminKey, ""), http.StatusNoContent)
	expectStatus(t, e.do(t, "GET", "/api/v1/campaigns/c1/state", "", ""), http.StatusNotFound)
}

func TestManualTickAndReads(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)

	resp := e.do(t, "POST", "/api/v1/campaigns/c1/tick", adminKey, "")
	expectStatus(t, resp, http.StatusOK)
	rep := decode[engine.TickReport](t, resp)
	if rep.Tick != 1 || rep.Trigger != engine.TriggerManual || rep.Results == nil {
		t.Fatalf("report = %+v", rep)
	}

	st := decode[campaign.State](t, e.do(t, "GET", "/api/v1/campaigns/c1/state", "", ""))
	if st.Tick != 1 {
		t.Fatalf("state tick = %d", st.Tick)
	}
	hist := decode[[]persistence.TickRecord](t, e.do(t, "GET", "/api/v1/campaigns/c1/history?limit=5", "", ""))
	if len(hist) != 1 || hist[0].Tick != 1 {
		t.Fatalf("history = %+v", hist)
	}
	res := decode[hybrid.HybridResults](t, e.do(t, "GET", "/api/v1/campaigns/c1/results", "", ""))
	if res.FinalCampaignState.Tick != 1 {
		t.Fatalf("results tick = %d", res.FinalCampaignState.Tick)
	}
	expectStatus(t, e.do(t, "GET", "/api/v1/campaigns/c1/events", "", ""), http.StatusOK)
	mems := decode[[]hybrid.TickMemory](t, e.do(t, "GET", "/api/v1/campaigns/c1/memory", "", ""))
	if len(mems) != 1 || mems[0].Tick != 1 || mems[0].Continuity != 0.5 {
		t.Fatalf("memory = %+v", mems)
	}

	status := decode[map[string]any](t, e.do(t, "GET", "/api/v1/status", "", ""))
	if status["campaigns"].(float64) != 1 || status["ticks_completed"].(float64) != 1 {
		t.Fatalf("status = %v", status)
	}

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/ghost/tick", adminKey, ""), http.StatusNotFound)
}

func TestEnqueueAction(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)

	resp := e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey,
		`{"player_id":"p1","type":"set_tax_policy","data":{"rate":0.2}}`)
	expectStatus(t, resp, http.StatusAccepted)
	queued := decode[campaign.Action](t, resp)
	if queued.ID == "" || queued.Priority != campaign.PriorityMedium {
		t.Fatalf("queued = %+v", queued)
	}

	actions := decode[[]campaign.Action](t, e.do(t, "GET", "/api/v1/campaigns/c1/actions", "", ""))
	if len(actions) != 1 || actions[0].ID != queued.ID {
		t.Fatalf("queue = %+v", actions)
	}

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey,
		`{"player_id":"p1","type":"set_tax_policy","data":{"rate":0.9}}`), http.StatusBadRequest)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey,
		`{"player_id":"p1","type":"summon_dragon","data":{}}`), http.StatusBadRequest)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/ghost/actions", adminKey,
		`{"player_id":"p1","type":"set_tax_policy","data":{"rate":0.2}}`), http.StatusNotFound)
}

func TestEnqueueRejectsAnswersWithoutOffer(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey,
		`{"player_id":"p1","type":"resolve_event","data":{"event_id":"made-up","choice_id":"free_money"}}`), http.StatusConflict)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey,
		`{"player_id":"p1","type":"adopt_policy","data":{"recommendation_id":"made-up"}}`), http.StatusConflict)
	// Consequences are fixed by the campaign, never by the client.
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey,
		`{"player_id":"p1","type":"resolve_event","data":{"event_id":"e1","choice_id":"c1","consequences":[{"target":"economic","modifier":10,"remaining_ticks":1000}]}}`), http.StatusBadRequest)

	if actions := decode[[]campaign.Action](t, e.do(t, "GET", "/api/v1/campaigns/c1/actions", "", "")); len(actions) != 0 {
		t.Fatalf("rejected answers were queued: %+v", actions)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	e := newTestEnv(t)
	schema := decode[map[string]any](t, e.do(t, "GET", "/api/v1/actions/schema", "", ""))
	for _, at := range campaign.ActionTypes() {
		if _, ok := schema[string(at)]; !ok {
			t.Errorf("schema missing %s", at)
		}
	}
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t)
	e.srv.ActionsPerMin = 2
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()
	e.ts = ts

	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)
	body := `{"player_id":"p1","type":"set_tax_policy","data":{"rate":0.2}}`
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey, body), http.StatusAccepted)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey, body), http.StatusAccepted)
	resp := e.do(t, "POST", "/api/v1/campaigns/c1/actions", adminKey, body)
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if ok, _ := rl.Allow("1.1.1.1"); !ok {
		t.Fatal("first request denied")
	}
	ok, wait := rl.Allow("1.1.1.1")
	if ok || wait <= 0 || wait > time.Minute {
		t.Fatalf("second request = %v, wait %v", ok, wait)
	}
	if ok, _ := rl.Allow("2.2.2.2"); !ok {
		t.Fatal("other IP denied")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Fatalf("clientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("clientIP with XFF = %q", got)
	}
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t)
	req, _ := http.NewRequest("OPTIONS", e.ts.URL+"/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight = %d %q", resp.StatusCode, resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestStreamRequiresRelayKey(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "GET", "/api/v1/stream", "", ""), http.StatusUnauthorized)
	expectStatus(t, e.do(t, "GET", "/api/v1/stream", adminKey, ""), http.StatusUnauthorized)
}

func TestSSEStream(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c2"}`), http.StatusCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", e.ts.URL+"/api/v1/stream?campaign=c1", nil)
	req.Header.Set("Authorization", "Bearer "+relayKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	go func() {
		e.sched.Tick(context.Background(), "c2")
		e.sched.Tick(context.Background(), "c1")
	}()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var event string
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			event = name
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || event != string(engine.NotifyTickComplete) {
			continue
		}
		var n engine.Notification
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			t.Fatal(err)
		}
		if n.CampaignID != "c1" {
			t.Fatalf("filtered stream delivered %s", n.CampaignID)
		}
		return
	}
	t.Fatalf("stream ended without tick_completed: %v", sc.Err())
}

func TestWebSocketStream(t *testing.T) {
	e := newTestEnv(t)
	expectStatus(t, e.do(t, "POST", "/api/v1/campaigns", adminKey, `{"id":"c1"}`), http.StatusCreated)
	if _, err := e.sched.Tick(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/v1/ws"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("websocket without relay key accepted")
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + relayKey}})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Catch-up delivers the latest tick first.
	var msg struct {
		Type    string              `json:"type"`
		Payload engine.Notification `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != string(engine.NotifyTickComplete) || msg.Payload.Tick != 1 {
		t.Fatalf("catch-up = %+v", msg)
	}

	if err := conn.WriteJSON(wsMessage{Type: "subscribe", Campaign: "c1"}); err != nil {
		t.Fatal(err)
	}
	go e.sched.Tick(context.Background(), "c1")
	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type == string(engine.NotifyTickComplete) && msg.Payload.Tick == 2 {
			return
		}
	}
}
