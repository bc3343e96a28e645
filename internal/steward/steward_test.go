package steward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/hybrid"
	"github.com/talgya/hybrid-sim/internal/llm"
)

const testAdminKey = "admin"

func credits(n int64) map[string]int64 {
	return map[string]int64{campaign.ResourceCredits: n}
}

func boost(mod float64) []campaign.Effect {
	return []campaign.Effect{{Target: "economic", Modifier: mod, RemainingTicks: 3}}
}

// fixtureResults has one open crisis with three choices: one over the
// spending cap, one affordable with a positive effect, one free and harmful.
func fixtureResults(alertSeverity string) *hybrid.HybridResults {
	return &hybrid.HybridResults{
		EmergentEvents: []hybrid.EmergentEvent{{
			ID:       "ev-1",
			Type:     hybrid.EventCrisis,
			Severity: "major",
			Title:    "Economic Crisis Unfolds",
			PlayerChoices: []hybrid.PlayerChoice{
				{ID: "bailout", Title: "Bailout", Cost: credits(50000), Consequences: boost(0.5)},
				{ID: "stimulus", Title: "Stimulus", Cost: credits(10000), Consequences: boost(0.2)},
				{ID: "ignore", Title: "Ignore it", Consequences: boost(-0.1)},
			},
		}},
		CrisisAlerts: []hybrid.CrisisAlert{{ID: "al-1", Severity: alertSeverity, Title: "Crash"}},
		PolicyRecommendations: []hybrid.PolicyRecommendation{
			{ID: "rec-low", Priority: campaign.PriorityLow, Category: "economic", Title: "Tweak"},
			{ID: "rec-high", Priority: campaign.PriorityHigh, Category: "social", Title: "Relief", ResourceRequirements: credits(5000)},
		},
	}
}

type fakeAPI struct {
	mu      sync.Mutex
	state   campaign.State
	results *hybrid.HybridResults
	posted  []campaign.Action
}

func newFakeAPI(t *testing.T, results *hybrid.HybridResults) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{state: campaign.NewState("c1", 1), results: results}
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"name": "hybridsim"})
	})
	mux.HandleFunc("GET /api/v1/campaigns", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": "c1", "registered": true, "active": true},
			{"id": "c2", "registered": true, "active": false},
		})
	})
	mux.HandleFunc("GET /api/v1/campaigns/c1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": engine.Status{CampaignID: "c1", Mode: campaign.ModeStrategic}})
	})
	mux.HandleFunc("GET /api/v1/campaigns/c1/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, f.state)
	})
	mux.HandleFunc("GET /api/v1/campaigns/c1/results", func(w http.ResponseWriter, r *http.Request) {
		if f.results == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, f.results)
	})
	mux.HandleFunc("GET /api/v1/campaigns/c1/history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []HistoryRow{{Tick: 1, Trigger: "scheduled"}})
	})
	mux.HandleFunc("POST /api/v1/campaigns/c1/actions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var a campaign.Action
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.posted = append(f.posted, a)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, a)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestSteward(url string, client *llm.Client, mem *CycleMemory) *Steward {
	return &Steward{
		Observer:         NewObserver(url),
		Actor:            NewActor(url, testAdminKey),
		LLM:              client,
		Memory:           mem,
		PlayerID:         "steward",
		MaxSpendFraction: 0.25,
	}
}

func TestObserveWithoutResults(t *testing.T) {
	_, srv := newFakeAPI(t, nil)
	snap, err := NewObserver(srv.URL).Observe(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Results != nil || snap.State.CampaignID != "c1" || len(snap.History) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if h := Triage(snap, &CycleMemory{}); h.Level != LevelHealthy {
		t.Fatalf("level = %s, want HEALTHY", h.Level)
	}
}

func TestRegisteredCampaigns(t *testing.T) {
	_, srv := newFakeAPI(t, nil)
	ids, err := RegisteredCampaigns(context.Background(), NewObserver(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "c1" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestTriageLevels(t *testing.T) {
	snap := &Snapshot{State: campaign.NewState("c1", 1)}

	snap.Results = fixtureResults("critical")
	if h := Triage(snap, &CycleMemory{}); h.Level != LevelCritical || len(h.OpenEvents) != 1 || len(h.Pending) != 2 {
		t.Fatalf("health = %+v", h)
	}

	snap.Results = fixtureResults("serious")
	if h := Triage(snap, &CycleMemory{}); h.Level != LevelWarning {
		t.Fatalf("level = %s, want WARNING", h.Level)
	}

	// An answered event and adopted recommendations drop out.
	mem := &CycleMemory{}
	mem.Record(CycleRecord{EventID: "ev-1", Action: ActionResolve})
	snap.State.Adopted = []string{"rec-low"}
	snap.Results = fixtureResults("moderate")
	h := Triage(snap, mem)
	if len(h.OpenEvents) != 0 || len(h.Pending) != 1 || h.Level != LevelHealthy {
		t.Fatalf("health = %+v", h)
	}

	// Neutral modifiers are not a drag; two penalties are worth watching.
	snap.Results.SentimentModifiers = campaign.SentimentModifiers{TaxCompliance: -0.3, ProductionEfficiency: -0.15, ResearchSpeed: -0.05}
	h = Triage(snap, mem)
	if len(h.WeakFactors) != 2 || h.Level != LevelWatch {
		t.Fatalf("weak factors = %v level = %s, want 2 and WATCH", h.WeakFactors, h.Level)
	}
}

func TestRulesPickBestAffordableChoice(t *testing.T) {
	snap := &Snapshot{State: campaign.NewState("c1", 1), Results: fixtureResults("serious")}
	h := Triage(snap, &CycleMemory{})
	d := decideByRules(h, NewBudget(snap.State, 0.25))
	if d.Action != ActionResolve || d.ChoiceID != "stimulus" {
		t.Fatalf("decision = %+v, want stimulus", d)
	}

	// With a tiny budget only the free choice fits.
	d = decideByRules(h, NewBudget(snap.State, 0.01))
	if d.ChoiceID != "ignore" {
		t.Fatalf("decision = %+v, want ignore", d)
	}
}

func TestRulesAdoptWhenNoEvent(t *testing.T) {
	snap := &Snapshot{State: campaign.NewState("c1", 1), Results: fixtureResults("serious")}
	snap.Results.EmergentEvents = nil
	h := Triage(snap, &CycleMemory{})
	d := decideByRules(h, NewBudget(snap.State, 0.25))
	if d.Action != ActionAdopt || d.RecommendationID != "rec-high" {
		t.Fatalf("decision = %+v, want rec-high", d)
	}
}

func TestGuardrails(t *testing.T) {
	snap := &Snapshot{State: campaign.NewState("c1", 1), Results: fixtureResults("serious")}
	h := Triage(snap, &CycleMemory{})
	budget := NewBudget(snap.State, 0.25)

	tests := []struct {
		name string
		d    Decision
		ok   bool
	}{
		{"none", Decision{Action: ActionNone, EventID: "ev-1"}, true},
		{"affordable choice", Decision{Action: ActionResolve, EventID: "ev-1", ChoiceID: "stimulus"}, true},
		{"over cap", Decision{Action: ActionResolve, EventID: "ev-1", ChoiceID: "bailout"}, false},
		{"unknown event", Decision{Action: ActionResolve, EventID: "ev-9", ChoiceID: "stimulus"}, false},
		{"unknown choice", Decision{Action: ActionResolve, EventID: "ev-1", ChoiceID: "pray"}, false},
		{"pending recommendation", Decision{Action: ActionAdopt, RecommendationID: "rec-high"}, true},
		{"unknown recommendation", Decision{Action: ActionAdopt, RecommendationID: "rec-x"}, false},
		{"unknown action", Decision{Action: "spawn"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.d
			err := enforceGuardrails(&d, snap, h, budget)
			if (err == nil) != tt.ok {
				t.Fatalf("enforceGuardrails = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestRunCycleEnqueuesUrgentResolution(t *testing.T) {
	api, srv := newFakeAPI(t, fixtureResults("critical"))
	mem := LoadMemory(filepath.Join(t.TempDir(), "memory.json"))
	s := newTestSteward(srv.URL, nil, mem)

	rec, err := s.RunCycle(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != ActionResolve || rec.ChoiceID != "stimulus" || rec.Level != LevelCritical {
		t.Fatalf("record = %+v", rec)
	}
	if len(api.posted) != 1 {
		t.Fatalf("posted %d actions, want 1", len(api.posted))
	}
	a := api.posted[0]
	if !a.Urgent() || a.PlayerID != "steward" {
		t.Fatalf("action = %+v, want urgent from steward", a)
	}
	p, ok := a.Data.(campaign.ResolveEvent)
	if !ok || p.EventID != "ev-1" || p.ChoiceID != "stimulus" {
		t.Fatalf("payload = %#v", a.Data)
	}

	// The answered event is remembered across restarts.
	if !LoadMemory(mem.Path).Handled("ev-1") {
		t.Fatal("resolution not persisted")
	}
	rec, err = s.RunCycle(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != ActionAdopt || rec.RecommendationID != "rec-high" {
		t.Fatalf("second cycle = %+v, want rec-high adoption", rec)
	}
}

func TestRunCycleDryRun(t *testing.T) {
	api, srv := newFakeAPI(t, fixtureResults("serious"))
	s := newTestSteward(srv.URL, nil, &CycleMemory{})
	s.DryRun = true

	rec, err := s.RunCycle(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Action != ActionResolve || !rec.DryRun || len(api.posted) != 0 {
		t.Fatalf("dry run = %+v, posted %d", rec, len(api.posted))
	}
	if s.Memory.Handled("ev-1") {
		t.Fatal("dry run marked the event handled")
	}
}

// fakeModel answers decision prompts with decision and chronicle prompts
// with a fixed line.
func fakeModel(t *testing.T, decision string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		text := "The treasury opened its vaults and the markets exhaled."
		if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "## Campaign") {
			text = decision
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return llm.NewClient(llm.ClientConfig{APIKey: "test-key", BaseURL: srv.URL, CallsPerMin: 600})
}

func TestModelDecisionAndChronicle(t *testing.T) {
	api, srv := newFakeAPI(t, fixtureResults("serious"))
	client := fakeModel(t, `Sure: {"action": "resolve_event", "rationale": "cheap and calm", "event_id": "ev-1", "choice_id": "ignore"}`)
	s := newTestSteward(srv.URL, client, &CycleMemory{})

	rec, err := s.RunCycle(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ChoiceID != "ignore" || rec.Rationale != "cheap and calm" {
		t.Fatalf("record = %+v, want the model's choice", rec)
	}
	if rec.Chronicle == "" {
		t.Fatal("resolution was not chronicled")
	}
	if len(api.posted) != 1 || api.posted[0].Urgent() {
		t.Fatalf("posted = %+v, want one non-urgent action", api.posted)
	}
}

func TestModelOverBudgetFallsBackToRules(t *testing.T) {
	_, srv := newFakeAPI(t, fixtureResults("serious"))
	client := fakeModel(t, `{"action": "resolve_event", "rationale": "go big", "event_id": "ev-1", "choice_id": "bailout"}`)
	s := newTestSteward(srv.URL, client, &CycleMemory{})

	rec, err := s.RunCycle(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ChoiceID != "stimulus" {
		t.Fatalf("choice = %q, want rules fallback stimulus", rec.ChoiceID)
	}
}

func TestMemoryTrimAndPrompt(t *testing.T) {
	mem := &CycleMemory{}
	for i := range maxRecords + 5 {
		mem.Record(CycleRecord{CampaignID: "c1", Tick: uint64(i), Action: ActionNone, Level: LevelHealthy})
	}
	if len(mem.Records) != maxRecords || mem.Records[0].Tick != 5 {
		t.Fatalf("records = %d, first tick %d", len(mem.Records), mem.Records[0].Tick)
	}
	prompt := mem.FormatForPrompt("c1")
	if strings.Count(prompt, "- Tick") != promptRecords {
		t.Fatalf("prompt lines = %q", prompt)
	}
	if mem.FormatForPrompt("other") != "" {
		t.Fatal("prompt for unknown campaign not empty")
	}
}

func TestWaitForAPI(t *testing.T) {
	_, srv := newFakeAPI(t, nil)
	if err := WaitForAPI(context.Background(), srv.URL, time.Minute); err != nil {
		t.Fatal(err)
	}
}
