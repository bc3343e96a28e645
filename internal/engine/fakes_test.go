package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// memStore is an in-memory StateStore.
type memStore struct {
	mu      sync.Mutex
	states  map[string]campaign.State
	reports []*TickReport
	saveErr error
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]campaign.State)}
}

func (m *memStore) EnsureCampaign(_ context.Context, id string, _ campaign.TickMode, initial campaign.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		m.states[id] = initial
	}
	return nil
}

func (m *memStore) LoadState(_ context.Context, id string) (campaign.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return campaign.State{}, m.loadErr
	}
	st, ok := m.states[id]
	if !ok {
		return campaign.State{}, fmt.Errorf("campaign %s not found", id)
	}
	return st.Clone(), nil
}

func (m *memStore) SaveTick(_ context.Context, r *TickReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if want := m.states[r.CampaignID].Tick + 1; r.Tick != want {
		return fmt.Errorf("tick %d out of order, want %d", r.Tick, want)
	}
	m.states[r.CampaignID] = r.Results.FinalCampaignState
	m.reports = append(m.reports, r)
	return nil
}

func (m *memStore) DeleteCampaign(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *memStore) state(id string) campaign.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

func (m *memStore) setSaveErr(err error) {
	m.mu.Lock()
	m.saveErr = err
	m.mu.Unlock()
}

// fakeSim produces calm deterministic results unless compute is set. It
// tracks how many calls overlap.
type fakeSim struct {
	compute func(ctx context.Context, prev campaign.State, actions []campaign.Action) (*hybrid.DeterministicResults, error)

	calls      atomic.Int32
	running    atomic.Int32
	maxRunning atomic.Int32
}

func (f *fakeSim) Compute(ctx context.Context, id string, prev campaign.State, actions []campaign.Action) (*hybrid.DeterministicResults, error) {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxRunning.Load()
		if n <= m || f.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	if f.compute != nil {
		return f.compute(ctx, prev, actions)
	}
	return calmResults(prev), nil
}

func calmResults(prev campaign.State) *hybrid.DeterministicResults {
	st := prev.Clone()
	st.Tick = prev.Tick + 1
	return &hybrid.DeterministicResults{
		Economic: hybrid.EconomicAnalytics{GDP: 1e6, GDPGrowth: 1.5, Unemployment: 6},
		Military: hybrid.MilitaryAnalytics{TotalForces: st.Forces, ReadinessLevel: 0.6},
		Research: hybrid.ResearchAnalytics{
			ResearchEfficiency:      0.7,
			BreakthroughProbability: 0.3,
			TechnologyLevel:         st.TechLevel,
		},
		CampaignState: st,
	}
}

// gatedSim blocks every Compute until release is called, signalling entered
// each time a call starts.
func gatedSim() (*fakeSim, <-chan struct{}, func()) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 16)
	var once sync.Once
	sim := &fakeSim{}
	sim.compute = func(_ context.Context, prev campaign.State, _ []campaign.Action) (*hybrid.DeterministicResults, error) {
		entered <- struct{}{}
		<-gate
		return calmResults(prev), nil
	}
	return sim, entered, func() { once.Do(func() { close(gate) }) }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickTimeout = 2 * time.Second
	cfg.RetryBaseDelay = 0
	cfg.DisableNarrative = true
	return cfg
}

func newTestScheduler(t *testing.T, cfg Config, sim DeterministicSimulator, store StateStore, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithSeedSource(SeedFunc(func() int64 { return 42 }))}, opts...)
	s := New(cfg, sim, nil, store, hybrid.NewIntegrator(hybrid.DefaultRules()), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func register(t *testing.T, s *Scheduler, id string) {
	t.Helper()
	if err := s.Register(context.Background(), id, campaign.ModeStrategic); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
}

// waitFor reads notifications until one of kind arrives.
func waitFor(t *testing.T, ch <-chan Notification, kind NotificationKind) Notification {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				t.Fatalf("notification stream closed while waiting for %s", kind)
			}
			if n.Kind == kind {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func budgetAction(player string) campaign.Action {
	return campaign.NewAction(player, campaign.AllocateBudget{Sector: "economy", Credits: 1000}, campaign.PriorityMedium)
}

func urgentAction(player string) campaign.Action {
	a := campaign.NewAction(player, campaign.SetTaxPolicy{Rate: 0.2}, campaign.PriorityCritical)
	a.RequiresImmediate = true
	return a
}
