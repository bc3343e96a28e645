// Package simulation is the deterministic numeric producer. Given the prior
// campaign state and the actions queued since, it advances the economy,
// armed forces, research and diplomacy by one tick and reports the metrics
// the integrator reasons about.
package simulation

import (
	"context"
	"fmt"
	"slices"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Noise channels. Each metric samples its own row of the campaign's noise
// field so the drifts are independent of one another.
const (
	chanGrowth = iota
	chanLabor
	chanPrices
	chanThreat
	chanResearch
	chanTrade
)

// driftStep is how far along the noise field one tick moves.
const driftStep = 0.15

// maxNoiseFields caps the cached noise fields. An evicted field is rebuilt
// from its seed on next use.
const maxNoiseFields = 256

// Simulator computes one deterministic tick. It is safe for concurrent use by
// several campaigns.
type Simulator struct {
	mu    sync.Mutex
	noise map[int64]opensimplex.Noise
	order []int64 // cached seeds, oldest first
}

// New creates a Simulator.
func New() *Simulator {
	return &Simulator{noise: make(map[int64]opensimplex.Noise)}
}

// Forget drops the cached noise field of a deleted campaign's seed.
func (s *Simulator) Forget(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.noise[seed]; !ok {
		return
	}
	delete(s.noise, seed)
	s.order = slices.DeleteFunc(s.order, func(v int64) bool { return v == seed })
}

// Compute advances prev by one tick. The same state, actions and seed always
// yield the same results. prev is not modified.
func (s *Simulator) Compute(ctx context.Context, campaignID string, prev campaign.State, actions []campaign.Action) (*hybrid.DeterministicResults, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prev.CampaignID != campaignID {
		return nil, fmt.Errorf("state belongs to campaign %q, not %q", prev.CampaignID, campaignID)
	}

	state := prev.Clone()
	state.Tick = prev.Tick + 1
	if state.Resources == nil {
		state.Resources = make(map[string]int64)
	}

	spend := applyActions(&state, actions)
	drift := s.driftFor(state.Seed, state.Tick)

	econ := advanceEconomy(&state, spend, drift)
	mil := advanceMilitary(&state, spend, drift)
	res := advanceResearch(&state, spend, drift)
	dip := advanceDiplomacy(&state, spend, drift)
	expireEffects(&state)

	return &hybrid.DeterministicResults{
		Economic:      econ,
		Military:      mil,
		Research:      res,
		Diplomatic:    dip,
		CampaignState: state,
	}, nil
}

// driftFor samples every noise channel at tick, mapped to [-1, 1].
func (s *Simulator) driftFor(seed int64, tick uint64) func(channel int) float64 {
	n := s.noiseFor(seed)
	x := float64(tick) * driftStep
	return func(channel int) float64 {
		return n.Eval2(x, float64(channel)*10)*2 - 1
	}
}

func (s *Simulator) noiseFor(seed int64) opensimplex.Noise {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.noise[seed]
	if !ok {
		if len(s.order) >= maxNoiseFields {
			delete(s.noise, s.order[0])
			s.order = s.order[1:]
		}
		n = opensimplex.NewNormalized(seed)
		s.noise[seed] = n
		s.order = append(s.order, seed)
	}
	return n
}

// expireEffects ages every active effect by one tick and drops the spent ones.
func expireEffects(state *campaign.State) {
	kept := state.ActiveEffects[:0]
	for _, e := range state.ActiveEffects {
		e.RemainingTicks--
		if e.RemainingTicks > 0 {
			kept = append(kept, e)
		}
	}
	state.ActiveEffects = kept
}
