package simulation

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// Per-unit costs.
const (
	recruitCost     = 10 // credits per unit raised
	policyEffectLen = 3  // ticks an adopted policy's effect lasts
)

// ledger records what the tick's actions committed, by sector.
type ledger struct {
	budget      map[string]int64 // sector -> credits allocated this tick
	overtures   int
	mobilized   int64
	offensive   bool
	standingAdj float64
}

// applyActions applies each action in queue order. Actions the treasury cannot
// cover are skipped; they never fail the tick.
func applyActions(state *campaign.State, actions []campaign.Action) ledger {
	l := ledger{budget: make(map[string]int64)}

	for _, a := range actions {
		if !a.AffectsSimulation || a.Data == nil {
			continue
		}
		if !apply(state, a.Data, &l) {
			slog.Debug("action skipped", "campaign_id", state.CampaignID, "action_id", a.ID, "type", a.Type)
		}
	}
	return l
}

func apply(state *campaign.State, data campaign.Payload, l *ledger) bool {
	switch p := data.(type) {
	case campaign.AllocateBudget:
		if !spend(state, map[string]int64{campaign.ResourceCredits: p.Credits}) {
			return false
		}
		l.budget[p.Sector] += p.Credits

	case campaign.StartResearch:
		state.Queues = append(state.Queues, campaign.QueueEntry{
			ID:        queueID(state, p.Project),
			Kind:      campaign.QueueResearch,
			Name:      p.Project,
			TotalTime: p.Effort,
		})

	case campaign.SetTaxPolicy:
		state.TaxRate = p.Rate

	case campaign.MobilizeForces:
		if p.Units > 0 {
			if !spend(state, map[string]int64{campaign.ResourceCredits: p.Units * recruitCost}) {
				return false
			}
			state.Forces += p.Units
		} else {
			state.Forces = max(0, state.Forces+p.Units)
		}
		l.mobilized += p.Units
		if p.Posture == "offensive" {
			l.offensive = true
		}

	case campaign.DiplomaticOverture:
		l.overtures++
		switch p.Stance {
		case "friendly":
			l.standingAdj += 0.1
		case "neutral":
			l.standingAdj += 0.02
		case "hostile":
			l.standingAdj -= 0.15
		}

	case campaign.ResolveEvent:
		choice, err := state.EventChoice(p.EventID, p.ChoiceID)
		if err != nil {
			slog.Warn("event answer rejected", "campaign_id", state.CampaignID, "error", err)
			return false
		}
		if !spend(state, choice.Cost) {
			return false
		}
		for _, c := range choice.Consequences {
			if c.Source == "" {
				c.Source = p.ChoiceID
			}
			state.ActiveEffects = append(state.ActiveEffects, c)
		}
		state.CloseEvent(p.EventID)

	case campaign.AdoptPolicy:
		policy, err := state.Policy(p.RecommendationID)
		if err != nil {
			slog.Warn("policy adoption rejected", "campaign_id", state.CampaignID, "error", err)
			return false
		}
		if !spend(state, policy.Cost) {
			return false
		}
		state.ClosePolicy(policy.ID)
		state.Adopted = append(state.Adopted, policy.ID)
		if target, ok := policyTargets[policy.Category]; ok {
			state.ActiveEffects = append(state.ActiveEffects, campaign.Effect{
				Target:         target,
				Modifier:       0.1,
				RemainingTicks: policyEffectLen,
				Source:         policy.ID,
				Description:    "Adopted " + policy.Category + " policy",
			})
		}
		if policy.Category == "diplomatic" {
			l.standingAdj += 0.05
		}

	default:
		return false
	}
	return true
}

// policyTargets maps a recommendation category to the effect target it boosts.
var policyTargets = map[string]string{
	"economic":   "economic",
	"military":   "military",
	"research":   "research",
	"social":     "population",
	"diplomatic": "population",
}

// queueID derives a stable ID so replaying a tick yields the same queue.
func queueID(state *campaign.State, project string) string {
	key := fmt.Sprintf("%s/%d/%d/%s", state.CampaignID, state.Tick, len(state.Queues), project)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// spend deducts cost when every entry is covered, and reports whether it did.
func spend(state *campaign.State, cost map[string]int64) bool {
	if !state.CanAfford(cost) {
		return false
	}
	for k, v := range cost {
		state.Resources[k] -= v
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
