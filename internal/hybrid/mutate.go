package hybrid

import (
	"math"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// ApplyModifiers returns a modified copy of state. The input is never touched,
// so a discarded tick leaves the caller's state intact.
//
// Production scales every resource, credits included; tax compliance then
// scales credits on top of that.
func ApplyModifiers(state campaign.State, m campaign.SentimentModifiers) campaign.State {
	out := state.Clone()
	if out.Resources == nil {
		out.Resources = make(map[string]int64)
	}

	if m.ProductionEfficiency != 0 {
		for name, amount := range out.Resources {
			out.Resources[name] = scale(amount, m.ProductionEfficiency)
		}
	}

	if m.ResearchSpeed != 0 {
		for i, q := range out.Queues {
			if q.Kind != campaign.QueueResearch {
				continue
			}
			out.Queues[i].Progress = math.Min(q.TotalTime, q.Progress*(1+m.ResearchSpeed))
		}
	}

	if m.TaxCompliance != 0 {
		out.Resources[campaign.ResourceCredits] = scale(out.Resources[campaign.ResourceCredits], m.TaxCompliance)
	}

	applied := m
	out.Modifiers = &applied
	return out
}

func scale(amount int64, factor float64) int64 {
	return int64(math.Floor(float64(amount) * (1 + factor)))
}
