package hybrid

import (
	"maps"
	"slices"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// policyWindow is how many ticks a recommendation stays adoptable.
const policyWindow = 2

// RecordOffers opens the events and recommendations emitted at tick on the
// state, replacing an older recommendation of the same category, and drops
// offers that can no longer be answered. Actions can only answer what is
// recorded here.
func RecordOffers(st *campaign.State, tick uint64, events []EmergentEvent, recs []PolicyRecommendation) {
	for _, e := range events {
		if len(e.PlayerChoices) == 0 {
			continue
		}
		open := campaign.OpenEvent{
			ID:        e.ID,
			Title:     e.Title,
			ExpiresAt: tick + uint64(max(e.Duration, 1)) + 1,
			Choices:   make([]campaign.OfferedChoice, 0, len(e.PlayerChoices)),
		}
		for _, c := range e.PlayerChoices {
			open.Choices = append(open.Choices, campaign.OfferedChoice{
				ID:           c.ID,
				Cost:         maps.Clone(c.Cost),
				Consequences: slices.Clone(c.Consequences),
			})
		}
		st.OpenEvents = append(st.OpenEvents, open)
	}

	for _, r := range recs {
		st.OpenPolicies = slices.DeleteFunc(st.OpenPolicies, func(p campaign.OpenPolicy) bool {
			return p.Category == r.Category
		})
		st.OpenPolicies = append(st.OpenPolicies, campaign.OpenPolicy{
			ID:        r.ID,
			Category:  r.Category,
			Cost:      maps.Clone(r.ResourceRequirements),
			ExpiresAt: tick + policyWindow + 1,
		})
	}

	st.PruneOffers(tick)
}
