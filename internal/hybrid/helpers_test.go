package hybrid

import (
	"fmt"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// calmTick returns inputs that trip no event, alert or recommendation rule.
func calmTick() (*DeterministicResults, *NaturalLanguageResults) {
	state := campaign.NewState("c1", 7)
	state.Queues = []campaign.QueueEntry{
		{ID: "r1", Kind: campaign.QueueResearch, Name: "optics", Progress: 4, TotalTime: 10},
		{ID: "b1", Kind: campaign.QueueConstruction, Name: "dock", Progress: 2, TotalTime: 6},
	}
	det := &DeterministicResults{
		Economic: EconomicAnalytics{GDP: 1e6, GDPGrowth: 1.5, Unemployment: 6},
		Military: MilitaryAnalytics{TotalForces: 5000, ReadinessLevel: 0.6},
		Research: ResearchAnalytics{
			TotalProjects:           1,
			ResearchEfficiency:      0.7,
			BreakthroughProbability: 0.3,
			TechnologyLevel:         1,
		},
		CampaignState: state,
	}
	return det, NeutralNarrative()
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}
