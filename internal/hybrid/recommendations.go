package hybrid

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// Recommend produces advisory policy suggestions. It never changes state.
func Recommend(rules Rules, newID func() string, det *DeterministicResults) []PolicyRecommendation {
	r := rules.Recommendations
	recs := []PolicyRecommendation{}
	treasury := det.CampaignState.Resources[campaign.ResourceCredits]

	if det.Economic.Unemployment > r.Unemployment {
		cost := map[string]int64{campaign.ResourceCredits: 10000, campaign.ResourceMaterials: 5000}
		recs = append(recs, PolicyRecommendation{
			ID:          newID(),
			Category:    "economic",
			Priority:    campaign.PriorityHigh,
			Title:       "Address High Unemployment",
			Description: "Implement job creation programs to reduce unemployment",
			Rationale: []string{
				fmt.Sprintf("Current unemployment at %.1f%%", det.Economic.Unemployment),
				"High unemployment affecting population mood",
				"Economic growth potential being constrained",
				treasuryNote(treasury, cost),
			},
			ExpectedEffects:      []string{"Reduced unemployment rate", "Improved population sentiment", "Increased economic productivity"},
			Risks:                []string{"Increased government spending", "Potential inflation pressure"},
			Alternatives:         []string{"Private sector incentives", "Education and training programs"},
			ImplementationSteps:  []string{"Assess current job market conditions", "Design targeted employment programs", "Allocate budget for implementation", "Launch programs and monitor effectiveness"},
			ResourceRequirements: cost,
			Timeframe:            "2-3 ticks for full implementation",
		})
	}

	if det.Military.ReadinessLevel < r.Readiness {
		cost := map[string]int64{campaign.ResourceCredits: 15000, campaign.ResourceMaterials: 8000, campaign.ResourceEnergy: 3000}
		recs = append(recs, PolicyRecommendation{
			ID:          newID(),
			Category:    "military",
			Priority:    campaign.PriorityMedium,
			Title:       "Improve Military Readiness",
			Description: "Enhance military preparedness and training",
			Rationale: []string{
				fmt.Sprintf("Current readiness at %.0f%%", det.Military.ReadinessLevel*100),
				"Potential security vulnerabilities identified",
				treasuryNote(treasury, cost),
			},
			ExpectedEffects:      []string{"Improved defensive capabilities", "Enhanced deterrent effect", "Better crisis response capacity"},
			Risks:                []string{"Increased military spending", "Potential diplomatic tensions"},
			Alternatives:         []string{"Diplomatic security arrangements", "Technology-focused improvements"},
			ImplementationSteps:  []string{"Assess current military capabilities", "Develop training programs", "Upgrade equipment and facilities", "Conduct readiness exercises"},
			ResourceRequirements: cost,
			Timeframe:            "3-4 ticks for significant improvement",
		})
	}

	if det.Research.ResearchEfficiency < r.ResearchEfficiency {
		cost := map[string]int64{campaign.ResourceCredits: 12000, campaign.ResourceMaterials: 6000, campaign.ResourceEnergy: 4000}
		recs = append(recs, PolicyRecommendation{
			ID:          newID(),
			Category:    "research",
			Priority:    campaign.PriorityMedium,
			Title:       "Boost Research Efficiency",
			Description: "Improve research infrastructure and processes",
			Rationale: []string{
				fmt.Sprintf("Research efficiency at %.0f%%", det.Research.ResearchEfficiency*100),
				"Falling behind in technological advancement",
				treasuryNote(treasury, cost),
			},
			ExpectedEffects:      []string{"Faster research completion", "Higher breakthrough probability", "Improved innovation capacity"},
			Risks:                []string{"High upfront investment costs", "Uncertain return on investment"},
			Alternatives:         []string{"International research partnerships", "Private sector collaboration"},
			ImplementationSteps:  []string{"Evaluate current research infrastructure", "Identify efficiency bottlenecks", "Invest in new equipment and facilities", "Implement process improvements"},
			ResourceRequirements: cost,
			Timeframe:            "2-3 ticks for noticeable improvement",
		})
	}

	return recs
}

func treasuryNote(treasury int64, cost map[string]int64) string {
	need := cost[campaign.ResourceCredits]
	if treasury < need {
		return fmt.Sprintf("Treasury of %s credits cannot yet cover the %s required",
			humanize.Comma(treasury), humanize.Comma(need))
	}
	return fmt.Sprintf("Treasury of %s credits covers the %s required",
		humanize.Comma(treasury), humanize.Comma(need))
}
