package hybrid

import (
	"fmt"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// Event rules.
const (
	RuleEconomicCrisis       = "economic_crisis"
	RuleResearchBreakthrough = "research_breakthrough"
	RuleSocialUnrest         = "social_unrest"
	RuleMilitaryOpportunity  = "military_opportunity"
)

// DetectEvents evaluates each event rule independently. Any number of rules
// may fire in one tick.
func DetectEvents(rules Rules, newID func() string, det *DeterministicResults, nl *NaturalLanguageResults, m campaign.SentimentModifiers) []EmergentEvent {
	r := rules.Events
	events := []EmergentEvent{}

	if det.Economic.GDPGrowth < r.CrisisGDP && nl.PopulationMood.Overall == MoodAngry {
		events = append(events, economicCrisisEvent(newID(), det))
	}
	if det.Research.BreakthroughProbability > r.BreakthroughProbability {
		events = append(events, researchBreakthroughEvent(newID(), det))
	}
	if nl.PopulationMood.Overall == MoodRebellious && m.TaxCompliance < r.UnrestTaxCompliance {
		events = append(events, socialUnrestEvent(newID(), m))
	}
	if det.Military.ReadinessLevel > r.OpportunityReadiness && len(nl.MilitaryStatus.Opportunities) > 0 {
		events = append(events, militaryOpportunityEvent(newID(), det))
	}

	return events
}

func effect(target string, modifier float64, ticks int, source, desc string) campaign.Effect {
	return campaign.Effect{Target: target, Modifier: modifier, RemainingTicks: ticks, Source: source, Description: desc}
}

func economicCrisisEvent(id string, det *DeterministicResults) EmergentEvent {
	return EmergentEvent{
		ID:          id,
		Rule:        RuleEconomicCrisis,
		Type:        EventCrisis,
		Severity:    "major",
		Title:       "Economic Crisis Unfolds",
		Description: "A severe economic downturn is impacting all sectors of society, with rising unemployment and declining production.",
		Triggers: []string{
			fmt.Sprintf("GDP growth at %.1f%%", det.Economic.GDPGrowth),
			"Population anger reaching critical levels",
			"Market confidence collapse",
		},
		Effects: []campaign.Effect{
			effect("economic", -0.2, 3, RuleEconomicCrisis, "Reduced economic efficiency"),
			effect("population", -0.3, 5, RuleEconomicCrisis, "Increased social unrest"),
		},
		Duration: 5,
		PlayerChoices: []PlayerChoice{
			{
				ID:           "stimulus_package",
				Title:        "Emergency Economic Stimulus",
				Description:  "Deploy massive government spending to stimulate the economy",
				Consequences: []campaign.Effect{effect("economic", 0.15, 2, "stimulus_package", "Short-term economic boost")},
				Requirements: []string{"Sufficient government reserves"},
				Cost:         map[string]int64{campaign.ResourceCredits: 50000},
			},
			{
				ID:           "austerity_measures",
				Title:        "Implement Austerity Measures",
				Description:  "Cut government spending to restore fiscal confidence",
				Consequences: []campaign.Effect{effect("population", -0.2, 3, "austerity_measures", "Increased social hardship")},
				Requirements: []string{"Political will for unpopular measures"},
				Cost:         map[string]int64{},
			},
		},
		StoryContext:         "The economic foundations of the civilization are being tested as never before.",
		CharacterInvolvement: []string{"Economic advisors", "Labor leaders", "Business representatives"},
		PublicReaction:       "Widespread concern and calls for immediate government action",
	}
}

func researchBreakthroughEvent(id string, det *DeterministicResults) EmergentEvent {
	return EmergentEvent{
		ID:          id,
		Rule:        RuleResearchBreakthrough,
		Type:        EventBreakthrough,
		Severity:    "moderate",
		Title:       "Scientific Breakthrough Achieved",
		Description: "Researchers have made a significant discovery that could transform multiple sectors.",
		Triggers: []string{
			fmt.Sprintf("Breakthrough probability at %.0f%%", det.Research.BreakthroughProbability*100),
			"High research efficiency",
			"Favorable research climate",
		},
		Effects: []campaign.Effect{
			effect("research", 0.3, 4, RuleResearchBreakthrough, "Accelerated research progress"),
			effect("population", 0.1, 2, RuleResearchBreakthrough, "Increased national pride"),
		},
		Duration: 4,
		PlayerChoices: []PlayerChoice{
			{
				ID:           "commercialize_research",
				Title:        "Rapid Commercialization",
				Description:  "Fast-track the breakthrough into practical applications",
				Consequences: []campaign.Effect{effect("economic", 0.2, 3, "commercialize_research", "Economic benefits from new technology")},
				Requirements: []string{"Industrial capacity"},
				Cost:         map[string]int64{campaign.ResourceCredits: 20000, campaign.ResourceMaterials: 10000},
			},
			{
				ID:           "further_research",
				Title:        "Deepen Research",
				Description:  "Invest more resources to fully understand the implications",
				Consequences: []campaign.Effect{effect("research", 0.4, 2, "further_research", "Enhanced research capabilities")},
				Requirements: []string{"Research infrastructure"},
				Cost:         map[string]int64{campaign.ResourceCredits: 15000, campaign.ResourceEnergy: 5000},
			},
		},
		StoryContext:         "A moment of scientific triumph that could reshape the future of the civilization.",
		CharacterInvolvement: []string{"Lead researchers", "Science advisors", "Technology entrepreneurs"},
		PublicReaction:       "Excitement and optimism about future possibilities",
	}
}

func socialUnrestEvent(id string, m campaign.SentimentModifiers) EmergentEvent {
	return EmergentEvent{
		ID:          id,
		Rule:        RuleSocialUnrest,
		Type:        EventCrisis,
		Severity:    "major",
		Title:       "Social Unrest Erupts",
		Description: "Widespread protests and civil disobedience are challenging government authority.",
		Triggers: []string{
			"Population mood reached rebellious levels",
			fmt.Sprintf("Tax compliance dropped to %.0f%%", m.TaxCompliance*100),
			"Loss of confidence in leadership",
		},
		Effects: []campaign.Effect{
			effect("population", -0.4, 4, RuleSocialUnrest, "Severe social disruption"),
			effect("economic", -0.2, 3, RuleSocialUnrest, "Economic disruption from unrest"),
		},
		Duration: 4,
		PlayerChoices: []PlayerChoice{
			{
				ID:           "address_grievances",
				Title:        "Address Core Grievances",
				Description:  "Implement immediate reforms to address population concerns",
				Consequences: []campaign.Effect{effect("population", 0.3, 3, "address_grievances", "Improved population satisfaction")},
				Requirements: []string{"Political flexibility"},
				Cost:         map[string]int64{campaign.ResourceCredits: 30000},
			},
			{
				ID:           "maintain_order",
				Title:        "Maintain Public Order",
				Description:  "Use security forces to restore order and stability",
				Consequences: []campaign.Effect{effect("population", -0.2, 5, "maintain_order", "Suppressed but unresolved tensions")},
				Requirements: []string{"Loyal security forces"},
				Cost:         map[string]int64{},
			},
		},
		StoryContext:         "The social contract between government and people is being severely tested.",
		CharacterInvolvement: []string{"Protest leaders", "Security officials", "Community representatives"},
		PublicReaction:       "Deep divisions between supporters and opponents of the government",
	}
}

func militaryOpportunityEvent(id string, det *DeterministicResults) EmergentEvent {
	return EmergentEvent{
		ID:          id,
		Rule:        RuleMilitaryOpportunity,
		Type:        EventOpportunity,
		Severity:    "moderate",
		Title:       "Strategic Military Opportunity",
		Description: "Military intelligence has identified a strategic opportunity that could significantly enhance security.",
		Triggers: []string{
			fmt.Sprintf("Military readiness at %.0f%%", det.Military.ReadinessLevel*100),
			"Strategic opportunities identified",
			"Favorable tactical situation",
		},
		Effects: []campaign.Effect{
			effect("military", 0.2, 3, RuleMilitaryOpportunity, "Enhanced strategic position"),
		},
		Duration: 2,
		PlayerChoices: []PlayerChoice{
			{
				ID:           "seize_opportunity",
				Title:        "Seize the Opportunity",
				Description:  "Act decisively to capitalize on the strategic advantage",
				Consequences: []campaign.Effect{effect("military", 0.3, 4, "seize_opportunity", "Significant strategic gains")},
				Requirements: []string{"Military readiness", "Political authorization"},
				Cost:         map[string]int64{campaign.ResourceCredits: 25000, campaign.ResourceMaterials: 15000},
			},
			{
				ID:           "cautious_approach",
				Title:        "Cautious Assessment",
				Description:  "Gather more intelligence before making any moves",
				Consequences: []campaign.Effect{effect("military", 0.1, 2, "cautious_approach", "Reduced risk but limited gains")},
				Requirements: []string{"Intelligence capabilities"},
				Cost:         map[string]int64{campaign.ResourceCredits: 5000},
			},
		},
		StoryContext:         "A moment when military preparedness creates new strategic possibilities.",
		CharacterInvolvement: []string{"Military commanders", "Intelligence officers", "Strategic advisors"},
		PublicReaction:       "Mixed reactions depending on risk tolerance and strategic understanding",
	}
}
