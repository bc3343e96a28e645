package hybrid

import (
	"fmt"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// Alert types.
const (
	AlertEconomic = "economic"
	AlertSocial   = "social"
)

// DetectAlerts evaluates the crisis alert rules. They are stricter than the
// event rules and run independently of them.
func DetectAlerts(rules Rules, newID func() string, det *DeterministicResults, nl *NaturalLanguageResults, m campaign.SentimentModifiers) []CrisisAlert {
	r := rules.Alerts
	alerts := []CrisisAlert{}

	if det.Economic.GDPGrowth < r.EconomicGDP || det.Economic.Unemployment > r.EconomicUnemployment {
		alerts = append(alerts, CrisisAlert{
			ID:          newID(),
			Type:        AlertEconomic,
			Severity:    "critical",
			Title:       "Economic Crisis Detected",
			Description: "Severe economic downturn threatening civilization stability",
			Causes: []string{
				fmt.Sprintf("GDP declining at %.1f%%", det.Economic.GDPGrowth),
				fmt.Sprintf("Unemployment at %.1f%%", det.Economic.Unemployment),
				"Population confidence severely impacted",
			},
			CurrentEffects:        []string{"Reduced production capacity", "Social unrest potential", "Government revenue decline"},
			ProjectedConsequences: []string{"Continued economic contraction", "Possible social upheaval", "Long-term development setbacks"},
			ImmediateActions:      []string{"Emergency economic stimulus", "Unemployment relief programs", "Market stabilization measures"},
			StrategicResponses:    []string{"Comprehensive economic reform", "Infrastructure investment program", "International economic cooperation"},
			PreventiveMeasures:    []string{"Economic diversification", "Improved fiscal management", "Early warning systems"},
			TimeToImpact:          1,
			WindowForAction:       2,
		})
	}

	if nl.PopulationMood.Overall == MoodRebellious && m.TaxCompliance < r.SocialTaxCompliance {
		alerts = append(alerts, CrisisAlert{
			ID:                    newID(),
			Type:                  AlertSocial,
			Severity:              "serious",
			Title:                 "Social Unrest Crisis",
			Description:           "Population rebellion threatening government stability",
			Causes:                []string{"Widespread population dissatisfaction", "Loss of confidence in leadership", "Economic hardship and inequality"},
			CurrentEffects:        []string{"Reduced tax compliance", "Potential for civil disorder", "Government authority challenged"},
			ProjectedConsequences: []string{"Escalating social conflict", "Government instability", "Economic disruption"},
			ImmediateActions:      []string{"Address immediate grievances", "Improve communication with population", "Implement emergency social programs"},
			StrategicResponses:    []string{"Comprehensive social reform", "Leadership restructuring", "Long-term inequality reduction"},
			PreventiveMeasures:    []string{"Regular population sentiment monitoring", "Proactive social policies", "Transparent governance"},
			TimeToImpact:          1,
			WindowForAction:       3,
		})
	}

	return alerts
}
