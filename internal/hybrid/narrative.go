package hybrid

import (
	"fmt"
	"math"
	"slices"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// BuildNarrative aggregates the human-readable notes for one tick.
func BuildNarrative(rules Rules, det *DeterministicResults, nl *NaturalLanguageResults, m campaign.SentimentModifiers) NarrativeContext {
	r := rules.Narrative
	ctx := NarrativeContext{
		EconomicTrends:         []string{},
		MilitaryEvents:         []string{},
		ResearchBreakthroughs:  slices.Clone(nl.ResearchNarrative.Breakthroughs),
		PopulationEvents:       []string{},
		DiplomaticDevelopments: []string{},
		HistoricalComparisons:  []string{"Current economic indicators comparable to previous growth periods"},
		FutureImplications:     []string{},
		StrategicInsights:      []string{},
	}
	if ctx.ResearchBreakthroughs == nil {
		ctx.ResearchBreakthroughs = []string{}
	}

	switch gdp := det.Economic.GDPGrowth; {
	case gdp > r.StrongGrowthGDP:
		ctx.EconomicTrends = append(ctx.EconomicTrends, "Strong economic growth continues")
	case gdp < r.ContractionGDP:
		ctx.EconomicTrends = append(ctx.EconomicTrends, "Economic contraction observed")
	}
	switch {
	case m.ProductionEfficiency > r.ProductionAttribution:
		ctx.EconomicTrends = append(ctx.EconomicTrends, "Production efficiency boosted by positive sentiment")
	case m.ProductionEfficiency < -r.ProductionAttribution:
		ctx.EconomicTrends = append(ctx.EconomicTrends, "Production efficiency hampered by negative sentiment")
	}

	if det.Military.ReadinessLevel > r.HighReadiness {
		ctx.MilitaryEvents = append(ctx.MilitaryEvents, "Military forces at high readiness")
	}
	if n := len(nl.MilitaryStatus.Threats); n > 0 {
		ctx.MilitaryEvents = append(ctx.MilitaryEvents, fmt.Sprintf("%d potential threats identified", n))
	}

	switch nl.PopulationMood.TrendDirection {
	case TrendImproving:
		ctx.PopulationEvents = append(ctx.PopulationEvents, "Population sentiment improving")
	case TrendDeclining:
		ctx.PopulationEvents = append(ctx.PopulationEvents, "Population sentiment declining")
	}
	if math.Abs(m.TaxCompliance) > r.TaxComplianceShift {
		dir := "decreased"
		if m.TaxCompliance > 0 {
			dir = "increased"
		}
		ctx.PopulationEvents = append(ctx.PopulationEvents, fmt.Sprintf("Tax compliance %s significantly", dir))
	}

	ctx.DiplomaticDevelopments = append(ctx.DiplomaticDevelopments, nl.DiplomaticSituation.Negotiations...)
	ctx.DiplomaticDevelopments = append(ctx.DiplomaticDevelopments, nl.DiplomaticSituation.Opportunities...)

	for _, p := range nl.Predictions {
		ctx.FutureImplications = append(ctx.FutureImplications, p.Description)
	}

	if det.Economic.GDPGrowth > r.FeedbackLoopGDP && nl.PopulationMood.Overall == MoodHappy {
		ctx.StrategicInsights = append(ctx.StrategicInsights,
			"Strong economic performance creating positive feedback loop with population satisfaction")
	}
	if det.Military.ReadinessLevel > r.DeterrentReadiness && len(nl.MilitaryStatus.Threats) == 0 {
		ctx.StrategicInsights = append(ctx.StrategicInsights,
			"High military readiness providing strategic deterrent effect")
	}

	return ctx
}

// ModificationsSummary lists every factor whose magnitude exceeds the
// summary threshold, formatted as a signed percentage.
func ModificationsSummary(rules Rules, m campaign.SentimentModifiers) []string {
	out := []string{}
	for _, f := range m.Factors() {
		if math.Abs(f.Value) > rules.Narrative.SummaryThreshold {
			out = append(out, fmt.Sprintf("%s: %+.1f%%", f.Name, f.Value*100))
		}
	}
	return out
}

// NarrativeEnhancements counts the trends and insights found this tick.
func NarrativeEnhancements(ctx NarrativeContext) []string {
	out := []string{}
	if n := len(ctx.EconomicTrends); n > 0 {
		out = append(out, fmt.Sprintf("%d economic trends identified", n))
	}
	if n := len(ctx.StrategicInsights); n > 0 {
		out = append(out, fmt.Sprintf("%d strategic insights generated", n))
	}
	return out
}
