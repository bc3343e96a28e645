package llm

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Rule-based readings of the deterministic metrics. The analyzer uses them
// for every section when no model is configured, and for any single section
// the model fails to answer.

// welfare scores how the average citizen is doing. Around zero in a calm
// economy, positive when things go well.
func welfare(det *hybrid.DeterministicResults) float64 {
	e := det.Economic
	return e.GDPGrowth/5 -
		(e.Unemployment-6)/10 -
		(e.Inflation-2)/10 -
		(det.CampaignState.TaxRate-0.15)*5 +
		0.5*det.Diplomatic.Standing
}

func moodFor(score float64) hybrid.Mood {
	switch {
	case score > 1.2:
		return hybrid.MoodEcstatic
	case score > 0.5:
		return hybrid.MoodHappy
	case score > -0.3:
		return hybrid.MoodContent
	case score > -1:
		return hybrid.MoodConcerned
	case score > -2:
		return hybrid.MoodAngry
	}
	return hybrid.MoodRebellious
}

// moodTrend combines the economic score with public sentiment.
func moodTrend(det *hybrid.DeterministicResults, sentiment float64) hybrid.Trend {
	e := det.Economic
	economic := e.GDPGrowth + (100 - e.Unemployment) + (100 - e.Inflation)
	combined := (economic + sentiment*100) / 2
	switch {
	case combined > 60:
		return hybrid.TrendImproving
	case combined < 40:
		return hybrid.TrendDeclining
	}
	return hybrid.TrendStable
}

func heuristicMood(det *hybrid.DeterministicResults, actions []campaign.Action) hybrid.PopulationMood {
	score := welfare(det)
	sentiment := math.Max(-1, math.Min(1, score/2))

	factors := []string{}
	e := det.Economic
	switch {
	case e.GDPGrowth > 3:
		factors = append(factors, "Rising prosperity")
	case e.GDPGrowth < 0:
		factors = append(factors, "Shrinking economy")
	}
	if e.Unemployment > 10 {
		factors = append(factors, "Widespread joblessness")
	}
	if e.Inflation > 6 {
		factors = append(factors, "Rising cost of living")
	}
	for _, a := range actions {
		if p, ok := a.Data.(campaign.SetTaxPolicy); ok && p.Rate > 0.2 {
			factors = append(factors, "Heavy taxation")
		}
	}
	if len(factors) == 0 {
		factors = append(factors, "Economic stability", "Social order")
	}

	joy := math.Max(0, sentiment) * 0.6
	anger := math.Max(0, -sentiment) * 0.6
	return hybrid.PopulationMood{
		Overall:        moodFor(score),
		TrendDirection: moodTrend(det, sentiment),
		Factors:        factors,
		Sentiment: hybrid.SentimentAnalysis{
			OverallSentiment: sentiment,
			Emotions: map[string]float64{
				"joy": 0.2 + joy, "anger": 0.1 + anger, "fear": 0.1 + anger/2,
				"sadness": 0.1, "surprise": 0.1, "trust": 0.3 + sentiment*0.2,
			},
		},
	}
}

func heuristicEconomy(det *hybrid.DeterministicResults) hybrid.EconomicStory {
	e := det.Economic
	story := hybrid.EconomicStory{
		Summary: fmt.Sprintf("Output of %s is growing at %.1f%% with unemployment at %.1f%%.",
			humanize.Comma(int64(e.GDP)), e.GDPGrowth, e.Unemployment),
		Opportunities: []string{},
		Concerns:      []string{},
		Predictions:   []string{},
	}

	if e.GDPGrowth > 3 {
		story.Opportunities = append(story.Opportunities, "Expanding output invites new investment")
	}
	if e.TradeBalance > 0 {
		story.Opportunities = append(story.Opportunities, "Trade surplus strengthens the currency")
	}
	if e.Unemployment < 5 {
		story.Opportunities = append(story.Opportunities, "Tight labor market lifts wages")
	}
	if e.GDPGrowth < 0 {
		story.Concerns = append(story.Concerns, "Output is contracting")
	}
	if e.Unemployment > 10 {
		story.Concerns = append(story.Concerns, "Joblessness is rising")
	}
	if e.Inflation > 6 {
		story.Concerns = append(story.Concerns, "Prices are climbing quickly")
	}
	if credits := det.CampaignState.Resources[campaign.ResourceCredits]; credits < 10000 {
		story.Concerns = append(story.Concerns, fmt.Sprintf("Treasury down to %s credits", humanize.Comma(credits)))
	}

	switch {
	case e.GDPGrowth > 3:
		story.Predictions = append(story.Predictions, "Growth likely to continue")
	case e.GDPGrowth < -2:
		story.Predictions = append(story.Predictions, "Further contraction expected")
	default:
		story.Predictions = append(story.Predictions, "Continued stable growth expected")
	}
	return story
}

func heuristicMilitary(det *hybrid.DeterministicResults) hybrid.MilitaryStatus {
	m := det.Military
	status := hybrid.MilitaryStatus{
		Readiness: fmt.Sprintf("%s troops at %.0f%% readiness.",
			humanize.Comma(m.TotalForces), m.ReadinessLevel*100),
		Threats:       []string{},
		Opportunities: []string{},
	}

	switch r := m.ReadinessLevel; {
	case r > 0.8:
		status.Morale = "Morale is high across all units."
	case r > 0.6:
		status.Morale = "Troops are in good spirits."
	case r > 0.4:
		status.Morale = "Troop morale is stable and within acceptable ranges."
	case r > 0.2:
		status.Morale = "Morale is low after long deployments."
	default:
		status.Morale = "Morale is critical; desertions reported."
	}

	if m.ThreatLevel > 0.6 {
		status.Threats = append(status.Threats, "Hostile forces massing near the frontier")
	}
	if m.ThreatLevel > 0.8 {
		status.Threats = append(status.Threats, "Raids on border settlements")
	}
	if m.ReadinessLevel > 0.75 && m.ThreatLevel < 0.4 {
		status.Opportunities = append(status.Opportunities, "Rival defenses are thinly held")
	}

	switch {
	case len(status.Threats) > 0:
		status.StrategicSituation = "Strategic situation is tense."
	case len(status.Opportunities) > 0:
		status.StrategicSituation = "Strategic initiative is ours to take."
	default:
		status.StrategicSituation = "Strategic situation remains stable with no immediate concerns."
	}
	return status
}

func heuristicResearch(det *hybrid.DeterministicResults) hybrid.ResearchNarrative {
	r := det.Research
	out := hybrid.ResearchNarrative{
		Breakthroughs:   []string{},
		Setbacks:        []string{},
		ResearchClimate: "Research and development activities proceed at normal pace.",
	}
	if r.CompletedProjects > 0 {
		out.Breakthroughs = append(out.Breakthroughs,
			fmt.Sprintf("%d research %s completed", r.CompletedProjects, plural(r.CompletedProjects, "project", "projects")))
	}
	if r.ResearchEfficiency < 0.5 {
		out.Setbacks = append(out.Setbacks, "Laboratories are underfunded")
		out.ResearchClimate = "Research is stalling for lack of resources."
	} else if r.ResearchEfficiency > 0.85 {
		out.ResearchClimate = "Laboratories are buzzing with activity."
	}
	return out
}

func heuristicDiplomacy(det *hybrid.DeterministicResults) hybrid.DiplomaticSituation {
	d := det.Diplomatic
	out := hybrid.DiplomaticSituation{
		Negotiations:    []string{},
		Tensions:        []string{},
		Opportunities:   []string{},
		OverallStanding: "Diplomatic relations are stable across all fronts.",
	}
	if d.ActiveNegotiations > 0 {
		out.Negotiations = append(out.Negotiations,
			fmt.Sprintf("%d %s under discussion", d.ActiveNegotiations, plural(d.ActiveNegotiations, "overture", "overtures")))
	}
	switch {
	case d.Standing > 0.3:
		out.Opportunities = append(out.Opportunities, "Neighbors are open to closer ties")
		out.OverallStanding = "Our standing abroad is strong."
	case d.Standing < -0.3:
		out.Tensions = append(out.Tensions, "Neighbors regard us with suspicion")
		out.OverallStanding = "Our standing abroad is poor."
	}
	return out
}

func heuristicPredictions(det *hybrid.DeterministicResults) []hybrid.Prediction {
	out := []hybrid.Prediction{}
	e := det.Economic
	switch {
	case e.GDPGrowth > 3:
		out = append(out, hybrid.Prediction{Description: "Economic expansion likely to continue", Probability: 0.6, Timeframe: "next 3 ticks"})
	case e.GDPGrowth < -2:
		out = append(out, hybrid.Prediction{Description: "Recession risk rising", Probability: 0.6, Timeframe: "next 3 ticks"})
	}
	if t := det.Military.ThreatLevel; t > 0.6 {
		out = append(out, hybrid.Prediction{Description: "Border clashes possible", Probability: t, Timeframe: "next 2 ticks"})
	}
	if p := det.Research.BreakthroughProbability; p > 0.6 {
		out = append(out, hybrid.Prediction{Description: "Research breakthrough within reach", Probability: p, Timeframe: "next tick"})
	}
	return out
}

func heuristicOverall(nl *hybrid.NaturalLanguageResults) string {
	return fmt.Sprintf("The population is %s and %s. %s %s",
		nl.PopulationMood.Overall, trendPhrase(nl.PopulationMood.TrendDirection),
		nl.EconomicStory.Summary, nl.MilitaryStatus.StrategicSituation)
}

func trendPhrase(t hybrid.Trend) string {
	switch t {
	case hybrid.TrendImproving:
		return "growing more hopeful"
	case hybrid.TrendDeclining:
		return "growing more restless"
	}
	return "holding steady"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Heuristic derives every narrative section from the metrics alone.
func Heuristic(det *hybrid.DeterministicResults, actions []campaign.Action) *hybrid.NaturalLanguageResults {
	nl := &hybrid.NaturalLanguageResults{
		PopulationMood:      heuristicMood(det, actions),
		EconomicStory:       heuristicEconomy(det),
		MilitaryStatus:      heuristicMilitary(det),
		ResearchNarrative:   heuristicResearch(det),
		DiplomaticSituation: heuristicDiplomacy(det),
		Predictions:         heuristicPredictions(det),
		ConfidenceScore:     confidence(0, false),
	}
	nl.OverallNarrative = heuristicOverall(nl)
	return nl
}

// confidence starts at 0.5, gains 0.1 per section the model answered, and
// loses 0.2 when the analysis overran its budget.
func confidence(modelSections int, slow bool) float64 {
	score := 0.5 + 0.1*float64(modelSections)
	if slow {
		score -= 0.2
	}
	return math.Max(0, math.Min(1, score))
}
