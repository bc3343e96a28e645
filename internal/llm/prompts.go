package llm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

const analystSystem = `You are the chief analyst of a civilization in a grand strategy campaign. You read the raw indicators and player decisions for one turn and explain what they mean for the people, the economy, the armed forces, research and foreign relations.

Respond ONLY with a single JSON object in the exact shape requested. Do not add commentary before or after it.`

const chroniclerSystem = `You are the chronicler of a civilization in a grand strategy campaign. Summarize the turn in 2-3 sentences of vivid but concise prose. Do not reference the game or its mechanics.`

func describeActions(b *strings.Builder, actions []campaign.Action) {
	if len(actions) == 0 {
		return
	}
	b.WriteString("\nPLAYER DECISIONS THIS TURN:\n")
	for _, a := range actions {
		fmt.Fprintf(b, "- %s (%s priority): %+v\n", a.Type, a.Priority, a.Data)
	}
}

func buildMoodPrompt(det *hybrid.DeterministicResults, actions []campaign.Action) string {
	var b strings.Builder
	e := det.Economic
	b.WriteString("Analyze the population mood for a civilization based on the following data:\n\n")
	b.WriteString("ECONOMIC INDICATORS:\n")
	fmt.Fprintf(&b, "- GDP Growth: %.2f%%\n", e.GDPGrowth)
	fmt.Fprintf(&b, "- Unemployment: %.2f%%\n", e.Unemployment)
	fmt.Fprintf(&b, "- Inflation: %.2f%%\n", e.Inflation)
	fmt.Fprintf(&b, "- Tax Rate: %.0f%%\n", det.CampaignState.TaxRate*100)
	fmt.Fprintf(&b, "- Population: %d\n", det.CampaignState.Population)
	describeActions(&b, actions)
	b.WriteString(`
Provide analysis in JSON format:
{
  "overall": "ecstatic|happy|content|concerned|angry|rebellious",
  "factors": ["factor1", "factor2", ...],
  "overallSentiment": -1.0 to 1.0,
  "emotions": {"joy": 0-1, "anger": 0-1, "fear": 0-1, "sadness": 0-1, "surprise": 0-1, "trust": 0-1}
}`)
	return b.String()
}

func buildEconomicPrompt(det *hybrid.DeterministicResults) string {
	var b strings.Builder
	e := det.Economic
	b.WriteString("Generate an economic narrative for a civilization based on these indicators:\n\n")
	b.WriteString("ECONOMIC DATA:\n")
	fmt.Fprintf(&b, "- GDP: %.0f\n", e.GDP)
	fmt.Fprintf(&b, "- GDP Growth: %.2f%%\n", e.GDPGrowth)
	fmt.Fprintf(&b, "- Inflation: %.2f%%\n", e.Inflation)
	fmt.Fprintf(&b, "- Unemployment: %.2f%%\n", e.Unemployment)
	fmt.Fprintf(&b, "- Trade Balance: %.0f\n", e.TradeBalance)
	b.WriteString("\nRESOURCE PRODUCTION:\n")
	names := make([]string, 0, len(e.ResourceProduction))
	for name := range e.ResourceProduction {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %d\n", name, e.ResourceProduction[name])
	}
	b.WriteString(`
Provide economic narrative in JSON format:
{
  "summary": "Brief economic overview",
  "predictions": ["prediction1", "prediction2", ...],
  "concerns": ["concern1", "concern2", ...],
  "opportunities": ["opportunity1", "opportunity2", ...]
}`)
	return b.String()
}

func buildMilitaryPrompt(det *hybrid.DeterministicResults) string {
	var b strings.Builder
	m := det.Military
	b.WriteString("Assess the military situation for a civilization:\n\n")
	b.WriteString("MILITARY METRICS:\n")
	fmt.Fprintf(&b, "- Total Forces: %d\n", m.TotalForces)
	fmt.Fprintf(&b, "- Readiness Level: %.2f\n", m.ReadinessLevel)
	fmt.Fprintf(&b, "- Threat Level: %.2f\n", m.ThreatLevel)
	b.WriteString(`
Provide military assessment in JSON format:
{
  "readiness": "Description of military readiness",
  "morale": "Description of military morale",
  "threats": ["threat1", "threat2", ...],
  "opportunities": ["opportunity1", "opportunity2", ...],
  "strategicSituation": "Overall strategic assessment"
}`)
	return b.String()
}

func buildDiplomaticPrompt(det *hybrid.DeterministicResults) string {
	var b strings.Builder
	d := det.Diplomatic
	b.WriteString("Analyze the diplomatic situation:\n\n")
	b.WriteString("DIPLOMATIC METRICS:\n")
	fmt.Fprintf(&b, "- Active Negotiations: %d\n", d.ActiveNegotiations)
	fmt.Fprintf(&b, "- Standing: %.2f (from -1 hostile to 1 admired)\n", d.Standing)
	b.WriteString(`
Provide diplomatic analysis in JSON format:
{
  "negotiations": ["negotiation1", "negotiation2", ...],
  "tensions": ["tension1", "tension2", ...],
  "opportunities": ["opportunity1", "opportunity2", ...],
  "overallStanding": "Description of overall diplomatic standing"
}`)
	return b.String()
}

func buildResearchPrompt(det *hybrid.DeterministicResults) string {
	var b strings.Builder
	r := det.Research
	b.WriteString("Analyze research and technology progress:\n\n")
	b.WriteString("RESEARCH METRICS:\n")
	fmt.Fprintf(&b, "- Open Projects: %d\n", r.TotalProjects)
	fmt.Fprintf(&b, "- Completed This Turn: %d\n", r.CompletedProjects)
	fmt.Fprintf(&b, "- Research Efficiency: %.2f\n", r.ResearchEfficiency)
	fmt.Fprintf(&b, "- Technology Level: %.2f\n", r.TechnologyLevel)
	b.WriteString(`
Provide research narrative in JSON format:
{
  "breakthroughs": ["breakthrough1", "breakthrough2", ...],
  "setbacks": ["setback1", "setback2", ...],
  "researchClimate": "Description of overall research environment"
}`)
	return b.String()
}

func buildOverallPrompt(nl *hybrid.NaturalLanguageResults) string {
	return fmt.Sprintf(`Generate an overall narrative summary for a civilization based on:

POPULATION: %s mood, trending %s
ECONOMY: %s
MILITARY: %s
DIPLOMACY: %s
RESEARCH: %s

Provide a cohesive 2-3 sentence narrative that captures the civilization's current state and trajectory.`,
		nl.PopulationMood.Overall, nl.PopulationMood.TrendDirection,
		nl.EconomicStory.Summary,
		nl.MilitaryStatus.StrategicSituation,
		nl.DiplomaticSituation.OverallStanding,
		nl.ResearchNarrative.ResearchClimate,
	)
}
