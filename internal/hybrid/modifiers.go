package hybrid

import (
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// Per-factor bands. No single tick may move a quantity by more than its band.
const (
	ProductionBand = 0.2
	ResearchBand   = 0.3
	MilitaryBand   = 0.4
	TaxBand        = 0.5
	TradeBand      = 0.3
	DiplomacyBand  = 0.2
)

var moodMultipliers = map[Mood]float64{
	MoodEcstatic:   1.0,
	MoodHappy:      0.6,
	MoodContent:    0.2,
	MoodConcerned:  -0.2,
	MoodAngry:      -0.6,
	MoodRebellious: -1.0,
}

// moraleKeywords is evaluated in order; the first group with a match wins.
var moraleKeywords = []struct {
	words []string
	value float64
}{
	{[]string{"high", "excellent"}, 0.8},
	{[]string{"good", "strong"}, 0.4},
	{[]string{"stable", "adequate"}, 0.0},
	{[]string{"low", "poor"}, -0.4},
	{[]string{"critical", "terrible"}, -0.8},
}

func clamp[T constraints.Float](v, lo, hi T) T {
	return max(lo, min(hi, v))
}

// MoodMultiplier maps an overall mood to [-1, 1]. Unknown moods map to 0.
func MoodMultiplier(m Mood) float64 {
	return moodMultipliers[m]
}

// EconomicConfidence scores the balance of opportunities against concerns.
func EconomicConfidence(story EconomicStory) float64 {
	return clamp(float64(len(story.Opportunities)-len(story.Concerns))*0.1, -1, 1)
}

// MoraleScore reads a free-text morale description.
func MoraleScore(description string) float64 {
	d := strings.ToLower(description)
	for _, group := range moraleKeywords {
		for _, w := range group.words {
			if strings.Contains(d, w) {
				return group.value
			}
		}
	}
	return 0
}

// CalculateModifiers derives the six bounded sentiment modifiers.
func CalculateModifiers(nl *NaturalLanguageResults) campaign.SentimentModifiers {
	mood := MoodMultiplier(nl.PopulationMood.Overall)
	econ := EconomicConfidence(nl.EconomicStory)
	morale := MoraleScore(nl.MilitaryStatus.Morale)
	trust := nl.PopulationMood.Sentiment.OverallSentiment

	return campaign.SentimentModifiers{
		ProductionEfficiency: clamp((mood*0.6+econ*0.4)*0.2, -ProductionBand, ProductionBand),
		ResearchSpeed:        clamp((mood*0.4+econ*0.3+trust*0.3)*0.3, -ResearchBand, ResearchBand),
		MilitaryMorale:       clamp((morale*0.7+mood*0.3)*0.4, -MilitaryBand, MilitaryBand),
		TaxCompliance:        clamp((trust*0.6+econ*0.4)*0.5, -TaxBand, TaxBand),
		TradeEfficiency:      clamp((econ*0.5+mood*0.3+trust*0.2)*0.3, -TradeBand, TradeBand),
		DiplomaticInfluence:  clamp((trust*0.5+mood*0.3+morale*0.2)*0.2, -DiplomacyBand, DiplomacyBand),
		Sources: campaign.ModifierSources{
			PopulationMood:     mood,
			EconomicConfidence: econ,
			MilitaryMorale:     morale,
			LeadershipTrust:    trust,
		},
	}
}
