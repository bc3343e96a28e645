package llm

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// extractJSON finds the outermost JSON object in a model response.
func extractJSON(response string) (gjson.Result, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return gjson.Result{}, fmt.Errorf("no JSON object found in response")
	}
	raw := response[start : end+1]
	if !gjson.Valid(raw) {
		return gjson.Result{}, fmt.Errorf("malformed JSON in response")
	}
	return gjson.Parse(raw), nil
}

// stringList reads an array of strings. Object entries contribute their
// "description" field, which is how models tend to elaborate list items.
func stringList(r gjson.Result, fallback []string) []string {
	if !r.IsArray() {
		return fallback
	}
	out := []string{}
	for _, item := range r.Array() {
		switch {
		case item.Type == gjson.String:
			out = append(out, item.String())
		case item.IsObject() && item.Get("description").Exists():
			out = append(out, item.Get("description").String())
		}
	}
	return out
}

func stringOr(r gjson.Result, fallback string) string {
	if s := strings.TrimSpace(r.String()); r.Exists() && s != "" {
		return s
	}
	return fallback
}

var validMoods = map[hybrid.Mood]bool{
	hybrid.MoodEcstatic: true, hybrid.MoodHappy: true, hybrid.MoodContent: true,
	hybrid.MoodConcerned: true, hybrid.MoodAngry: true, hybrid.MoodRebellious: true,
}

func parseMood(response string, fallback hybrid.PopulationMood) (hybrid.PopulationMood, error) {
	doc, err := extractJSON(response)
	if err != nil {
		return fallback, fmt.Errorf("parse population mood: %w", err)
	}
	mood := hybrid.Mood(strings.ToLower(doc.Get("overall").String()))
	if !validMoods[mood] {
		return fallback, fmt.Errorf("parse population mood: unknown mood %q", mood)
	}

	out := fallback
	out.Overall = mood
	out.Factors = stringList(doc.Get("factors"), fallback.Factors)
	if s := doc.Get("overallSentiment"); s.Type == gjson.Number {
		out.Sentiment.OverallSentiment = max(-1, min(1, s.Float()))
	}
	if em := doc.Get("emotions"); em.IsObject() {
		out.Sentiment.Emotions = map[string]float64{}
		em.ForEach(func(k, v gjson.Result) bool {
			out.Sentiment.Emotions[k.String()] = v.Float()
			return true
		})
	}
	return out, nil
}

func parseEconomy(response string, fallback hybrid.EconomicStory) (hybrid.EconomicStory, error) {
	doc, err := extractJSON(response)
	if err != nil {
		return fallback, fmt.Errorf("parse economic narrative: %w", err)
	}
	return hybrid.EconomicStory{
		Summary:       stringOr(doc.Get("summary"), fallback.Summary),
		Opportunities: stringList(doc.Get("opportunities"), fallback.Opportunities),
		Concerns:      stringList(doc.Get("concerns"), fallback.Concerns),
		Predictions:   stringList(doc.Get("predictions"), fallback.Predictions),
	}, nil
}

func parseMilitary(response string, fallback hybrid.MilitaryStatus) (hybrid.MilitaryStatus, error) {
	doc, err := extractJSON(response)
	if err != nil {
		return fallback, fmt.Errorf("parse military assessment: %w", err)
	}
	return hybrid.MilitaryStatus{
		Readiness:          stringOr(doc.Get("readiness"), fallback.Readiness),
		Morale:             stringOr(doc.Get("morale"), fallback.Morale),
		Threats:            stringList(doc.Get("threats"), fallback.Threats),
		Opportunities:      stringList(doc.Get("opportunities"), fallback.Opportunities),
		StrategicSituation: stringOr(doc.Get("strategicSituation"), fallback.StrategicSituation),
	}, nil
}

func parseDiplomacy(response string, fallback hybrid.DiplomaticSituation) (hybrid.DiplomaticSituation, error) {
	doc, err := extractJSON(response)
	if err != nil {
		return fallback, fmt.Errorf("parse diplomatic analysis: %w", err)
	}
	return hybrid.DiplomaticSituation{
		Negotiations:    stringList(doc.Get("negotiations"), fallback.Negotiations),
		Tensions:        stringList(doc.Get("tensions"), fallback.Tensions),
		Opportunities:   stringList(doc.Get("opportunities"), fallback.Opportunities),
		OverallStanding: stringOr(doc.Get("overallStanding"), fallback.OverallStanding),
	}, nil
}

func parseResearch(response string, fallback hybrid.ResearchNarrative) (hybrid.ResearchNarrative, error) {
	doc, err := extractJSON(response)
	if err != nil {
		return fallback, fmt.Errorf("parse research narrative: %w", err)
	}
	return hybrid.ResearchNarrative{
		Breakthroughs:   stringList(doc.Get("breakthroughs"), fallback.Breakthroughs),
		Setbacks:        stringList(doc.Get("setbacks"), fallback.Setbacks),
		ResearchClimate: stringOr(doc.Get("researchClimate"), fallback.ResearchClimate),
	}, nil
}
