package hybrid

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
)

// Importance ranks a memory entry.
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Memory entry kinds.
const (
	MemoryTickSummary = "tick_summary"
	MemoryEvent       = "event"
	MemoryAnalysis    = "analysis"
	MemoryPsychology  = "psychology"
	MemoryInsight     = "insight"
)

// MemoryWindow is how many earlier tick memories continuity is scored against.
const MemoryWindow = 5

var contradictionWords = []string{"however", "but", "contrary", "opposite", "different", "changed"}

// MemoryEntry is one remembered fact about a tick.
type MemoryEntry struct {
	Kind       string     `json:"kind"`
	Content    string     `json:"content"`
	Importance Importance `json:"importance"`
	Tags       []string   `json:"tags"`
	Related    []string   `json:"related,omitempty"`
	Novelty    float64    `json:"novelty,omitempty"` // insights only, [0, 1]
}

// MoodReading is the population psychology of one tick.
type MoodReading struct {
	Mood      Mood     `json:"mood"`
	Trend     Trend    `json:"trend"`
	Sentiment float64  `json:"sentiment"`
	Factors   []string `json:"factors"`
}

// TickMemory is the campaign's running memory of one committed tick.
type TickMemory struct {
	CampaignID     string        `json:"campaign_id"`
	Tick           uint64        `json:"tick"`
	Entries        []MemoryEntry `json:"entries"`
	Psychology     MoodReading   `json:"psychology"`
	TrendContinues bool          `json:"trend_continues"`
	Changes        []string      `json:"changes,omitempty"`
	Continuity     float64       `json:"continuity_score"`
	Contradicts    bool          `json:"contradicts_previous"`
	Correlation    float64       `json:"correlation_strength"`
}

// BuildMemory summarizes a tick for the campaign's memory and scores it
// against prev, the earlier memories newest first.
func BuildMemory(campaignID string, tick uint64, nl *NaturalLanguageResults, res *HybridResults, prev []TickMemory) TickMemory {
	prev = prev[:min(len(prev), MemoryWindow)]
	campaignTag := "campaign_" + campaignID
	tickTag := fmt.Sprintf("tick_%d", tick)

	m := TickMemory{CampaignID: campaignID, Tick: tick}

	summary := nl.OverallNarrative
	if summary == "" {
		summary = "Simulation step completed"
	}
	m.Entries = append(m.Entries, MemoryEntry{
		Kind:       MemoryTickSummary,
		Content:    fmt.Sprintf("Tick %d: %s", tick, summary),
		Importance: ImportanceMedium,
		Tags:       []string{"simulation", MemoryTickSummary},
		Related:    []string{campaignTag},
	})

	for _, e := range res.EmergentEvents {
		m.Entries = append(m.Entries, MemoryEntry{
			Kind:       MemoryEvent,
			Content:    e.Title + ": " + e.Description,
			Importance: eventImportance(e.Severity),
			Tags:       []string{MemoryEvent, string(e.Type), e.Severity},
			Related:    append([]string{campaignTag, "event_" + e.ID}, e.CharacterInvolvement...),
		})
	}

	if nl.OverallNarrative != "" {
		m.Entries = append(m.Entries, MemoryEntry{
			Kind:       MemoryAnalysis,
			Content:    "Analysis: " + nl.OverallNarrative,
			Importance: ImportanceMedium,
			Tags:       []string{"ai_analysis", "narrative"},
			Related:    []string{campaignTag},
		})
	}

	// Psychology continuity against the previous tick.
	mood := nl.PopulationMood
	m.Psychology = MoodReading{
		Mood:      mood.Overall,
		Trend:     mood.TrendDirection,
		Sentiment: mood.Sentiment.OverallSentiment,
		Factors:   slices.Clone(mood.Factors),
	}
	m.Entries = append(m.Entries, MemoryEntry{
		Kind: MemoryPsychology,
		Content: fmt.Sprintf("Population mood is %s with %s trend. Key factors: %s",
			mood.Overall, mood.TrendDirection, strings.Join(mood.Factors, ", ")),
		Importance: moodImportance(mood.Overall),
		Tags:       []string{MemoryPsychology, "population_mood", string(mood.Overall)},
		Related:    []string{campaignTag, tickTag},
	})
	m.Continuity = 0.5
	if len(prev) > 0 {
		last := prev[0].Psychology
		m.TrendContinues = last.Trend == m.Psychology.Trend
		if last.Mood != m.Psychology.Mood {
			m.Changes = append(m.Changes, fmt.Sprintf("Mood changed from %s to %s", last.Mood, m.Psychology.Mood))
		}
		if diff := math.Abs(last.Sentiment - m.Psychology.Sentiment); diff > 0.2 {
			m.Changes = append(m.Changes, fmt.Sprintf("Significant sentiment shift: %.1f%%", diff*100))
		}
		m.Continuity = continuity(last, m.Psychology, m.TrendContinues)
	}

	// Insights, each scored for novelty against earlier insights.
	var earlier []string
	for _, p := range prev {
		for _, e := range p.Entries {
			if e.Kind == MemoryInsight {
				earlier = append(earlier, e.Content)
			}
		}
	}
	insights := []struct {
		content    string
		importance Importance
		category   string
	}{
		{
			fmt.Sprintf("Economic analysis: %s Concerns: %s", nl.EconomicStory.Summary, strings.Join(nl.EconomicStory.Concerns, "; ")),
			economicImportance(nl.EconomicStory),
			"economic_analysis",
		},
		{
			fmt.Sprintf("Strategic assessment: military readiness %s Diplomatic standing %s", nl.MilitaryStatus.Readiness, nl.DiplomaticSituation.OverallStanding),
			ImportanceMedium,
			"strategic_overview",
		},
		{
			fmt.Sprintf("Cross-domain analysis: %s Modifiers applied: %s", nl.OverallNarrative, strings.Join(res.ModificationsApplied, ", ")),
			crossDomainImportance(nl.ConfidenceScore),
			"hybrid_integration",
		},
	}
	for _, in := range insights {
		m.Entries = append(m.Entries, MemoryEntry{
			Kind:       MemoryInsight,
			Content:    in.content,
			Importance: in.importance,
			Tags:       []string{"ai_analysis", in.category},
			Related:    []string{campaignTag, tickTag},
			Novelty:    novelty(in.content, earlier),
		})
		if len(prev) > 0 && containsAny(strings.ToLower(in.content), contradictionWords) {
			m.Contradicts = true
		}
	}
	m.Correlation = correlationStrength(res)
	return m
}

func eventImportance(severity string) Importance {
	switch severity {
	case "critical":
		return ImportanceCritical
	case "major":
		return ImportanceHigh
	}
	return ImportanceMedium
}

func moodImportance(m Mood) Importance {
	switch m {
	case MoodRebellious, MoodEcstatic:
		return ImportanceCritical
	case MoodAngry, MoodHappy:
		return ImportanceHigh
	case MoodConcerned:
		return ImportanceMedium
	}
	return ImportanceLow
}

func economicImportance(story EconomicStory) Importance {
	if len(story.Concerns) > 0 {
		return ImportanceHigh
	}
	return ImportanceMedium
}

func crossDomainImportance(confidence float64) Importance {
	if confidence > 0.8 {
		return ImportanceHigh
	}
	return ImportanceMedium
}

// continuity scores how closely cur follows last: 0.4 for a continued trend,
// 0.3 for an unchanged mood, and up to 0.3 for shared factors.
func continuity(last, cur MoodReading, trendContinues bool) float64 {
	score := 0.0
	if trendContinues {
		score += 0.4
	}
	if last.Mood == cur.Mood {
		score += 0.3
	}
	shared := 0
	for _, f := range cur.Factors {
		if slices.Contains(last.Factors, f) {
			shared++
		}
	}
	if n := max(len(cur.Factors), len(last.Factors)); n > 0 {
		score += float64(shared) / float64(n) * 0.3
	}
	return min(1, score)
}

// novelty is one minus the highest word overlap with any earlier text.
func novelty(content string, earlier []string) float64 {
	if len(earlier) == 0 {
		return 1
	}
	words := strings.Fields(strings.ToLower(content))
	best := 0.0
	for _, prev := range earlier {
		prevWords := strings.Fields(strings.ToLower(prev))
		common := 0
		for _, w := range words {
			if slices.Contains(prevWords, w) {
				common++
			}
		}
		if n := max(len(words), len(prevWords)); n > 0 {
			best = max(best, float64(common)/float64(n))
		}
	}
	return max(0, 1-best)
}

// correlationStrength is twice the mean magnitude of the modifiers that
// moved more than 5%, capped at 1.
func correlationStrength(res *HybridResults) float64 {
	sum, n := 0.0, 0
	for _, f := range res.SentimentModifiers.Factors() {
		if math.Abs(f.Value) > 0.05 {
			sum += math.Abs(f.Value)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return min(1, sum/float64(n)*2)
}

func containsAny(s string, words []string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if slices.Contains(words, f) {
			return true
		}
	}
	return false
}
