// Package hybrid merges deterministic simulation output with narrative
// analysis into one campaign state per tick, and derives the events, alerts
// and recommendations shown to players.
package hybrid

import (
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
)

// Mood is the population's overall disposition.
type Mood string

const (
	MoodEcstatic   Mood = "ecstatic"
	MoodHappy      Mood = "happy"
	MoodContent    Mood = "content"
	MoodConcerned  Mood = "concerned"
	MoodAngry      Mood = "angry"
	MoodRebellious Mood = "rebellious"
)

// Trend is the direction of population sentiment.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// EconomicAnalytics is the deterministic economy view for one tick.
type EconomicAnalytics struct {
	GDP                float64          `json:"gdp"`
	GDPGrowth          float64          `json:"gdp_growth"`
	Inflation          float64          `json:"inflation"`
	Unemployment       float64          `json:"unemployment"`
	TradeBalance       float64          `json:"trade_balance"`
	ResourceProduction map[string]int64 `json:"resource_production"`
}

// MilitaryAnalytics is the deterministic military view for one tick.
type MilitaryAnalytics struct {
	TotalForces    int64   `json:"total_forces"`
	ReadinessLevel float64 `json:"readiness_level"`
	ThreatLevel    float64 `json:"threat_level"`
}

// ResearchAnalytics is the deterministic research view for one tick.
type ResearchAnalytics struct {
	TotalProjects           int     `json:"total_projects"`
	CompletedProjects       int     `json:"completed_projects"`
	ResearchEfficiency      float64 `json:"research_efficiency"`
	BreakthroughProbability float64 `json:"breakthrough_probability"`
	TechnologyLevel         float64 `json:"technology_level"`
}

// DiplomaticAnalytics is the deterministic diplomacy view for one tick.
type DiplomaticAnalytics struct {
	ActiveNegotiations int     `json:"active_negotiations"`
	Standing           float64 `json:"standing"`
}

// DeterministicResults is produced by the numeric simulator.
type DeterministicResults struct {
	Economic      EconomicAnalytics   `json:"economic"`
	Military      MilitaryAnalytics   `json:"military"`
	Research      ResearchAnalytics   `json:"research"`
	Diplomatic    DiplomaticAnalytics `json:"diplomatic"`
	CampaignState campaign.State      `json:"campaign_state"`
}

// SentimentAnalysis summarizes public sentiment.
type SentimentAnalysis struct {
	OverallSentiment float64            `json:"overall_sentiment"` // [-1, 1]
	Emotions         map[string]float64 `json:"emotions,omitempty"`
}

// PopulationMood is the narrative view of the population.
type PopulationMood struct {
	Overall        Mood              `json:"overall"`
	TrendDirection Trend             `json:"trend_direction"`
	Factors        []string          `json:"factors,omitempty"`
	Sentiment      SentimentAnalysis `json:"sentiment"`
}

// EconomicStory is the narrative view of the economy.
type EconomicStory struct {
	Summary       string   `json:"summary"`
	Opportunities []string `json:"opportunities"`
	Concerns      []string `json:"concerns"`
	Predictions   []string `json:"predictions,omitempty"`
}

// MilitaryStatus is the narrative view of the armed forces.
type MilitaryStatus struct {
	Readiness          string   `json:"readiness"`
	Morale             string   `json:"morale"`
	Threats            []string `json:"threats"`
	Opportunities      []string `json:"opportunities"`
	StrategicSituation string   `json:"strategic_situation,omitempty"`
}

// ResearchNarrative is the narrative view of research.
type ResearchNarrative struct {
	Breakthroughs   []string `json:"breakthroughs"`
	Setbacks        []string `json:"setbacks,omitempty"`
	ResearchClimate string   `json:"research_climate,omitempty"`
}

// DiplomaticSituation is the narrative view of foreign relations.
type DiplomaticSituation struct {
	Negotiations    []string `json:"negotiations"`
	Tensions        []string `json:"tensions,omitempty"`
	Opportunities   []string `json:"opportunities"`
	OverallStanding string   `json:"overall_standing,omitempty"`
}

// Prediction is a forecast from the narrative analyzer.
type Prediction struct {
	Description string  `json:"description"`
	Probability float64 `json:"probability"`
	Timeframe   string  `json:"timeframe,omitempty"`
}

// NaturalLanguageResults is produced by the narrative analyzer.
type NaturalLanguageResults struct {
	PopulationMood      PopulationMood      `json:"population_mood"`
	EconomicStory       EconomicStory       `json:"economic_story"`
	MilitaryStatus      MilitaryStatus      `json:"military_status"`
	ResearchNarrative   ResearchNarrative   `json:"research_narrative"`
	DiplomaticSituation DiplomaticSituation `json:"diplomatic_situation"`
	OverallNarrative    string              `json:"overall_narrative,omitempty"`
	Predictions         []Prediction        `json:"predictions"`
	ConfidenceScore     float64             `json:"confidence_score"`
}

// NeutralNarrative is the bundle used when narrative analysis is disabled.
// It carries no signal: content mood, zero sentiment, no opportunities or
// concerns, stable morale.
func NeutralNarrative() *NaturalLanguageResults {
	return &NaturalLanguageResults{
		PopulationMood: PopulationMood{
			Overall:        MoodContent,
			TrendDirection: TrendStable,
			Factors:        []string{"System operating normally"},
			Sentiment: SentimentAnalysis{
				Emotions: map[string]float64{
					"joy": 0.2, "anger": 0.1, "fear": 0.1, "sadness": 0.1, "surprise": 0.1, "trust": 0.3,
				},
			},
		},
		EconomicStory: EconomicStory{
			Summary:     "Economic systems operating within normal parameters.",
			Predictions: []string{"Continued stable operation expected"},
		},
		MilitaryStatus: MilitaryStatus{
			Readiness:          "Military systems maintain standard operational status.",
			Morale:             "Troop morale is stable and within acceptable ranges.",
			StrategicSituation: "Strategic situation stable.",
		},
		ResearchNarrative: ResearchNarrative{
			ResearchClimate: "Research activities proceeding normally.",
		},
		DiplomaticSituation: DiplomaticSituation{
			OverallStanding: "Diplomatic status remains neutral.",
		},
		OverallNarrative: "All systems operating within normal parameters.",
		ConfidenceScore:  0.5,
	}
}

// NarrativeContext is the human-readable summary of a tick.
type NarrativeContext struct {
	EconomicTrends         []string `json:"economic_trends"`
	MilitaryEvents         []string `json:"military_events"`
	ResearchBreakthroughs  []string `json:"research_breakthroughs"`
	PopulationEvents       []string `json:"population_events"`
	DiplomaticDevelopments []string `json:"diplomatic_developments"`
	HistoricalComparisons  []string `json:"historical_comparisons"`
	FutureImplications     []string `json:"future_implications"`
	StrategicInsights      []string `json:"strategic_insights"`
}

// EventKind classifies an emergent event.
type EventKind string

const (
	EventCrisis       EventKind = "crisis"
	EventBreakthrough EventKind = "breakthrough"
	EventOpportunity  EventKind = "opportunity"
)

// PlayerChoice is one way of responding to an emergent event.
type PlayerChoice struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Consequences []campaign.Effect `json:"consequences"`
	Requirements []string          `json:"requirements"`
	Cost         map[string]int64  `json:"cost"`
}

// EmergentEvent is a story event synthesized from crossed thresholds.
type EmergentEvent struct {
	ID                   string            `json:"id"`
	Rule                 string            `json:"rule"` // economic_crisis, research_breakthrough, ...
	Type                 EventKind         `json:"type"`
	Severity             string            `json:"severity"`
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	Triggers             []string          `json:"triggers"`
	Effects              []campaign.Effect `json:"effects"`
	Duration             int               `json:"duration"`
	PlayerChoices        []PlayerChoice    `json:"player_choices"`
	StoryContext         string            `json:"story_context"`
	CharacterInvolvement []string          `json:"character_involvement"`
	PublicReaction       string            `json:"public_reaction"`
}

// Choice looks up a player choice by ID.
func (e EmergentEvent) Choice(id string) (PlayerChoice, bool) {
	for _, c := range e.PlayerChoices {
		if c.ID == id {
			return c, true
		}
	}
	return PlayerChoice{}, false
}

// CrisisAlert is a time-boxed, severity-ranked warning.
type CrisisAlert struct {
	ID                    string   `json:"id"`
	Type                  string   `json:"type"` // economic, social
	Severity              string   `json:"severity"`
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	Causes                []string `json:"causes"`
	CurrentEffects        []string `json:"current_effects"`
	ProjectedConsequences []string `json:"projected_consequences"`
	ImmediateActions      []string `json:"immediate_actions"`
	StrategicResponses    []string `json:"strategic_responses"`
	PreventiveMeasures    []string `json:"preventive_measures"`
	TimeToImpact          int      `json:"time_to_impact"`
	WindowForAction       int      `json:"window_for_action"`
}

// PolicyRecommendation is an advisory suggestion with no direct effect.
type PolicyRecommendation struct {
	ID                   string            `json:"id"`
	Category             string            `json:"category"`
	Priority             campaign.Priority `json:"priority"`
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	Rationale            []string          `json:"rationale"`
	ExpectedEffects      []string          `json:"expected_effects"`
	Risks                []string          `json:"risks"`
	Alternatives         []string          `json:"alternatives"`
	ImplementationSteps  []string          `json:"implementation_steps"`
	ResourceRequirements map[string]int64  `json:"resource_requirements"`
	Timeframe            string            `json:"timeframe"`
}

// HybridResults is the immutable output of one integration pass.
type HybridResults struct {
	SentimentModifiers    campaign.SentimentModifiers `json:"sentiment_modifiers"`
	NarrativeContext      NarrativeContext            `json:"narrative_context"`
	EmergentEvents        []EmergentEvent             `json:"emergent_events"`
	PolicyRecommendations []PolicyRecommendation      `json:"policy_recommendations"`
	CrisisAlerts          []CrisisAlert               `json:"crisis_alerts"`
	FinalCampaignState    campaign.State              `json:"final_campaign_state"`
	IntegrationTime       time.Duration               `json:"integration_time_ns"`
	ModificationsApplied  []string                    `json:"modifications_applied"`
	NarrativeEnhancements []string                    `json:"narrative_enhancements"`
}
