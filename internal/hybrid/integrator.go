package hybrid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput is returned when a producer hands the integrator unusable
// data (missing bundles or non-finite metrics).
var ErrInvalidInput = errors.New("invalid integration input")

// Integrator runs the six integration steps in a fixed order.
type Integrator struct {
	rules Rules
	newID func() string
}

// Option configures an Integrator.
type Option func(*Integrator)

// WithIDs replaces the ID generator used for events, alerts and
// recommendations.
func WithIDs(newID func() string) Option {
	return func(i *Integrator) { i.newID = newID }
}

// NewIntegrator creates an Integrator evaluating rules.
func NewIntegrator(rules Rules, opts ...Option) *Integrator {
	i := &Integrator{rules: rules, newID: uuid.NewString}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Rules returns the thresholds in use.
func (i *Integrator) Rules() Rules { return i.rules }

// Integrate merges one tick's deterministic and narrative results. Order:
// modifiers, state mutation, narrative, events, recommendations, alerts.
// A failing step aborts the whole pass and nothing partial is returned.
func (i *Integrator) Integrate(det *DeterministicResults, nl *NaturalLanguageResults) (res *HybridResults, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("integration step panicked: %v", r)
		}
	}()

	if err := validate(det, nl); err != nil {
		return nil, err
	}

	mods := CalculateModifiers(nl)
	state := ApplyModifiers(det.CampaignState, mods)
	narrative := BuildNarrative(i.rules, det, nl, mods)
	events := DetectEvents(i.rules, i.newID, det, nl, mods)
	recs := Recommend(i.rules, i.newID, det)
	alerts := DetectAlerts(i.rules, i.newID, det, nl, mods)

	return &HybridResults{
		SentimentModifiers:    mods,
		NarrativeContext:      narrative,
		EmergentEvents:        events,
		PolicyRecommendations: recs,
		CrisisAlerts:          alerts,
		FinalCampaignState:    state,
		IntegrationTime:       time.Since(start),
		ModificationsApplied:  ModificationsSummary(i.rules, mods),
		NarrativeEnhancements: NarrativeEnhancements(narrative),
	}, nil
}

func validate(det *DeterministicResults, nl *NaturalLanguageResults) error {
	if det == nil {
		return fmt.Errorf("%w: missing deterministic results", ErrInvalidInput)
	}
	if nl == nil {
		return fmt.Errorf("%w: missing narrative results", ErrInvalidInput)
	}
	if det.CampaignState.CampaignID == "" {
		return fmt.Errorf("%w: deterministic results carry no campaign state", ErrInvalidInput)
	}

	metrics := []struct {
		name string
		v    float64
	}{
		{"gdp_growth", det.Economic.GDPGrowth},
		{"unemployment", det.Economic.Unemployment},
		{"readiness_level", det.Military.ReadinessLevel},
		{"research_efficiency", det.Research.ResearchEfficiency},
		{"breakthrough_probability", det.Research.BreakthroughProbability},
		{"overall_sentiment", nl.PopulationMood.Sentiment.OverallSentiment},
	}
	for _, m := range metrics {
		if math.IsNaN(m.v) || math.IsInf(m.v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidInput, m.name, m.v)
		}
	}
	for _, q := range det.CampaignState.Queues {
		if math.IsNaN(q.Progress) || math.IsNaN(q.TotalTime) {
			return fmt.Errorf("%w: queue %s has non-finite progress", ErrInvalidInput, q.ID)
		}
	}
	return nil
}
