// Package campaign defines the persisted campaign state, player actions and
// the sentiment modifiers that link them.
package campaign

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// TickMode selects a campaign's tick cadence.
type TickMode string

const (
	ModeStrategic   TickMode = "strategic"
	ModeAccelerated TickMode = "accelerated"
	ModeIdle        TickMode = "idle"
)

// Default intervals per tick mode.
const (
	StrategicInterval   = 120 * time.Second
	AcceleratedInterval = 60 * time.Second
	IdleInterval        = 300 * time.Second
)

// ParseTickMode validates a mode name. An empty name means strategic.
func ParseTickMode(s string) (TickMode, error) {
	switch TickMode(s) {
	case "", ModeStrategic:
		return ModeStrategic, nil
	case ModeAccelerated:
		return ModeAccelerated, nil
	case ModeIdle:
		return ModeIdle, nil
	}
	return "", fmt.Errorf("unknown tick mode %q (use: strategic, accelerated, idle)", s)
}

// Queue kinds.
const (
	QueueResearch     = "research"
	QueueConstruction = "construction"
	QueueTraining     = "training"
)

// Well-known resource keys.
const (
	ResourceCredits   = "credits"
	ResourceMaterials = "materials"
	ResourceEnergy    = "energy"
	ResourceFood      = "food"
)

// QueueEntry is an in-progress project. Progress and TotalTime share a unit
// (ticks of effort); Progress never exceeds TotalTime.
type QueueEntry struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Name      string  `json:"name"`
	Progress  float64 `json:"progress"`
	TotalTime float64 `json:"total_time"`
}

// Complete reports whether the entry has reached its total time.
func (q QueueEntry) Complete() bool {
	return q.Progress >= q.TotalTime
}

// Effect is a timed modifier on one sector of the campaign.
type Effect struct {
	Target         string  `json:"target"` // economic, population, research, military
	Modifier       float64 `json:"modifier"`
	RemainingTicks int     `json:"remaining_ticks"`
	Source         string  `json:"source"`
	Description    string  `json:"description,omitempty"`
}

// ModifierSources records the four raw inputs behind a SentimentModifiers value.
type ModifierSources struct {
	PopulationMood     float64 `json:"population_mood"`
	EconomicConfidence float64 `json:"economic_confidence"`
	MilitaryMorale     float64 `json:"military_morale"`
	LeadershipTrust    float64 `json:"leadership_trust"`
}

// SentimentModifiers are bounded adjustment factors derived from narrative
// analysis. Each factor is a signed fraction (0.1 = +10%).
type SentimentModifiers struct {
	ProductionEfficiency float64         `json:"production_efficiency"`
	ResearchSpeed        float64         `json:"research_speed"`
	MilitaryMorale       float64         `json:"military_morale"`
	TaxCompliance        float64         `json:"tax_compliance"`
	TradeEfficiency      float64         `json:"trade_efficiency"`
	DiplomaticInfluence  float64         `json:"diplomatic_influence"`
	Sources              ModifierSources `json:"modifier_sources"`
}

// Factors returns the six named factors in a fixed order.
func (m SentimentModifiers) Factors() []NamedFactor {
	return []NamedFactor{
		{"productionEfficiency", m.ProductionEfficiency},
		{"researchSpeed", m.ResearchSpeed},
		{"militaryMorale", m.MilitaryMorale},
		{"taxCompliance", m.TaxCompliance},
		{"tradeEfficiency", m.TradeEfficiency},
		{"diplomaticInfluence", m.DiplomaticInfluence},
	}
}

// NamedFactor pairs a modifier name with its value.
type NamedFactor struct {
	Name  string
	Value float64
}

// State is the persisted campaign state blob.
type State struct {
	CampaignID    string              `json:"campaign_id"`
	Seed          int64               `json:"seed"`
	Tick          uint64              `json:"tick"`
	Resources     map[string]int64    `json:"resources"`
	Queues        []QueueEntry        `json:"queues"`
	Population    int64               `json:"population"`
	TaxRate       float64             `json:"tax_rate"`
	Forces        int64               `json:"forces"`
	Readiness     float64             `json:"readiness"`
	TechLevel     float64             `json:"tech_level"`
	Standing      float64             `json:"standing"` // diplomatic standing in [-1, 1]
	ActiveEffects []Effect            `json:"active_effects"`
	Adopted       []string            `json:"adopted_policies,omitempty"`
	Modifiers     *SentimentModifiers `json:"sentiment_modifiers,omitempty"`
	OpenEvents    []OpenEvent         `json:"open_events,omitempty"`
	OpenPolicies  []OpenPolicy        `json:"open_policies,omitempty"`
}

// ErrOfferClosed is returned when an action answers an event choice or a
// recommendation the campaign has not offered, or no longer offers.
var ErrOfferClosed = errors.New("offer is not open")

// OpenEvent is an emergent event still awaiting an answer. The choices carry
// the cost and consequences fixed when the event fired.
type OpenEvent struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	ExpiresAt uint64          `json:"expires_at_tick"` // answerable in ticks before this one
	Choices   []OfferedChoice `json:"choices"`
}

// OfferedChoice is one answer to an open event.
type OfferedChoice struct {
	ID           string           `json:"id"`
	Cost         map[string]int64 `json:"cost,omitempty"`
	Consequences []Effect         `json:"consequences"`
}

// OpenPolicy is a recommendation that can still be adopted.
type OpenPolicy struct {
	ID        string           `json:"id"`
	Category  string           `json:"category"`
	Cost      map[string]int64 `json:"cost,omitempty"`
	ExpiresAt uint64           `json:"expires_at_tick"`
}

// NewState returns the opening state for a fresh campaign.
func NewState(campaignID string, seed int64) State {
	return State{
		CampaignID: campaignID,
		Seed:       seed,
		Resources: map[string]int64{
			ResourceCredits:   100000,
			ResourceMaterials: 50000,
			ResourceEnergy:    30000,
			ResourceFood:      40000,
		},
		Population: 1_000_000,
		TaxRate:    0.15,
		Forces:     5000,
		Readiness:  0.6,
		TechLevel:  1,
	}
}

// Clone returns a deep copy. Mutating the copy never affects the receiver.
func (s State) Clone() State {
	out := s
	out.Resources = maps.Clone(s.Resources)
	out.Queues = slices.Clone(s.Queues)
	out.ActiveEffects = slices.Clone(s.ActiveEffects)
	out.Adopted = slices.Clone(s.Adopted)
	out.OpenEvents = cloneEvents(s.OpenEvents)
	out.OpenPolicies = clonePolicies(s.OpenPolicies)
	if s.Modifiers != nil {
		m := *s.Modifiers
		out.Modifiers = &m
	}
	return out
}

// EffectTotal sums the active effect modifiers aimed at target.
func (s State) EffectTotal(target string) float64 {
	total := 0.0
	for _, e := range s.ActiveEffects {
		if e.Target == target && e.RemainingTicks > 0 {
			total += e.Modifier
		}
	}
	return total
}

// CanAfford reports whether every cost entry is covered by resources.
func (s State) CanAfford(cost map[string]int64) bool {
	for k, v := range cost {
		if s.Resources[k] < v {
			return false
		}
	}
	return true
}

func cloneEvents(in []OpenEvent) []OpenEvent {
	if in == nil {
		return nil
	}
	out := make([]OpenEvent, len(in))
	for i, e := range in {
		out[i] = e
		out[i].Choices = make([]OfferedChoice, len(e.Choices))
		for j, c := range e.Choices {
			c.Cost = maps.Clone(c.Cost)
			c.Consequences = slices.Clone(c.Consequences)
			out[i].Choices[j] = c
		}
	}
	return out
}

func clonePolicies(in []OpenPolicy) []OpenPolicy {
	if in == nil {
		return nil
	}
	out := make([]OpenPolicy, len(in))
	for i, p := range in {
		p.Cost = maps.Clone(p.Cost)
		out[i] = p
	}
	return out
}

// EventChoice returns the offered choice of an open event.
func (s State) EventChoice(eventID, choiceID string) (OfferedChoice, error) {
	for _, e := range s.OpenEvents {
		if e.ID != eventID {
			continue
		}
		for _, c := range e.Choices {
			if c.ID == choiceID {
				return c, nil
			}
		}
		return OfferedChoice{}, fmt.Errorf("%w: event %s has no choice %q", ErrOfferClosed, eventID, choiceID)
	}
	return OfferedChoice{}, fmt.Errorf("%w: event %s", ErrOfferClosed, eventID)
}

// Policy returns an open recommendation.
func (s State) Policy(id string) (OpenPolicy, error) {
	for _, p := range s.OpenPolicies {
		if p.ID == id {
			return p, nil
		}
	}
	return OpenPolicy{}, fmt.Errorf("%w: recommendation %s", ErrOfferClosed, id)
}

// CheckOffer reports whether p answers an offer that is still open. Payloads
// that answer no offer always pass.
func (s State) CheckOffer(p Payload) error {
	switch p := p.(type) {
	case ResolveEvent:
		_, err := s.EventChoice(p.EventID, p.ChoiceID)
		return err
	case AdoptPolicy:
		_, err := s.Policy(p.RecommendationID)
		return err
	}
	return nil
}

// CloseEvent withdraws an answered event.
func (s *State) CloseEvent(id string) {
	s.OpenEvents = slices.DeleteFunc(s.OpenEvents, func(e OpenEvent) bool { return e.ID == id })
}

// ClosePolicy withdraws an adopted recommendation.
func (s *State) ClosePolicy(id string) {
	s.OpenPolicies = slices.DeleteFunc(s.OpenPolicies, func(p OpenPolicy) bool { return p.ID == id })
}

// PruneOffers drops offers that can no longer be answered after tick.
func (s *State) PruneOffers(tick uint64) {
	s.OpenEvents = slices.DeleteFunc(s.OpenEvents, func(e OpenEvent) bool { return e.ExpiresAt <= tick+1 })
	s.OpenPolicies = slices.DeleteFunc(s.OpenPolicies, func(p OpenPolicy) bool { return p.ExpiresAt <= tick+1 })
}
