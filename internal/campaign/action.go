package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// Priority ranks a queued action.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ActionType keys the payload variant carried by an Action.
type ActionType string

const (
	ActionAllocateBudget     ActionType = "allocate_budget"
	ActionStartResearch      ActionType = "start_research"
	ActionSetTaxPolicy       ActionType = "set_tax_policy"
	ActionMobilizeForces     ActionType = "mobilize_forces"
	ActionDiplomaticOverture ActionType = "diplomatic_overture"
	ActionResolveEvent       ActionType = "resolve_event"
	ActionAdoptPolicy        ActionType = "adopt_policy"
)

// ErrInvalidPayload is wrapped by every payload decoding or validation failure.
var ErrInvalidPayload = errors.New("invalid action payload")

// Payload is the typed data of one action variant.
type Payload interface {
	ActionType() ActionType
	Validate() error
}

// AllocateBudget moves credits into a sector for the coming tick.
type AllocateBudget struct {
	Sector  string `json:"sector" jsonschema:"required,enum=economy,enum=military,enum=research,enum=welfare"`
	Credits int64  `json:"credits" jsonschema:"required,minimum=1"`
}

// StartResearch opens a new research queue entry.
type StartResearch struct {
	Project string  `json:"project" jsonschema:"required"`
	Effort  float64 `json:"effort" jsonschema:"required,minimum=1,description=Total effort in ticks"`
}

// SetTaxPolicy changes the campaign tax rate.
type SetTaxPolicy struct {
	Rate float64 `json:"rate" jsonschema:"required,minimum=0,maximum=0.6"`
}

// MobilizeForces raises or stands down units.
type MobilizeForces struct {
	Units   int64  `json:"units" jsonschema:"required,description=Positive to raise and negative to stand down"`
	Posture string `json:"posture" jsonschema:"enum=defensive,enum=offensive"`
}

// DiplomaticOverture shifts relations with another power.
type DiplomaticOverture struct {
	Target string `json:"target" jsonschema:"required"`
	Stance string `json:"stance" jsonschema:"required,enum=friendly,enum=neutral,enum=hostile"`
}

// ResolveEvent answers an open emergent event. The cost and consequences
// are those the campaign offered with the choice.
type ResolveEvent struct {
	EventID  string `json:"event_id" jsonschema:"required"`
	ChoiceID string `json:"choice_id" jsonschema:"required"`
}

// AdoptPolicy enacts an open policy recommendation at its offered cost.
type AdoptPolicy struct {
	RecommendationID string `json:"recommendation_id" jsonschema:"required"`
}

func (AllocateBudget) ActionType() ActionType     { return ActionAllocateBudget }
func (StartResearch) ActionType() ActionType      { return ActionStartResearch }
func (SetTaxPolicy) ActionType() ActionType       { return ActionSetTaxPolicy }
func (MobilizeForces) ActionType() ActionType     { return ActionMobilizeForces }
func (DiplomaticOverture) ActionType() ActionType { return ActionDiplomaticOverture }
func (ResolveEvent) ActionType() ActionType       { return ActionResolveEvent }
func (AdoptPolicy) ActionType() ActionType        { return ActionAdoptPolicy }

func (p AllocateBudget) Validate() error {
	if !slices.Contains([]string{"economy", "military", "research", "welfare"}, p.Sector) {
		return fmt.Errorf("unknown sector %q", p.Sector)
	}
	if p.Credits <= 0 {
		return fmt.Errorf("credits must be positive")
	}
	return nil
}

func (p StartResearch) Validate() error {
	if strings.TrimSpace(p.Project) == "" {
		return fmt.Errorf("project is required")
	}
	if p.Effort < 1 {
		return fmt.Errorf("effort must be at least 1")
	}
	return nil
}

func (p SetTaxPolicy) Validate() error {
	if p.Rate < 0 || p.Rate > 0.6 {
		return fmt.Errorf("tax rate %.2f outside [0, 0.6]", p.Rate)
	}
	return nil
}

func (p MobilizeForces) Validate() error {
	if p.Units == 0 {
		return fmt.Errorf("units must be non-zero")
	}
	if p.Posture != "" && p.Posture != "defensive" && p.Posture != "offensive" {
		return fmt.Errorf("unknown posture %q", p.Posture)
	}
	return nil
}

func (p DiplomaticOverture) Validate() error {
	if strings.TrimSpace(p.Target) == "" {
		return fmt.Errorf("target is required")
	}
	switch p.Stance {
	case "friendly", "neutral", "hostile":
		return nil
	}
	return fmt.Errorf("unknown stance %q", p.Stance)
}

func (p ResolveEvent) Validate() error {
	if strings.TrimSpace(p.EventID) == "" || strings.TrimSpace(p.ChoiceID) == "" {
		return fmt.Errorf("event_id and choice_id are required")
	}
	return nil
}

func (p AdoptPolicy) Validate() error {
	if strings.TrimSpace(p.RecommendationID) == "" {
		return fmt.Errorf("recommendation_id is required")
	}
	return nil
}

// payloadShapes maps each action type to a constructor of its payload.
var payloadShapes = map[ActionType]func() Payload{
	ActionAllocateBudget:     func() Payload { return &AllocateBudget{} },
	ActionStartResearch:      func() Payload { return &StartResearch{} },
	ActionSetTaxPolicy:       func() Payload { return &SetTaxPolicy{} },
	ActionMobilizeForces:     func() Payload { return &MobilizeForces{} },
	ActionDiplomaticOverture: func() Payload { return &DiplomaticOverture{} },
	ActionResolveEvent:       func() Payload { return &ResolveEvent{} },
	ActionAdoptPolicy:        func() Payload { return &AdoptPolicy{} },
}

// ActionTypes lists every registered action type, sorted.
func ActionTypes() []ActionType {
	types := make([]ActionType, 0, len(payloadShapes))
	for t := range payloadShapes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DecodePayload builds the typed payload for t from a generic map, rejecting
// unknown fields.
func DecodePayload(t ActionType, raw map[string]any) (Payload, error) {
	shape, ok := payloadShapes[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidPayload, t)
	}
	target := shape()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
	}

	// Store payloads by value so copies of an Action never share them.
	p := reflect.ValueOf(target).Elem().Interface().(Payload)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
	}
	return p, nil
}

// PayloadSchema returns the JSON Schema of every registered payload, keyed by
// action type.
func PayloadSchema() map[ActionType]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	out := make(map[ActionType]*jsonschema.Schema, len(payloadShapes))
	for t, shape := range payloadShapes {
		s := reflector.ReflectFromType(reflect.TypeOf(shape()).Elem())
		s.Version = ""
		s.Title = string(t)
		out[t] = s
	}
	return out
}

// Action is a player action queued for a campaign's next tick.
type Action struct {
	ID                string     `json:"id"`
	PlayerID          string     `json:"player_id"`
	Type              ActionType `json:"type"`
	Data              Payload    `json:"data"`
	Priority          Priority   `json:"priority"`
	RequiresImmediate bool       `json:"requires_immediate"`
	AffectsSimulation bool       `json:"affects_simulation"`
	Timestamp         time.Time  `json:"timestamp"`
}

// NewAction creates an action with a fresh ID for the given payload.
func NewAction(playerID string, data Payload, priority Priority) Action {
	return Action{
		ID:                uuid.NewString(),
		PlayerID:          playerID,
		Type:              data.ActionType(),
		Data:              data,
		Priority:          priority,
		AffectsSimulation: true,
		Timestamp:         time.Now(),
	}
}

// Urgent reports whether the action asks for an out-of-band tick.
func (a Action) Urgent() bool {
	return a.Priority == PriorityCritical && a.RequiresImmediate
}

// Validate checks the envelope and the payload.
func (a Action) Validate() error {
	if strings.TrimSpace(a.PlayerID) == "" {
		return fmt.Errorf("%w: player_id is required", ErrInvalidPayload)
	}
	if !a.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidPayload, a.Priority)
	}
	if _, ok := payloadShapes[a.Type]; !ok {
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidPayload, a.Type)
	}
	if a.Data == nil {
		return fmt.Errorf("%w: %s: missing data", ErrInvalidPayload, a.Type)
	}
	if a.Data.ActionType() != a.Type {
		return fmt.Errorf("%w: data is %s, action is %s", ErrInvalidPayload, a.Data.ActionType(), a.Type)
	}
	if err := a.Data.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, a.Type, err)
	}
	return nil
}

// UnmarshalJSON decodes the envelope and then the payload variant named by type.
func (a *Action) UnmarshalJSON(b []byte) error {
	type envelope Action
	var raw struct {
		envelope
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Action(raw.envelope)
	a.Data = nil
	if raw.Data == nil {
		return nil
	}
	p, err := DecodePayload(a.Type, raw.Data)
	if err != nil {
		return err
	}
	a.Data = p
	return nil
}
