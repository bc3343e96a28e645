package engine

import (
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Trigger records why a tick ran.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerImmediate Trigger = "immediate"
)

// PhaseTimings breaks a tick's processing time down by phase.
type PhaseTimings struct {
	Deterministic   time.Duration `json:"deterministic_ns"`
	NaturalLanguage time.Duration `json:"natural_language_ns"`
	Integration     time.Duration `json:"integration_ns"`
	Persistence     time.Duration `json:"persistence_ns"`
}

// TickReport is the record of one committed tick.
type TickReport struct {
	CampaignID  string                `json:"campaign_id"`
	TickID      string                `json:"tick_id"`
	Tick        uint64                `json:"tick"`
	Seed        string                `json:"seed"`
	Trigger     Trigger               `json:"trigger"`
	Actions     []campaign.Action     `json:"actions"`
	Results     *hybrid.HybridResults `json:"results"`
	Memory      *hybrid.TickMemory    `json:"memory,omitempty"`
	Phases      PhaseTimings          `json:"phase_timings"`
	Duration    time.Duration         `json:"processing_time_ns"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

// Status is a point-in-time view of one campaign's scheduler state.
type Status struct {
	CampaignID         string            `json:"campaign_id"`
	Mode               campaign.TickMode `json:"tick_mode"`
	Active             bool              `json:"is_active"`
	InFlight           bool              `json:"in_flight"`
	TickCount          uint64            `json:"tick_count"`
	AverageTickTimeMs  float64           `json:"average_tick_time_ms"`
	LastTickDurationMs float64           `json:"last_tick_duration_ms"`
	LastTickAt         time.Time         `json:"last_tick_at,omitzero"`
	NextTickAt         time.Time         `json:"next_tick_at,omitzero"`
	TimeUntilNextTick  time.Duration     `json:"time_until_next_tick_ns"`
	ErrorCount         int               `json:"error_count"`
	QueuedActions      int               `json:"queued_actions"`
	ActivePlayers      []string          `json:"active_players"`
	LastPlayerAction   time.Time         `json:"last_player_action,omitzero"`
}
