package steward

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/hybrid-sim/internal/llm"
)

// Steward runs observe, decide and act cycles against one API.
type Steward struct {
	Observer *Observer
	Actor    *Actor
	LLM      *llm.Client // nil = rules only
	Memory   *CycleMemory

	PlayerID         string
	MaxSpendFraction float64
	DryRun           bool
}

// RunCycle executes one cycle for a campaign and records it in memory.
func (s *Steward) RunCycle(ctx context.Context, campaignID string) (CycleRecord, error) {
	snap, err := s.Observer.Observe(ctx, campaignID)
	if err != nil {
		return CycleRecord{}, fmt.Errorf("observe %s: %w", campaignID, err)
	}
	health := Triage(snap, s.Memory)
	slog.Info("observation complete",
		"campaign_id", campaignID,
		"tick", snap.State.Tick,
		"crisis_level", health.Level,
		"open_events", len(health.OpenEvents),
		"pending_recommendations", len(health.Pending),
	)

	budget := NewBudget(snap.State, s.MaxSpendFraction)
	decision := Decide(ctx, s.LLM, snap, health, s.Memory, budget)
	slog.Info("decision made",
		"campaign_id", campaignID,
		"action", decision.Action,
		"source", decision.Source,
		"rationale", decision.Rationale,
	)

	rec := CycleRecord{
		CampaignID:       campaignID,
		Tick:             snap.State.Tick,
		Level:            health.Level,
		Action:           decision.Action,
		EventID:          decision.EventID,
		ChoiceID:         decision.ChoiceID,
		RecommendationID: decision.RecommendationID,
		Rationale:        decision.Rationale,
		DryRun:           s.DryRun,
	}

	action, ok := BuildAction(decision, health, s.PlayerID)
	if !ok {
		s.remember(rec)
		return rec, nil
	}

	if s.DryRun {
		slog.Info("dry run, not enqueueing", "campaign_id", campaignID, "type", action.Type)
		s.remember(rec)
		return rec, nil
	}

	queued, err := s.Actor.Act(ctx, campaignID, action)
	if err != nil {
		return rec, fmt.Errorf("act on %s: %w", campaignID, err)
	}
	slog.Info("action enqueued",
		"campaign_id", campaignID,
		"action_id", queued.ID,
		"type", queued.Type,
		"priority", queued.Priority,
	)

	if decision.Action == ActionResolve {
		rec.Chronicle = s.chronicle(ctx, health, decision)
	}
	s.remember(rec)
	return rec, nil
}

// chronicle narrates an event resolution when the model is available.
func (s *Steward) chronicle(ctx context.Context, h *Health, d *Decision) string {
	if !s.LLM.Enabled() {
		return ""
	}
	for _, ev := range h.OpenEvents {
		if ev.ID != d.EventID {
			continue
		}
		choice, _ := ev.Choice(d.ChoiceID)
		text, err := llm.NarrateResolution(ctx, s.LLM, ev, choice)
		if err != nil {
			slog.Warn("chronicle failed", "event_id", ev.ID, "error", err)
			return ""
		}
		return text
	}
	return ""
}

func (s *Steward) remember(rec CycleRecord) {
	s.Memory.Record(rec)
	s.Memory.Save()
}
