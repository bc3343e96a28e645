package steward

import (
	"slices"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Crisis levels, most severe first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// weakFactor is the sentiment modifier below which a factor counts as a drag
// (-0.1 = ten percent penalty).
const weakFactor = -0.1

// Health holds deterministic signals derived from a snapshot.
// Computed before any model call.
type Health struct {
	CriticalAlerts int
	SeriousAlerts  int
	OpenEvents     []hybrid.EmergentEvent        // not yet answered by the steward
	Pending        []hybrid.PolicyRecommendation // not yet adopted
	WeakFactors    []string
	ErrorCount     int
	Level          string
}

// Triage computes campaign health from the snapshot. Events the steward has
// already answered are excluded via mem.
func Triage(snap *Snapshot, mem *CycleMemory) *Health {
	h := &Health{ErrorCount: snap.Status.ErrorCount}
	if res := snap.Results; res != nil {
		for _, a := range res.CrisisAlerts {
			switch a.Severity {
			case "critical":
				h.CriticalAlerts++
			case "serious":
				h.SeriousAlerts++
			}
		}
		for _, ev := range res.EmergentEvents {
			if len(ev.PlayerChoices) > 0 && !mem.Handled(ev.ID) {
				h.OpenEvents = append(h.OpenEvents, ev)
			}
		}
		for _, rec := range res.PolicyRecommendations {
			if !slices.Contains(snap.State.Adopted, rec.ID) {
				h.Pending = append(h.Pending, rec)
			}
		}
		for _, f := range res.SentimentModifiers.Factors() {
			if f.Value < weakFactor {
				h.WeakFactors = append(h.WeakFactors, f.Name)
			}
		}
	}

	majorEvent := slices.ContainsFunc(h.OpenEvents, func(ev hybrid.EmergentEvent) bool {
		return ev.Severity == "major"
	})
	switch {
	case h.CriticalAlerts > 0:
		h.Level = LevelCritical
	case h.SeriousAlerts > 0 || majorEvent || h.ErrorCount > 3:
		h.Level = LevelWarning
	case len(h.OpenEvents) > 0 || len(h.WeakFactors) >= 2:
		h.Level = LevelWatch
	default:
		h.Level = LevelHealthy
	}
	return h
}

// priorityRank orders recommendation priorities, most urgent first.
func priorityRank(p campaign.Priority) int {
	switch p {
	case campaign.PriorityCritical:
		return 0
	case campaign.PriorityHigh:
		return 1
	case campaign.PriorityMedium:
		return 2
	}
	return 3
}
