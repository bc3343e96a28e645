package engine

import (
	"context"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// DeterministicSimulator computes the numeric results of one tick.
type DeterministicSimulator interface {
	Compute(ctx context.Context, campaignID string, prev campaign.State, actions []campaign.Action) (*hybrid.DeterministicResults, error)
}

// NarrativeAnalyzer reads deterministic results as a story.
type NarrativeAnalyzer interface {
	Analyze(ctx context.Context, campaignID string, actions []campaign.Action, det *hybrid.DeterministicResults) (*hybrid.NaturalLanguageResults, error)
}

// StateStore persists campaign state and tick history.
type StateStore interface {
	// EnsureCampaign creates the campaign with initial state unless it
	// already exists, in which case its stored state is kept.
	EnsureCampaign(ctx context.Context, campaignID string, mode campaign.TickMode, initial campaign.State) error
	LoadState(ctx context.Context, campaignID string) (campaign.State, error)
	// SaveTick writes the final state and the tick record in one transaction.
	SaveTick(ctx context.Context, report *TickReport) error
	DeleteCampaign(ctx context.Context, campaignID string) error
}

// SeedForgetter is implemented by simulators that cache per-seed data.
type SeedForgetter interface {
	Forget(seed int64)
}

// MemoryReader is implemented by stores that keep tick memories. A campaign
// reads it once, on its first tick, to score continuity across restarts.
type MemoryReader interface {
	// RecentMemories returns up to limit memories, newest first.
	RecentMemories(ctx context.Context, campaignID string, limit int) ([]hybrid.TickMemory, error)
}

// SeedSource supplies seeds for new campaigns.
type SeedSource interface {
	Seed() int64
}
