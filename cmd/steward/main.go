// Command steward runs the autonomous campaign steward.
// It observes campaigns over the hybridsim API, decides whether to answer
// an emergent event or adopt a recommendation, and enqueues the action.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/hybrid-sim/internal/config"
	"github.com/talgya/hybrid-sim/internal/llm"
	"github.com/talgya/hybrid-sim/internal/steward"
)

func main() {
	cfg, err := config.LoadSteward()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := llm.NewClient(llm.ClientConfig{APIKey: cfg.AnthropicKey, Model: cfg.LLMModel})
	s := &steward.Steward{
		Observer:         steward.NewObserver(cfg.APIURL),
		Actor:            steward.NewActor(cfg.APIURL, cfg.AdminKey),
		LLM:              client,
		Memory:           steward.LoadMemory(cfg.MemoryFile),
		PlayerID:         cfg.PlayerID,
		MaxSpendFraction: cfg.MaxSpendFraction,
		DryRun:           cfg.DryRun,
	}

	slog.Info("steward starting",
		"api_url", cfg.APIURL,
		"interval", cfg.Interval,
		"model", client.Enabled(),
		"dry_run", cfg.DryRun,
	)

	// The API may still be starting; the unit ordering only covers process start.
	if err := steward.WaitForAPI(ctx, cfg.APIURL, cfg.APIWait); err != nil {
		slog.Error("hybridsim API unavailable", "error", err)
		os.Exit(1)
	}

	runAll(ctx, s, cfg.Campaigns, cfg.APIURL)
	if cfg.Once {
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runAll(ctx, s, cfg.Campaigns, cfg.APIURL)
		case <-ctx.Done():
			slog.Info("steward stopped")
			return
		}
	}
}

// runAll runs one cycle for each configured campaign, or for every
// registered campaign when none are configured.
func runAll(ctx context.Context, s *steward.Steward, campaigns []string, apiURL string) {
	if len(campaigns) == 0 {
		ids, err := steward.RegisteredCampaigns(ctx, s.Observer)
		if err != nil {
			slog.Error("list campaigns failed", "api_url", apiURL, "error", err)
			return
		}
		campaigns = ids
	}
	for _, id := range campaigns {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RunCycle(ctx, id); err != nil {
			slog.Error("steward cycle failed", "campaign_id", id, "error", err)
		}
	}
}
