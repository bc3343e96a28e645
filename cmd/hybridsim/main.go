// Command hybridsim runs the hybrid campaign simulation service: a per-campaign
// tick scheduler that merges the deterministic simulation with LLM narrative,
// served over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/hybrid-sim/internal/api"
	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/config"
	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/entropy"
	"github.com/talgya/hybrid-sim/internal/hybrid"
	"github.com/talgya/hybrid-sim/internal/llm"
	"github.com/talgya/hybrid-sim/internal/persistence"
	"github.com/talgya/hybrid-sim/internal/simulation"
	"github.com/talgya/hybrid-sim/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	slog.SetDefault(newLogger(os.Stdout, level))

	slog.Info("hybridsim starting",
		"strategic_interval", cfg.StrategicInterval,
		"accelerated_interval", cfg.AcceleratedInterval,
		"idle_interval", cfg.IdleInterval,
		"tick_timeout", cfg.TickTimeout,
		"adaptive", cfg.Adaptive,
		"dedup", cfg.DedupPolicy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)
	if last, err := db.GetMeta("last_shutdown"); err == nil {
		slog.Info("previous shutdown", "at", last)
	}

	// ── Integrator ────────────────────────────────────────────────────
	rules, err := cfg.Rules()
	if err != nil {
		slog.Error("failed to load rules", "path", cfg.RulesFile, "error", err)
		os.Exit(1)
	}
	integrator := hybrid.NewIntegrator(rules)

	// ── LLM Client ───────────────────────────────────────────────────
	llmClient := llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.AnthropicKey,
		Model:       cfg.LLMModel,
		CallsPerMin: cfg.LLMCallsPerMin,
	})
	if llmClient.Enabled() {
		slog.Info("LLM client enabled", "calls_per_min", cfg.LLMCallsPerMin)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, narrative will be rule-based")
	}
	analyzer := llm.NewAnalyzer(llmClient, cfg.TickTimeout/2)

	// ── Entropy ───────────────────────────────────────────────────────
	seeds := entropy.NewClient(cfg.RandomOrgKey)
	if seeds.Enabled() {
		slog.Info("campaign seeds from random.org")
	}

	// ── Scheduler ─────────────────────────────────────────────────────
	sched := engine.New(cfg.Engine(), simulation.New(), analyzer, db, integrator,
		engine.WithSeedSource(seeds))

	go recordModeChanges(ctx, sched, db)

	if err := registerCampaigns(ctx, sched, db, cfg); err != nil {
		slog.Error("failed to register campaigns", "error", err)
		os.Exit(1)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("HYBRIDSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sched:         sched,
		DB:            db,
		Port:          cfg.APIPort,
		AdminKey:      cfg.AdminKey,
		RelayKey:      cfg.RelayKey,
		CORSOrigins:   cfg.CORSOrigins,
		ActionsPerMin: cfg.ActionsPerMin,
	}
	httpServer := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	fmt.Printf("\nhybridsim is running %d campaign(s).\n", len(sched.Statuses()))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)

	<-ctx.Done()
	slog.Info("received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TickTimeout+10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	// In-flight ticks finish and persist before the scheduler returns.
	if err := sched.Shutdown(shutdownCtx); err != nil {
		slog.Error("scheduler shutdown failed", "error", err)
	}
	if err := db.SaveMeta("last_shutdown", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Error("failed to record shutdown", "error", err)
	}

	fmt.Println("hybridsim stopped. Campaign state saved.")
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(w *os.File, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// registerCampaigns restores stored campaigns and adds configured ones.
// With AutoStart, campaigns that were running at shutdown resume, and newly
// configured campaigns start.
func registerCampaigns(ctx context.Context, sched *engine.Scheduler, db *persistence.DB, cfg config.Config) error {
	stored, err := db.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	for _, rec := range stored {
		if err := sched.Register(ctx, rec.ID, rec.Mode); err != nil {
			return fmt.Errorf("register %s: %w", rec.ID, err)
		}
		if cfg.AutoStart && rec.Active {
			if err := sched.Start(rec.ID); err != nil {
				return fmt.Errorf("start %s: %w", rec.ID, err)
			}
		}
		slog.Info("campaign restored", "campaign_id", rec.ID, "tick", rec.Tick, "mode", rec.Mode, "active", cfg.AutoStart && rec.Active)
	}

	for _, id := range cfg.Campaigns {
		if sched.Registered(id) {
			continue
		}
		if err := sched.Register(ctx, id, campaign.ModeStrategic); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
		if cfg.AutoStart {
			if err := sched.Start(id); err != nil {
				return fmt.Errorf("start %s: %w", id, err)
			}
			if err := db.SetActive(ctx, id, true); err != nil {
				return fmt.Errorf("record %s active: %w", id, err)
			}
		}
		slog.Info("campaign registered", "campaign_id", id, "active", cfg.AutoStart)
	}
	return nil
}

// recordModeChanges persists tick mode switches so a restart resumes at the
// same cadence. Adaptive switches only surface on the bus.
func recordModeChanges(ctx context.Context, sched *engine.Scheduler, db *persistence.DB) {
	id, ch := sched.Subscribe()
	defer sched.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if n.Kind != engine.NotifyModeChanged {
				continue
			}
			if err := db.SetMode(context.Background(), n.CampaignID, n.Mode); err != nil {
				slog.Warn("failed to record tick mode", "campaign_id", n.CampaignID, "error", err)
			}
		}
	}
}
