package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != 8080 || cfg.DBPath != "data/hybridsim.db" || !cfg.AutoStart {
		t.Fatalf("defaults = %+v", cfg)
	}

	ec := cfg.Engine()
	if ec.Interval(campaign.ModeStrategic) != 120*time.Second || ec.Interval(campaign.ModeIdle) != 300*time.Second {
		t.Fatalf("intervals = %v / %v", ec.StrategicInterval, ec.IdleInterval)
	}
	if ec.Dedup != hybrid.DedupNone || ec.RequeueOnFailure || ec.Adaptive || ec.RetryBaseDelay != 5*time.Second {
		t.Fatalf("engine defaults = %+v", ec)
	}

	rules, err := cfg.Rules()
	if err != nil {
		t.Fatal(err)
	}
	if rules != hybrid.DefaultRules() {
		t.Fatal("rules without a file differ from the defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HYBRIDSIM_API_PORT", "9090")
	t.Setenv("HYBRIDSIM_ACCELERATED_INTERVAL", "15s")
	t.Setenv("HYBRIDSIM_DEDUP_POLICY", "suppress_active")
	t.Setenv("HYBRIDSIM_REQUEUE_ON_FAILURE", "true")
	t.Setenv("HYBRIDSIM_CAMPAIGNS", " alpha, ,beta ")
	t.Setenv("HYBRIDSIM_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != 9090 {
		t.Fatalf("port = %d", cfg.APIPort)
	}
	if len(cfg.Campaigns) != 2 || cfg.Campaigns[0] != "alpha" || cfg.Campaigns[1] != "beta" {
		t.Fatalf("campaigns = %q", cfg.Campaigns)
	}
	ec := cfg.Engine()
	if ec.Interval(campaign.ModeAccelerated) != 15*time.Second || ec.Dedup != hybrid.DedupSuppressActive || !ec.RequeueOnFailure {
		t.Fatalf("engine = %+v", ec)
	}
	if lvl, _ := ParseLevel(cfg.LogLevel); lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"HYBRIDSIM_DEDUP_POLICY":       "sometimes",
		"HYBRIDSIM_API_PORT":           "70000",
		"HYBRIDSIM_LOG_LEVEL":          "chatty",
		"HYBRIDSIM_STRATEGIC_INTERVAL": "soon",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%s accepted", key, val)
			}
		})
	}
}

func TestRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("alerts:\n  economic_gdp: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HYBRIDSIM_RULES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	rules, err := cfg.Rules()
	if err != nil {
		t.Fatal(err)
	}
	if rules.Alerts.EconomicGDP != -5 {
		t.Fatalf("economic gdp threshold = %v, want -5", rules.Alerts.EconomicGDP)
	}
}

func TestLoadSteward(t *testing.T) {
	if _, err := LoadSteward(); err == nil {
		t.Fatal("steward config without admin key accepted")
	}

	t.Setenv("HYBRIDSIM_ADMIN_KEY", "secret")
	t.Setenv("STEWARD_API_URL", "http://sim:8080/")
	t.Setenv("STEWARD_CAMPAIGNS", "c1,c2")
	cfg, err := LoadSteward()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIURL != "http://sim:8080" || len(cfg.Campaigns) != 2 || cfg.Interval != 10*time.Minute {
		t.Fatalf("steward = %+v", cfg)
	}

	t.Setenv("STEWARD_MAX_SPEND_FRACTION", "1.5")
	if _, err := LoadSteward(); err == nil {
		t.Fatal("spend fraction above 1 accepted")
	}
}
