// Package config loads service and steward settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Config is the hybridsim service configuration.
type Config struct {
	DBPath      string   `env:"HYBRIDSIM_DB_PATH"      envDefault:"data/hybridsim.db"`
	APIPort     int      `env:"HYBRIDSIM_API_PORT"     envDefault:"8080"`
	AdminKey    string   `env:"HYBRIDSIM_ADMIN_KEY"`
	RelayKey    string   `env:"HYBRIDSIM_RELAY_KEY"`
	CORSOrigins []string `env:"HYBRIDSIM_CORS_ORIGINS" envSeparator:","`
	LogLevel    string   `env:"HYBRIDSIM_LOG_LEVEL"    envDefault:"info"`

	// Per-IP limit on action submissions and manual ticks.
	ActionsPerMin int `env:"HYBRIDSIM_ACTIONS_PER_MIN" envDefault:"60"`

	AnthropicKey   string `env:"ANTHROPIC_API_KEY"`
	LLMModel       string `env:"HYBRIDSIM_LLM_MODEL"`
	LLMCallsPerMin int    `env:"HYBRIDSIM_LLM_CALLS_PER_MIN" envDefault:"20"`

	StrategicInterval   time.Duration `env:"HYBRIDSIM_STRATEGIC_INTERVAL"   envDefault:"120s"`
	AcceleratedInterval time.Duration `env:"HYBRIDSIM_ACCELERATED_INTERVAL" envDefault:"60s"`
	IdleInterval        time.Duration `env:"HYBRIDSIM_IDLE_INTERVAL"        envDefault:"300s"`
	TickTimeout         time.Duration `env:"HYBRIDSIM_TICK_TIMEOUT"         envDefault:"90s"`
	RetryBaseDelay      time.Duration `env:"HYBRIDSIM_RETRY_BASE_DELAY"     envDefault:"5s"`
	Adaptive            bool          `env:"HYBRIDSIM_ADAPTIVE_TICKS"`
	RequeueOnFailure    bool          `env:"HYBRIDSIM_REQUEUE_ON_FAILURE"`
	DedupPolicy         string        `env:"HYBRIDSIM_DEDUP_POLICY"         envDefault:"none"`
	DisableNarrative    bool          `env:"HYBRIDSIM_DISABLE_NARRATIVE"`
	RulesFile           string        `env:"HYBRIDSIM_RULES_FILE"`

	// Campaigns are registered at startup if not already stored. AutoStart
	// starts them along with stored campaigns that were running.
	Campaigns []string `env:"HYBRIDSIM_CAMPAIGNS" envSeparator:","`
	AutoStart bool     `env:"HYBRIDSIM_AUTOSTART" envDefault:"true"`

	RandomOrgKey string `env:"RANDOM_ORG_API_KEY"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"hybridsim"`
}

// Load parses the service configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return Config{}, fmt.Errorf("HYBRIDSIM_API_PORT %d out of range", cfg.APIPort)
	}
	if _, err := hybrid.ParseDedupPolicy(cfg.DedupPolicy); err != nil {
		return Config{}, fmt.Errorf("HYBRIDSIM_DEDUP_POLICY: %w", err)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("HYBRIDSIM_LOG_LEVEL: %w", err)
	}
	cfg.Campaigns = trimAll(cfg.Campaigns)
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	return cfg, nil
}

// Engine returns the scheduler configuration.
func (c Config) Engine() engine.Config {
	dedup, _ := hybrid.ParseDedupPolicy(c.DedupPolicy)
	ec := engine.DefaultConfig()
	ec.StrategicInterval = c.StrategicInterval
	ec.AcceleratedInterval = c.AcceleratedInterval
	ec.IdleInterval = c.IdleInterval
	ec.TickTimeout = c.TickTimeout
	ec.RetryBaseDelay = c.RetryBaseDelay
	ec.Adaptive = c.Adaptive
	ec.RequeueOnFailure = c.RequeueOnFailure
	ec.Dedup = dedup
	ec.DisableNarrative = c.DisableNarrative
	return ec
}

// Rules returns the integrator thresholds, overlaid with the rules file when
// one is configured.
func (c Config) Rules() (hybrid.Rules, error) {
	return hybrid.LoadRules(c.RulesFile)
}

// Steward is the configuration of the steward agent.
type Steward struct {
	APIURL       string        `env:"STEWARD_API_URL"     envDefault:"http://localhost:8080"`
	AdminKey     string        `env:"HYBRIDSIM_ADMIN_KEY"`
	AnthropicKey string        `env:"ANTHROPIC_API_KEY"`
	Campaigns    []string      `env:"STEWARD_CAMPAIGNS"   envSeparator:","`
	PlayerID     string        `env:"STEWARD_PLAYER_ID"   envDefault:"steward"`
	Interval     time.Duration `env:"STEWARD_INTERVAL"    envDefault:"10m"`
	APIWait      time.Duration `env:"STEWARD_API_WAIT"    envDefault:"2m"`
	Once         bool          `env:"STEWARD_ONCE"`
	DryRun       bool          `env:"STEWARD_DRY_RUN"`
	LogLevel     string        `env:"HYBRIDSIM_LOG_LEVEL" envDefault:"info"`
	MemoryFile   string        `env:"STEWARD_MEMORY_FILE" envDefault:"steward_memory.json"`
	LLMModel     string        `env:"HYBRIDSIM_LLM_MODEL"`

	// MaxSpendFraction caps what one intervention may cost, as a share of the
	// campaign's credits.
	MaxSpendFraction float64 `env:"STEWARD_MAX_SPEND_FRACTION" envDefault:"0.25"`
}

// LoadSteward parses the steward configuration from the environment.
func LoadSteward() (Steward, error) {
	var cfg Steward
	if err := env.Parse(&cfg); err != nil {
		return Steward{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AdminKey == "" {
		return Steward{}, fmt.Errorf("HYBRIDSIM_ADMIN_KEY is required")
	}
	if cfg.MaxSpendFraction <= 0 || cfg.MaxSpendFraction > 1 {
		return Steward{}, fmt.Errorf("STEWARD_MAX_SPEND_FRACTION %.2f outside (0, 1]", cfg.MaxSpendFraction)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Steward{}, fmt.Errorf("HYBRIDSIM_LOG_LEVEL: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.Campaigns = trimAll(cfg.Campaigns)
	return cfg, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
