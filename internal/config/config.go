package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all hearth configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Facts       FactsConfig       `toml:"facts"`
	Topics      TopicsConfig      `toml:"topics"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Events      EventsConfig      `toml:"events"`
	Replay      ReplayConfig      `toml:"replay"`
	Summaries   SummariesConfig   `toml:"summaries"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	LLM         LLMConfig         `toml:"llm"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
	// MasterKey is never read from the config file; it comes from the
	// HEARTH_MASTER_KEY environment variable so the key does not sit on
	// disk next to the database it protects.
	MasterKey string `toml:"-"`
}

type LedgerConfig struct {
	KeepMessages int `toml:"keep_messages"` // messages retained by prune
}

type FactsConfig struct {
	InferredStalenessDays int     `toml:"inferred_staleness_days"`
	StatedStalenessDays   int     `toml:"stated_staleness_days"`
	DecayStep             float64 `toml:"decay_step"`
	ConfidenceFloor       float64 `toml:"confidence_floor"`
	DeactivateBelow       float64 `toml:"deactivate_below"`
}

type TopicsConfig struct {
	MaxPending     int `toml:"max_pending"`
	MaxHorizonDays int `toml:"max_horizon_days"`
	TerminalTTLHrs int `toml:"terminal_ttl_hours"`
}

type MonitorConfig struct {
	FlapThreshold     int      `toml:"flap_threshold"`   // transitions/hour before malfunction
	MaxAlertsPerState int      `toml:"max_alerts"`       // per state episode
	EscalationMinutes []int    `toml:"alert_escalation"` // minimum gap before alert N, minutes
	ClearStates       []string `toml:"clear_states"`     // device states that count as "all quiet"
}

type EventsConfig struct {
	RoutineRetentionDays     int `toml:"routine_retention_days"`
	SignificantRetentionDays int `toml:"significant_retention_days"`
	CriticalRetentionDays    int `toml:"critical_retention_days"`
}

type ReplayConfig struct {
	WindowMinutes int `toml:"window_minutes"`
}

type SummariesConfig struct {
	MaxChars          int      `toml:"max_chars"`
	InjectionPatterns []string `toml:"injection_patterns"`
}

// MaintenanceConfig holds the scheduler's cron specs (robfig/cron syntax).
type MaintenanceConfig struct {
	NonceSweep  string `toml:"nonce_sweep"`
	TopicSweep  string `toml:"topic_sweep"`
	EventPrune  string `toml:"event_prune"`
	FactDecay   string `toml:"fact_decay"`
	Consolidate string `toml:"consolidate"`
}

type LLMConfig struct {
	Provider     string  `toml:"provider"` // "anthropic", "ollama"
	Model        string  `toml:"model"`
	OllamaURL    string  `toml:"ollama_url"`
	OllamaModel  string  `toml:"ollama_model"`
	AnthropicKey string  `toml:"anthropic_key"`
	Temperature  float64 `toml:"temperature"`
	MaxTokens    int     `toml:"max_tokens"` // num_predict for ollama
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37710,
		},
		Ledger: LedgerConfig{
			KeepMessages: 1000,
		},
		Facts: FactsConfig{
			InferredStalenessDays: 90,
			StatedStalenessDays:   180,
			DecayStep:             0.2,
			ConfidenceFloor:       0.1,
			DeactivateBelow:       0.3,
		},
		Topics: TopicsConfig{
			MaxPending:     20,
			MaxHorizonDays: 7,
			TerminalTTLHrs: 24,
		},
		Monitor: MonitorConfig{
			FlapThreshold:     6,
			MaxAlertsPerState: 3,
			EscalationMinutes: []int{0, 15, 60},
			ClearStates:       []string{"clear", "closed", "off", "locked"},
		},
		Events: EventsConfig{
			RoutineRetentionDays:     7,
			SignificantRetentionDays: 30,
			CriticalRetentionDays:    365,
		},
		Replay: ReplayConfig{
			WindowMinutes: 15,
		},
		Summaries: SummariesConfig{
			MaxChars: 2000,
			InjectionPatterns: []string{
				"ignore previous instructions",
				"ignore all previous instructions",
				"disregard previous instructions",
				"disregard all prior",
				"you are now",
				"new instructions:",
				"system prompt:",
			},
		},
		Maintenance: MaintenanceConfig{
			NonceSweep:  "@every 5m",
			TopicSweep:  "@every 1h",
			EventPrune:  "@every 1h",
			FactDecay:   "@every 168h",
			Consolidate: "@every 6h",
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-haiku-4-5-20251001",
			Temperature: 0.3,
			MaxTokens:   2048,
		},
	}
}

// Load reads a TOML config file over the defaults and applies environment
// overrides. An empty path skips the file and returns defaults + env.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if key := os.Getenv("HEARTH_MASTER_KEY"); key != "" {
		cfg.Database.MasterKey = key
	}
	if p := os.Getenv("HEARTH_DB"); p != "" {
		cfg.Database.Path = p
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = key
	}

	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
