// Package config loads and validates the engine configuration: YAML for
// structure, environment (optionally via .env) for secrets. The loaded
// Config is treated as immutable for the process lifetime.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tuanphm93/coinfactor/internal/engerr"
)

// ExchangeConfig selects and authenticates the venue connector. Credentials
// come from the environment, never from the YAML file.
type ExchangeConfig struct {
	Name      string  `yaml:"name"`
	Category  string  `yaml:"category"`
	Testnet   bool    `yaml:"testnet"`
	Demo      bool    `yaml:"demo"`
	RateLimit float64 `yaml:"rate_limit"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// Duration parses "4h" style strings from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig holds the decision cycle knobs.
type EngineConfig struct {
	Universe           []string `yaml:"universe"`
	Benchmark          string   `yaml:"benchmark"`
	Timeframe          string   `yaml:"timeframe"`
	CandleLimit        int      `yaml:"candle_limit"`
	CycleInterval      Duration `yaml:"cycle_interval"`
	TopN               int      `yaml:"top_n"`
	Temperature        float64  `yaml:"temperature"`
	RebalanceThreshold float64  `yaml:"rebalance_threshold"`
	FetchWorkers       int      `yaml:"fetch_workers"`
}

// StatArbConfig holds the pair-trading knobs.
type StatArbConfig struct {
	RediscoverCycles int     `yaml:"rediscover_cycles"`
	Tilt             float64 `yaml:"tilt"`
}

// RiskConfig holds the sizing priors. Thresholds for the drawdown state
// machine are fixed policy, not configuration.
type RiskConfig struct {
	KellyWinRate float64 `yaml:"kelly_win_rate"`
	KellyAvgWin  float64 `yaml:"kelly_avg_win"`
	KellyAvgLoss float64 `yaml:"kelly_avg_loss"`
}

// PathsConfig locates the engine's on-disk state.
type PathsConfig struct {
	EquityHistory string `yaml:"equity_history"`
	DecisionLog   string `yaml:"decision_log"`
}

// MonitoringConfig configures the metrics and health endpoint.
type MonitoringConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

// Config is the full engine configuration.
type Config struct {
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Engine     EngineConfig     `yaml:"engine"`
	StatArb    StatArbConfig    `yaml:"statarb"`
	Risk       RiskConfig       `yaml:"risk"`
	Paths      PathsConfig      `yaml:"paths"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads the YAML config at path, overlays secrets from the environment
// (loading .env first when present) and validates the result.
func Load(path string) (*Config, error) {
	// Missing .env is fine; exported environment still applies.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Exchange.APIKey = os.Getenv("BYBIT_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("BYBIT_API_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Name:      "bybit",
			Category:  "spot",
			RateLimit: 5,
		},
		Engine: EngineConfig{
			Timeframe:          "4h",
			CandleLimit:        200,
			CycleInterval:      Duration(4 * time.Hour),
			TopN:               5,
			Temperature:        2.0,
			RebalanceThreshold: 0.01,
			FetchWorkers:       4,
		},
		StatArb: StatArbConfig{
			RediscoverCycles: 24,
			Tilt:             0.05,
		},
		Risk: RiskConfig{
			KellyWinRate: 0.55,
			KellyAvgWin:  0.03,
			KellyAvgLoss: 0.02,
		},
		Paths: PathsConfig{
			EquityHistory: "data/equity.jsonl",
			DecisionLog:   "data/decisions.jsonl",
		},
		Monitoring: MonitoringConfig{
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if len(c.Engine.Universe) == 0 {
		return engerr.New(engerr.CategoryConfig, "config", "universe must not be empty")
	}
	if c.Engine.Benchmark == "" {
		return engerr.New(engerr.CategoryConfig, "config", "benchmark must be set")
	}
	found := false
	for _, s := range c.Engine.Universe {
		if s == c.Engine.Benchmark {
			found = true
			break
		}
	}
	if !found {
		return engerr.New(engerr.CategoryConfig, "config", "benchmark must be part of the universe")
	}
	if c.Engine.TopN <= 0 || c.Engine.TopN > len(c.Engine.Universe) {
		return engerr.New(engerr.CategoryConfig, "config",
			fmt.Sprintf("top_n %d out of range for universe of %d", c.Engine.TopN, len(c.Engine.Universe)))
	}
	if c.Engine.Temperature <= 0 {
		return engerr.New(engerr.CategoryConfig, "config", "temperature must be positive")
	}
	if c.Engine.CycleInterval.Std() < time.Minute {
		return engerr.New(engerr.CategoryConfig, "config", "cycle_interval must be at least one minute")
	}
	if c.Engine.RebalanceThreshold < 0 || c.Engine.RebalanceThreshold >= 1 {
		return engerr.New(engerr.CategoryConfig, "config", "rebalance_threshold must be in [0, 1)")
	}
	if c.StatArb.Tilt < 0 || c.StatArb.Tilt > 0.2 {
		return engerr.New(engerr.CategoryConfig, "config", "statarb tilt must be in [0, 0.2]")
	}
	if c.Risk.KellyWinRate < 0 || c.Risk.KellyWinRate > 1 {
		return engerr.New(engerr.CategoryConfig, "config", "kelly_win_rate must be in [0, 1]")
	}
	return nil
}
