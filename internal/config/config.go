// Package config handles configuration management with validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gridbot/internal/core"
	apperrors "gridbot/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	System    SystemConfig    `yaml:"system"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Engine    EngineConfig    `yaml:"engine"`
	Pairs     []PairConfig    `yaml:"pairs"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alerts    AlertConfig     `yaml:"alerts"`
}

// SystemConfig contains process-level settings
type SystemConfig struct {
	LogLevel     string `yaml:"log_level"`
	DatabasePath string `yaml:"database_path"`
	EquityAsset  string `yaml:"equity_asset"`
}

// ExchangeConfig contains the exchange account and client policy
type ExchangeConfig struct {
	APIKey    Secret  `yaml:"api_key"`
	SecretKey Secret  `yaml:"secret_key"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second
	RateBurst int     `yaml:"rate_burst"`
}

// EngineConfig contains tick cadences and reconciliation policy
type EngineConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	SnapshotInterval   time.Duration `yaml:"snapshot_interval"`
	SummaryInterval    time.Duration `yaml:"summary_interval"`
	DrainTimeout       time.Duration `yaml:"drain_timeout"`
	HistoryLookback    time.Duration `yaml:"history_lookback"`
	UnknownRetryLimit  int           `yaml:"unknown_retry_limit"`
	MaxConcurrentTicks int           `yaml:"max_concurrent_ticks"`
	CancelOrphans      bool          `yaml:"cancel_orphans"`
}

// PairConfig is the per-pair grid policy as written in YAML.
type PairConfig struct {
	Pair               string        `yaml:"pair"`
	Spacing            float64       `yaml:"spacing"`
	LevelsPerSide      int           `yaml:"levels_per_side"`
	Allocation         float64       `yaml:"allocation"`
	Reserve            float64       `yaml:"reserve"`
	TrendProtection    bool          `yaml:"trend_protection"`
	TrendThreshold     float64       `yaml:"trend_threshold"`
	TrendLookback      int           `yaml:"trend_lookback"`
	ReplanThreshold    float64       `yaml:"replan_threshold"`
	ReplanCooldown     time.Duration `yaml:"replan_cooldown"`
	TreatMissingAsZero bool          `yaml:"treat_missing_as_zero"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertConfig contains alert channel settings
type AlertConfig struct {
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.DatabasePath == "" {
		c.System.DatabasePath = "gridbot.db"
	}
	if c.System.EquityAsset == "" {
		c.System.EquityAsset = "BTC"
	}
	if c.Engine.TickInterval == 0 {
		c.Engine.TickInterval = 15 * time.Second
	}
	if c.Engine.SnapshotInterval == 0 {
		c.Engine.SnapshotInterval = 5 * time.Minute
	}
	if c.Engine.SummaryInterval == 0 {
		c.Engine.SummaryInterval = 5 * time.Minute
	}
	if c.Engine.DrainTimeout == 0 {
		c.Engine.DrainTimeout = 30 * time.Second
	}
	if c.Engine.HistoryLookback == 0 {
		c.Engine.HistoryLookback = 24 * time.Hour
	}
	if c.Engine.UnknownRetryLimit == 0 {
		c.Engine.UnknownRetryLimit = 5
	}
	if c.Engine.MaxConcurrentTicks == 0 {
		c.Engine.MaxConcurrentTicks = len(c.Pairs)
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = 10
	}
	if c.Exchange.RateBurst == 0 {
		c.Exchange.RateBurst = 15
	}
	for i := range c.Pairs {
		p := &c.Pairs[i]
		if p.TrendThreshold == 0 {
			p.TrendThreshold = 0.03
		}
		if p.TrendLookback == 0 {
			p.TrendLookback = 5
		}
		if p.ReplanThreshold == 0 {
			p.ReplanThreshold = 0.05
		}
		if p.ReplanCooldown == 0 {
			p.ReplanCooldown = 30 * time.Minute
		}
	}
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateSystem(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validatePairs(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateAllocations(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return &apperrors.ConfigValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validatePairs() error {
	if len(c.Pairs) == 0 {
		return &apperrors.ConfigValidationError{
			Field:   "pairs",
			Message: "at least one trading pair must be configured",
		}
	}

	seen := make(map[string]bool)
	for i, p := range c.Pairs {
		field := fmt.Sprintf("pairs[%d]", i)

		pair, err := core.ParsePair(p.Pair)
		if err != nil {
			return &apperrors.ConfigValidationError{
				Field:   field + ".pair",
				Value:   p.Pair,
				Message: err.Error(),
			}
		}
		if seen[pair.String()] {
			return &apperrors.ConfigValidationError{
				Field:   field + ".pair",
				Value:   p.Pair,
				Message: "duplicate pair",
			}
		}
		seen[pair.String()] = true

		if p.Spacing <= 0 || p.Spacing >= 1 {
			return &apperrors.ConfigValidationError{
				Field:   field + ".spacing",
				Value:   p.Spacing,
				Message: "must be a fraction in (0, 1)",
			}
		}
		if p.LevelsPerSide < 1 || p.LevelsPerSide > 50 {
			return &apperrors.ConfigValidationError{
				Field:   field + ".levels_per_side",
				Value:   p.LevelsPerSide,
				Message: "must be between 1 and 50",
			}
		}
		if p.Allocation <= 0 || p.Allocation > 1 {
			return &apperrors.ConfigValidationError{
				Field:   field + ".allocation",
				Value:   p.Allocation,
				Message: "must be a fraction in (0, 1]",
			}
		}
		if p.Reserve < 0 || p.Reserve >= 1 {
			return &apperrors.ConfigValidationError{
				Field:   field + ".reserve",
				Value:   p.Reserve,
				Message: "must be a fraction in [0, 1)",
			}
		}
	}

	return nil
}

// validateAllocations rejects configurations where pairs funded by the
// same quote asset request more than (1 - reserve) of it in total.
// Over-allocation is fatal here, never silently rescaled.
func (c *Config) validateAllocations() error {
	type assetAlloc struct {
		sum        float64
		maxReserve float64
	}
	byAsset := make(map[string]*assetAlloc)

	for _, p := range c.Pairs {
		pair, err := core.ParsePair(p.Pair)
		if err != nil {
			continue // reported by validatePairs
		}
		a := byAsset[pair.Quote]
		if a == nil {
			a = &assetAlloc{}
			byAsset[pair.Quote] = a
		}
		a.sum += p.Allocation
		if p.Reserve > a.maxReserve {
			a.maxReserve = p.Reserve
		}
	}

	for asset, a := range byAsset {
		if a.sum > 1-a.maxReserve+1e-9 {
			return &apperrors.ConfigValidationError{
				Field:   "pairs",
				Value:   a.sum,
				Message: fmt.Sprintf("allocations for pairs sharing asset %s sum to %.4f, exceeding 1 - reserve (%.4f)", asset, a.sum, 1-a.maxReserve),
			}
		}
	}

	return nil
}

// PairConfigs converts the YAML pair entries into domain policies.
func (c *Config) PairConfigs() ([]core.TradingPairConfig, error) {
	out := make([]core.TradingPairConfig, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		pair, err := core.ParsePair(p.Pair)
		if err != nil {
			return nil, err
		}
		out = append(out, core.TradingPairConfig{
			Pair:               pair,
			Spacing:            decimal.NewFromFloat(p.Spacing),
			LevelsPerSide:      p.LevelsPerSide,
			AllocationFraction: decimal.NewFromFloat(p.Allocation),
			ReserveFraction:    decimal.NewFromFloat(p.Reserve),
			TrendProtection:    p.TrendProtection,
			TrendThreshold:     decimal.NewFromFloat(p.TrendThreshold),
			TrendLookback:      p.TrendLookback,
			ReplanThreshold:    decimal.NewFromFloat(p.ReplanThreshold),
			ReplanCooldown:     p.ReplanCooldown,
			TreatMissingAsZero: p.TreatMissingAsZero,
		})
	}
	return out, nil
}

// String returns the configuration with sensitive data redacted.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	cfg := &Config{
		System: SystemConfig{
			LogLevel:     "INFO",
			DatabasePath: "gridbot.db",
			EquityAsset:  "BTC",
		},
		Exchange: ExchangeConfig{
			APIKey:    "test_api_key",
			SecretKey: "test_secret_key",
			RateLimit: 10,
			RateBurst: 15,
		},
		Pairs: []PairConfig{
			{
				Pair:            "XRP/BTC",
				Spacing:         0.015,
				LevelsPerSide:   3,
				Allocation:      0.6,
				Reserve:         0.05,
				TrendProtection: true,
			},
			{
				Pair:          "ETH/BTC",
				Spacing:       0.02,
				LevelsPerSide: 2,
				Allocation:    0.3,
				Reserve:       0.05,
			},
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
	cfg.applyDefaults()
	return cfg
}
