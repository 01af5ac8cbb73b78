package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kestrelops/kestrel/internal/gate"
	"github.com/kestrelops/kestrel/internal/trend"
)

// #region types
// Config is the externally supplied configuration surface. All values are
// validated at load time; invalid configuration is fatal at startup.
type Config struct {
	Store       StoreConfig          `koanf:"store"`
	Gate        gate.ThresholdConfig `koanf:"gate"`
	Runner      RunnerConfig         `koanf:"runner"`
	Degradation trend.Policy         `koanf:"degradation"`
}

// StoreConfig locates the telemetry database.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// RunnerConfig holds evaluation runner settings.
type RunnerConfig struct {
	EvaluatorTimeout time.Duration `koanf:"evaluator_timeout"`
}

// #endregion types

// #region load
// Load reads configuration from an optional YAML file plus KESTREL_
// environment overrides. Double underscore separates nesting levels, so
// KESTREL_GATE__CONFIDENCE_THRESHOLD maps to gate.confidence_threshold.
// Defaults are applied and the result validated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("KESTREL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KESTREL_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	// Default values
	if !k.Exists("store.path") {
		k.Set("store.path", "kestrel.db")
	}
	if !k.Exists("gate.confidence_threshold") {
		k.Set("gate.confidence_threshold", 0.7)
	}
	if !k.Exists("runner.evaluator_timeout") {
		k.Set("runner.evaluator_timeout", "30s")
	}
	if !k.Exists("degradation.percentile") {
		k.Set("degradation.percentile", 10)
	}
	if !k.Exists("degradation.trailing_windows") {
		k.Set("degradation.trailing_windows", 5)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// #endregion load

// #region validate
// Validate rejects out-of-range thresholds, non-positive timeouts, and
// malformed degradation policies.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is empty")
	}
	if c.Gate.ConfidenceThreshold < 0 || c.Gate.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence_threshold %.4f outside [0,1]", c.Gate.ConfidenceThreshold)
	}
	for category, threshold := range c.Gate.CategoryOverrides {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("config: category override %q threshold %.4f outside [0,1]", category, threshold)
		}
	}
	for _, rule := range c.Gate.Exclusions {
		if rule.Subscore == "" {
			return fmt.Errorf("config: exclusion rule with empty subscore")
		}
		if rule.Min < 0 || rule.Min > 1 {
			return fmt.Errorf("config: exclusion %q min %.4f outside [0,1]", rule.Subscore, rule.Min)
		}
	}
	if c.Runner.EvaluatorTimeout <= 0 {
		return fmt.Errorf("config: non-positive evaluator_timeout %v", c.Runner.EvaluatorTimeout)
	}
	if c.Degradation.Percentile <= 0 || c.Degradation.Percentile >= 100 {
		return fmt.Errorf("config: degradation percentile %.2f outside (0,100)", c.Degradation.Percentile)
	}
	if c.Degradation.TrailingWindows < 1 {
		return fmt.Errorf("config: degradation trailing_windows %d below 1", c.Degradation.TrailingWindows)
	}
	return nil
}

// #endregion validate
