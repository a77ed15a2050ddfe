// Package config loads hindsight configuration from YAML with environment
// variable overrides. All the learning-policy constants (thresholds,
// learning rates, decay half-life, retry ceilings) live here so deployments
// can tune them without recompiling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the hindsight core
type Config struct {
	Storage Storage `yaml:"storage"`
	Lessons Lessons `yaml:"lessons"`
	Trails  Trails  `yaml:"trails"`
	Healing Healing `yaml:"healing"`
	Watcher Watcher `yaml:"watcher"`
	AI      AI      `yaml:"ai"`
}

// Storage configures the persistent store
type Storage struct {
	// Path is the SQLite database path
	// Default: .hindsight/hindsight.db
	Path string `yaml:"path"`

	// OpTimeout bounds every store operation. After this the caller treats
	// the operation as failed rather than hanging.
	// Default: 5s
	OpTimeout time.Duration `yaml:"op_timeout"`

	// BusyRetries is how many times a conflicting write is retried
	// transparently before the error is surfaced.
	// Default: 3
	BusyRetries int `yaml:"busy_retries"`
}

// Lessons configures confidence updates and the promotion gate
type Lessons struct {
	// InitialConfidence is assigned to a lesson on first observation
	// Default: 0.5
	InitialConfidence float64 `yaml:"initial_confidence"`

	// LearningRateFailure is the update step for lessons sourced from
	// directly-observed failures. Larger than the observation rate because
	// we trust direct signal more.
	// Default: 0.3
	LearningRateFailure float64 `yaml:"learning_rate_failure"`

	// LearningRateSuccess is the update step for success-sourced lessons
	// Default: 0.25
	LearningRateSuccess float64 `yaml:"learning_rate_success"`

	// LearningRateObservation is the update step for indirect observations
	// Default: 0.15
	LearningRateObservation float64 `yaml:"learning_rate_observation"`

	// PromotionThreshold is the confidence a lesson must reach before it
	// can be promoted to a golden rule
	// Default: 0.9
	PromotionThreshold float64 `yaml:"promotion_threshold"`

	// MinValidations is the validation count a lesson must reach before
	// promotion. Both gates must hold - a single lucky validation cannot
	// promote a rule.
	// Default: 5
	MinValidations int `yaml:"min_validations"`

	// DemotionThreshold demotes a golden rule whose confidence falls below it
	// Default: 0.55
	DemotionThreshold float64 `yaml:"demotion_threshold"`

	// RetireThreshold soft-retires lessons with sustained near-zero
	// confidence. Retired lessons are excluded from default queries but
	// retained for audit.
	// Default: 0.05
	RetireThreshold float64 `yaml:"retire_threshold"`
}

// Trails configures trail strength and hotspot decay
type Trails struct {
	// BaseStrength is the strength contributed by one task touching one path
	// Default: 1.0
	BaseStrength float64 `yaml:"base_strength"`

	// HalfLife is the exponential decay half-life for hotspot aggregation.
	// Recent activity dominates; a touch this old counts half.
	// Default: 24h
	HalfLife time.Duration `yaml:"half_life"`

	// Severity bucket thresholds on decayed strength
	// Defaults: critical 8.0, high 4.0, medium 1.5
	CriticalThreshold float64 `yaml:"critical_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	MediumThreshold   float64 `yaml:"medium_threshold"`
}

// Healing configures the self-healing dispatcher
type Healing struct {
	// MaxAttempts is the retry ceiling per fingerprint. On reaching it the
	// failure moves to unfixable and automatic retries are circuit-broken.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// DefaultSeverity is assigned when a failure arrives without one
	// Default: 3
	DefaultSeverity int `yaml:"default_severity"`
}

// Watcher configures the escalation watcher
type Watcher struct {
	// Interval between ticks
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// EscalationCeiling opens the circuit after this many consecutive
	// escalations without resolution
	// Default: 4
	EscalationCeiling int `yaml:"escalation_ceiling"`

	// CircuitCooldown is how long the circuit stays open before the watcher
	// resumes automatic escalation. Zero means manual reset only.
	// Default: 10m
	CircuitCooldown time.Duration `yaml:"circuit_cooldown"`

	// DeepRatePerMinute caps deep-tier invocations. Deep checks are the
	// expensive path; the limiter keeps a noisy fast tier from burning money.
	// Default: 2
	DeepRatePerMinute float64 `yaml:"deep_rate_per_minute"`
}

// AI configures the optional deep analyzer. The core never requires the
// network: with no API key everything degrades to rule-based behavior.
type AI struct {
	// APIKey for the Anthropic API. Empty means read ANTHROPIC_API_KEY,
	// and if that is unset too the analyzer is disabled.
	APIKey string `yaml:"api_key"`

	// Model for deep analysis (default: the high-end model)
	Model string `yaml:"model"`

	// MaxConcurrentCalls caps in-flight API calls
	// Default: 3
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Storage: Storage{
			Path:        ".hindsight/hindsight.db",
			OpTimeout:   5 * time.Second,
			BusyRetries: 3,
		},
		Lessons: Lessons{
			InitialConfidence:       0.5,
			LearningRateFailure:     0.3,
			LearningRateSuccess:     0.25,
			LearningRateObservation: 0.15,
			PromotionThreshold:      0.9,
			MinValidations:          5,
			DemotionThreshold:       0.55,
			RetireThreshold:         0.05,
		},
		Trails: Trails{
			BaseStrength:      1.0,
			HalfLife:          24 * time.Hour,
			CriticalThreshold: 8.0,
			HighThreshold:     4.0,
			MediumThreshold:   1.5,
		},
		Healing: Healing{
			MaxAttempts:     3,
			DefaultSeverity: 3,
		},
		Watcher: Watcher{
			Interval:          30 * time.Second,
			EscalationCeiling: 4,
			CircuitCooldown:   10 * time.Minute,
			DeepRatePerMinute: 2,
		},
		AI: AI{
			MaxConcurrentCalls: 3,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// anything unset, then applies environment overrides. A missing file is not
// an error - defaults plus env is a fully working configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments tune the hot knobs without a config file
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HINDSIGHT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("HINDSIGHT_PROMOTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Lessons.PromotionThreshold = f
		}
	}
	if v := os.Getenv("HINDSIGHT_MIN_VALIDATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lessons.MinValidations = n
		}
	}
	if v := os.Getenv("HINDSIGHT_TRAIL_HALF_LIFE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Trails.HalfLife = d
		}
	}
	if v := os.Getenv("HINDSIGHT_MAX_FIX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Healing.MaxAttempts = n
		}
	}
	if v := os.Getenv("HINDSIGHT_WATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watcher.Interval = d
		}
	}
	if v := os.Getenv("HINDSIGHT_MODEL"); v != "" {
		c.AI.Model = v
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.OpTimeout <= 0 {
		return fmt.Errorf("storage.op_timeout must be positive (got %v)", c.Storage.OpTimeout)
	}
	if c.Storage.BusyRetries < 0 {
		return fmt.Errorf("storage.busy_retries cannot be negative")
	}

	l := c.Lessons
	for name, v := range map[string]float64{
		"initial_confidence":        l.InitialConfidence,
		"learning_rate_failure":     l.LearningRateFailure,
		"learning_rate_success":     l.LearningRateSuccess,
		"learning_rate_observation": l.LearningRateObservation,
		"promotion_threshold":       l.PromotionThreshold,
		"demotion_threshold":        l.DemotionThreshold,
		"retire_threshold":          l.RetireThreshold,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("lessons.%s must be between 0.0 and 1.0 (got %.3f)", name, v)
		}
	}
	if l.MinValidations < 1 {
		return fmt.Errorf("lessons.min_validations must be at least 1 (got %d)", l.MinValidations)
	}
	if l.DemotionThreshold >= l.PromotionThreshold {
		return fmt.Errorf("lessons.demotion_threshold (%.2f) must be below promotion_threshold (%.2f)",
			l.DemotionThreshold, l.PromotionThreshold)
	}
	if l.RetireThreshold >= l.DemotionThreshold {
		return fmt.Errorf("lessons.retire_threshold (%.2f) must be below demotion_threshold (%.2f)",
			l.RetireThreshold, l.DemotionThreshold)
	}

	if c.Trails.BaseStrength <= 0 {
		return fmt.Errorf("trails.base_strength must be positive (got %.3f)", c.Trails.BaseStrength)
	}
	if c.Trails.HalfLife <= 0 {
		return fmt.Errorf("trails.half_life must be positive (got %v)", c.Trails.HalfLife)
	}
	if !(c.Trails.CriticalThreshold > c.Trails.HighThreshold &&
		c.Trails.HighThreshold > c.Trails.MediumThreshold &&
		c.Trails.MediumThreshold > 0) {
		return fmt.Errorf("trails severity thresholds must be descending and positive (critical=%.2f high=%.2f medium=%.2f)",
			c.Trails.CriticalThreshold, c.Trails.HighThreshold, c.Trails.MediumThreshold)
	}

	if c.Healing.MaxAttempts < 1 {
		return fmt.Errorf("healing.max_attempts must be at least 1 (got %d)", c.Healing.MaxAttempts)
	}
	if c.Healing.DefaultSeverity < 1 || c.Healing.DefaultSeverity > 5 {
		return fmt.Errorf("healing.default_severity must be between 1 and 5 (got %d)", c.Healing.DefaultSeverity)
	}

	if c.Watcher.Interval <= 0 {
		return fmt.Errorf("watcher.interval must be positive (got %v)", c.Watcher.Interval)
	}
	if c.Watcher.EscalationCeiling < 1 {
		return fmt.Errorf("watcher.escalation_ceiling must be at least 1 (got %d)", c.Watcher.EscalationCeiling)
	}
	if c.Watcher.CircuitCooldown < 0 {
		return fmt.Errorf("watcher.circuit_cooldown cannot be negative (got %v)", c.Watcher.CircuitCooldown)
	}
	if c.Watcher.DeepRatePerMinute <= 0 {
		return fmt.Errorf("watcher.deep_rate_per_minute must be positive (got %.2f)", c.Watcher.DeepRatePerMinute)
	}

	if c.AI.MaxConcurrentCalls < 0 {
		return fmt.Errorf("ai.max_concurrent_calls cannot be negative (got %d)", c.AI.MaxConcurrentCalls)
	}

	return nil
}
