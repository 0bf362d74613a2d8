package swarm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// SwarmConfig holds the orchestrator-level settings.
type SwarmConfig struct {
	// MaxConcurrent caps how many tasks execute at once
	MaxConcurrent int `koanf:"max_concurrent" yaml:"max_concurrent"`
	// DefaultBackend names the backend used by tasks without a pinned one
	DefaultBackend string `koanf:"default_backend" yaml:"default_backend"`
	// QualityThreshold is the global acceptance bar in (0,1]
	QualityThreshold float64 `koanf:"quality_threshold" yaml:"quality_threshold"`
	// EnableLearning toggles strategy weight adaptation
	EnableLearning bool `koanf:"enable_learning" yaml:"enable_learning"`
	// LearningRate is the EWMA alpha applied to strategy weights
	LearningRate float64 `koanf:"learning_rate" yaml:"learning_rate"`
	// CacheSize is the result cache capacity; 0 keeps the default
	CacheSize int `koanf:"cache_size" yaml:"cache_size"`
	// CacheTTLSeconds is how long cached artifacts stay valid
	CacheTTLSeconds int `koanf:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	// ArchivePath is the SQLite file for completed results; empty disables archiving
	ArchivePath string `koanf:"archive_path" yaml:"archive_path"`
	// Debug enables diagnostic logging
	Debug bool `koanf:"debug" yaml:"debug"`
}

// Config is the full orchestrator configuration: swarm settings plus one
// entry per backend, keyed by backend identifier.
type Config struct {
	Swarm    SwarmConfig              `koanf:"swarm" yaml:"swarm"`
	Backends map[string]BackendConfig `koanf:"backends" yaml:"backends"`
}

// DefaultConfig returns the baseline configuration. Backends are left empty
// here; applyDefaults seeds an OpenAI entry from the environment when the
// caller configures none.
func DefaultConfig() *Config {
	return &Config{
		Swarm: SwarmConfig{
			MaxConcurrent:    4,
			DefaultBackend:   "openai",
			QualityThreshold: 0.8,
			EnableLearning:   true,
			LearningRate:     defaultLearningRate,
			CacheSize:        defaultCacheSize,
			CacheTTLSeconds:  300,
		},
		Backends: map[string]BackendConfig{},
	}
}

// LoadConfig loads configuration from an optional YAML file, then overrides
// with SWARM_-prefixed environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SWARM_MAX_CONCURRENT, SWARM_BACKENDS_OPENAI_API_KEY, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty path skips the file and loads defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Environment variables use underscore separators and are uppercased.
	// SWARM_QUALITY_THRESHOLD -> swarm.quality_threshold
	// SWARM_BACKENDS_OPENAI_API_KEY -> backends.openai.api_key
	if err := k.Load(env.Provider("SWARM_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "SWARM_"))
		if rest, ok := strings.CutPrefix(key, "backends_"); ok {
			if parts := strings.SplitN(rest, "_", 2); len(parts) == 2 {
				return "backends." + parts[0] + "." + parts[1]
			}
		}
		return "swarm." + key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over a default-initialized struct so absent keys keep their
	// defaults, including booleans that default to true.
	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyConfigDefaults(cfg)

	// With no backends configured, fall back to OpenAI keyed from the
	// environment, matching the zero-config path.
	if len(cfg.Backends) == 0 {
		backend := DefaultBackendConfig()
		backend.APIKey = os.Getenv("OPENAI_API_KEY")
		cfg.Backends = map[string]BackendConfig{"openai": backend}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills zero values left after unmarshalling or by
// callers that build a Config by hand.
func applyConfigDefaults(cfg *Config) {
	if cfg.Swarm.MaxConcurrent == 0 {
		cfg.Swarm.MaxConcurrent = 4
	}
	if cfg.Swarm.QualityThreshold == 0 {
		cfg.Swarm.QualityThreshold = 0.8
	}
	if cfg.Swarm.LearningRate == 0 {
		cfg.Swarm.LearningRate = defaultLearningRate
	}
	if cfg.Swarm.CacheSize == 0 {
		cfg.Swarm.CacheSize = defaultCacheSize
	}
	if cfg.Swarm.CacheTTLSeconds == 0 {
		cfg.Swarm.CacheTTLSeconds = 300
	}
}

// Validate checks the orchestrator-level settings. Backend entries are
// validated individually when the registry is built.
func (c *Config) Validate() error {
	if c.Swarm.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.Swarm.MaxConcurrent)
	}
	if c.Swarm.QualityThreshold <= 0 || c.Swarm.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be in (0,1], got %v", c.Swarm.QualityThreshold)
	}
	if c.Swarm.LearningRate <= 0 || c.Swarm.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in (0,1], got %v", c.Swarm.LearningRate)
	}
	if c.Swarm.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.Swarm.CacheSize)
	}
	return nil
}

// CacheTTL returns the configured cache validity window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Swarm.CacheTTLSeconds) * time.Second
}
