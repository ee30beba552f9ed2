// Package config defines the schema, defaults, and validation for every
// configuration key in spec §6. Loading a YAML file from disk and wiring
// the result into a running process is an external collaborator's job
// (out of scope per §1); this package only defines the struct tree the
// core depends on and fills/validates defaults, the way the teacher's
// internal/config package does for its own server.
package config

import "fmt"

// Config is the full configuration tree for the cortexcache core.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Executor  ExecutorConfig  `yaml:"executor"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Warmer    WarmerConfig    `yaml:"warmer"`
}

// CacheConfig configures internal/cache.
type CacheConfig struct {
	Version             string  `yaml:"version" default:"v1"`
	MinTokens            int     `yaml:"minTokens" default:"500"`
	MaxSizeBytes         int64   `yaml:"maxSizeBytes" default:"10485760"` // 10 * 2^20
	TTLSeconds           int     `yaml:"ttlSeconds" default:"3600"`
	PressureThreshold    float64 `yaml:"pressureThreshold" default:"0.80"`
	EmergencyTarget      float64 `yaml:"emergencyTarget" default:"0.70"`
	HitLatencyTargetMs   int     `yaml:"hitLatencyTargetMs" default:"48"`
	MissLatencyTargetMs  int     `yaml:"missLatencyTargetMs" default:"140"`
	BaselineTokens       int     `yaml:"baselineTokens" default:"1500"`
	TokenCost            float64 `yaml:"tokenCost" default:"0"`
	EvictionAlpha        float64 `yaml:"evictionAlpha" default:"1.0"`
	EvictionBeta         float64 `yaml:"evictionBeta" default:"0.5"`
}

// BreakerConfig configures internal/breaker.
type BreakerConfig struct {
	FailureThreshold     int     `yaml:"failureThreshold" default:"5"`
	SuccessThreshold     int     `yaml:"successThreshold" default:"3"`
	TimeoutSeconds       float64 `yaml:"timeoutSeconds" default:"60"`
	RollingWindowSeconds float64 `yaml:"rollingWindowSeconds" default:"300"`
	RecoveryFactor       float64 `yaml:"recoveryFactor" default:"0.5"`
	RateThreshold        float64 `yaml:"rateThreshold" default:"0.5"`
}

// ExecutorConfig configures internal/executor.
type ExecutorConfig struct {
	MaxConcurrency    int `yaml:"maxConcurrency" default:"50"`
	DefaultTimeoutMs  int `yaml:"defaultTimeoutMs" default:"30000"`
}

// RateLimitConfig configures internal/ratelimit.
type RateLimitConfig struct {
	MaxCallsPerMinute int  `yaml:"maxCallsPerMinute" default:"60"`
	Enabled           bool `yaml:"enabled" default:"true"`
}

// WarmerConfig configures internal/warmer.
type WarmerConfig struct {
	Concurrency int  `yaml:"concurrency" default:"10"`
	Adaptive    bool `yaml:"adaptive" default:"true"`
	MaxQueries  int  `yaml:"maxQueries" default:"100"`
}

// ApplyDefaults fills every zero-valued numeric and string field with the
// spec §6 default. Bool fields are left as given, since false cannot be
// told apart from unset; Default sets them.
func (c *Config) ApplyDefaults() {
	if c.Cache.Version == "" {
		c.Cache.Version = "v1"
	}
	if c.Cache.MinTokens == 0 {
		c.Cache.MinTokens = 500
	}
	if c.Cache.MaxSizeBytes == 0 {
		c.Cache.MaxSizeBytes = 10 * 1024 * 1024
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.Cache.PressureThreshold == 0 {
		c.Cache.PressureThreshold = 0.80
	}
	if c.Cache.EmergencyTarget == 0 {
		c.Cache.EmergencyTarget = 0.70
	}
	if c.Cache.HitLatencyTargetMs == 0 {
		c.Cache.HitLatencyTargetMs = 48
	}
	if c.Cache.MissLatencyTargetMs == 0 {
		c.Cache.MissLatencyTargetMs = 140
	}
	if c.Cache.BaselineTokens == 0 {
		c.Cache.BaselineTokens = 1500
	}
	if c.Cache.EvictionAlpha == 0 {
		c.Cache.EvictionAlpha = 1.0
	}
	if c.Cache.EvictionBeta == 0 {
		c.Cache.EvictionBeta = 0.5
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 3
	}
	if c.Breaker.TimeoutSeconds == 0 {
		c.Breaker.TimeoutSeconds = 60
	}
	if c.Breaker.RollingWindowSeconds == 0 {
		c.Breaker.RollingWindowSeconds = 300
	}
	if c.Breaker.RecoveryFactor == 0 {
		c.Breaker.RecoveryFactor = 0.5
	}
	if c.Breaker.RateThreshold == 0 {
		c.Breaker.RateThreshold = 0.5
	}

	if c.Executor.MaxConcurrency == 0 {
		c.Executor.MaxConcurrency = 50
	}
	if c.Executor.DefaultTimeoutMs == 0 {
		c.Executor.DefaultTimeoutMs = 30000
	}

	if c.RateLimit.MaxCallsPerMinute == 0 {
		c.RateLimit.MaxCallsPerMinute = 60
	}

	if c.Warmer.Concurrency == 0 {
		c.Warmer.Concurrency = 10
	}
	if c.Warmer.MaxQueries == 0 {
		c.Warmer.MaxQueries = 100
	}
}

// Validate checks configuration invariants, mirroring the teacher's
// LoggerConfig.Validate shape.
func (c *Config) Validate() error {
	if c.Cache.MinTokens < 0 {
		return fmt.Errorf("config: cache.minTokens must be >= 0")
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("config: cache.maxSizeBytes must be > 0")
	}
	if c.Cache.PressureThreshold <= 0 || c.Cache.PressureThreshold > 1 {
		return fmt.Errorf("config: cache.pressureThreshold must be in (0, 1]")
	}
	if c.Cache.EmergencyTarget <= 0 || c.Cache.EmergencyTarget > 1 {
		return fmt.Errorf("config: cache.emergencyTarget must be in (0, 1]")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("config: breaker.failureThreshold must be > 0")
	}
	if c.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("config: breaker.successThreshold must be > 0")
	}
	if c.Breaker.RecoveryFactor <= 0 || c.Breaker.RecoveryFactor > 1 {
		return fmt.Errorf("config: breaker.recoveryFactor must be in (0, 1]")
	}
	if c.Executor.MaxConcurrency <= 0 {
		return fmt.Errorf("config: executor.maxConcurrency must be > 0")
	}
	if c.RateLimit.MaxCallsPerMinute <= 0 {
		return fmt.Errorf("config: rateLimit.maxCallsPerMinute must be > 0")
	}
	return nil
}

// Default returns a Config with every field at its spec §6 default.
func Default() *Config {
	c := &Config{}
	c.RateLimit.Enabled = true
	c.Warmer.Adaptive = true
	c.ApplyDefaults()
	return c
}
