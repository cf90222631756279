package recurrence

import (
	"strings"
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// Expansion limits
	MaxExpansionOccurrences int           // Maximum occurrences returned by Expand, 0 for no limit
	MaxExpansionSpan        time.Duration // Longest range Expand walks, 0 for no limit
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	MaxExpansionOccurrences: 1000,
	MaxExpansionSpan:        2 * 365 * 24 * time.Hour,
}

// HighPerformanceConfig is optimized for high-traffic scenarios
var HighPerformanceConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             30 * time.Minute,
		MaxEntries:      5000,
		CleanupInterval: 10 * time.Minute,
	},

	MaxExpansionOccurrences: 500,
	MaxExpansionSpan:        365 * 24 * time.Hour,
}

// LowMemoryConfig is optimized for memory-constrained environments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 2 * time.Minute,
	},

	MaxExpansionOccurrences: 200,
	MaxExpansionSpan:        180 * 24 * time.Hour,
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,
	CacheConfig:  CacheConfig{},

	MaxExpansionOccurrences: 1000,
	MaxExpansionSpan:        2 * 365 * 24 * time.Hour,
}

// ConfigByName looks up a preset by name: "default", "high-performance",
// "low-memory" or "no-cache".
func ConfigByName(name string) (EngineConfig, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultEngineConfig, true
	case "high-performance":
		return HighPerformanceConfig, true
	case "low-memory":
		return LowMemoryConfig, true
	case "no-cache":
		return DisabledCacheConfig, true
	default:
		return EngineConfig{}, false
	}
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	e := &Engine{
		config: config,
		logger: defaultLogger(),
	}
	if config.CacheEnabled {
		e.cache = NewMonthCache(config.CacheConfig)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
