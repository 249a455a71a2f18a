package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware. Methods
// lists the HTTP methods to cache. KeyStrategy is "route_query" (path plus
// sorted query) or "route" (path only). When Redis is unavailable the cache
// falls back to an in-process store sized by LocalCleanup.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
	LocalCleanup time.Duration
}

// LoadCacheConfig reads CACHE_* variables, using defaults when unset.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      parseMethods(getenv("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  getenv("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       getenv("CACHE_PREFIX", "cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
		LocalCleanup: envDur("CACHE_LOCAL_CLEANUP", time.Minute),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	return cfg
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
