package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache in front of the
// public scoreboard and challenge list.  Methods lists the cacheable HTTP
// methods, upper-cased.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func parseCache(e *env) CacheConfig {
	c := CacheConfig{
		Enabled:      e.boolVal("CACHE_ENABLED", true),
		Methods:      map[string]bool{},
		TTL:          e.durVal("CACHE_TTL", 30*time.Second),
		Prefix:       e.str("CACHE_PREFIX", "cache"),
		MaxBodyBytes: e.intVal("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	for _, m := range e.list("CACHE_METHODS", "GET") {
		c.Methods[strings.ToUpper(m)] = true
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}
