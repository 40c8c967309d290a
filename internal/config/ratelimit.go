package config

import "time"

// RateLimitConfig tunes the Redis token bucket placed in front of the
// credential endpoints (signup and login) and flag submission.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	// KeyStrategy is ip, route, ip_route or ip_user_route.  The user part
	// is only known on routes gated before the limiter; elsewhere it is
	// "anon".
	KeyStrategy string
	Prefix      string
}

func parseRateLimit(e *env) RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        e.boolVal("RATE_LIMIT_ENABLED", true),
		Capacity:       e.intVal("RATE_LIMIT_CAPACITY", 10),
		RefillTokens:   e.intVal("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.durVal("RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
		TTL:            e.durVal("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    e.str("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         e.str("RATE_LIMIT_PREFIX", "rl"),
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}
