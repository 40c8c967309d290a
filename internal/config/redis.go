package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server used for rate limiting and caching.
// REDIS_HOST and REDIS_PORT take precedence over REDIS_ADDR.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

func parseRedis(e *env) RedisConfig {
	rc := RedisConfig{
		Addr:     e.str("REDIS_ADDR", "localhost:6379"),
		Password: e.str("REDIS_PASSWORD", ""),
		DB:       e.intVal("REDIS_DB", 0),
		TLS:      e.boolVal("REDIS_TLS", false),
	}
	host, hostOK := e.raw("REDIS_HOST")
	port, portOK := e.raw("REDIS_PORT")
	if hostOK && portOK {
		rc.Addr = host + ":" + port
	}
	return rc
}

// Options converts the config to go-redis client options.
func (rc RedisConfig) Options() *redis.Options {
	opts := &redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	}
	if rc.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewRedisClient connects and pings Redis.  It returns nil when the server
// is unreachable; callers then run without caching and rate limiting.
func NewRedisClient(ctx context.Context, rc RedisConfig) *redis.Client {
	client := redis.NewClient(rc.Options())
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
