package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	httprateredis "github.com/go-chi/httprate-redis"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "strmanip:ratelimit"

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestLimit is the number of requests allowed per window
	RequestLimit int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// RedisClient enables distributed counting when set
	RedisClient *redis.Client
}

// DefaultRateLimitConfig returns a default rate limit configuration.
// Limits to 100 requests per minute per IP address.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestLimit:   100,
		WindowDuration: time.Minute,
	}
}

// RateLimit returns a middleware that rate limits requests per IP address.
// Counters live in Redis when a client is configured and in memory otherwise.
func RateLimit(config RateLimitConfig) func(next http.Handler) http.Handler {
	defaults := DefaultRateLimitConfig()
	if config.RequestLimit <= 0 {
		config.RequestLimit = defaults.RequestLimit
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = defaults.WindowDuration
	}

	options := []httprate.Option{
		httprate.WithLimitHandler(limitExceeded),
		httprate.WithKeyByRealIP(),
	}

	if config.RedisClient != nil {
		options = append(options, httprateredis.WithRedisLimitCounter(&httprateredis.Config{
			Client:    config.RedisClient,
			PrefixKey: rateLimitPrefix,
		}))
	}

	return httprate.NewRateLimiter(config.RequestLimit, config.WindowDuration, options...).Handler
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded","status_code":429}`))
}
