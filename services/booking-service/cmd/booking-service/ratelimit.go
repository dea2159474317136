package main

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicbook/clinicbook/libs/config"
	"github.com/clinicbook/clinicbook/libs/httpx"
)

// publicRateLimiter protects the unauthenticated patient endpoints. Redis
// keeps the window shared across instances; without REDIS_ADDR a per-process
// in-memory limiter still bounds a single instance.
func publicRateLimiter(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("PUBLIC_RATE_LIMIT", 60)
	window := config.Duration("PUBLIC_RATE_WINDOW", time.Minute)

	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiting in-memory (REDIS_ADDR unset)")
		return httpx.NewRateLimiter(limit, window).Middleware()
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return httpx.NewRedisRateLimiter(rdb, limit, window, "booking:public").Middleware(logger, true)
}
