package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/joeychilson/strmanip/cache"
	"github.com/joeychilson/strmanip/config"
	"github.com/joeychilson/strmanip/engine"
	"github.com/joeychilson/strmanip/logger"
	"github.com/joeychilson/strmanip/server"
)

const defaultConfigFile = "./config.yaml"

func main() {
	configFile := getEnv("CONFIG_FILE", defaultConfigFile)
	redisURL := getEnv("REDIS_URL", "")

	cfg := config.New()
	if _, statErr := os.Stat(configFile); statErr == nil {
		loaded, err := config.LoadConfig(configFile)
		if err != nil {
			logger.Default().Error("failed to load config from file", "file", configFile, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	log, err := cfg.Log.NewLogger()
	if err != nil {
		logger.Default().Error("invalid log level", "error", err)
		os.Exit(1)
	}

	addr := getEnv("ADDR", cfg.Server.GetAddr())
	log.Info("starting strmanip API server", "log_level", cfg.Log.Level, "config_file", configFile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	e, err := engine.New(cfg)
	if err != nil {
		log.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	e = e.WithLogger(log)
	defer e.Close()

	serverCfg := &server.Config{
		RateLimitRequests: cfg.Server.RateLimit.GetRequests(),
		RateLimitWindow:   cfg.Server.RateLimit.GetWindow(),
	}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to redis", "error", err, "addr", opts.Addr)
			os.Exit(1)
		}
		log.Info("redis connection established", "addr", opts.Addr)

		if cfg.Cache.IsEnabled() {
			e = e.WithCache(cache.NewRedisCache(redisClient, cache.Config{
				Prefix: cfg.Cache.GetPrefix(),
				TTL:    cfg.Cache.TTL,
			}))
			log.Info("redis cache enabled", "ttl", cfg.Cache.TTL)
		}
		serverCfg.RedisClient = redisClient
	}

	srv, err := server.New(e, log, serverCfg)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.StartWithShutdown(ctx, addr); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
