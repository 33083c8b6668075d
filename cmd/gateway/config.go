package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type config struct {
	listenAddr  string
	upstreamURL string
	logLevel    string

	windowLimit    int
	windowDuration time.Duration
	acquireTimeout time.Duration

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("UPSTREAM_URL", "https://ismp.crpt.ru")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("WINDOW_LIMIT", 10)
	v.SetDefault("WINDOW_DURATION", time.Second)
	// 0 limita a espera a uma janela; ver serverTimeouts
	// 0 limita a espera a uma janela; ver serverTimeouts
	v.SetDefault("ACQUIRE_TIMEOUT", 0)

	v.SetDefault("RATE_ENABLED", true)
	v.SetDefault("RATE_RPS", 10)
	v.SetDefault("RATE_KEY_HEADER", "")
	v.SetDefault("TRUST_XFF", false)
	v.SetDefault("RETRY_AFTER", time.Second)
	v.SetDefault("ADD_RATELIMIT_HEADERS", false)
	v.SetDefault("CONCURRENCY_MAX", 100)
	v.SetDefault("CONCURRENCY_TIMEOUT", 0)

	v.SetDefault("RATE_STATS_ENABLED", false)
	v.SetDefault("RATE_STATS_REDIS_ADDR", "")
	v.SetDefault("RATE_STATS_REDIS_PASSWORD", "")
	v.SetDefault("RATE_STATS_REDIS_DB", 0)
	v.SetDefault("RATE_STATS_PREFIX", "crpt:admission")
	v.SetDefault("RATE_STATS_TTL", 24*time.Hour)
	v.SetDefault("RATE_STATS_BUCKET", "minute")
	v.SetDefault("RATE_STATS_TRACK_KEYS", false)
}

// readConfig lê tudo de variáveis de ambiente (viper.AutomaticEnv).
func readConfig(v *viper.Viper) (config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := config{
		listenAddr:  v.GetString("LISTEN_ADDR"),
		upstreamURL: strings.TrimSpace(v.GetString("UPSTREAM_URL")),
		logLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),

		windowLimit:    v.GetInt("WINDOW_LIMIT"),
		windowDuration: v.GetDuration("WINDOW_DURATION"),
		acquireTimeout: v.GetDuration("ACQUIRE_TIMEOUT"),

		rateEnabled:        v.GetBool("RATE_ENABLED"),
		rateRPS:            v.GetFloat64("RATE_RPS"),
		rateKeyHeader:      v.GetString("RATE_KEY_HEADER"),
		trustXFF:           v.GetBool("TRUST_XFF"),
		retryAfter:         v.GetDuration("RETRY_AFTER"),
		addHeaders:         v.GetBool("ADD_RATELIMIT_HEADERS"),
		concurrencyMax:     v.GetInt("CONCURRENCY_MAX"),
		concurrencyTimeout: v.GetDuration("CONCURRENCY_TIMEOUT"),

		rateStatsEnabled:       v.GetBool("RATE_STATS_ENABLED"),
		rateStatsRedisAddr:     v.GetString("RATE_STATS_REDIS_ADDR"),
		rateStatsRedisPassword: v.GetString("RATE_STATS_REDIS_PASSWORD"),
		rateStatsRedisDB:       v.GetInt("RATE_STATS_REDIS_DB"),
		rateStatsPrefix:        v.GetString("RATE_STATS_PREFIX"),
		rateStatsTTL:           v.GetDuration("RATE_STATS_TTL"),
		rateStatsBucket:        v.GetString("RATE_STATS_BUCKET"),
		rateStatsTrackKeys:     v.GetBool("RATE_STATS_TRACK_KEYS"),
	}

	// IMPORTANTE: o "burst" permite uma rajada inicial de requisições.
	// Com RPS muito baixo (ex: 0.02), o padrão 20 daria a impressão de que o
	// limiter não funciona, porque as primeiras ~20 passam.
	if v.IsSet("RATE_BURST") {
		cfg.rateBurst = v.GetInt("RATE_BURST")
	} else {
		cfg.rateBurst = 20
		if cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.windowLimit <= 0 {
		return config{}, fmt.Errorf("WINDOW_LIMIT must be > 0, got %d", cfg.windowLimit)
	}
	if cfg.windowDuration <= 0 {
		return config{}, fmt.Errorf("WINDOW_DURATION must be > 0, got %s", cfg.windowDuration)
	}
	if cfg.acquireTimeout < 0 {
		return config{}, errors.New("ACQUIRE_TIMEOUT must be >= 0")
	}
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.rateStatsRedisAddr) == "" {
		return config{}, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if cfg.rateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}
