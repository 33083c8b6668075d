package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crpt-gateway/middleware/ratelimit"
	"crpt-gateway/middleware/ratelimit/application"
	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	cfg, err := readConfig(viper.New())
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := newLogger(cfg.logLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config, logger *zap.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return err
	}

	window, err := infra.NewSlidingWindow(cfg.windowLimit, cfg.windowDuration,
		infra.WithLogger(logger.Named("window")))
	if err != nil {
		return err
	}

	var statsStore domain.StatsStore
	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return err
		}

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewBucketStore(cfg.rateRPS, cfg.rateBurst, infra.WithBucketLogger(logger.Named("bucket")))
	store.StartJanitor(ctx)

	budget := serverTimeouts(cfg)
	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newHandler(cfg, budget, target, window, store, statsStore, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      budget.write,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.Stringer("upstream", target),
		zap.Int("window_limit", cfg.windowLimit),
		zap.Duration("window_duration", cfg.windowDuration),
		zap.Duration("acquire_timeout", budget.acquire),
		zap.Duration("write_timeout", budget.write),
	)
	logger.Info("inbound rate",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.Float64("rps", cfg.rateRPS),
		zap.Int("burst", cfg.rateBurst),
		zap.String("key_header", cfg.rateKeyHeader),
		zap.Bool("trust_xff", cfg.trustXFF),
	)
	logger.Info("rate stats",
		zap.Bool("enabled", cfg.rateStatsEnabled),
		zap.String("redis_addr", cfg.rateStatsRedisAddr),
		zap.String("bucket", cfg.rateStatsBucket),
		zap.Duration("ttl", cfg.rateStatsTTL),
	)
	logger.Info("concurrency", zap.Int("max", cfg.concurrencyMax), zap.Duration("acquire_timeout", budget.inflight))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// upstreamBudget é quanto a chamada ao serviço de destino pode levar depois de
// conseguir a vaga na janela.
const upstreamBudget = 30 * time.Second

// waitBudget são os prazos de espera do gateway. O net/http não cancela
// r.Context() quando o WriteTimeout passa, então as esperas somadas ficam
// sempre abaixo dele.
type waitBudget struct {
	inflight time.Duration
	acquire  time.Duration
	write    time.Duration
}

// serverTimeouts: ACQUIRE_TIMEOUT=0 vira uma janela inteira de espera e
// CONCURRENCY_TIMEOUT=0 o tempo de uma chamada completa (janela + upstream).
func serverTimeouts(cfg config) waitBudget {
	b := waitBudget{acquire: cfg.acquireTimeout, inflight: cfg.concurrencyTimeout}
	if b.acquire <= 0 {
		b.acquire = cfg.windowDuration
	}
	if b.inflight <= 0 {
		b.inflight = b.acquire + upstreamBudget
	}
	b.write = b.inflight + b.acquire + upstreamBudget
	return b
}

// newHandler monta token bucket -> vagas em voo -> proxy. Entrada registra
// passed/denied, a janela registra admitted/timeout/cancelled e as vagas em voo
// só as desistências: cada chamada ao upstream conta uma única admissão.
func newHandler(cfg config, budget waitBudget, target *url.URL, window domain.Gate,
	store domain.LimiterStore, stats domain.StatsStore, logger *zap.Logger) http.Handler {
	proxy := newProxy(target, application.AdmissionService{
		Gate:           window,
		Key:            domain.Key("upstream"),
		Route:          target.Host,
		AcquireTimeout: budget.acquire,
		Stats:          stats,
		Logger:         logger.Named("admission"),
	}, logger)

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: budget.inflight,
		Stats:          stats,
		Logger:         logger.Named("inflight"),
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               stats,
			Logger:              logger.Named("inbound"),
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
		})(h)
	}
	return h
}

// newProxy encaminha tudo para target; cada chamada de saída passa pela janela.
func newProxy(target *url.URL, gate domain.Gate, logger *zap.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
		},
		Transport: &ratelimit.Transport{Gate: gate},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status := proxyErrorStatus(err)
			logger.Warn("proxy error",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Error(err),
			)
			http.Error(w, http.StatusText(status), status)
		},
	}
}

func proxyErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCancelled):
		// cliente desistiu; quase ninguém vai ler essa resposta
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}
