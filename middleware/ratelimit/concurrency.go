package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"crpt-gateway/middleware/ratelimit/application"
	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

// ConcurrencyOptions limita quantas requisições esperam/usam a janela de saída
// ao mesmo tempo. Stats recebe só as desistências (cancelled/timeout).
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Stats          domain.StatsStore
	Logger         *zap.Logger
}

// ConcurrencyMiddleware limita quantas requisições ficam em voo ao mesmo tempo.
// Com Max <= 0 o middleware não faz nada.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	base := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		Key:            application.InflightKey,
		Stats:          opts.Stats,
		Logger:         opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			svc := base
			svc.Route = r.Method + " " + r.URL.Path

			release, err := svc.Acquire(r.Context())
			if err != nil {
				status := opts.RejectStatus
				if errors.Is(err, domain.ErrCancelled) {
					// cliente já foi embora
					status = http.StatusRequestTimeout
				}
				http.Error(w, http.StatusText(status), status)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
