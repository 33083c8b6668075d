package application

import (
	"time"

	"crpt-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit de entrada (não bloqueante).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

// retryEstimator é implementado por stores que sabem estimar a espera
// (ex: infra.BucketStore).
type retryEstimator interface {
	RetryAfter(domain.Key) time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	if lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	retry := s.RetryAfter
	if est, ok := s.Store.(retryEstimator); ok {
		if d := est.RetryAfter(key); d > retry {
			retry = d
		}
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}
