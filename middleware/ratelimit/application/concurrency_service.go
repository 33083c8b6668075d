package application

import (
	"context"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// InflightKey identifica o limite de chamadas em voo nas estatísticas.
const InflightKey domain.Key = "inflight"

// ConcurrencyService reserva uma vaga de chamada em voo antes de a requisição
// seguir para a janela de saída, sem saber nada sobre HTTP.
//
// Só as falhas (cancelled/timeout) viram AdmissionEvent, sob Key. A admissão de
// verdade é registrada pela janela; contar aqui também duplicaria o total.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Key            domain.Key
	Route          string
	Stats          domain.StatsStore
	Logger         *zap.Logger
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout (domain.ErrTimeout).
// Em caso de erro, nenhuma vaga foi adquirida e release é nil.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	release, err := s.Pool.Acquire(ctx)
	if err == nil {
		return release, nil
	}

	waited := time.Since(start)
	outcome := outcomeOf(err)
	log := s.logger().With(
		zap.String("key", string(s.key())),
		zap.String("route", s.Route),
		zap.Duration("waited", waited),
	)
	if outcome == "" {
		log.Error("inflight acquire failed", zap.Error(err))
		return nil, err
	}
	log.Warn("no inflight slot", zap.String("outcome", string(outcome)), zap.Error(err))

	if s.Stats != nil {
		if serr := s.Stats.Record(context.WithoutCancel(ctx), domain.AdmissionEvent{
			Key:     s.key(),
			Outcome: outcome,
			Route:   s.Route,
			Waited:  waited,
			At:      time.Now(),
		}); serr != nil {
			log.Warn("stats record failed", zap.Error(serr))
		}
	}
	return nil, err
}

func (s ConcurrencyService) key() domain.Key {
	if s.Key == "" {
		return InflightKey
	}
	return s.Key
}

func (s ConcurrencyService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
