package application

import (
	"context"
	"errors"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// AdmissionService envolve um domain.Gate (ex: infra.SlidingWindow) com prazo
// opcional, estatísticas e log. Também é um domain.Gate, então pode ser passado
// direto para o cliente ou para o Transport.
//
//   - AcquireTimeout <= 0: espera até conseguir a vaga (ou até ctx cancelar).
//   - AcquireTimeout > 0: retorna domain.ErrTimeout quando o prazo expira,
//     sem mexer na janela.
type AdmissionService struct {
	Gate           domain.Gate
	Key            domain.Key
	Route          string
	AcquireTimeout time.Duration
	Stats          domain.StatsStore
	Logger         *zap.Logger
}

func (s AdmissionService) Acquire(ctx context.Context) error {
	if s.Gate == nil {
		return nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.Gate.Acquire(ctx)
	waited := time.Since(start)

	outcome := outcomeOf(err)
	log := s.logger().With(
		zap.String("key", string(s.Key)),
		zap.String("route", s.Route),
		zap.Duration("waited", waited),
	)
	switch outcome {
	case domain.OutcomeAdmitted:
		log.Debug("admitted")
	case "":
		log.Error("acquire failed", zap.Error(err))
		return err
	default:
		log.Warn("not admitted", zap.String("outcome", string(outcome)), zap.Error(err))
	}

	if s.Stats != nil {
		// best-effort: estatística nunca derruba a chamada
		if serr := s.Stats.Record(context.WithoutCancel(ctx), domain.AdmissionEvent{
			Key:     s.Key,
			Outcome: outcome,
			Route:   s.Route,
			Waited:  waited,
			At:      time.Now(),
		}); serr != nil {
			log.Warn("stats record failed", zap.Error(serr))
		}
	}
	return err
}

func (s AdmissionService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func outcomeOf(err error) domain.Outcome {
	switch {
	case err == nil:
		return domain.OutcomeAdmitted
	case errors.Is(err, domain.ErrTimeout):
		return domain.OutcomeTimeout
	case errors.Is(err, domain.ErrCancelled):
		return domain.OutcomeCancelled
	default:
		return ""
	}
}
