package infra

import (
	"context"
	"sync"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BucketStore mantém um token bucket (x/time/rate) por chave de chamador, com
// limpeza periódica das chaves inativas.
//
// É o limite de entrada do gateway: rejeita o chamador barulhento antes que ele
// ocupe as vagas da janela de saída.
type BucketStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*bucketEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	log          *zap.Logger
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type BucketOption func(*BucketStore)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.cleanupEvery = d }
}

func WithBucketLogger(l *zap.Logger) BucketOption {
	return func(s *BucketStore) {
		if l != nil {
			s.log = l
		}
	}
}

func NewBucketStore(rps float64, burst int, opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		entries:      make(map[domain.Key]*bucketEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BucketStore) RPS() float64 { return float64(s.rps) }
func (s *BucketStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *BucketStore) Get(key domain.Key) domain.Limiter {
	return s.limiter(key)
}

// RetryAfter estima quanto o chamador precisa esperar pelo próximo token,
// sem consumir nada.
func (s *BucketStore) RetryAfter(key domain.Key) time.Duration {
	r := s.limiter(key).ReserveN(s.now(), 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(s.now())
	r.Cancel()
	return d
}

func (s *BucketStore) limiter(key domain.Key) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove chaves sem acesso há mais de idleTTL e retorna quantas saíram.
func (s *BucketStore) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *BucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Cleanup(); n > 0 {
					s.log.Debug("bucket store cleanup", zap.Int("removed", n))
				}
			}
		}
	}()
}
