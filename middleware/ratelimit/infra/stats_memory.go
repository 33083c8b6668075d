package infra

import (
	"context"
	"sync"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Admitted  int64
	Cancelled int64
	TimedOut  int64
	Passed    int64
	Denied    int64
	// Waited é a soma do tempo suspenso de todas as tentativas.
	Waited time.Duration
}

func (c *Counters) add(ev domain.AdmissionEvent) {
	switch ev.Outcome {
	case domain.OutcomeAdmitted:
		c.Admitted++
	case domain.OutcomeCancelled:
		c.Cancelled++
	case domain.OutcomeTimeout:
		c.TimedOut++
	case domain.OutcomePassed:
		c.Passed++
	case domain.OutcomeDenied:
		c.Denied++
	}
	c.Waited += ev.Waited
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[domain.Key]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[domain.Key]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.AdmissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	if ev.Route != "" {
		c := s.byRoute[ev.Route]
		c.add(ev)
		s.byRoute[ev.Route] = c
	}
	if s.trackKeys {
		k := s.byKey[ev.Key]
		k.add(ev)
		s.byKey[ev.Key] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Key]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
