package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora,
// sem bloquear.
//
// Observação: a implementação pode ser token-bucket, janela deslizante, etc.
type Limiter interface {
	Allow() bool
}

// Gate é o contrato de admissão bloqueante: Acquire só retorna nil depois de
// reservar uma vaga. Nunca rejeita por excesso; apenas espera.
//
// Se o ctx encerrar durante a espera, retorna erro (ErrCancelled ou ErrTimeout)
// e nenhuma vaga é consumida.
type Gate interface {
	Acquire(ctx context.Context) error
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
