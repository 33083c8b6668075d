package domain

import (
	"context"
	"time"
)

// Outcome é o resultado de uma tentativa de admissão.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimeout   Outcome = "timeout"
	// OutcomePassed e OutcomeDenied valem para limiters não bloqueantes
	// (middleware de entrada). "admitted" fica reservado para a janela de saída,
	// assim uma requisição que passa pelas duas camadas não conta duas vezes.
	OutcomePassed Outcome = "passed"
	OutcomeDenied Outcome = "denied"
)

// AdmissionEvent registra uma decisão do limiter.
//
// Key identifica o limiter (ex: "crpt" ou IP do cliente); Route é uma string
// livre (método + path, operação, etc). Waited é quanto o chamador ficou suspenso.
//
// Observação: cuidado com cardinalidade de Key/Route em bases como Redis.
type AdmissionEvent struct {
	Key     Key
	Outcome Outcome
	Route   string
	Waited  time.Duration
	At      time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc.
// Quem chama deve tratar erro como best-effort (não derrubar a chamada).
type StatsStore interface {
	Record(ctx context.Context, ev AdmissionEvent) error
}
