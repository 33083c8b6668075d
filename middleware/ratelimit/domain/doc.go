// Package domain define contratos e tipos de domínio para admissão (rate limit),
// concorrência e estatísticas.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Os erros sentinela (ErrInvalidConfiguration, ErrInvalidArgument, ErrCancelled,
// ErrTimeout, ErrTransport) formam a taxonomia compartilhada pelas outras camadas.
package domain
