// Package ratelimit fornece adapters HTTP (net/http) para rate limit, admissão
// de saída e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, admissão com prazo, acquire/timeout)
//   - infra: implementações concretas (janela deslizante, token bucket, semáforo, stats)
//   - ratelimit (este pacote): middlewares de entrada, Transport de saída e
//     tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF) e aplica o token bucket de entrada (429)
//  2. Limita a concorrência de requisições em voo (503)
//  3. O proxy chama o destino através do Transport, que espera a janela deslizante
//     (no máximo N chamadas por janela, somando todos os clientes)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como WINDOW_LIMIT, WINDOW_DURATION, ACQUIRE_TIMEOUT, RATE_RPS e CONCURRENCY_MAX.
package ratelimit
