// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - SlidingWindow: janela deslizante bloqueante (domain.Gate) para chamadas de saída
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate (entrada)
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore / RedisStatsStore: estatísticas de admissão
package infra
