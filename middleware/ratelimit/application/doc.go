// Package application contém os casos de uso (regras de aplicação) para rate limit,
// admissão bloqueante e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key) retorna uma Decision (allow/deny + retry-after);
// AdmissionService.Acquire(ctx) espera a janela de saída com prazo opcional.
package application
