package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: chamadas em voo
// para o serviço de destino).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
// Em caso de erro, nenhuma vaga foi ocupada.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
}
