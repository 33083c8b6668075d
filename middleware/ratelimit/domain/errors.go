package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration: capacidade ou janela não positivas na construção.
	ErrInvalidConfiguration = errors.New("ratelimit: invalid configuration")
	// ErrInvalidArgument: argumento inválido (ex: token vazio) antes de qualquer admissão.
	ErrInvalidArgument = errors.New("ratelimit: invalid argument")
	// ErrCancelled: o chamador foi cancelado enquanto esperava uma vaga.
	ErrCancelled = errors.New("ratelimit: acquire cancelled")
	// ErrTimeout: o prazo do chamador expirou enquanto esperava uma vaga.
	ErrTimeout = errors.New("ratelimit: acquire timed out")
	// ErrTransport agrupa qualquer falha do colaborador de rede.
	ErrTransport = errors.New("transport error")
)

// TransportError descreve uma falha na chamada de rede feita depois da admissão.
// A vaga da janela continua consumida.
type TransportError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
