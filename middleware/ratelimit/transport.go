package ratelimit

import (
	"net/http"

	"crpt-gateway/middleware/ratelimit/domain"
)

// Transport é um http.RoundTripper que passa pelo Gate antes de cada chamada
// de saída. A vaga é gasta mesmo que a chamada falhe: o limite conta tentativas.
//
// Erros do Gate (ErrCancelled, ErrTimeout) são retornados sem chamar o Base.
type Transport struct {
	Gate domain.Gate
	// Base é o transport real. Se nil, usa http.DefaultTransport.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Gate != nil {
		if err := t.Gate.Acquire(req.Context()); err != nil {
			if req.Body != nil {
				_ = req.Body.Close()
			}
			return nil, err
		}
	}
	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
