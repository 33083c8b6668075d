package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SlidingWindow limita a no máximo `capacity` admissões em qualquer janela
// deslizante de duração `window`, somando todos os chamadores.
//
// Acquire nunca rejeita por excesso: suspende o chamador até a admissão mais
// antiga sair da janela e então reavalia. Não há ordem FIFO entre chamadores
// suspensos; quando uma vaga abre, qualquer um deles pode ganhar a disputa.
type SlidingWindow struct {
	capacity int
	window   time.Duration
	clock    clockwork.Clock
	log      *zap.Logger

	mu sync.Mutex
	// hits[head:] são as admissões ainda contadas, da mais antiga para a mais nova.
	hits []time.Time
	head int
}

type SlidingWindowOption func(*SlidingWindow)

func WithClock(c clockwork.Clock) SlidingWindowOption {
	return func(w *SlidingWindow) {
		if c != nil {
			w.clock = c
		}
	}
}

func WithLogger(l *zap.Logger) SlidingWindowOption {
	return func(w *SlidingWindow) {
		if l != nil {
			w.log = l
		}
	}
}

// NewSlidingWindow falha com domain.ErrInvalidConfiguration se capacity <= 0 ou window <= 0.
func NewSlidingWindow(capacity int, window time.Duration, opts ...SlidingWindowOption) (*SlidingWindow, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0, got %d", domain.ErrInvalidConfiguration, capacity)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be > 0, got %s", domain.ErrInvalidConfiguration, window)
	}

	w := &SlidingWindow{
		capacity: capacity,
		window:   window,
		clock:    clockwork.NewRealClock(),
		log:      zap.NewNop(),
		hits:     make([]time.Time, 0, capacity),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *SlidingWindow) Capacity() int         { return w.capacity }
func (w *SlidingWindow) Window() time.Duration { return w.window }

// Acquire implementa domain.Gate.
//
// Se o ctx encerrar enquanto o chamador está suspenso, retorna erro envolvendo
// domain.ErrTimeout (prazo expirado) ou domain.ErrCancelled (demais casos), além
// de ctx.Err(). Nenhuma admissão é registrada nesse caso. Um ctx já encerrado na
// entrada ainda passa pela primeira checagem: se houver vaga, ela é reservada.
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		wait, ok := w.Reserve()
		if ok {
			return nil
		}

		w.log.Debug("sliding window full, waiting",
			zap.Int("capacity", w.capacity),
			zap.Duration("window", w.window),
			zap.Duration("wait", wait),
		)

		t := w.clock.NewTimer(wait)
		select {
		case <-t.Chan():
			// reavalia: outro chamador pode ter ocupado a vaga antes
		case <-ctx.Done():
			t.Stop()
			return waitError(ctx)
		}
	}
}

// Allow implementa domain.Limiter: uma única checagem, sem espera.
func (w *SlidingWindow) Allow() bool {
	_, ok := w.Reserve()
	return ok
}

// Reserve faz uma rodada de poda + decisão. Se houver vaga, registra a admissão
// e retorna ok=true. Caso contrário retorna quanto falta para a admissão mais
// antiga sair da janela.
func (w *SlidingWindow) Reserve() (wait time.Duration, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)

	if len(w.hits)-w.head < w.capacity {
		w.hits = append(w.hits, now)
		return 0, true
	}
	return w.window - now.Sub(w.hits[w.head]), false
}

// Len retorna quantas admissões ainda contam na janela agora.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.clock.Now())
	return len(w.hits) - w.head
}

// prune remove da frente tudo com now-ts >= window. Só é correto porque as
// inserções acontecem no fim e em ordem não decrescente. Chamar com mu travado.
func (w *SlidingWindow) prune(now time.Time) {
	for w.head < len(w.hits) && now.Sub(w.hits[w.head]) >= w.window {
		w.hits[w.head] = time.Time{}
		w.head++
	}

	switch {
	case w.head == len(w.hits):
		w.hits = w.hits[:0]
		w.head = 0
	case w.head >= w.capacity:
		n := copy(w.hits, w.hits[w.head:])
		w.hits = w.hits[:n]
		w.head = 0
	}
}

func waitError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
}
