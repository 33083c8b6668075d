package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeWindow(t *testing.T, capacity int, window time.Duration) (*SlidingWindow, clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	w, err := NewSlidingWindow(capacity, window, WithClock(clk))
	require.NoError(t, err)
	return w, clk
}

func acquireAsync(ctx context.Context, w *SlidingWindow) <-chan error {
	done := make(chan error, 1)
	go func() { done <- w.Acquire(ctx) }()
	return done
}

func TestNewSlidingWindow_RejectsInvalidConfiguration(t *testing.T) {
	cases := []struct {
		name     string
		capacity int
		window   time.Duration
	}{
		{"zero capacity", 0, time.Second},
		{"negative capacity", -1, time.Second},
		{"zero window", 1, 0},
		{"negative window", 1, -time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewSlidingWindow(tc.capacity, tc.window)
			require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			assert.Nil(t, w)
		})
	}
}

func TestSlidingWindow_ThirdCallWaitsForOldestToExpire(t *testing.T) {
	w, clk := newFakeWindow(t, 2, time.Second)
	ctx := context.Background()

	require.NoError(t, w.Acquire(ctx))
	clk.Advance(100 * time.Millisecond)
	require.NoError(t, w.Acquire(ctx))

	done := acquireAsync(ctx, w)
	clk.BlockUntil(1)

	select {
	case err := <-done:
		t.Fatalf("third acquire returned early: %v", err)
	default:
	}

	// a primeira admissão sai da janela em t0+1s, ou seja, daqui a 900ms
	clk.Advance(899 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("third acquire returned before the oldest admission expired: %v", err)
	default:
	}

	clk.Advance(time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("third acquire not admitted after the window slid")
	}
	assert.Equal(t, 2, w.Len())
}

func TestSlidingWindow_RaceOneAdmittedOneWaits(t *testing.T) {
	w, err := NewSlidingWindow(1, 100*time.Millisecond)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		took  [2]time.Duration
	)
	for i := range took {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			begin := time.Now()
			assert.NoError(t, w.Acquire(context.Background()))
			took[i] = time.Since(begin)
		}(i)
	}
	close(start)
	wg.Wait()

	fast, slow := took[0], took[1]
	if fast > slow {
		fast, slow = slow, fast
	}
	assert.Less(t, fast, 50*time.Millisecond)
	assert.GreaterOrEqual(t, slow, 90*time.Millisecond)
}

func TestSlidingWindow_NeverAdmitsMoreThanCapacity(t *testing.T) {
	const (
		capacity = 3
		callers  = 10
	)
	w, clk := newFakeWindow(t, capacity, time.Second)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if assert.NoError(t, w.Acquire(context.Background())) {
				admitted.Add(1)
			}
		}()
	}

	for round := 1; ; round++ {
		want := capacity * round
		if want > callers {
			want = callers
		}
		blocked := callers - want
		if blocked > 0 {
			clk.BlockUntil(blocked)
		}
		require.Eventually(t, func() bool { return admitted.Load() == int32(want) },
			time.Second, time.Millisecond, "round %d", round)
		require.LessOrEqual(t, w.Len(), capacity)

		if blocked == 0 {
			break
		}
		clk.Advance(time.Second)
	}
	wg.Wait()
	assert.Equal(t, int32(callers), admitted.Load())
}

func TestSlidingWindow_EveryAdmissionRecordedInOrder(t *testing.T) {
	const (
		goroutines = 50
		perG       = 10
	)
	w, err := NewSlidingWindow(goroutines*perG, time.Hour)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				assert.NoError(t, w.Acquire(context.Background()))
			}
		}()
	}
	wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	hits := w.hits[w.head:]
	require.Len(t, hits, goroutines*perG)
	for i := 1; i < len(hits); i++ {
		assert.False(t, hits[i].Before(hits[i-1]), "timestamp %d is older than %d", i, i-1)
	}
}

func TestSlidingWindow_AllCallersEventuallyAdmitted(t *testing.T) {
	w, err := NewSlidingWindow(2, 20*time.Millisecond)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Acquire(context.Background()))
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("callers still blocked after 2s")
	}
}

func TestSlidingWindow_CancelWhileWaitingConsumesNoSlot(t *testing.T) {
	w, clk := newFakeWindow(t, 1, time.Minute)
	require.NoError(t, w.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := acquireAsync(ctx, w)
	clk.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, domain.ErrCancelled)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("cancelled acquire did not return")
	}
	assert.Equal(t, 1, w.Len())

	// a janela continua funcionando para os próximos
	clk.Advance(time.Minute)
	require.NoError(t, w.Acquire(context.Background()))
	assert.Equal(t, 1, w.Len())
}

func TestSlidingWindow_DeadlineWhileWaitingIsTimeout(t *testing.T) {
	w, _ := newFakeWindow(t, 1, time.Hour)
	require.NoError(t, w.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Acquire(ctx)
	require.ErrorIs(t, err, domain.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, w.Len())
}

func TestSlidingWindow_DoneContextStillTakesFreeSlot(t *testing.T) {
	w, _ := newFakeWindow(t, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Acquire(ctx))
	require.ErrorIs(t, w.Acquire(ctx), domain.ErrCancelled)
	assert.Equal(t, 1, w.Len())
}

func TestSlidingWindow_ReserveReportsRemaining(t *testing.T) {
	w, clk := newFakeWindow(t, 1, time.Second)

	wait, ok := w.Reserve()
	require.True(t, ok)
	require.Zero(t, wait)

	clk.Advance(300 * time.Millisecond)
	wait, ok = w.Reserve()
	require.False(t, ok)
	assert.Equal(t, 700*time.Millisecond, wait)

	assert.False(t, w.Allow())
	clk.Advance(700 * time.Millisecond)
	assert.True(t, w.Allow())
}

func TestSlidingWindow_PruneCompactsQueue(t *testing.T) {
	w, clk := newFakeWindow(t, 2, time.Second)

	for i := 0; i < 20; i++ {
		require.True(t, w.Allow())
		clk.Advance(600 * time.Millisecond)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.LessOrEqual(t, len(w.hits), 2*w.capacity)
}
