package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"crpt-gateway/middleware/ratelimit/application"
	"crpt-gateway/middleware/ratelimit/domain"
	"crpt-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProxyErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, proxyErrorStatus(fmt.Errorf("x: %w", domain.ErrTimeout)))
	assert.Equal(t, http.StatusRequestTimeout, proxyErrorStatus(domain.ErrCancelled))
	assert.Equal(t, http.StatusBadGateway, proxyErrorStatus(io.EOF))
}

func TestProxy_GatesUpstreamCalls(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v3/lk/documents/create", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	window, err := infra.NewSlidingWindow(1, time.Hour)
	require.NoError(t, err)

	proxy := newProxy(target, application.AdmissionService{
		Gate:           window,
		AcquireTimeout: 20 * time.Millisecond,
	}, zap.NewNop())

	do := func() int {
		r := httptest.NewRequest(http.MethodPost, "http://gateway/api/v3/lk/documents/create?pg=milk", nil)
		w := httptest.NewRecorder()
		proxy.ServeHTTP(w, r.WithContext(context.Background()))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusServiceUnavailable, do(), "second call waits past the acquire timeout")
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, window.Len())
}

func TestHandler_InboundAndOutboundStatsDoNotDoubleCount(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	window, err := infra.NewSlidingWindow(10, time.Hour)
	require.NoError(t, err)

	cfg := config{
		windowDuration: time.Hour,
		rateEnabled:    true,
		retryAfter:     time.Second,
		concurrencyMax: 4,
	}
	stats := infra.NewMemoryStatsStore()
	h := newHandler(cfg, serverTimeouts(cfg), target, window,
		infra.NewBucketStore(100, 100), stats, zap.NewNop())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://gateway/api/v3/lk/documents/create?pg=milk", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	total := stats.Total()
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 3, window.Len())
	assert.Equal(t, int64(hits.Load()), total.Admitted, "one admission per upstream call")
	assert.Equal(t, int64(3), total.Passed)
	assert.Zero(t, total.Denied)
}

func TestServerTimeouts_WaitsEndBeforeWriteDeadline(t *testing.T) {
	cases := []struct {
		name string
		cfg  config
		want waitBudget
	}{
		{
			name: "unbounded waits become bounded",
			cfg:  config{windowDuration: time.Second},
			want: waitBudget{acquire: time.Second, inflight: 31 * time.Second, write: 62 * time.Second},
		},
		{
			name: "explicit timeouts kept",
			cfg:  config{windowDuration: time.Second, acquireTimeout: 5 * time.Second, concurrencyTimeout: 2 * time.Second},
			want: waitBudget{acquire: 5 * time.Second, inflight: 2 * time.Second, write: 37 * time.Second},
		},
		{
			name: "acquire longer than the window",
			cfg:  config{windowDuration: time.Second, acquireTimeout: 10 * time.Minute},
			want: waitBudget{acquire: 10 * time.Minute, inflight: 10*time.Minute + 30*time.Second, write: 21 * time.Minute},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := serverTimeouts(tc.cfg)
			assert.Equal(t, tc.want, got)
			assert.Greater(t, got.write, got.inflight+got.acquire)
		})
	}
}

func TestHandler_DefaultAcquireDeadlineRejectsQueuedCaller(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	// ACQUIRE_TIMEOUT=0: a espera fica limitada a uma janela, nunca indefinida
	cfg := config{windowDuration: 50 * time.Millisecond}
	window, err := infra.NewSlidingWindow(1, time.Hour)
	require.NoError(t, err)
	h := newHandler(cfg, serverTimeouts(cfg), target, window, nil, nil, zap.NewNop())

	do := func() int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://gateway/", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusServiceUnavailable, do())
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = newLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}
