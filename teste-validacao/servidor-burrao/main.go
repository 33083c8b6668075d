package main

// Servidor falso do serviço de documentos para validar o gateway na mão.
// Loga cada chegada com o intervalo desde a anterior e quantas chegaram no
// último segundo, para conferir se a janela de saída está sendo respeitada.

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type arrivals struct {
	mu   sync.Mutex
	last []time.Time
}

// record retorna o intervalo desde a chegada anterior e quantas chegaram em (now-1s, now].
func (a *arrivals) record(now time.Time) (time.Duration, int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var gap time.Duration
	if n := len(a.last); n > 0 {
		gap = now.Sub(a.last[n-1])
	}
	a.last = append(a.last, now)

	i := 0
	for i < len(a.last) && now.Sub(a.last[i]) >= time.Second {
		i++
	}
	a.last = a.last[i:]
	return gap, len(a.last)
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	var seen arrivals
	handler := func(w http.ResponseWriter, r *http.Request) {
		gap, perSecond := seen.record(time.Now())

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		logger.Info("document received",
			zap.String("path", r.URL.Path),
			zap.String("pg", r.URL.Query().Get("pg")),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Bool("authorized", r.Header.Get("Authorization") != ""),
			zap.Any("type", body["type"]),
			zap.Duration("gap", gap),
			zap.Int("last_second", perSecond),
		)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"value": uuid.NewString()})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/lk/documents/create", handler)
	mux.HandleFunc("POST /api/v3/lk/documents/send", handler)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("fake documents API listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
