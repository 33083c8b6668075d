package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore grava contadores de admissão em hashes do Redis:
//
//	<prefix>:total                 campo por outcome + wait_ms
//	<prefix>:minute:YYYYMMDDhhmm   idem, por minuto (com TTL)
//	<prefix>:route                 "<route>:<outcome>"
//	<prefix>:key:<key>             idem total, por chave (opcional, com TTL)
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "crpt:admission",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.AdmissionEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		return nil
	}
	waitMs := ev.Waited.Milliseconds()

	incr := func(pipe redis.Pipeliner, key string, expire bool) {
		pipe.HIncrBy(ctx, key, field, 1)
		if waitMs > 0 {
			pipe.HIncrBy(ctx, key, "wait_ms", waitMs)
		}
		if expire && s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	pipe := s.rdb.Pipeline()
	incr(pipe, s.prefix+":total", false)

	if s.bucket == "minute" {
		incr(pipe, fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")), true)
	}

	if route := strings.TrimSpace(ev.Route); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			incr(pipe, s.prefix+":key:"+k, true)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
