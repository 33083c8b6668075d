package infra

import (
	"context"
	"testing"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByOutcome(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	events := []domain.AdmissionEvent{
		{Key: "crpt", Outcome: domain.OutcomeAdmitted, Route: "create", Waited: 0},
		{Key: "crpt", Outcome: domain.OutcomeAdmitted, Route: "create", Waited: 300 * time.Millisecond},
		{Key: "crpt", Outcome: domain.OutcomeTimeout, Route: "send", Waited: time.Second},
		{Key: "10.0.0.1", Outcome: domain.OutcomePassed},
		{Key: "10.0.0.1", Outcome: domain.OutcomeDenied},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	total := s.Total()
	assert.Equal(t, int64(2), total.Admitted)
	assert.Equal(t, int64(1), total.TimedOut)
	assert.Equal(t, int64(1), total.Passed)
	assert.Equal(t, int64(1), total.Denied)
	assert.Equal(t, 1300*time.Millisecond, total.Waited)

	routes := s.ByRoute()
	assert.Equal(t, int64(2), routes["create"].Admitted)
	assert.Equal(t, int64(1), routes["send"].TimedOut)
	assert.NotContains(t, routes, "")

	keys := s.ByKey()
	assert.Equal(t, int64(2), keys["crpt"].Admitted)
	assert.Equal(t, int64(1), keys["10.0.0.1"].Passed)
	assert.Equal(t, int64(1), keys["10.0.0.1"].Denied)
}

func TestMemoryStatsStore_KeysNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	require.NoError(t, s.Record(context.Background(), domain.AdmissionEvent{Key: "crpt", Outcome: domain.OutcomeAdmitted}))

	assert.Empty(t, s.ByKey())
	assert.Equal(t, int64(1), s.Total().Admitted)
}
