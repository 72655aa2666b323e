package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpilot.io/pilot/internal/domain"
)

func TestRateLimitCleanupArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rate_limit_cleanup", RateLimitCleanupArgs{}.Kind())
	opts := RateLimitCleanupArgs{}.InsertOpts()
	assert.Equal(t, 1, opts.MaxAttempts)
	assert.Equal(t, 15*time.Minute, opts.UniqueOpts.ByPeriod)
}

func TestNewRateLimitCleanupWorkerRetention(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultRateLimitRetention, NewRateLimitCleanupWorker(nil, time.Second).retention)
	assert.Equal(t, time.Hour, NewRateLimitCleanupWorker(nil, time.Hour).retention)
}

func TestRateLimitRetention(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultRateLimitRetention, RateLimitRetention(0))
	assert.Equal(t, DefaultRateLimitRetention, RateLimitRetention(domain.RateLimitWindowLength-time.Second))
	assert.Equal(t, domain.RateLimitWindowLength, RateLimitRetention(domain.RateLimitWindowLength))
}

func TestRateLimitCleanupWorkerWork(t *testing.T) {
	t.Parallel()

	pruner := &fakePruner{deleted: 12}
	w := NewRateLimitCleanupWorker(pruner, 0)
	require.NoError(t, w.Work(context.Background(), nil))

	age := time.Since(pruner.cutoff)
	assert.GreaterOrEqual(t, age, DefaultRateLimitRetention)
	assert.Less(t, age, DefaultRateLimitRetention+time.Minute)
	assert.Greater(t, DefaultRateLimitRetention, domain.RateLimitWindowLength)

	var nilWorker *RateLimitCleanupWorker
	assert.Error(t, nilWorker.Work(context.Background(), nil))
}

func TestPeriodicJobs(t *testing.T) {
	t.Parallel()

	assert.Len(t, PeriodicJobs(true), 2)
	assert.Len(t, PeriodicJobs(false), 1)
}
