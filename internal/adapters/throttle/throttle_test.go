package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonecp/zonecp/internal/core/domain"
)

func limiterFixture(t *testing.T, scopes map[string][]Rate) (*Limiter, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := New(rdb, scopes)
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestParseRate(t *testing.T) {
	r, err := ParseRate("10/s")
	require.NoError(t, err)
	assert.Equal(t, Rate{Count: 10, Duration: time.Second}, r)

	r, err = ParseRate("10/2m")
	require.NoError(t, err)
	assert.Equal(t, Rate{Count: 10, Duration: 2 * time.Minute}, r)

	for _, bad := range []string{"", "10", "x/s", "10/w", "0/s", "-1/h"} {
		_, err := ParseRate(bad)
		assert.Error(t, err, bad)
	}

	rates, err := ParseRates("10/s, 300/m,1000/h")
	require.NoError(t, err)
	assert.Len(t, rates, 3)
}

func TestAllowWithinRate(t *testing.T) {
	l, clock := limiterFixture(t, map[string][]Rate{
		"api": {{Count: 2, Duration: time.Second}},
	})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "api", "user1", ""))
	require.NoError(t, l.Allow(ctx, "api", "user1", ""))

	err := l.Allow(ctx, "api", "user1", "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindThrottled))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 1, derr.RetryAfter)

	// The window frees up once the oldest entry ages out.
	*clock = clock.Add(1100 * time.Millisecond)
	assert.NoError(t, l.Allow(ctx, "api", "user1", ""))
}

func TestDeniedRequestIsNotRecorded(t *testing.T) {
	l, clock := limiterFixture(t, map[string][]Rate{
		"api": {{Count: 1, Duration: time.Second}},
	})
	ctx := context.Background()
	require.NoError(t, l.Allow(ctx, "api", "u", ""))
	for i := 0; i < 5; i++ {
		assert.Error(t, l.Allow(ctx, "api", "u", ""))
	}
	*clock = clock.Add(1100 * time.Millisecond)
	assert.NoError(t, l.Allow(ctx, "api", "u", ""), "denied attempts must not extend the window")
}

func TestCompositeWindows(t *testing.T) {
	l, clock := limiterFixture(t, map[string][]Rate{
		"expensive": {{Count: 2, Duration: time.Second}, {Count: 3, Duration: time.Minute}},
	})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "expensive", "u", ""))
	require.NoError(t, l.Allow(ctx, "expensive", "u", ""))
	assert.Error(t, l.Allow(ctx, "expensive", "u", ""), "per-second window")

	*clock = clock.Add(2 * time.Second)
	require.NoError(t, l.Allow(ctx, "expensive", "u", ""))
	err := l.Allow(ctx, "expensive", "u", "")
	require.Error(t, err, "per-minute window caps at 3")
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Greater(t, derr.RetryAfter, 50, "retry hint reflects the minute window")
}

func TestDailyRetryAfter(t *testing.T) {
	l, clock := limiterFixture(t, map[string][]Rate{
		"user": {{Count: 2, Duration: 24 * time.Hour}},
	})
	ctx := context.Background()
	require.NoError(t, l.Allow(ctx, "user", "u", ""))
	*clock = clock.Add(2 * time.Second)
	require.NoError(t, l.Allow(ctx, "user", "u", ""))

	err := l.Allow(ctx, "user", "u", "")
	require.Error(t, err)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 86400-2, derr.RetryAfter)
}

func TestBucketsPartitionCounters(t *testing.T) {
	l, _ := limiterFixture(t, map[string][]Rate{
		"zone": {{Count: 1, Duration: time.Minute}},
	})
	ctx := context.Background()
	require.NoError(t, l.Allow(ctx, "zone", "u", "example.com"))
	assert.Error(t, l.Allow(ctx, "zone", "u", "example.com"))
	assert.NoError(t, l.Allow(ctx, "zone", "u", "other.org"), "different bucket, separate window")
}

func TestClientsPartitionCounters(t *testing.T) {
	l, _ := limiterFixture(t, map[string][]Rate{
		"api": {{Count: 1, Duration: time.Minute}},
	})
	ctx := context.Background()
	require.NoError(t, l.Allow(ctx, "api", "alice", ""))
	assert.NoError(t, l.Allow(ctx, "api", "bob", ""))
}

func TestUnknownScopeAdmits(t *testing.T) {
	l, _ := limiterFixture(t, map[string][]Rate{})
	assert.NoError(t, l.Allow(context.Background(), "nope", "u", ""))
}

func TestAllowRatesOverride(t *testing.T) {
	l, _ := limiterFixture(t, nil)
	ctx := context.Background()
	override := []Rate{{Count: 1, Duration: 24 * time.Hour}}
	require.NoError(t, l.AllowRates(ctx, "user", "u", "", override))
	assert.Error(t, l.AllowRates(ctx, "user", "u", "", override))
}
