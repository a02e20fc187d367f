// Package throttle implements the request rate limits on Redis using
// per-window sliding histories. Occasional overcounting under contention is
// acceptable; undercounting is not, so commits happen before success is
// reported.
package throttle

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// Rate is one <count>/<period> limit.
type Rate struct {
	Count    int
	Duration time.Duration
}

var periods = map[string]time.Duration{
	"s":  time.Second,
	"m":  time.Minute,
	"2m": 2 * time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
}

// ParseRate parses "10/s", "300/m", "10/2m", "1000/h" or "5000/d".
func ParseRate(s string) (Rate, error) {
	countStr, periodStr, ok := strings.Cut(s, "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q, want <count>/<period>", s)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		return Rate{}, fmt.Errorf("invalid count in rate %q", s)
	}
	period, ok := periods[periodStr]
	if !ok {
		return Rate{}, fmt.Errorf("invalid period in rate %q (s, m, 2m, h, d)", s)
	}
	return Rate{Count: count, Duration: period}, nil
}

// ParseRates parses a comma-separated rate list.
func ParseRates(s string) ([]Rate, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []Rate
	for _, part := range strings.Split(s, ",") {
		r, err := ParseRate(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Limiter is a Redis-backed composite limiter; a scope's windows are AND'ed.
type Limiter struct {
	rdb    *redis.Client
	scopes map[string][]Rate
	now    func() time.Time
}

func New(rdb *redis.Client, scopes map[string][]Rate) *Limiter {
	return &Limiter{rdb: rdb, scopes: scopes, now: time.Now}
}

// Allow checks every window of the scope and commits the request into all of
// them on success. An unknown scope admits everything.
func (l *Limiter) Allow(ctx context.Context, scope, client, bucket string) error {
	rates := l.scopes[scope]
	if len(rates) == 0 {
		return nil
	}
	return l.allow(ctx, scope, client, bucket, rates)
}

// AllowRates runs an explicit rate list, for per-user overrides.
func (l *Limiter) AllowRates(ctx context.Context, scope, client, bucket string, rates []Rate) error {
	if len(rates) == 0 {
		return nil
	}
	return l.allow(ctx, scope, client, bucket, rates)
}

func (l *Limiter) allow(ctx context.Context, scope, client, bucket string, rates []Rate) error {
	now := l.now()
	maxDur := time.Duration(0)
	keys := make([]string, len(rates))
	for i, rate := range rates {
		keys[i] = key(scope, client, bucket, rate.Duration)
		if rate.Duration > maxDur {
			maxDur = rate.Duration
		}
	}
	for i, rate := range rates {
		history, err := l.rdb.LRange(ctx, keys[i], 0, -1).Result()
		if err != nil {
			// Fail open: the limiter must not take the API down.
			return nil
		}
		kept := filterWindow(history, now, rate.Duration)
		if len(kept) >= rate.Count {
			oldest := kept[len(kept)-1]
			retry := rate.Duration - now.Sub(oldest)
			if retry < 0 {
				retry = 0
			}
			return &domain.Error{
				Kind:       domain.KindThrottled,
				Detail:     fmt.Sprintf("request was throttled (scope %s)", scope),
				RetryAfter: int(math.Ceil(retry.Seconds())),
			}
		}
	}
	// All windows admit the request; commit the timestamp everywhere.
	pipe := l.rdb.Pipeline()
	stamp := strconv.FormatInt(now.UnixNano(), 10)
	for i, rate := range rates {
		pipe.LPush(ctx, keys[i], stamp)
		pipe.LTrim(ctx, keys[i], 0, int64(rate.Count))
		pipe.Expire(ctx, keys[i], maxDur)
	}
	_, _ = pipe.Exec(ctx)
	return nil
}

// filterWindow parses timestamps newest-first and drops entries outside the
// window.
func filterWindow(history []string, now time.Time, dur time.Duration) []time.Time {
	horizon := now.Add(-dur)
	var kept []time.Time
	for _, s := range history {
		ns, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		ts := time.Unix(0, ns)
		if ts.After(horizon) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func key(scope, client, bucket string, dur time.Duration) string {
	scopePart := scope
	if bucket != "" {
		sum := sha1.Sum([]byte(bucket))
		scopePart += ":" + hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("throttle:%s:%s_%d", scopePart, client, int(dur.Seconds()))
}
