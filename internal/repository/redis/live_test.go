package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func constLoader(n int, calls *int) func(context.Context) (payload, error) {
	return func(context.Context) (payload, error) {
		if calls != nil {
			*calls++
		}
		return payload{N: n}, nil
	}
}

func TestGetOrSetJSON_HitSkipsLoader(t *testing.T) {
	mr, rdb := liveRedis(t)
	c := New(rdb, 0)
	ctx := context.Background()
	key := KeyVenueAvailability(1)

	var calls int
	v, err := GetOrSetJSON(ctx, c, key, time.Minute, constLoader(1, &calls))
	require.NoError(t, err)
	assert.Equal(t, 1, v.N)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	v, err = GetOrSetJSON(ctx, c, key, time.Minute, constLoader(2, &calls))
	require.NoError(t, err)
	assert.Equal(t, 1, v.N)
	assert.Equal(t, 1, calls)
}

func TestInvalidateVenue_DropsEntry(t *testing.T) {
	mr, rdb := liveRedis(t)
	c := New(rdb, 0)
	ctx := context.Background()
	key := KeyVenueAvailability(2)

	_, err := GetOrSetJSON(ctx, c, key, time.Minute, constLoader(1, nil))
	require.NoError(t, err)

	require.NoError(t, c.InvalidateVenue(ctx, 2))
	assert.False(t, mr.Exists(key))

	v, err := GetOrSetJSON(ctx, c, key, time.Minute, constLoader(2, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, v.N)
	assert.True(t, mr.Exists(key), "a load after invalidation is stored")
}

func TestInvalidateVenue_RacingLoadCannotWriteBack(t *testing.T) {
	mr, rdb := liveRedis(t)
	c := New(rdb, 0)
	ctx := context.Background()
	key := KeyVenueAvailability(9)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan payload, 1)

	go func() {
		v, _ := GetOrSetJSON(ctx, c, key, time.Minute, func(context.Context) (payload, error) {
			close(started)
			<-release
			return payload{N: 0}, nil
		})
		done <- v
	}()

	<-started
	require.NoError(t, c.InvalidateVenue(ctx, 9))
	close(release)

	assert.Equal(t, 0, (<-done).N)
	assert.False(t, mr.Exists(key), "the racing load must not store its snapshot")

	v, err := GetOrSetJSON(ctx, c, key, time.Minute, constLoader(1, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, v.N)
}

func TestGetOrSetJSON_SharedLoadOutlivesFirstCaller(t *testing.T) {
	mr, rdb := liveRedis(t)
	c := New(rdb, time.Second)
	key := KeyVenueAvailability(4)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	firstErr := make(chan error, 1)

	go func() {
		_, err := GetOrSetJSON(firstCtx, c, key, time.Minute, func(ctx context.Context) (payload, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return payload{}, err
			}
			return payload{N: 5}, nil
		})
		firstErr <- err
	}()

	<-started
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	assert.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 5*time.Millisecond)

	v, err := GetOrSetJSON(context.Background(), c, key, time.Minute, constLoader(99, nil))
	require.NoError(t, err)
	assert.Equal(t, 5, v.N)
}

func TestIdempotencyStore_Claims(t *testing.T) {
	mr, rdb := liveRedis(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := KeyIdemBooking(7, "abc")

	claim, err := s.Begin(ctx, key, "fp-1", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim.State)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	claim, err = s.Begin(ctx, key, "fp-1", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, claim.State)

	claim, err = s.Begin(ctx, key, "fp-2", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ClaimMismatch, claim.State)

	require.NoError(t, s.Complete(ctx, key, "fp-1", []byte(`{"id":1}`)))
	assert.Equal(t, time.Hour, mr.TTL(key))

	claim, err = s.Begin(ctx, key, "fp-1", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ClaimReplay, claim.State)
	assert.JSONEq(t, `{"id":1}`, string(claim.Body))

	claim, err = s.Begin(ctx, key, "fp-2", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ClaimMismatch, claim.State)

	require.NoError(t, s.Abort(ctx, key))
	claim, err = s.Begin(ctx, key, "fp-2", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, claim.State)
}

func TestSlidingWindowLimiter_RejectedHitsAreNotRecorded(t *testing.T) {
	mr, rdb := liveRedis(t)
	l := NewSlidingWindowLimiter(rdb, KeyRateLimitPrefix(), 2, time.Minute)
	ctx := context.Background()

	t0 := time.UnixMilli(1_700_000_000_000)
	clock := t0
	l.now = func() time.Time { return clock }

	d, err := l.Allow(ctx, "bookings:1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 1}, d)

	clock = t0.Add(30 * time.Second)
	d, err = l.Allow(ctx, "bookings:1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 0}, d)

	clock = t0.Add(40 * time.Second)
	d, err = l.Allow(ctx, "bookings:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 20*time.Second, d.RetryAfter)

	members, err := mr.ZMembers(l.key("bookings:1"))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	d, err = l.Allow(ctx, "bookings:2")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "subjects are limited independently")

	clock = t0.Add(61 * time.Second)
	d, err = l.Allow(ctx, "bookings:1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 0}, d)
}
