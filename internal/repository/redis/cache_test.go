package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type payload struct {
	N int `json:"n"`
}

func TestNilCache(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	assert.NoError(t, c.InvalidateVenue(ctx, 1))

	var calls int
	v, err := GetOrSetJSON(ctx, c, "k", time.Second, func(context.Context) (payload, error) {
		calls++
		return payload{N: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v.N)

	_, err = GetOrSetJSON(ctx, c, "k", time.Second, func(context.Context) (payload, error) {
		calls++
		return payload{N: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a nil cache never stores")
}

func TestGetOrSetJSON_UnreachableFallsThrough(t *testing.T) {
	c := New(unreachable(t), 0)

	var calls atomic.Int32
	v, err := GetOrSetJSON(context.Background(), c, KeyVenueAvailability(3), time.Second, func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{N: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v.N)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidateVenueUnreachable(t *testing.T) {
	assert.Error(t, New(unreachable(t), 0).InvalidateVenue(context.Background(), 1))
}

func TestGetOrSetJSON_LoaderError(t *testing.T) {
	boom := errors.New("boom")

	_, err := GetOrSetJSON(context.Background(), New(unreachable(t), 0), "k", time.Second, func(context.Context) (payload, error) {
		return payload{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestNilPubSubAndLimiter(t *testing.T) {
	ctx := context.Background()

	var p *EventsPubSub
	assert.NoError(t, p.Publish(ctx, Event{Type: EventBookingCreated, VenueID: 1}))

	var l *SlidingWindowLimiter
	d, err := l.Allow(ctx, "bookings:1")
	assert.NoError(t, err)
	assert.True(t, d.Allowed)

	disabled := NewSlidingWindowLimiter(unreachable(t), KeyRateLimitPrefix(), 0, time.Minute)
	d, err = disabled.Allow(ctx, "bookings:1")
	assert.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiterUnreachableReportsError(t *testing.T) {
	l := NewSlidingWindowLimiter(unreachable(t), KeyRateLimitPrefix(), 5, time.Minute)

	d, err := l.Allow(context.Background(), "bookings:1")
	assert.Error(t, err)
	assert.False(t, d.Allowed)
}

func TestIdempotencyUnreachable(t *testing.T) {
	s := NewIdempotencyStore(unreachable(t), time.Hour)

	_, err := s.Begin(context.Background(), KeyIdemBooking(1, "k"), "fp", time.Second)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "venuebook:v1:venue:42:availability", KeyVenueAvailability(42))
	assert.Equal(t, "venuebook:v1:idem:bookings:7:abc", KeyIdemBooking(7, "abc"))
	assert.Equal(t, "venuebook:v1:bookings:events", ChannelBookingEvents())

	l := NewSlidingWindowLimiter(nil, KeyRateLimitPrefix(), 1, time.Second)
	assert.Equal(t, "venuebook:v1:rl:bookings:7", l.key("bookings:7"))
}
