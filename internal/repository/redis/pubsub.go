package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingCancelled = "booking_cancelled"
	EventVenueApproved    = "venue_approved"
)

// Event is the message published after a booking or venue change commits.
type Event struct {
	Type      string `json:"type"`
	VenueID   int64  `json:"venue_id"`
	BookingID int64  `json:"booking_id,omitempty"`
	Date      string `json:"date,omitempty"`
	TsUnix    int64  `json:"ts_unix"`
}

type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelBookingEvents(),
	}
}

// Publish sends ev on the events channel. A nil publisher drops it.
func (p *EventsPubSub) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}

	if ev.TsUnix == 0 {
		ev.TsUnix = time.Now().Unix()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe delivers events to handler until ctx is done.
func (p *EventsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, ev Event)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil && ev.VenueID != 0 {
				handler(ctx, ev)
			}
		}
	}
}
