package service

import (
	"log/slog"
	"time"

	"github.com/kirinyoku/venuebook/internal/metrics"
	"github.com/kirinyoku/venuebook/internal/policy"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/service/availability"
	"github.com/kirinyoku/venuebook/internal/service/booking"
	"github.com/kirinyoku/venuebook/internal/service/cancellation"
	"github.com/kirinyoku/venuebook/internal/service/venue"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type Services struct {
	Venues       *venue.Service
	Bookings     *booking.Service
	Availability *availability.Service
	Cancellation *cancellation.Service
}

type Config struct {
	Location        *time.Location
	AvailabilityTTL time.Duration
	Now             func() time.Time
}

func NewServices(
	store uow.Runner,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Services {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	guard := policy.NewGuard(policy.DefaultRules, cfg.Now)

	return &Services{
		Venues: venue.New(store, guard, cache, pubsub, logger, cfg.Now),
		Bookings: booking.New(store, guard, cache, pubsub, m, logger, booking.Config{
			Location: cfg.Location,
			Now:      cfg.Now,
		}),
		Availability: availability.New(store, guard, cache, availability.Config{TTL: cfg.AvailabilityTTL}),
		Cancellation: cancellation.New(store, guard, cache, pubsub, m, logger, cfg.Now),
	}
}
