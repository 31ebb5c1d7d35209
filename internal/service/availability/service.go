package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/policy"
	"github.com/kirinyoku/venuebook/internal/repository"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type Config struct {
	TTL time.Duration
}

type Service struct {
	store uow.Runner
	guard *policy.Guard
	cache *redisrepo.Cache
	cfg   Config
}

func New(store uow.Runner, guard *policy.Guard, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Second
	}

	return &Service{
		store: store,
		guard: guard,
		cache: cache,
		cfg:   cfg,
	}
}

// Availability returns the dates of a venue that hold an active booking,
// past and future, with the guest count of each.
//
// Parameters:
//   - ctx: request-scoped context.
//   - identity: the verified caller, any role.
//   - venueID: ID of the venue.
//
// Returns:
//   - *domain.Availability: capacity and booked dates keyed by YYYY-MM-DD.
//   - error: domain.ErrNotFound if the venue does not exist.
func (s *Service) Availability(ctx context.Context, identity *domain.Identity, venueID int64) (*domain.Availability, error) {
	const op = "service.availability.Availability"

	if err := s.guard.Authorize(ctx, identity, policy.ViewAvailability, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	av, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyVenueAvailability(venueID),
		s.cfg.TTL,
		func(ctx context.Context) (domain.Availability, error) {
			return s.load(ctx, venueID)
		},
	)
	if err != nil {
		if domain.Kind(err) == "" && errors.Is(err, repository.ErrUnavailable) {
			return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrServiceUnavailable, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &av, nil
}

func (s *Service) load(ctx context.Context, venueID int64) (domain.Availability, error) {
	av := domain.Availability{VenueID: venueID, BookedDates: map[string]int{}}

	err := s.store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		v, err := tx.Venues().Get(ctx, venueID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("venue %d: %w", venueID, domain.ErrNotFound)
			}
			return err
		}
		av.Capacity = v.Capacity

		booked, err := tx.Bookings().BookedDates(ctx, venueID)
		if err != nil {
			return err
		}
		for d, guests := range booked {
			av.BookedDates[d.Format(domain.DateLayout)] = guests
		}
		return nil
	})

	return av, err
}
