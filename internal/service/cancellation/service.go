package cancellation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/metrics"
	"github.com/kirinyoku/venuebook/internal/policy"
	"github.com/kirinyoku/venuebook/internal/repository"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type Service struct {
	store   uow.Runner
	guard   *policy.Guard
	cache   *redisrepo.Cache
	pubsub  *redisrepo.EventsPubSub
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(
	store uow.Runner,
	guard *policy.Guard,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	m *metrics.Metrics,
	logger *slog.Logger,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		guard:   guard,
		cache:   cache,
		pubsub:  pubsub,
		metrics: m,
		logger:  logger,
		now:     now,
	}
}

// Cancel cancels an active booking on behalf of identity. An admin may cancel
// any booking, an owner those on venues they own and a user their own.
//
// Parameters:
//   - ctx: request-scoped context.
//   - identity: the verified caller.
//   - bookingID: ID of the booking to cancel.
//
// Returns:
//   - error: domain.ErrUnauthenticated if identity is missing or expired.
//   - error: domain.ErrNotFound if no active booking has that ID, whatever the role.
//   - error: domain.ErrPermissionDenied if the caller may not cancel it.
func (s *Service) Cancel(ctx context.Context, identity *domain.Identity, bookingID int64) (err error) {
	const op = "service.cancellation.Cancel"

	defer func() { s.metrics.Cancellation(result(err)) }()

	if err := s.guard.Authenticate(identity); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var cancelled domain.Booking

	err = s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		b, err := tx.Bookings().Get(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("booking %d: %w", bookingID, domain.ErrNotFound)
			}
			return err
		}

		if err := s.guard.Authorize(ctx, identity, policy.CancelBooking, &policy.Resource{
			ID: b.ID,
			Owners: map[domain.Role]policy.OwnerLookup{
				domain.RoleUser:  policy.BookingHolder(tx),
				domain.RoleOwner: policy.BookingVenueOwner(tx),
			},
		}); err != nil {
			return err
		}

		if err := tx.Bookings().Cancel(ctx, b.ID, identity.SubjectID, s.now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("booking %d: %w", bookingID, domain.ErrNotFound)
			}
			return err
		}

		cancelled = *b

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateVenue(ctx, cancelled.VenueID)
			_ = s.pubsub.Publish(ctx, redisrepo.Event{
				Type:      redisrepo.EventBookingCancelled,
				VenueID:   cancelled.VenueID,
				BookingID: cancelled.ID,
				Date:      cancelled.ReservationDate.Format(domain.DateLayout),
			})
		})

		return nil
	})
	if err != nil {
		err = storeErr(op, err)
		if domain.Kind(err) == "" || errors.Is(err, domain.ErrServiceUnavailable) {
			s.logger.Error("booking cancellation failed", "op", op, "booking_id", bookingID, "error", err)
		}
		return err
	}

	s.logger.Info("booking cancelled",
		"booking_id", cancelled.ID,
		"venue_id", cancelled.VenueID,
		"by", identity.SubjectID,
		"role", identity.Role,
	)

	return nil
}
