package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/metrics"
	"github.com/kirinyoku/venuebook/internal/policy"
	"github.com/kirinyoku/venuebook/internal/repository"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type Config struct {
	// Location defines "today" for the future-date rule.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	store   uow.Runner
	guard   *policy.Guard
	cache   *redisrepo.Cache
	pubsub  *redisrepo.EventsPubSub
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

func New(
	store uow.Runner,
	guard *policy.Guard,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
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
		cfg:     cfg,
	}
}

type CreateInput struct {
	VenueID         int64
	ReservationDate time.Time
	GuestCount      int
	ContactPhone    string
	// Status is domain.BookingUpcoming (the default) or domain.BookingPast for
	// a historical backfill.
	Status domain.BookingStatus
}

// Today returns the current calendar date in the configured location.
func (s *Service) Today() time.Time {
	return domain.DateOf(s.cfg.Now().In(s.cfg.Location))
}

// Create admits a booking. Preconditions are checked in order and the first
// violation is returned.
//
// Parameters:
//   - ctx: request-scoped context.
//   - identity: the verified caller, must hold the user role.
//   - in: the booking request.
//
// Returns:
//   - *domain.Booking: the stored booking.
//   - error: domain.ErrValidation if the input is malformed.
//   - error: domain.ErrNotFound if the venue does not exist.
//   - error: domain.ErrVenueNotApproved if the venue is still pending.
//   - error: domain.ErrInvalidDate if an upcoming booking is not after today.
//   - error: domain.ErrCapacityExceeded if guests exceed the venue capacity.
//   - error: domain.ErrDateConflict if the date already holds an active booking.
func (s *Service) Create(ctx context.Context, identity *domain.Identity, in CreateInput) (b *domain.Booking, err error) {
	const op = "service.booking.Create"

	defer func() { s.metrics.Admission(result(err)) }()

	if err := s.guard.Authorize(ctx, identity, policy.CreateBooking, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validate(&in); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	date := domain.DateOf(in.ReservationDate)
	today := s.Today()

	var created domain.Booking

	err = s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		v, err := tx.Venues().Get(ctx, in.VenueID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("venue %d: %w", in.VenueID, domain.ErrNotFound)
			}
			return err
		}

		if v.ApprovalState != domain.VenueApproved {
			return fmt.Errorf("venue %d: %w", v.ID, domain.ErrVenueNotApproved)
		}

		if in.Status == domain.BookingUpcoming && !date.After(today) {
			return fmt.Errorf("%s is not after %s: %w",
				date.Format(domain.DateLayout), today.Format(domain.DateLayout), domain.ErrInvalidDate)
		}

		if in.GuestCount > v.Capacity {
			return fmt.Errorf("%d guests, capacity %d: %w", in.GuestCount, v.Capacity, domain.ErrCapacityExceeded)
		}

		taken, err := tx.Bookings().SlotTaken(ctx, v.ID, date)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("venue %d on %s: %w", v.ID, date.Format(domain.DateLayout), domain.ErrDateConflict)
		}

		created = domain.Booking{
			VenueID:         v.ID,
			UserID:          identity.SubjectID,
			ReservationDate: date,
			GuestCount:      in.GuestCount,
			ContactPhone:    in.ContactPhone,
			Backfilled:      in.Status == domain.BookingPast,
		}

		// The pre-check can be stale under concurrency; the active-slot
		// index decides.
		if err := tx.Bookings().Create(ctx, &created); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return fmt.Errorf("venue %d on %s: %w", v.ID, date.Format(domain.DateLayout), domain.ErrDateConflict)
			case errors.Is(err, repository.ErrForeignKey):
				return fmt.Errorf("subject %d is not a registered user: %w", identity.SubjectID, domain.ErrValidation)
			}
			return err
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateVenue(ctx, created.VenueID)
			_ = s.pubsub.Publish(ctx, redisrepo.Event{
				Type:      redisrepo.EventBookingCreated,
				VenueID:   created.VenueID,
				BookingID: created.ID,
				Date:      created.ReservationDate.Format(domain.DateLayout),
			})
		})

		return nil
	})
	if err != nil {
		err = storeErr(op, err)
		if domain.Kind(err) == "" || errors.Is(err, domain.ErrServiceUnavailable) {
			s.logger.Error("booking admission failed", "op", op, "venue_id", in.VenueID, "error", err)
		}
		return nil, err
	}

	s.logger.Info("booking admitted",
		"booking_id", created.ID,
		"venue_id", created.VenueID,
		"user_id", created.UserID,
		"date", created.ReservationDate.Format(domain.DateLayout),
		"backfilled", created.Backfilled,
	)

	return &created, nil
}

func validate(in *CreateInput) error {
	var problems []string

	if in.VenueID <= 0 {
		problems = append(problems, "venue_id is required")
	}

	if in.ReservationDate.IsZero() {
		problems = append(problems, "reservation_date is required")
	}

	if in.GuestCount <= 0 {
		problems = append(problems, "guest_count must be positive")
	}

	if !domain.ValidPhone(in.ContactPhone) {
		problems = append(problems, "contact_phone must be +7 followed by 10 digits")
	}

	switch in.Status {
	case "":
		in.Status = domain.BookingUpcoming
	case domain.BookingUpcoming, domain.BookingPast:
	default:
		problems = append(problems, fmt.Sprintf("status %q is not upcoming or past", in.Status))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}

	return nil
}

// List returns the bookings visible to the caller: a user sees their own, an
// owner sees those on venues they own, an admin sees those of venueID, which
// is then required. Cancelled bookings are included.
func (s *Service) List(ctx context.Context, identity *domain.Identity, venueID int64) ([]domain.Booking, error) {
	const op = "service.booking.List"

	if err := s.guard.Authorize(ctx, identity, policy.ListBookings, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if identity.Role == domain.RoleAdmin && venueID <= 0 {
		return nil, fmt.Errorf("%s: %w: venue_id is required", op, domain.ErrValidation)
	}

	var out []domain.Booking

	err := s.store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		switch identity.Role {
		case domain.RoleAdmin:
			if _, err := tx.Venues().Get(ctx, venueID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return fmt.Errorf("venue %d: %w", venueID, domain.ErrNotFound)
				}
				return err
			}
			out, err = tx.Bookings().ListByVenue(ctx, venueID)
		case domain.RoleOwner:
			out, err = tx.Bookings().ListByOwner(ctx, identity.SubjectID)
		default:
			out, err = tx.Bookings().ListByUser(ctx, identity.SubjectID)
		}
		return err
	})
	if err != nil {
		return nil, storeErr(op, err)
	}

	return out, nil
}
