package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/policy"
	"github.com/kirinyoku/venuebook/internal/repository"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type Service struct {
	store  uow.Runner
	guard  *policy.Guard
	cache  *redisrepo.Cache
	pubsub *redisrepo.EventsPubSub
	logger *slog.Logger
	now    func() time.Time
}

func New(
	store uow.Runner,
	guard *policy.Guard,
	cache *redisrepo.Cache,
	pubsub *redisrepo.EventsPubSub,
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
		store:  store,
		guard:  guard,
		cache:  cache,
		pubsub: pubsub,
		logger: logger,
		now:    now,
	}
}

// Input carries the editable attributes of a venue.
type Input struct {
	Name         string
	Address      string
	Capacity     int
	PricePerSeat int64
	DistrictID   int64
	ContactPhone string
	// OwnerID is honoured for admins only. An owner always creates for
	// themself.
	OwnerID *int64
}

func (in *Input) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)

	var problems []string

	if in.Name == "" {
		problems = append(problems, "name is required")
	}

	if in.Address == "" {
		problems = append(problems, "address is required")
	}

	if in.Capacity <= 0 {
		problems = append(problems, "capacity must be positive")
	}

	if in.PricePerSeat < 0 {
		problems = append(problems, "price_per_seat must not be negative")
	}

	if in.DistrictID <= 0 {
		problems = append(problems, "district_id is required")
	}

	if !domain.ValidPhone(in.ContactPhone) {
		problems = append(problems, "contact_phone must be +7 followed by 10 digits")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}

	return nil
}

// Create lists a new venue in the pending state.
//
// Parameters:
//   - ctx: request-scoped context.
//   - identity: the verified caller, owner or admin.
//   - in: venue attributes.
//
// Returns:
//   - *domain.Venue: the stored venue.
//   - error: domain.ErrValidation if a field is missing or malformed, the
//     district is unknown or the requested owner is not an owner.
//   - error: domain.ErrConflict if the owner already has a venue of that name.
func (s *Service) Create(ctx context.Context, identity *domain.Identity, in Input) (*domain.Venue, error) {
	const op = "service.venue.Create"

	if err := s.guard.Authorize(ctx, identity, policy.CreateVenue, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ownerID := in.OwnerID
	if identity.Role == domain.RoleOwner {
		if ownerID != nil && *ownerID != identity.SubjectID {
			return nil, fmt.Errorf("%s: %w: an owner cannot create venues for another owner", op, domain.ErrValidation)
		}
		self := identity.SubjectID
		ownerID = &self
	}

	v := domain.Venue{
		OwnerID:       ownerID,
		Name:          in.Name,
		Address:       in.Address,
		ApprovalState: domain.VenuePending,
		Capacity:      in.Capacity,
		PricePerSeat:  in.PricePerSeat,
		DistrictID:    in.DistrictID,
		ContactPhone:  in.ContactPhone,
	}

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		if v.OwnerID != nil {
			if err := requireOwner(ctx, tx, *v.OwnerID); err != nil {
				return err
			}
		}

		return tx.Venues().Create(ctx, &v)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, repoErr(err))
	}

	s.logger.Info("venue created", "venue_id", v.ID, "owner_id", v.OwnerID, "by", identity.SubjectID)

	return &v, nil
}

// requireOwner checks that userID exists and holds the owner role.
func requireOwner(ctx context.Context, tx repository.Tx, userID int64) error {
	u, err := tx.Users().Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("user %d does not exist: %w", userID, domain.ErrValidation)
		}
		return err
	}

	if u.Role != domain.RoleOwner {
		return fmt.Errorf("user %d has role %s, not owner: %w", userID, u.Role, domain.ErrValidation)
	}

	return nil
}

// Approve moves a pending venue to approved. Concurrent approvals of the same
// venue produce one success, the rest see domain.ErrAlreadyApproved.
//
// Returns:
//   - *domain.Venue: the approved venue.
//   - error: domain.ErrNotFound if the venue does not exist.
//   - error: domain.ErrAlreadyApproved if it is already approved.
func (s *Service) Approve(ctx context.Context, identity *domain.Identity, venueID int64) (*domain.Venue, error) {
	const op = "service.venue.Approve"

	if err := s.guard.Authorize(ctx, identity, policy.ApproveVenue, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var approved *domain.Venue

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		v, err := tx.Venues().Approve(ctx, venueID, s.now())
		if errors.Is(err, repository.ErrNotFound) {
			_, getErr := tx.Venues().Get(ctx, venueID)
			switch {
			case getErr == nil:
				return fmt.Errorf("venue %d: %w", venueID, domain.ErrAlreadyApproved)
			case !errors.Is(getErr, repository.ErrNotFound):
				return getErr
			}
		}
		if err != nil {
			return err
		}

		approved = v

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateVenue(ctx, v.ID)
			_ = s.pubsub.Publish(ctx, redisrepo.Event{Type: redisrepo.EventVenueApproved, VenueID: v.ID})
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, repoErr(err))
	}

	s.logger.Info("venue approved", "venue_id", approved.ID, "by", identity.SubjectID)

	return approved, nil
}

// AssignOwner sets the owner of a venue. Replacing an existing owner is
// allowed and logged with the previous owner.
//
// Returns:
//   - *domain.Venue: the updated venue.
//   - error: domain.ErrNotFound if the venue does not exist.
//   - error: domain.ErrValidation if the target is missing or not an owner.
//   - error: domain.ErrConflict if the target already owns a venue of that name.
func (s *Service) AssignOwner(ctx context.Context, identity *domain.Identity, venueID, ownerID int64) (*domain.Venue, error) {
	const op = "service.venue.AssignOwner"

	if err := s.guard.Authorize(ctx, identity, policy.AssignVenueOwner, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		updated  *domain.Venue
		previous *int64
	)

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		cur, err := tx.Venues().Get(ctx, venueID)
		if err != nil {
			return err
		}
		previous = cur.OwnerID

		if err := requireOwner(ctx, tx, ownerID); err != nil {
			return err
		}

		updated, err = tx.Venues().SetOwner(ctx, venueID, ownerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, repoErr(err))
	}

	if previous != nil && *previous != ownerID {
		s.logger.Warn("venue owner reassigned",
			"venue_id", venueID,
			"previous_owner_id", *previous,
			"owner_id", ownerID,
			"by", identity.SubjectID,
		)
	} else {
		s.logger.Info("venue owner assigned", "venue_id", venueID, "owner_id", ownerID, "by", identity.SubjectID)
	}

	return updated, nil
}

func (s *Service) Get(ctx context.Context, identity *domain.Identity, venueID int64) (*domain.Venue, error) {
	const op = "service.venue.Get"

	if err := s.guard.Authorize(ctx, identity, policy.ReadVenue, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var v *domain.Venue
	err := s.store.Read(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		v, err = tx.Venues().Get(ctx, venueID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, repoErr(err))
	}

	return v, nil
}

// Update replaces the editable attributes of a venue. Owners may update only
// their own venues. Ownership and approval state are not changed here.
func (s *Service) Update(ctx context.Context, identity *domain.Identity, venueID int64, in Input) (*domain.Venue, error) {
	const op = "service.venue.Update"

	if err := s.guard.CheckRole(identity, policy.UpdateVenue); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var updated *domain.Venue

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := s.guard.Authorize(ctx, identity, policy.UpdateVenue, ownedVenue(tx, venueID)); err != nil {
			return err
		}

		v := domain.Venue{
			ID:           venueID,
			Name:         in.Name,
			Address:      in.Address,
			Capacity:     in.Capacity,
			PricePerSeat: in.PricePerSeat,
			DistrictID:   in.DistrictID,
			ContactPhone: in.ContactPhone,
		}
		if err := tx.Venues().Update(ctx, &v); err != nil {
			return err
		}

		var err error
		if updated, err = tx.Venues().Get(ctx, venueID); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateVenue(ctx, venueID)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, repoErr(err))
	}

	s.logger.Info("venue updated", "venue_id", venueID, "by", identity.SubjectID)

	return updated, nil
}

// Delete removes a venue that has never been booked.
//
// Returns:
//   - error: domain.ErrNotFound if the venue does not exist.
//   - error: domain.ErrConflict if bookings reference the venue.
func (s *Service) Delete(ctx context.Context, identity *domain.Identity, venueID int64) error {
	const op = "service.venue.Delete"

	if err := s.guard.CheckRole(identity, policy.DeleteVenue); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.store.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := s.guard.Authorize(ctx, identity, policy.DeleteVenue, ownedVenue(tx, venueID)); err != nil {
			return err
		}

		if err := tx.Venues().Delete(ctx, venueID); err != nil {
			if errors.Is(err, repository.ErrForeignKey) {
				return fmt.Errorf("venue %d has bookings: %w", venueID, domain.ErrConflict)
			}
			return err
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateVenue(ctx, venueID)
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, repoErr(err))
	}

	s.logger.Info("venue deleted", "venue_id", venueID, "by", identity.SubjectID)

	return nil
}

func ownedVenue(tx repository.Tx, venueID int64) *policy.Resource {
	return &policy.Resource{
		ID:     venueID,
		Owners: map[domain.Role]policy.OwnerLookup{domain.RoleOwner: policy.VenueOwner(tx)},
	}
}
