package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/repository"
)

// The lookups below read through the unit of work the caller is already in,
// so ownership is decided on the same snapshot the mutation commits against.

// VenueOwner resolves a venue to its assigned owner. An unassigned venue
// resolves to 0, which never matches a subject.
func VenueOwner(tx repository.Tx) OwnerLookup {
	return func(ctx context.Context, venueID int64) (int64, error) {
		v, err := tx.Venues().Get(ctx, venueID)
		if err != nil {
			return 0, lookupErr("policy.VenueOwner", err)
		}
		if v.OwnerID == nil {
			return 0, nil
		}
		return *v.OwnerID, nil
	}
}

// BookingHolder resolves a booking to the user who made it.
func BookingHolder(tx repository.Tx) OwnerLookup {
	return func(ctx context.Context, bookingID int64) (int64, error) {
		b, err := tx.Bookings().Get(ctx, bookingID)
		if err != nil {
			return 0, lookupErr("policy.BookingHolder", err)
		}
		return b.UserID, nil
	}
}

// BookingVenueOwner resolves a booking to the owner of the booked venue.
func BookingVenueOwner(tx repository.Tx) OwnerLookup {
	return func(ctx context.Context, bookingID int64) (int64, error) {
		const op = "policy.BookingVenueOwner"

		b, err := tx.Bookings().Get(ctx, bookingID)
		if err != nil {
			return 0, lookupErr(op, err)
		}

		v, err := tx.Venues().Get(ctx, b.VenueID)
		if err != nil {
			return 0, lookupErr(op, err)
		}
		if v.OwnerID == nil {
			return 0, nil
		}
		return *v.OwnerID, nil
	}
}

func lookupErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, repository.ErrUnavailable):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
