package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
)

type VenueRepository interface {
	// Create inserts v and fills its ID and CreatedAt.
	// Returns ErrConflict on a duplicate (owner, name) and ErrForeignKey on an
	// unknown district.
	Create(ctx context.Context, v *domain.Venue) error
	Get(ctx context.Context, id int64) (*domain.Venue, error)
	// Approve moves a pending venue to approved. It returns ErrNotFound when no
	// pending venue with that id exists.
	Approve(ctx context.Context, id int64, at time.Time) (*domain.Venue, error)
	SetOwner(ctx context.Context, id, ownerID int64) (*domain.Venue, error)
	Update(ctx context.Context, v *domain.Venue) error
	// Delete returns ErrForeignKey while bookings still reference the venue.
	Delete(ctx context.Context, id int64) error
}

type BookingRepository interface {
	// Create inserts b. Returns ErrConflict when the slot already holds an
	// active booking.
	Create(ctx context.Context, b *domain.Booking) error
	// Get returns an active booking.
	Get(ctx context.Context, id int64) (*domain.Booking, error)
	SlotTaken(ctx context.Context, venueID int64, date time.Time) (bool, error)
	// Cancel marks an active booking cancelled. ErrNotFound when the booking is
	// absent or already cancelled.
	Cancel(ctx context.Context, id, by int64, at time.Time) error
	// BookedDates returns the guest count of every active booking of a venue keyed by date.
	BookedDates(ctx context.Context, venueID int64) (map[time.Time]int, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Booking, error)
	ListByVenue(ctx context.Context, venueID int64) ([]domain.Booking, error)
}

type UserRepository interface {
	Get(ctx context.Context, id int64) (*domain.User, error)
}

// Tx exposes repositories bound to one unit of work.
type Tx interface {
	Venues() VenueRepository
	Bookings() BookingRepository
	Users() UserRepository
}
