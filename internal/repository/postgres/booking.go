package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/repository"
)

const bookingColumns = `b.id, b.venue_id, b.user_id, b.reservation_date, b.guest_count,
	b.contact_phone, b.backfilled, b.created_at, b.cancelled_at, b.cancelled_by`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a booking. The partial unique index bookings_active_slot_key
// is the authoritative guard against two active bookings for one slot.
//
// Returns:
//   - error: repository.ErrConflict if the slot already holds an active booking.
//   - error: repository.ErrForeignKey if the venue or user does not exist.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.Create"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO bookings(venue_id, user_id, reservation_date, guest_count,
		                      contact_phone, backfilled)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		b.VenueID, b.UserID, b.ReservationDate, b.GuestCount, b.ContactPhone, b.Backfilled,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves an active booking by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist or was cancelled.
func (r *BookingRepo) Get(ctx context.Context, id int64) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	b, err := scanBooking(r.handle().QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.id = $1 AND b.cancelled_at IS NULL`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return b, nil
}

func (r *BookingRepo) SlotTaken(ctx context.Context, venueID int64, date time.Time) (bool, error) {
	const op = "postgres.BookingRepo.SlotTaken"

	var taken bool
	err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM bookings
		     WHERE venue_id = $1 AND reservation_date = $2 AND cancelled_at IS NULL
		 )`,
		venueID, date,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return taken, nil
}

// Cancel marks an active booking as cancelled by the given user.
//
// Returns:
//   - error: repository.ErrNotFound if there is no active booking with this ID.
func (r *BookingRepo) Cancel(ctx context.Context, id, by int64, at time.Time) error {
	const op = "postgres.BookingRepo.Cancel"

	tag, err := r.handle().Exec(ctx,
		`UPDATE bookings
		 SET cancelled_at = $3, cancelled_by = $2
		 WHERE id = $1 AND cancelled_at IS NULL`,
		id, by, at,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) BookedDates(ctx context.Context, venueID int64) (map[time.Time]int, error) {
	const op = "postgres.BookingRepo.BookedDates"

	rows, err := r.handle().Query(ctx,
		`SELECT reservation_date, guest_count
		 FROM bookings
		 WHERE venue_id = $1 AND cancelled_at IS NULL
		 ORDER BY reservation_date`,
		venueID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	out := make(map[time.Time]int)
	for rows.Next() {
		var date time.Time
		var guests int
		if err := rows.Scan(&date, &guests); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out[domain.DateOf(date)] = guests
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *BookingRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	return r.list(ctx, "postgres.BookingRepo.ListByUser",
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.user_id = $1
		 ORDER BY b.reservation_date, b.id`,
		userID,
	)
}

func (r *BookingRepo) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Booking, error) {
	return r.list(ctx, "postgres.BookingRepo.ListByOwner",
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 JOIN venues v ON v.id = b.venue_id
		 WHERE v.owner_id = $1
		 ORDER BY b.reservation_date, b.id`,
		ownerID,
	)
}

func (r *BookingRepo) ListByVenue(ctx context.Context, venueID int64) ([]domain.Booking, error) {
	return r.list(ctx, "postgres.BookingRepo.ListByVenue",
		`SELECT `+bookingColumns+`
		 FROM bookings b
		 WHERE b.venue_id = $1
		 ORDER BY b.reservation_date, b.id`,
		venueID,
	)
}

func (r *BookingRepo) list(ctx context.Context, op, sql string, arg int64) ([]domain.Booking, error) {
	rows, err := r.handle().Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	defer rows.Close()

	out := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking

	if err := row.Scan(
		&b.ID,
		&b.VenueID,
		&b.UserID,
		&b.ReservationDate,
		&b.GuestCount,
		&b.ContactPhone,
		&b.Backfilled,
		&b.CreatedAt,
		&b.CancelledAt,
		&b.CancelledBy,
	); err != nil {
		return nil, err
	}

	b.ReservationDate = domain.DateOf(b.ReservationDate)
	return &b, nil
}
