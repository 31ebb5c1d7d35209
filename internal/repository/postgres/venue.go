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

const venueColumns = `id, owner_id, name, address, approval_state, capacity,
	price_per_seat, district_id, contact_phone, created_at, approved_at`

type VenueRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *VenueRepo) With(db DB) *VenueRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *VenueRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a venue.
//
// Returns:
//   - error: repository.ErrConflict if the owner already has a venue with the same name.
//   - error: repository.ErrForeignKey if the district or owner does not exist.
func (r *VenueRepo) Create(ctx context.Context, v *domain.Venue) error {
	const op = "postgres.VenueRepo.Create"

	err := r.handle().QueryRow(ctx,
		`INSERT INTO venues(owner_id, name, address, approval_state, capacity,
		                    price_per_seat, district_id, contact_phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		v.OwnerID, v.Name, v.Address, string(v.ApprovalState), v.Capacity,
		v.PricePerSeat, v.DistrictID, v.ContactPhone,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}

// Get retrieves a venue by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the venue does not exist.
func (r *VenueRepo) Get(ctx context.Context, id int64) (*domain.Venue, error) {
	const op = "postgres.VenueRepo.Get"

	v, err := scanVenue(r.handle().QueryRow(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return v, nil
}

// Approve transitions a pending venue to approved in a single conditional
// update, so two concurrent approvals cannot both succeed.
//
// Returns:
//   - error: repository.ErrNotFound if no pending venue with this ID exists.
func (r *VenueRepo) Approve(ctx context.Context, id int64, at time.Time) (*domain.Venue, error) {
	const op = "postgres.VenueRepo.Approve"

	v, err := scanVenue(r.handle().QueryRow(ctx,
		`UPDATE venues
		 SET approval_state = 'approved', approved_at = $2
		 WHERE id = $1 AND approval_state = 'pending'
		 RETURNING `+venueColumns,
		id, at,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return v, nil
}

func (r *VenueRepo) SetOwner(ctx context.Context, id, ownerID int64) (*domain.Venue, error) {
	const op = "postgres.VenueRepo.SetOwner"

	v, err := scanVenue(r.handle().QueryRow(ctx,
		`UPDATE venues SET owner_id = $2 WHERE id = $1 RETURNING `+venueColumns,
		id, ownerID,
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return v, nil
}

func (r *VenueRepo) Update(ctx context.Context, v *domain.Venue) error {
	const op = "postgres.VenueRepo.Update"

	tag, err := r.handle().Exec(ctx,
		`UPDATE venues
		 SET name = $2, address = $3, capacity = $4, price_per_seat = $5,
		     district_id = $6, contact_phone = $7
		 WHERE id = $1`,
		v.ID, v.Name, v.Address, v.Capacity, v.PricePerSeat, v.DistrictID, v.ContactPhone,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *VenueRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgres.VenueRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM venues WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func scanVenue(row pgx.Row) (*domain.Venue, error) {
	var v domain.Venue
	var state string

	if err := row.Scan(
		&v.ID,
		&v.OwnerID,
		&v.Name,
		&v.Address,
		&state,
		&v.Capacity,
		&v.PricePerSeat,
		&v.DistrictID,
		&v.ContactPhone,
		&v.CreatedAt,
		&v.ApprovedAt,
	); err != nil {
		return nil, err
	}

	v.ApprovalState = domain.ApprovalState(state)
	return &v, nil
}
