package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/venuebook/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *UserRepo) With(db DB) *UserRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *UserRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *UserRepo) Get(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgres.UserRepo.Get"

	var u domain.User
	var role string

	err := r.handle().QueryRow(ctx,
		`SELECT id, role, name FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &role, &u.Name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	u.Role = domain.Role(role)
	return &u, nil
}
