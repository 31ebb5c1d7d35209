package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/venuebook/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn inside a transaction. Without opts the transaction is
// SERIALIZABLE and read-write. The transaction is rolled back on every path
// that does not reach Commit, which also returns its connection to the pool.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	const op = "postgres.Store.RunTx"

	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, translateDBErr(err))
	}

	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, translateDBErr(err))
	}

	return nil
}

// Bind returns repositories that run every statement through db.
func (s *Store) Bind(db DB) repository.Tx {
	return &txRepos{
		venues:   s.Venues().With(db),
		bookings: s.Bookings().With(db),
		users:    s.Users().With(db),
	}
}

func (s *Store) Venues() *VenueRepo     { return &VenueRepo{pool: s.pool} }
func (s *Store) Bookings() *BookingRepo { return &BookingRepo{pool: s.pool} }
func (s *Store) Users() *UserRepo       { return &UserRepo{pool: s.pool} }

type txRepos struct {
	venues   *VenueRepo
	bookings *BookingRepo
	users    *UserRepo
}

func (t *txRepos) Venues() repository.VenueRepository     { return t.venues }
func (t *txRepos) Bookings() repository.BookingRepository { return t.bookings }
func (t *txRepos) Users() repository.UserRepository       { return t.users }
