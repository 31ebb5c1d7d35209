package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/venuebook/internal/repository"
	postgres "github.com/kirinyoku/venuebook/internal/repository/postgres"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// TxFunc is the body of a read-write unit of work.
type TxFunc func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error

// ReadFunc is the body of a read-only unit of work.
type ReadFunc func(ctx context.Context, tx repository.Tx) error

// Runner executes units of work against a store.
type Runner interface {
	Do(ctx context.Context, fn TxFunc) error
	Read(ctx context.Context, fn ReadFunc) error
}

type Config struct {
	// Timeout bounds every unit of work, including retries.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a serialization failure.
	MaxRetries int
}

// UoW represents a unit of work backed by Postgres.
type UoW struct {
	store *postgres.Store
	cfg   Config
}

func NewUoW(store *postgres.Store, cfg Config) *UoW {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &UoW{store: store, cfg: cfg}
}

// Do runs fn inside a SERIALIZABLE transaction, retrying on serialization
// failures. After a successful commit, it executes all after-commit hooks.
func (u *UoW) Do(ctx context.Context, fn TxFunc) error {
	const op = "uow.Do"

	tctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		var hooks []AfterCommit

		err := u.store.RunTx(tctx, nil, func(ctx context.Context, tx postgres.DB) error {
			return fn(ctx, u.store.Bind(tx), func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil {
			for _, h := range hooks {
				h(ctx)
			}
			return nil
		}

		if postgres.IsRetryable(err) && attempt < u.cfg.MaxRetries && tctx.Err() == nil {
			continue
		}

		return fmt.Errorf("%s: %w", op, bounded(tctx, err))
	}
}

// Read runs fn inside a read-only READ COMMITTED transaction.
func (u *UoW) Read(ctx context.Context, fn ReadFunc) error {
	const op = "uow.Read"

	tctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	err := u.store.RunTx(tctx, &pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadOnly,
	}, func(ctx context.Context, tx postgres.DB) error {
		return fn(ctx, u.store.Bind(tx))
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, bounded(tctx, err))
	}

	return nil
}

// bounded marks err as a storage outage when the unit of work ran out of time,
// whatever error the driver happened to surface.
func bounded(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	return err
}
