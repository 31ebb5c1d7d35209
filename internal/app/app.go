package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/venuebook/internal/auth/jwt"
	"github.com/kirinyoku/venuebook/internal/config"
	"github.com/kirinyoku/venuebook/internal/metrics"
	"github.com/kirinyoku/venuebook/internal/postgres"
	"github.com/kirinyoku/venuebook/internal/redis"
	"github.com/kirinyoku/venuebook/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/venuebook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/service"
	httpgin "github.com/kirinyoku/venuebook/internal/transport/http/gin"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	pubsub     *redisrepo.EventsPubSub
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		cache   *redisrepo.Cache
		idem    *redisrepo.IdempotencyStore
		limiter *redisrepo.SlidingWindowLimiter
	)

	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.New(rdb, cfg.Storage.Timeout)
		a.pubsub = redisrepo.NewEventsPubSub(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Booking.IdempotencyTTL)
		limiter = newLimiter(rdb, cfg.Booking)
	} else {
		logger.Warn("REDIS_ADDR is empty: caching, idempotency, rate limiting and events are disabled")
	}

	m := metrics.New()

	services := service.NewServices(store, cache, a.pubsub, m, logger, service.Config{
		Location:        cfg.Booking.Location,
		AvailabilityTTL: cfg.Booking.AvailabilityTTL,
	})

	verifier := jwt.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	router := httpgin.NewRouter(services, verifier, idem, limiter, m, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func newLimiter(rdb *goredis.Client, cfg config.BookingConfig) *redisrepo.SlidingWindowLimiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimitPrefix(), cfg.RateLimit, cfg.RateWindow)
}

func (a *App) openStore(ctx context.Context) (uow.Runner, error) {
	if a.cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn("using the in-memory store: data is lost on restart")
		return memory.NewWithTimeout(a.cfg.Storage.Timeout), nil
	}

	dsn := a.cfg.Postgres.DSN()

	if a.cfg.Storage.MigrateOnStart {
		if err := postgres.Migrate(ctx, dsn); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}

	pool, err := postgres.New(ctx, postgres.Config{DSN: dsn, MaxConns: a.cfg.Postgres.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	return uow.NewUoW(postgresrepo.NewStore(pool), uow.Config{
		Timeout:    a.cfg.Storage.Timeout,
		MaxRetries: a.cfg.Storage.MaxRetries,
	}), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.pubsub != nil {
		g.Go(func() error {
			err := a.pubsub.Subscribe(gCtx, func(_ context.Context, ev redisrepo.Event) {
				a.logger.Info("event", "type", ev.Type, "venue_id", ev.VenueID, "booking_id", ev.BookingID, "date", ev.Date)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("event subscriber stopped", "error", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases the storage and redis connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
