package cancellation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/metrics"
	"github.com/kirinyoku/venuebook/internal/policy"
	"github.com/kirinyoku/venuebook/internal/repository"
	"github.com/kirinyoku/venuebook/internal/repository/memory"
	"github.com/kirinyoku/venuebook/internal/uow"
)

var now = time.Date(2030, 6, 15, 10, 0, 0, 0, time.UTC)

type world struct {
	store   *memory.Store
	svc     *Service
	metrics *metrics.Metrics

	admin, ownerA, ownerB, holder, other int64
	venueA, venueB                       int64
	days                                 int
}

func newWorld(t *testing.T) *world {
	t.Helper()

	w := &world{store: memory.New(), metrics: metrics.New()}
	w.admin = w.store.AddUser(domain.RoleAdmin, "root")
	w.ownerA = w.store.AddUser(domain.RoleOwner, "olga")
	w.ownerB = w.store.AddUser(domain.RoleOwner, "oleg")
	w.holder = w.store.AddUser(domain.RoleUser, "ulan")
	w.other = w.store.AddUser(domain.RoleUser, "vera")
	district := w.store.AddDistrict("Medeu")

	err := w.store.Do(context.Background(), func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		for _, v := range []struct {
			id    *int64
			owner int64
			name  string
		}{{&w.venueA, w.ownerA, "A"}, {&w.venueB, w.ownerB, "B"}} {
			owner := v.owner
			venue := domain.Venue{
				OwnerID: &owner, Name: v.name, Address: "x", ApprovalState: domain.VenuePending,
				Capacity: 100, DistrictID: district, ContactPhone: "+77010000000",
			}
			if err := tx.Venues().Create(ctx, &venue); err != nil {
				return err
			}
			if _, err := tx.Venues().Approve(ctx, venue.ID, now); err != nil {
				return err
			}
			*v.id = venue.ID
		}
		return nil
	})
	require.NoError(t, err)

	clock := func() time.Time { return now }
	w.svc = New(w.store, policy.NewGuard(nil, clock), nil, nil, w.metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)), clock)

	return w
}

func (w *world) book(t *testing.T, venueID, userID int64) int64 {
	t.Helper()

	w.days++
	b := domain.Booking{
		VenueID:         venueID,
		UserID:          userID,
		ReservationDate: time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, w.days),
		GuestCount:      10,
		ContactPhone:    "+77010000000",
	}

	err := w.store.Do(context.Background(), func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		return tx.Bookings().Create(ctx, &b)
	})
	require.NoError(t, err)

	return b.ID
}

func ident(id int64, role domain.Role) *domain.Identity {
	return &domain.Identity{SubjectID: id, Role: role, ExpiresAt: now.Add(time.Hour)}
}

func TestCancel_DecisionTable(t *testing.T) {
	w := newWorld(t)

	tests := []struct {
		name   string
		caller *domain.Identity
		allow  bool
	}{
		{"admin", ident(w.admin, domain.RoleAdmin), true},
		{"owner of the booked venue", ident(w.ownerA, domain.RoleOwner), true},
		{"owner of another venue", ident(w.ownerB, domain.RoleOwner), false},
		{"holder", ident(w.holder, domain.RoleUser), true},
		{"another user", ident(w.other, domain.RoleUser), false},
		{"holder id claiming owner role", ident(w.holder, domain.RoleOwner), false},
		{"venue owner id claiming user role", ident(w.ownerA, domain.RoleUser), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := w.book(t, w.venueA, w.holder)

			err := w.svc.Cancel(context.Background(), tt.caller, id)
			if tt.allow {
				require.NoError(t, err)
				assert.Zero(t, w.countActive(t, id))
			} else {
				assert.ErrorIs(t, err, domain.ErrPermissionDenied)
				assert.Equal(t, 1, w.countActive(t, id))
			}
		})
	}
}

func (w *world) countActive(t *testing.T, bookingID int64) int {
	t.Helper()

	n := 0
	err := w.store.Read(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.Bookings().Get(ctx, bookingID); err == nil {
			n = 1
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestCancel_OwnerScenario(t *testing.T) {
	w := newWorld(t)

	onA := w.book(t, w.venueA, w.holder)
	onB := w.book(t, w.venueB, w.holder)
	owner := ident(w.ownerA, domain.RoleOwner)

	require.NoError(t, w.svc.Cancel(context.Background(), owner, onA))
	assert.ErrorIs(t, w.svc.Cancel(context.Background(), owner, onB), domain.ErrPermissionDenied)

	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.Cancellations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.Cancellations.WithLabelValues("PERMISSION_DENIED")))
}

func TestCancel_NotFoundBeforeTable(t *testing.T) {
	w := newWorld(t)

	for _, caller := range []*domain.Identity{
		ident(w.admin, domain.RoleAdmin),
		ident(w.ownerB, domain.RoleOwner),
		ident(w.other, domain.RoleUser),
	} {
		err := w.svc.Cancel(context.Background(), caller, 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound, "role %s", caller.Role)
	}
}

func TestCancel_TwiceIsNotFound(t *testing.T) {
	w := newWorld(t)
	id := w.book(t, w.venueA, w.holder)

	require.NoError(t, w.svc.Cancel(context.Background(), ident(w.holder, domain.RoleUser), id))
	assert.ErrorIs(t, w.svc.Cancel(context.Background(), ident(w.holder, domain.RoleUser), id), domain.ErrNotFound)
}

func TestCancel_RecordsWhoCancelled(t *testing.T) {
	w := newWorld(t)
	id := w.book(t, w.venueA, w.holder)

	require.NoError(t, w.svc.Cancel(context.Background(), ident(w.admin, domain.RoleAdmin), id))

	var list []domain.Booking
	err := w.store.Read(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		list, err = tx.Bookings().ListByVenue(ctx, w.venueA)
		return err
	})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NotNil(t, list[0].CancelledBy)
	assert.Equal(t, w.admin, *list[0].CancelledBy)
	assert.Equal(t, domain.BookingCancelled, list[0].Status(now))
}

func TestCancel_Unauthenticated(t *testing.T) {
	w := newWorld(t)
	id := w.book(t, w.venueA, w.holder)

	assert.ErrorIs(t, w.svc.Cancel(context.Background(), nil, id), domain.ErrUnauthenticated)
	assert.ErrorIs(t, w.svc.Cancel(context.Background(), nil, 9999), domain.ErrUnauthenticated)
	assert.Equal(t, 1, w.countActive(t, id))
}
