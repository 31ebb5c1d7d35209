package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
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

const phone = "+77011234567"

type fixture struct {
	store   *memory.Store
	svc     *Service
	metrics *metrics.Metrics
	userID  int64
	ownerID int64
	adminID int64
	distID  int64
	venues  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: memory.New(), metrics: metrics.New()}
	f.userID = f.store.AddUser(domain.RoleUser, "alice")
	f.ownerID = f.store.AddUser(domain.RoleOwner, "olga")
	f.adminID = f.store.AddUser(domain.RoleAdmin, "root")
	f.distID = f.store.AddDistrict("Almaly")

	clock := func() time.Time { return now }
	f.svc = New(
		f.store,
		policy.NewGuard(nil, clock),
		nil,
		nil,
		f.metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config{Now: clock},
	)

	return f
}

func (f *fixture) venue(t *testing.T, capacity int, approved bool) int64 {
	t.Helper()

	f.venues++
	v := domain.Venue{
		OwnerID:       &f.ownerID,
		Name:          fmt.Sprintf("Hall %d", f.venues),
		Address:       "Abay 1",
		ApprovalState: domain.VenuePending,
		Capacity:      capacity,
		DistrictID:    f.distID,
		ContactPhone:  phone,
	}

	err := f.store.Do(context.Background(), func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		if err := tx.Venues().Create(ctx, &v); err != nil {
			return err
		}
		if approved {
			_, err := tx.Venues().Approve(ctx, v.ID, now)
			return err
		}
		return nil
	})
	require.NoError(t, err)

	return v.ID
}

func (f *fixture) user(t *testing.T) *domain.Identity {
	t.Helper()
	return ident(f.userID, domain.RoleUser)
}

func ident(id int64, role domain.Role) *domain.Identity {
	return &domain.Identity{SubjectID: id, Role: role, ExpiresAt: now.Add(time.Hour)}
}

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreate_Admits(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 100, true)

	b, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-06-20"),
		GuestCount:      80,
		ContactPhone:    phone,
	})
	require.NoError(t, err)

	assert.NotZero(t, b.ID)
	assert.Equal(t, f.userID, b.UserID)
	assert.False(t, b.Backfilled)
	assert.Equal(t, domain.BookingUpcoming, b.Status(f.svc.Today()))
	assert.Equal(t, 1, f.store.CountBookings(venueID, day("2030-06-20")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Admissions.WithLabelValues("ok")))
}

func TestCreate_CapacityExceeded(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 100, true)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-06-20"),
		GuestCount:      101,
		ContactPhone:    phone,
	})

	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, 0, f.store.CountBookings(venueID, day("2030-06-20")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Admissions.WithLabelValues("CAPACITY_EXCEEDED")))
}

func TestCreate_CapacityBoundaryAdmits(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 100, true)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-06-20"),
		GuestCount:      100,
		ContactPhone:    phone,
	})
	assert.NoError(t, err)
}

func TestCreate_DateConflict(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 100, true)
	in := CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 10, ContactPhone: phone}

	_, err := f.svc.Create(context.Background(), f.user(t), in)
	require.NoError(t, err)

	other := f.store.AddUser(domain.RoleUser, "bob")
	_, err = f.svc.Create(context.Background(), ident(other, domain.RoleUser), in)

	assert.ErrorIs(t, err, domain.ErrDateConflict)
	assert.Equal(t, "DATE_CONFLICT", domain.Kind(err))
	assert.Equal(t, 1, f.store.CountBookings(venueID, day("2030-07-01")))
}

func TestCreate_VenueNotApproved(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 100, false)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-06-20"),
		GuestCount:      1,
		ContactPhone:    phone,
	})

	assert.ErrorIs(t, err, domain.ErrVenueNotApproved)
	assert.Equal(t, 0, f.store.CountBookings(venueID, day("2030-06-20")))
}

func TestCreate_VenueNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         9999,
		ReservationDate: day("2030-06-20"),
		GuestCount:      1,
		ContactPhone:    phone,
	})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_PreconditionOrder(t *testing.T) {
	f := newFixture(t)
	pending := f.venue(t, 10, false)
	approved := f.venue(t, 10, true)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID: approved, ReservationDate: day("2030-06-25"), GuestCount: 5, ContactPhone: phone,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{
			name: "approval before date and capacity",
			in:   CreateInput{VenueID: pending, ReservationDate: day("2030-01-01"), GuestCount: 50, ContactPhone: phone},
			want: domain.ErrVenueNotApproved,
		},
		{
			name: "date before capacity",
			in:   CreateInput{VenueID: approved, ReservationDate: day("2030-01-01"), GuestCount: 50, ContactPhone: phone},
			want: domain.ErrInvalidDate,
		},
		{
			name: "capacity before slot",
			in:   CreateInput{VenueID: approved, ReservationDate: day("2030-06-25"), GuestCount: 50, ContactPhone: phone},
			want: domain.ErrCapacityExceeded,
		},
		{
			name: "slot last",
			in:   CreateInput{VenueID: approved, ReservationDate: day("2030-06-25"), GuestCount: 5, ContactPhone: phone},
			want: domain.ErrDateConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.user(t), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_TodayIsNotFuture(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID: venueID, ReservationDate: day("2030-06-15"), GuestCount: 1, ContactPhone: phone,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestCreate_TodayFollowsConfiguredLocation(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)

	// 22:00 UTC on the 15th is already the 16th at UTC+5.
	late := time.Date(2030, 6, 15, 22, 0, 0, 0, time.UTC)
	f.svc.cfg.Now = func() time.Time { return late }
	f.svc.cfg.Location = time.FixedZone("UTC+5", 5*3600)

	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID: venueID, ReservationDate: day("2030-06-16"), GuestCount: 1, ContactPhone: phone,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID: venueID, ReservationDate: day("2030-06-17"), GuestCount: 1, ContactPhone: phone,
	})
	assert.NoError(t, err)
}

func TestCreate_PastBackfill(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)

	b, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-01-10"),
		GuestCount:      3,
		ContactPhone:    phone,
		Status:          domain.BookingPast,
	})
	require.NoError(t, err)
	assert.True(t, b.Backfilled)
	assert.Equal(t, domain.BookingPast, b.Status(f.svc.Today()))

	_, err = f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-01-11"),
		GuestCount:      11,
		ContactPhone:    phone,
		Status:          domain.BookingPast,
	})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	_, err = f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID:         venueID,
		ReservationDate: day("2030-01-10"),
		GuestCount:      1,
		ContactPhone:    phone,
		Status:          domain.BookingPast,
	})
	assert.ErrorIs(t, err, domain.ErrDateConflict)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"zero guests", CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 0, ContactPhone: phone}},
		{"negative guests", CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: -1, ContactPhone: phone}},
		{"bad phone", CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 1, ContactPhone: "87011234567"}},
		{"missing date", CreateInput{VenueID: venueID, GuestCount: 1, ContactPhone: phone}},
		{"unknown status", CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 1, ContactPhone: phone, Status: domain.BookingCancelled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.user(t), tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreate_RoleGate(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)
	in := CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 1, ContactPhone: phone}

	_, err := f.svc.Create(context.Background(), nil, in)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.svc.Create(context.Background(), ident(f.ownerID, domain.RoleOwner), in)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.Create(context.Background(), ident(f.adminID, domain.RoleAdmin), in)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	assert.Equal(t, 0, f.store.CountBookings(venueID, day("2030-07-01")))
}

func TestCreate_CancelledSlotIsFree(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)
	in := CreateInput{VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 1, ContactPhone: phone}

	b, err := f.svc.Create(context.Background(), f.user(t), in)
	require.NoError(t, err)

	err = f.store.Do(context.Background(), func(ctx context.Context, tx repository.Tx, _ func(uow.AfterCommit)) error {
		return tx.Bookings().Cancel(ctx, b.ID, f.adminID, now)
	})
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), f.user(t), in)
	assert.NoError(t, err)
}

func TestCreate_ConcurrentSameSlot(t *testing.T) {
	for n := 2; n <= 16; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			f := newFixture(t)
			venueID := f.venue(t, 10, true)
			date := day("2030-08-01")

			users := make([]*domain.Identity, n)
			for i := range users {
				users[i] = ident(f.store.AddUser(domain.RoleUser, fmt.Sprintf("u%d", i)), domain.RoleUser)
			}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				ok        int
				conflicts int
				start     = make(chan struct{})
			)

			for _, u := range users {
				wg.Add(1)
				go func(u *domain.Identity) {
					defer wg.Done()
					<-start
					_, err := f.svc.Create(context.Background(), u, CreateInput{
						VenueID: venueID, ReservationDate: date, GuestCount: 2, ContactPhone: phone,
					})

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case domain.Kind(err) == "DATE_CONFLICT":
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(u)
			}

			close(start)
			wg.Wait()

			assert.Equal(t, 1, ok)
			assert.Equal(t, n-1, conflicts)
			assert.Equal(t, 1, f.store.CountBookings(venueID, date))
		})
	}
}

func TestList_ScopedByRole(t *testing.T) {
	f := newFixture(t)
	venueID := f.venue(t, 10, true)

	bob := f.store.AddUser(domain.RoleUser, "bob")
	_, err := f.svc.Create(context.Background(), f.user(t), CreateInput{
		VenueID: venueID, ReservationDate: day("2030-07-01"), GuestCount: 1, ContactPhone: phone,
	})
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), ident(bob, domain.RoleUser), CreateInput{
		VenueID: venueID, ReservationDate: day("2030-07-02"), GuestCount: 1, ContactPhone: phone,
	})
	require.NoError(t, err)

	mine, err := f.svc.List(context.Background(), f.user(t), 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.userID, mine[0].UserID)

	owned, err := f.svc.List(context.Background(), ident(f.ownerID, domain.RoleOwner), 0)
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	stranger := f.store.AddUser(domain.RoleOwner, "other")
	none, err := f.svc.List(context.Background(), ident(stranger, domain.RoleOwner), 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.List(context.Background(), ident(f.adminID, domain.RoleAdmin), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := f.svc.List(context.Background(), ident(f.adminID, domain.RoleAdmin), venueID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.List(context.Background(), ident(f.adminID, domain.RoleAdmin), 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
