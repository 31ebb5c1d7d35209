// Package memory is an in-process store for single-instance deployments and
// tests. Every unit of work holds the store lock for its whole duration and runs
// against a copy of the state that replaces the original only on success, so
// units of work are serializable and roll back on error. It enforces the same
// uniqueness and reference rules as the Postgres schema. Waiting for the lock
// honours the caller's context and the store's statement timeout, so a stuck
// unit of work surfaces as repository.ErrUnavailable instead of a hang.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
	"github.com/kirinyoku/venuebook/internal/repository"
	"github.com/kirinyoku/venuebook/internal/uow"
)

type state struct {
	users     map[int64]domain.User
	districts map[int64]domain.District
	venues    map[int64]domain.Venue
	bookings  map[int64]domain.Booking
	lastID    int64
}

func (s *state) clone() *state {
	return &state{
		users:     maps.Clone(s.users),
		districts: maps.Clone(s.districts),
		venues:    maps.Clone(s.venues),
		bookings:  maps.Clone(s.bookings),
		lastID:    s.lastID,
	}
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

type Store struct {
	// sem is a one-slot lock that can be abandoned when ctx is done.
	sem     chan struct{}
	st      *state
	now     func() time.Time
	timeout time.Duration
}

var _ uow.Runner = (*Store)(nil)

// New returns a store without a per-operation timeout.
func New() *Store {
	return NewWithTimeout(0)
}

// NewWithTimeout returns a store whose units of work, lock wait included, are
// bounded by timeout. Zero disables the bound.
func NewWithTimeout(timeout time.Duration) *Store {
	return &Store{
		sem:     make(chan struct{}, 1),
		timeout: timeout,
		st: &state{
			users:     make(map[int64]domain.User),
			districts: make(map[int64]domain.District),
			venues:    make(map[int64]domain.Venue),
			bookings:  make(map[int64]domain.Booking),
		},
		now: time.Now,
	}
}

func (s *Store) lock() { s.sem <- struct{}{} }

func (s *Store) unlock() { <-s.sem }

func (s *Store) lockContext(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for store lock: %w", repository.ErrUnavailable, ctx.Err())
	}
}

// AddUser registers a user and returns its ID.
func (s *Store) AddUser(role domain.Role, name string) int64 {
	s.lock()
	defer s.unlock()

	id := s.st.nextID()
	s.st.users[id] = domain.User{ID: id, Role: role, Name: name}
	return id
}

// AddDistrict registers a district and returns its ID.
func (s *Store) AddDistrict(name string) int64 {
	s.lock()
	defer s.unlock()

	id := s.st.nextID()
	s.st.districts[id] = domain.District{ID: id, Name: name}
	return id
}

// CountBookings returns the number of active bookings for a venue and date.
func (s *Store) CountBookings(venueID int64, date time.Time) int {
	s.lock()
	defer s.unlock()

	n := 0
	for _, b := range s.st.bookings {
		if b.VenueID == venueID && b.ReservationDate.Equal(domain.DateOf(date)) && b.CancelledAt == nil {
			n++
		}
	}
	return n
}

func (s *Store) Do(ctx context.Context, fn uow.TxFunc) error {
	const op = "memory.Store.Do"

	var hooks []uow.AfterCommit

	err := s.run(ctx, true, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, tx, func(h uow.AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

func (s *Store) Read(ctx context.Context, fn uow.ReadFunc) error {
	const op = "memory.Store.Read"

	if err := s.run(ctx, false, fn); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) run(ctx context.Context, commit bool, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.lockContext(ctx); err != nil {
		return err
	}
	defer s.unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}

	// A unit of work that outlived its deadline is rolled back, like a
	// Postgres statement timeout.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}

	if commit {
		s.st = work
	}

	return nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Venues() repository.VenueRepository     { return venueRepo{t} }
func (t *tx) Bookings() repository.BookingRepository { return bookingRepo{t} }
func (t *tx) Users() repository.UserRepository       { return userRepo{t} }

type venueRepo struct{ *tx }

func (r venueRepo) Create(_ context.Context, v *domain.Venue) error {
	if _, ok := r.st.districts[v.DistrictID]; !ok {
		return fmt.Errorf("%w: venues_district_id_fkey", repository.ErrForeignKey)
	}
	if v.OwnerID != nil {
		if _, ok := r.st.users[*v.OwnerID]; !ok {
			return fmt.Errorf("%w: venues_owner_id_fkey", repository.ErrForeignKey)
		}
		if r.nameTaken(*v.OwnerID, v.Name, 0) {
			return fmt.Errorf("%w: venues_owner_name_key", repository.ErrConflict)
		}
	}

	v.ID = r.st.nextID()
	v.CreatedAt = r.now()
	r.st.venues[v.ID] = *v
	return nil
}

func (r venueRepo) nameTaken(ownerID int64, name string, exceptID int64) bool {
	for _, other := range r.st.venues {
		if other.ID != exceptID && other.OwnedBy(ownerID) && strings.EqualFold(other.Name, name) {
			return true
		}
	}
	return false
}

func (r venueRepo) Get(_ context.Context, id int64) (*domain.Venue, error) {
	v, ok := r.st.venues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r venueRepo) Approve(_ context.Context, id int64, at time.Time) (*domain.Venue, error) {
	v, ok := r.st.venues[id]
	if !ok || v.ApprovalState != domain.VenuePending {
		return nil, repository.ErrNotFound
	}

	v.ApprovalState = domain.VenueApproved
	v.ApprovedAt = &at
	r.st.venues[id] = v
	return &v, nil
}

func (r venueRepo) SetOwner(_ context.Context, id, ownerID int64) (*domain.Venue, error) {
	v, ok := r.st.venues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := r.st.users[ownerID]; !ok {
		return nil, fmt.Errorf("%w: venues_owner_id_fkey", repository.ErrForeignKey)
	}
	if r.nameTaken(ownerID, v.Name, id) {
		return nil, fmt.Errorf("%w: venues_owner_name_key", repository.ErrConflict)
	}

	v.OwnerID = &ownerID
	r.st.venues[id] = v
	return &v, nil
}

func (r venueRepo) Update(_ context.Context, v *domain.Venue) error {
	cur, ok := r.st.venues[v.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.st.districts[v.DistrictID]; !ok {
		return fmt.Errorf("%w: venues_district_id_fkey", repository.ErrForeignKey)
	}
	if cur.OwnerID != nil && r.nameTaken(*cur.OwnerID, v.Name, v.ID) {
		return fmt.Errorf("%w: venues_owner_name_key", repository.ErrConflict)
	}

	cur.Name = v.Name
	cur.Address = v.Address
	cur.Capacity = v.Capacity
	cur.PricePerSeat = v.PricePerSeat
	cur.DistrictID = v.DistrictID
	cur.ContactPhone = v.ContactPhone
	r.st.venues[v.ID] = cur
	return nil
}

func (r venueRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.st.venues[id]; !ok {
		return repository.ErrNotFound
	}
	for _, b := range r.st.bookings {
		if b.VenueID == id {
			return fmt.Errorf("%w: bookings_venue_id_fkey", repository.ErrForeignKey)
		}
	}

	delete(r.st.venues, id)
	return nil
}

type bookingRepo struct{ *tx }

func (r bookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if _, ok := r.st.venues[b.VenueID]; !ok {
		return fmt.Errorf("%w: bookings_venue_id_fkey", repository.ErrForeignKey)
	}
	if _, ok := r.st.users[b.UserID]; !ok {
		return fmt.Errorf("%w: bookings_user_id_fkey", repository.ErrForeignKey)
	}
	if taken, _ := r.SlotTaken(ctx, b.VenueID, b.ReservationDate); taken {
		return fmt.Errorf("%w: bookings_active_slot_key", repository.ErrConflict)
	}

	b.ID = r.st.nextID()
	b.ReservationDate = domain.DateOf(b.ReservationDate)
	b.CreatedAt = r.now()
	r.st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) Get(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := r.st.bookings[id]
	if !ok || b.CancelledAt != nil {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) SlotTaken(_ context.Context, venueID int64, date time.Time) (bool, error) {
	day := domain.DateOf(date)
	for _, b := range r.st.bookings {
		if b.VenueID == venueID && b.CancelledAt == nil && b.ReservationDate.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (r bookingRepo) Cancel(_ context.Context, id, by int64, at time.Time) error {
	b, ok := r.st.bookings[id]
	if !ok || b.CancelledAt != nil {
		return repository.ErrNotFound
	}

	b.CancelledAt = &at
	b.CancelledBy = &by
	r.st.bookings[id] = b
	return nil
}

func (r bookingRepo) BookedDates(_ context.Context, venueID int64) (map[time.Time]int, error) {
	out := make(map[time.Time]int)
	for _, b := range r.st.bookings {
		if b.VenueID == venueID && b.CancelledAt == nil {
			out[b.ReservationDate] = b.GuestCount
		}
	}
	return out, nil
}

func (r bookingRepo) ListByUser(_ context.Context, userID int64) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool { return b.UserID == userID }), nil
}

func (r bookingRepo) ListByOwner(_ context.Context, ownerID int64) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool {
		v, ok := r.st.venues[b.VenueID]
		return ok && v.OwnedBy(ownerID)
	}), nil
}

func (r bookingRepo) ListByVenue(_ context.Context, venueID int64) ([]domain.Booking, error) {
	return r.filter(func(b domain.Booking) bool { return b.VenueID == venueID }), nil
}

func (r bookingRepo) filter(keep func(domain.Booking) bool) []domain.Booking {
	out := []domain.Booking{}
	for _, b := range r.st.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReservationDate.Equal(out[j].ReservationDate) {
			return out[i].ReservationDate.Before(out[j].ReservationDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type userRepo struct{ *tx }

func (r userRepo) Get(_ context.Context, id int64) (*domain.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}
