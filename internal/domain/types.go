package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleUser:
		return true
	}
	return false
}

type ApprovalState string

const (
	VenuePending  ApprovalState = "pending"
	VenueApproved ApprovalState = "approved"
)

type BookingStatus string

const (
	BookingUpcoming  BookingStatus = "upcoming"
	BookingPast      BookingStatus = "past"
	BookingCancelled BookingStatus = "cancelled"
)

// DateLayout is the wire and storage format of a reservation date.
const DateLayout = "2006-01-02"

// Identity is the verified claim a request carries after authentication.
type Identity struct {
	SubjectID int64
	Role      Role
	ExpiresAt time.Time
}

type User struct {
	ID   int64  `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
}

type District struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Venue struct {
	ID            int64         `json:"id"`
	OwnerID       *int64        `json:"owner_id"`
	Name          string        `json:"name"`
	Address       string        `json:"address"`
	ApprovalState ApprovalState `json:"approval_state"`
	Capacity      int           `json:"capacity"`
	PricePerSeat  int64         `json:"price_per_seat"`
	DistrictID    int64         `json:"district_id"`
	ContactPhone  string        `json:"contact_phone"`
	CreatedAt     time.Time     `json:"created_at"`
	ApprovedAt    *time.Time    `json:"approved_at,omitempty"`
}

// OwnedBy reports whether userID is the assigned owner of the venue.
func (v *Venue) OwnedBy(userID int64) bool {
	return v.OwnerID != nil && *v.OwnerID == userID
}

type Booking struct {
	ID              int64      `json:"id"`
	VenueID         int64      `json:"venue_id"`
	UserID          int64      `json:"user_id"`
	ReservationDate time.Time  `json:"reservation_date"`
	GuestCount      int        `json:"guest_count"`
	ContactPhone    string     `json:"contact_phone"`
	Backfilled      bool       `json:"backfilled"`
	CreatedAt       time.Time  `json:"created_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy     *int64     `json:"cancelled_by,omitempty"`
}

// Status derives the booking status from its reservation date relative to today.
// Cancellation overrides the date-based status.
func (b *Booking) Status(today time.Time) BookingStatus {
	if b.CancelledAt != nil {
		return BookingCancelled
	}
	if DateOf(b.ReservationDate).After(DateOf(today)) {
		return BookingUpcoming
	}
	return BookingPast
}

// Availability is the booked-date map of a venue.
type Availability struct {
	VenueID     int64          `json:"venue_id"`
	Capacity    int            `json:"capacity"`
	BookedDates map[string]int `json:"booked_dates"`
}

// DateOf truncates t to its calendar date in t's location, expressed as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
