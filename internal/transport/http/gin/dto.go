package httpgin

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/kirinyoku/venuebook/internal/domain"
)

type CreateBookingRequest struct {
	VenueID         int64  `json:"venue_id" binding:"required,gt=0"`
	ReservationDate string `json:"reservation_date" binding:"required,datetime=2006-01-02"`
	GuestCount      int    `json:"guest_count" binding:"required,gt=0"`
	ContactPhone    string `json:"contact_phone" binding:"required,phone"`
	Status          string `json:"status" binding:"omitempty,oneof=upcoming past"`
}

type VenueRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	Address      string `json:"address" binding:"required,max=500"`
	Capacity     int    `json:"capacity" binding:"required,gt=0"`
	PricePerSeat int64  `json:"price_per_seat" binding:"gte=0"`
	DistrictID   int64  `json:"district_id" binding:"required,gt=0"`
	ContactPhone string `json:"contact_phone" binding:"required,phone"`
	OwnerID      *int64 `json:"owner_id,omitempty" binding:"omitempty,gt=0"`
}

type AssignOwnerRequest struct {
	OwnerID int64 `json:"owner_id" binding:"required,gt=0"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type BookingResponse struct {
	ID              int64                `json:"id"`
	VenueID         int64                `json:"venue_id"`
	UserID          int64                `json:"user_id"`
	ReservationDate string               `json:"reservation_date"`
	GuestCount      int                  `json:"guest_count"`
	ContactPhone    string               `json:"contact_phone"`
	Status          domain.BookingStatus `json:"status"`
	Backfilled      bool                 `json:"backfilled"`
	CreatedAt       time.Time            `json:"created_at"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
}

func toBookingResponse(b *domain.Booking, today time.Time) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		VenueID:         b.VenueID,
		UserID:          b.UserID,
		ReservationDate: b.ReservationDate.Format(domain.DateLayout),
		GuestCount:      b.GuestCount,
		ContactPhone:    b.ContactPhone,
		Status:          b.Status(today),
		Backfilled:      b.Backfilled,
		CreatedAt:       b.CreatedAt,
		CancelledAt:     b.CancelledAt,
	}
}

var registerOnce sync.Once

// registerValidators adds the custom binding tags to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return domain.ValidPhone(fl.Field().String())
		})
	})
}
