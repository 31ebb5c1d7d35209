package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/venuebook/internal/domain"
	redisrepo "github.com/kirinyoku/venuebook/internal/repository/redis"
	"github.com/kirinyoku/venuebook/internal/service/booking"
)

const idemLockTTL = 60 * time.Second

// fingerprint identifies a booking request independently of field order.
func fingerprint(req CreateBookingRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// @Summary  Create booking (idempotent)
// @Security BearerAuth
// @Param    req body  CreateBookingRequest true "payload"
// @Param    Idempotency-Key header string false "replays the first response for the same key"
// @Success  201 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  401 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "date taken / venue not approved / idem in progress"
// @Failure  422 {object} ErrorResponse "capacity exceeded / invalid date / idem key reused"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func (h *Handler) createBooking(c *gin.Context) {
	identity := identityFrom(c)

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	date, err := domain.ParseDate(req.ReservationDate)
	if err != nil {
		badRequest(c, "invalid reservation_date (YYYY-MM-DD)")
		return
	}

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	var idemStorageKey, fp string
	if h.idem != nil && idemKey != "" {
		idemStorageKey = redisrepo.KeyIdemBooking(identity.SubjectID, idemKey)
		fp = fingerprint(req)

		claim, err := h.idem.Begin(c.Request.Context(), idemStorageKey, fp, idemLockTTL)
		if err != nil {
			h.logger.Warn("idempotency store unavailable", "error", err)
			idemStorageKey = ""
		}

		switch claim.State {
		case redisrepo.ClaimReplay:
			c.Header("Idempotency-Key", idemKey)
			c.Header("Idempotent-Replayed", "true")
			c.Data(http.StatusCreated, "application/json; charset=utf-8", claim.Body)
			return
		case redisrepo.ClaimInFlight:
			c.Header("Retry-After", "1")
			abortWith(c, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this idempotency key is in progress")
			return
		case redisrepo.ClaimMismatch:
			abortWith(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was used with a different request")
			return
		}
	}

	b, err := h.svcs.Bookings.Create(c.Request.Context(), identity, booking.CreateInput{
		VenueID:         req.VenueID,
		ReservationDate: date,
		GuestCount:      req.GuestCount,
		ContactPhone:    req.ContactPhone,
		Status:          domain.BookingStatus(req.Status),
	})
	if err != nil {
		if idemStorageKey != "" {
			_ = h.idem.Abort(c.Request.Context(), idemStorageKey)
		}
		respondErr(c, h.logger, err)
		return
	}

	resp := toBookingResponse(b, h.svcs.Bookings.Today())

	if idemStorageKey != "" {
		payload, _ := json.Marshal(resp)
		_ = h.idem.Complete(c.Request.Context(), idemStorageKey, fp, payload)
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary  List the caller's bookings
// @Description Users see their own bookings, owners those on venues they own, admins those of venue_id.
// @Security BearerAuth
// @Param    venue_id query int false "required for admins"
// @Success  200 {array}  BookingResponse
// @Failure  400 {object} ErrorResponse
// @Router   /bookings [get]
func (h *Handler) listBookings(c *gin.Context) {
	var venueID int64
	if s := c.Query("venue_id"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v <= 0 {
			badRequest(c, "invalid venue_id")
			return
		}
		venueID = v
	}

	list, err := h.svcs.Bookings.List(c.Request.Context(), identityFrom(c), venueID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	today := h.svcs.Bookings.Today()
	out := make([]BookingResponse, 0, len(list))
	for i := range list {
		out = append(out, toBookingResponse(&list[i], today))
	}

	c.JSON(http.StatusOK, out)
}

// @Summary  Cancel booking
// @Security BearerAuth
// @Param    id  path  int  true  "Booking ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [delete]
func (h *Handler) cancelBooking(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	if err := h.svcs.Cancellation.Cancel(c.Request.Context(), identityFrom(c), id); err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
