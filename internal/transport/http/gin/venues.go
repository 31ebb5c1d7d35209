package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/venuebook/internal/service/venue"
)

func (r VenueRequest) input() venue.Input {
	return venue.Input{
		Name:         r.Name,
		Address:      r.Address,
		Capacity:     r.Capacity,
		PricePerSeat: r.PricePerSeat,
		DistrictID:   r.DistrictID,
		ContactPhone: r.ContactPhone,
		OwnerID:      r.OwnerID,
	}
}

// @Summary  Create venue (pending)
// @Security BearerAuth
// @Param    req body  VenueRequest true "payload"
// @Success  201 {object} domain.Venue
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "duplicate name"
// @Router   /venues [post]
func (h *Handler) createVenue(c *gin.Context) {
	var req VenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	v, err := h.svcs.Venues.Create(c.Request.Context(), identityFrom(c), req.input())
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

// @Summary  Get venue
// @Security BearerAuth
// @Param    id  path  int  true  "Venue ID"
// @Success  200 {object} domain.Venue
// @Failure  404 {object} ErrorResponse
// @Router   /venues/{id} [get]
func (h *Handler) getVenue(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	v, err := h.svcs.Venues.Get(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

// @Summary  Update venue
// @Security BearerAuth
// @Param    id  path  int  true  "Venue ID"
// @Param    req body  VenueRequest true "payload; owner_id is ignored"
// @Success  200 {object} domain.Venue
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /venues/{id} [put]
func (h *Handler) updateVenue(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	var req VenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	v, err := h.svcs.Venues.Update(c.Request.Context(), identityFrom(c), id, req.input())
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

// @Summary  Delete venue without bookings
// @Security BearerAuth
// @Param    id  path  int  true  "Venue ID"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "venue has bookings"
// @Router   /venues/{id} [delete]
func (h *Handler) deleteVenue(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	if err := h.svcs.Venues.Delete(c.Request.Context(), identityFrom(c), id); err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// @Summary  Get booked dates
// @Security BearerAuth
// @Param    id  path  int  true  "Venue ID"
// @Success  200 {object} domain.Availability
// @Failure  404 {object} ErrorResponse
// @Router   /venues/{id}/availability [get]
func (h *Handler) availability(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	av, err := h.svcs.Availability.Availability(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	// ETag + Cache-Control 15s, per caller
	writeJSONWithCache(c, http.StatusOK, av, "private, max-age=15", true)
}

// @Summary  Approve venue
// @Security BearerAuth
// @Param    id  path  int  true  "Venue ID"
// @Success  200 {object} domain.Venue
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already approved"
// @Router   /venues/{id}/approve [patch]
func (h *Handler) approveVenue(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	v, err := h.svcs.Venues.Approve(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

// @Summary  Assign venue owner
// @Security BearerAuth
// @Param    id  path  int  true  "Venue ID"
// @Param    req body  AssignOwnerRequest true "payload"
// @Success  200 {object} domain.Venue
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /venues/{id}/owner [patch]
func (h *Handler) assignOwner(c *gin.Context) {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return
	}

	var req AssignOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	v, err := h.svcs.Venues.AssignOwner(c.Request.Context(), identityFrom(c), id, req.OwnerID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, v)
}
