// README: Booking handlers: request a seat, driver accept/decline, passenger cancel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/service"
)

type BookingHandler struct {
	bookings *service.BookingService
}

func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type createBookingReq struct {
	Seats int    `json:"seats"`
	Note  string `json:"note"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

// Create handles POST /api/trips/:id/bookings for the calling passenger.
func (h *BookingHandler) Create(c *gin.Context) {
	tripID, ok := pathID(c)
	if !ok {
		return
	}
	var req createBookingReq
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.bookings.CreateBooking(c.Request.Context(), service.CreateBookingCommand{
		TripID:      tripID,
		PassengerID: middleware.CallerID(c),
		Seats:       req.Seats,
		Note:        req.Note,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.bookings.GetBooking(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.bookings.AcceptBooking(c.Request.Context(), service.AcceptBookingCommand{
		BookingID: id,
		DriverID:  middleware.CallerID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *BookingHandler) Decline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.bookings.DeclineBooking(c.Request.Context(), service.DeclineBookingCommand{
		BookingID: id,
		DriverID:  middleware.CallerID(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonReq
	if !bindOptional(c, &req) {
		return
	}
	res, err := h.bookings.CancelByPassenger(c.Request.Context(), service.CancelBookingCommand{
		BookingID:   id,
		PassengerID: middleware.CallerID(c),
		Reason:      req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *BookingHandler) ListMine(c *gin.Context) {
	list, err := h.bookings.ListPassengerBookings(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}
