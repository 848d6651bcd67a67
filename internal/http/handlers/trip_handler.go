// README: Trip handlers: create, read, edit, lifecycle moves and cascade cancel.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/trip"
	"carpool/internal/service"
	"carpool/internal/types"
)

type TripHandler struct {
	trips    *service.TripService
	bookings *service.BookingService
	cascade  *service.CascadeService
}

func NewTripHandler(trips *service.TripService, bookings *service.BookingService, cascade *service.CascadeService) *TripHandler {
	return &TripHandler{trips: trips, bookings: bookings, cascade: cascade}
}

type createTripReq struct {
	VehicleID          string      `json:"vehicle_id"`
	VehicleSeats       int         `json:"vehicle_seats"`
	Origin             types.Place `json:"origin"`
	Destination        types.Place `json:"destination"`
	DepartureAt        time.Time   `json:"departure_at" binding:"required"`
	EstimatedArrivalAt *time.Time  `json:"estimated_arrival_at"`
	PricePerSeat       types.Money `json:"price_per_seat"`
	TotalSeats         int         `json:"total_seats" binding:"required"`
	Notes              string      `json:"notes"`
	Publish            bool        `json:"publish"`
}

type updateTripReq struct {
	VehicleID          *string      `json:"vehicle_id"`
	VehicleSeats       *int         `json:"vehicle_seats"`
	Origin             *types.Place `json:"origin"`
	Destination        *types.Place `json:"destination"`
	DepartureAt        *time.Time   `json:"departure_at"`
	EstimatedArrivalAt *time.Time   `json:"estimated_arrival_at"`
	PricePerSeat       *types.Money `json:"price_per_seat"`
	TotalSeats         *int         `json:"total_seats"`
	Notes              *string      `json:"notes"`
}

func (r updateTripReq) patch() trip.Patch {
	p := trip.Patch{
		VehicleSeats:       r.VehicleSeats,
		Origin:             r.Origin,
		Destination:        r.Destination,
		DepartureAt:        r.DepartureAt,
		EstimatedArrivalAt: r.EstimatedArrivalAt,
		PricePerSeat:       r.PricePerSeat,
		TotalSeats:         r.TotalSeats,
		Notes:              r.Notes,
	}
	if r.VehicleID != nil {
		v := types.ID(*r.VehicleID)
		p.VehicleID = &v
	}
	return p
}

type tripView struct {
	*trip.Trip
	SeatsLeft int `json:"seats_left"`
}

func (h *TripHandler) Create(c *gin.Context) {
	var req createTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := service.CreateTripCommand{
		DriverID:     middleware.CallerID(c),
		VehicleID:    types.ID(req.VehicleID),
		VehicleSeats: req.VehicleSeats,
		Origin:       req.Origin,
		Destination:  req.Destination,
		DepartureAt:  req.DepartureAt,
		PricePerSeat: req.PricePerSeat,
		TotalSeats:   req.TotalSeats,
		Notes:        req.Notes,
		Publish:      req.Publish,
	}
	if req.EstimatedArrivalAt != nil {
		cmd.EstimatedArrivalAt = *req.EstimatedArrivalAt
	}
	t, err := h.trips.CreateTrip(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, tripView{Trip: t, SeatsLeft: t.TotalSeats})
}

func (h *TripHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := h.trips.GetTrip(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	left, err := h.bookings.SeatsLeft(c.Request.Context(), t)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tripView{Trip: t, SeatsLeft: left})
}

func (h *TripHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateTripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := h.trips.UpdateTrip(c.Request.Context(), id, middleware.CallerID(c), req.patch())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *TripHandler) Publish(c *gin.Context) {
	h.move(c, h.trips.PublishTrip)
}

func (h *TripHandler) Start(c *gin.Context) {
	h.move(c, h.trips.StartTrip)
}

func (h *TripHandler) Complete(c *gin.Context) {
	h.move(c, h.trips.CompleteTrip)
}

func (h *TripHandler) move(c *gin.Context, fn func(ctx context.Context, tripID, driverID types.ID) (*trip.Trip, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := fn(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

// Cancel cancels the trip together with all of its bookings.
func (h *TripHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.cascade.CancelTripWithCascade(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *TripHandler) ListBookings(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := h.bookings.ListTripBookings(c.Request.Context(), id, middleware.CallerID(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": list})
}
