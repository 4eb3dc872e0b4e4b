// README: Trip handlers; one call per orchestrator operation, each answering with the fresh snapshot.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartride/internal/http/middleware"
	"smartride/internal/modules/pricing"
	"smartride/internal/modules/trip"
	"smartride/internal/types"
)

type TripHandler struct {
	trips *trip.Manager
}

func NewTripHandler(trips *trip.Manager) *TripHandler {
	return &TripHandler{trips: trips}
}

type pointReq struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Name string   `json:"name"`
}

func (r pointReq) point() (types.GeoPoint, bool) {
	if r.Lat == nil || r.Lng == nil {
		return types.GeoPoint{}, false
	}
	return types.NewGeoPoint(*r.Lat, *r.Lng, r.Name), true
}

type preferenceReq struct {
	Preference string `json:"preference"`
}

type offerReq struct {
	VehicleClass string `json:"vehicle_class"`
}

type tipReq struct {
	Amount *int64 `json:"amount"`
}

func (h *TripHandler) Create(c *gin.Context) {
	o := h.trips.Create()
	writeJSON(c, http.StatusCreated, o.Snapshot())
}

func (h *TripHandler) Get(c *gin.Context) {
	writeJSON(c, http.StatusOK, middleware.TripFrom(c).Snapshot())
}

func (h *TripHandler) Delete(c *gin.Context) {
	if err := h.trips.Close(middleware.TripFrom(c).ID()); err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TripHandler) SetPickup(c *gin.Context) {
	h.setPoint(c, (*trip.Orchestrator).SetPickup)
}

func (h *TripHandler) SetDrop(c *gin.Context) {
	h.setPoint(c, (*trip.Orchestrator).SetDrop)
}

func (h *TripHandler) setPoint(c *gin.Context, set func(*trip.Orchestrator, types.GeoPoint) error) {
	var req pointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, ok := req.point()
	if !ok {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	o := middleware.TripFrom(c)
	if err := set(o, p); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o.Snapshot())
}

func (h *TripHandler) Pin(c *gin.Context) {
	var req pointReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	o := middleware.TripFrom(c)
	slot, err := o.Pin(*req.Lat, *req.Lng)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"slot": slot, "trip": o.Snapshot()})
}

func (h *TripHandler) SetPreference(c *gin.Context) {
	var req preferenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pref, err := pricing.ParsePreference(req.Preference)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	o := middleware.TripFrom(c)
	if err := o.SetPreference(pref); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o.Snapshot())
}

func (h *TripHandler) SelectOffer(c *gin.Context) {
	var req offerReq
	if err := c.ShouldBindJSON(&req); err != nil || req.VehicleClass == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	o := middleware.TripFrom(c)
	if err := o.SelectOffer(req.VehicleClass); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o.Snapshot())
}

func (h *TripHandler) Confirm(c *gin.Context) {
	o := middleware.TripFrom(c)
	otp, err := o.ConfirmBooking()
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"otp": otp, "trip": o.Snapshot()})
}

func (h *TripHandler) SetTip(c *gin.Context) {
	var req tipReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	o := middleware.TripFrom(c)
	if err := o.SetTip(*req.Amount); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o.Snapshot())
}

func (h *TripHandler) Cancel(c *gin.Context) {
	o := middleware.TripFrom(c)
	if err := o.Cancel(); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o.Snapshot())
}

func (h *TripHandler) Complete(c *gin.Context) {
	o := middleware.TripFrom(c)
	if err := o.Complete(); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o.Snapshot())
}
