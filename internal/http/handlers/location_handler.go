// README: Location handlers for place search and reverse lookup.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smartride/internal/modules/location"
	"smartride/internal/types"
)

// Places is satisfied by *location.Service.
type Places interface {
	Search(ctx context.Context, text string) []location.Place
	ReverseLookup(ctx context.Context, lat, lng float64) location.Address
}

type LocationHandler struct {
	places Places
}

func NewLocationHandler(places Places) *LocationHandler {
	return &LocationHandler{places: places}
}

func (h *LocationHandler) Search(c *gin.Context) {
	places := h.places.Search(c.Request.Context(), c.Query("q"))
	writeJSON(c, http.StatusOK, gin.H{"places": places})
}

func (h *LocationHandler) Reverse(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil || !types.NewGeoPoint(lat, lng, "").Valid() {
		writeError(c, http.StatusBadRequest, "invalid coordinates")
		return
	}
	writeJSON(c, http.StatusOK, h.places.ReverseLookup(c.Request.Context(), lat, lng))
}
