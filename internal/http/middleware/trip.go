// README: Trip session middleware; resolves :id to a live orchestrator.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartride/internal/modules/trip"
	"smartride/internal/types"
)

const tripKey = "smartride.trip"

// TripLookup is satisfied by *trip.Manager.
type TripLookup interface {
	Get(id types.ID) (*trip.Orchestrator, error)
}

// LoadTrip aborts with 400 for malformed IDs and 404 for unknown sessions.
func LoadTrip(trips TripLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !validTripID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid trip id"})
			return
		}
		o, err := trips.Get(types.ID(id))
		if errors.Is(err, trip.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "trip not found"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Set(tripKey, o)
		c.Next()
	}
}

// TripFrom returns the orchestrator stored by LoadTrip, or nil.
func TripFrom(c *gin.Context) *trip.Orchestrator {
	v, ok := c.Get(tripKey)
	if !ok {
		return nil
	}
	o, _ := v.(*trip.Orchestrator)
	return o
}

// validTripID accepts the UUID strings issued by the manager.
func validTripID(v string) bool {
	if v == "" || len(v) > 36 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			continue
		}
		return false
	}
	return true
}
