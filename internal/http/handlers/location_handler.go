// README: Driver position lookups backed by the Redis position store.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/location"
	"carpool/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

// NewLocationHandler accepts a nil service; every endpoint then answers 503.
func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

// Position answers admins and passengers; drivers may only read their own.
func (h *LocationHandler) Position(c *gin.Context) {
	id, ok := driverParam(c)
	if !ok {
		return
	}
	switch middleware.CallerRole(c) {
	case "admin", "passenger":
	case "driver":
		if types.ID(middleware.CallerUID(c)) != id {
			writeError(c, http.StatusForbidden, "forbidden: not your position")
			return
		}
	default:
		writeError(c, http.StatusForbidden, "forbidden: insufficient role")
		return
	}
	if h.location == nil {
		writeError(c, http.StatusServiceUnavailable, "position store disabled")
		return
	}
	pos, err := h.location.Position(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pos)
}

// Nearby lists drivers around ?lat=&lon=, optionally within ?radius_km=.
func (h *LocationHandler) Nearby(c *gin.Context) {
	if h.location == nil {
		writeError(c, http.StatusServiceUnavailable, "position store disabled")
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	p := types.Point{Lat: lat, Lng: lon}
	if errLat != nil || errLon != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
	drivers, err := h.location.Nearby(c.Request.Context(), p, radius)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}
