// README: Driver and passenger route endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/route"
	"carpool/internal/types"
)

type RouteHandler struct {
	routes *route.Service
}

func NewRouteHandler(svc *route.Service) *RouteHandler {
	return &RouteHandler{routes: svc}
}

type openRequest struct {
	// Origin is "lat,lon" or an address.
	Origin string `json:"origin" binding:"required"`
}

type joinRequest struct {
	Location string `json:"location" binding:"required"`
}

type locationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
	Seq uint64   `json:"seq"`
}

type joinResponse struct {
	DriverID             types.ID     `json:"driver_id"`
	Accepted             bool         `json:"accepted"`
	Reason               route.Reason `json:"reason,omitempty"`
	Position             int          `json:"position"`
	TotalDurationSeconds *int64       `json:"total_duration_seconds,omitempty"`
}

type finishResponse struct {
	DriverID             types.ID   `json:"driver_id"`
	PhaseID              string     `json:"phase_id"`
	PassengerIDs         []types.ID `json:"passenger_ids"`
	Link                 string     `json:"link"`
	Optimized            bool       `json:"optimized"`
	TotalDurationSeconds *int64     `json:"total_duration_seconds,omitempty"`
	TotalDuration        string     `json:"total_duration"`
}

type trackResponse struct {
	Outcome        route.Outcome `json:"outcome"`
	Seq            uint64        `json:"seq"`
	PassengerID    types.ID      `json:"passenger_id,omitempty"`
	ETASeconds     int64         `json:"eta_seconds,omitempty"`
	DistanceMeters int           `json:"distance_meters,omitempty"`
}

// Open starts a route for the calling driver.
func (h *RouteHandler) Open(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "origin is required")
		return
	}
	snap, err := h.routes.OpenRoute(c.Request.Context(), route.OpenCommand{
		DriverID: types.ID(middleware.CallerUID(c)),
		Origin:   req.Origin,
	})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, snap)
}

func (h *RouteHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "location is required")
		return
	}
	out, err := h.routes.Join(c.Request.Context(), route.JoinCommand{
		PassengerID: types.ID(middleware.CallerUID(c)),
		Location:    req.Location,
	})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, joinResponse{
		DriverID:             out.DriverID,
		Accepted:             out.Accepted,
		Reason:               out.Reason,
		Position:             out.Position,
		TotalDurationSeconds: seconds(out.TotalDuration),
	})
}

func (h *RouteHandler) Finish(c *gin.Context) {
	sum, err := h.routes.Finish(c.Request.Context(), route.FinishCommand{
		DriverID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, finishResponse{
		DriverID:             sum.DriverID,
		PhaseID:              sum.PhaseID,
		PassengerIDs:         sum.PassengerIDs,
		Link:                 sum.Link,
		Optimized:            sum.Optimized,
		TotalDurationSeconds: seconds(sum.TotalDuration),
		TotalDuration:        route.FormatDuration(sum.TotalDuration),
	})
}

// Location accepts one driver tick. Ticks are fire-and-forget for the
// client, hence 202 even when no ETA could be computed.
func (h *RouteHandler) Location(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lon are required")
		return
	}
	res, err := h.routes.UpdateLocation(c.Request.Context(), route.LocationCommand{
		DriverID: types.ID(middleware.CallerUID(c)),
		Lat:      *req.Lat,
		Lng:      *req.Lon,
		Seq:      req.Seq,
	})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, trackResponse{
		Outcome:        res.Outcome,
		Seq:            res.Seq,
		PassengerID:    res.PassengerID,
		ETASeconds:     int64(res.ETA.Seconds()),
		DistanceMeters: res.DistanceMeters,
	})
}

func (h *RouteHandler) ETA(c *gin.Context) {
	rep, err := h.routes.ETAReport(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rep)
}
