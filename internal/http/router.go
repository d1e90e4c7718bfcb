// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/logger"
	"carpool/internal/modules/route"
	"carpool/internal/types"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	routeHandler := handlers.NewRouteHandler(deps.Routes)
	driver := middleware.RequireRole("driver")
	api.POST("/routes", driver, routeHandler.Open)
	api.POST("/routes/join", middleware.RequireRole("passenger"), routeHandler.Join)
	api.POST("/routes/finish", driver, routeHandler.Finish)
	api.PUT("/routes/location", driver, routeHandler.Location)
	api.GET("/routes/eta", driver, routeHandler.ETA)

	adminHandler := handlers.NewAdminHandler(deps.Routes)
	admin := api.Group("/admin", middleware.RequireRole("admin"))
	admin.GET("/routes", adminHandler.List)
	admin.GET("/routes/:driverID", adminHandler.Get)
	admin.POST("/routes/:driverID/end", adminHandler.End)
	admin.GET("/routes/:driverID/events", adminHandler.History)
	admin.GET("/report", adminHandler.Report)

	locationHandler := handlers.NewLocationHandler(deps.Location)
	api.GET("/drivers/nearby", middleware.RequireRole("admin", "passenger"), locationHandler.Nearby)
	api.GET("/drivers/:driverID/position", middleware.RequireRole("admin", "passenger", "driver"), locationHandler.Position)

	if deps.Hub != nil {
		r.GET("/ws/routes/:driverID", middleware.Auth(deps.Verifier), func(c *gin.Context) {
			id := types.ID(c.Param("driverID"))
			if !canWatch(c, deps.Routes, id) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: not your route"})
				return
			}
			deps.Hub.Serve(c.Writer, c.Request, id)
		})
	}
	return r
}

// canWatch admits admins, the route's driver and the passengers riding it.
func canWatch(c *gin.Context, routes *route.Service, driverID types.ID) bool {
	uid := types.ID(middleware.CallerUID(c))
	switch middleware.CallerRole(c) {
	case "admin":
		return true
	case "driver":
		return uid == driverID
	case "passenger":
		if routes == nil {
			return false
		}
		snap, err := routes.Route(driverID)
		if err != nil {
			return false
		}
		for _, pid := range snap.PassengerIDs {
			if pid == uid {
				return true
			}
		}
	}
	return false
}
