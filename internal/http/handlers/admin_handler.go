// README: Administrative route endpoints (listing, details, forced end, report, audit history).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/route"
	"carpool/internal/types"
)

type AdminHandler struct {
	routes *route.Service
}

func NewAdminHandler(svc *route.Service) *AdminHandler {
	return &AdminHandler{routes: svc}
}

func (h *AdminHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"routes": h.routes.Routes()})
}

func (h *AdminHandler) Get(c *gin.Context) {
	id, ok := driverParam(c)
	if !ok {
		return
	}
	snap, err := h.routes.Route(id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *AdminHandler) End(c *gin.Context) {
	id, ok := driverParam(c)
	if !ok {
		return
	}
	snap, err := h.routes.End(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (h *AdminHandler) Report(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.routes.Report())
}

func (h *AdminHandler) History(c *gin.Context) {
	id, ok := driverParam(c)
	if !ok {
		return
	}
	evs, err := h.routes.History(c.Request.Context(), id, queryInt(c, "limit", 100))
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": evs})
}

func driverParam(c *gin.Context) (types.ID, bool) {
	id := c.Param("driverID")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return "", false
	}
	return types.ID(id), true
}
