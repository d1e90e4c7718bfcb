// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/maps"
	"carpool/internal/modules/location"
	"carpool/internal/modules/route"
	"carpool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the uid shapes Firebase and our dev tokens produce.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRouteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, route.ErrBadRequest), errors.Is(err, types.ErrInvalidPoint):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, route.ErrNotFound), errors.Is(err, route.ErrNoETA), errors.Is(err, location.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, route.ErrAlreadyClosed), errors.Is(err, route.ErrNoOpenRoute), errors.Is(err, route.ErrStaleTick):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, maps.ErrProvider), errors.Is(err, maps.ErrNotFound), errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusBadGateway, "routing provider unavailable")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func seconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Seconds())
	return &s
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
