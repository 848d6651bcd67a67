// README: Admin handlers that trigger lifecycle jobs on demand.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/service"
)

type AdminHandler struct {
	lifecycle *service.LifecycleService
}

func NewAdminHandler(lifecycle *service.LifecycleService) *AdminHandler {
	return &AdminHandler{lifecycle: lifecycle}
}

func (h *AdminHandler) AutoComplete(c *gin.Context) {
	n, err := h.lifecycle.AutoCompleteTrips(c.Request.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"job": service.JobAutoComplete, "affected": n})
}

// ExpirePending accepts an optional ?ttl_hours= override.
func (h *AdminHandler) ExpirePending(c *gin.Context) {
	ttl := h.lifecycle.PendingTTLHours
	if v := c.Query("ttl_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid ttl_hours")
			return
		}
		ttl = n
	}
	n, err := h.lifecycle.ExpirePendingBookings(c.Request.Context(), ttl)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"job": service.JobExpirePending, "affected": n})
}
