package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smarthome/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      List appliance events
// @Description  Filter history by appliance, date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD') and status. If 'to' is date-only, it is treated as end-of-day inclusive (23:59:59.999999999Z). Results are oldest first.
// @Tags         events
// @Produce      json
// @Param        appliance_id  query     int     false  "Restrict to one appliance"
// @Param        from          query     string  false  "Start of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD')"  example(2025-08-01)
// @Param        to            query     string  false  "End of range (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). Date-only treated as end of day."  example(2025-08-31)
// @Param        status        query     string  false  "Event status"  Enums(on,off,data)
// @Param        limit         query     int     false  "Max events (default 500, max 1000)"
// @Success      200           {object}  map[string]interface{}  "count, events"
// @Failure      400           {object}  map[string]string
// @Failure      401           {object}  map[string]string
// @Failure      404           {object}  map[string]string
// @Failure      503           {object}  map[string]string
// @Router       /api/v1/events [get]
// @Security     BearerAuth
func (h *Handler) getEvents(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		from time.Time
		to   time.Time
		// Normalize status: trim spaces and lowercase to match stored values.
		status = strings.ToLower(strings.TrimSpace(c.Query("status")))
		err    error
	)
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	// If only a date is provided for 'to', make it end-of-day inclusive.
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}

	var applianceID int64
	if qs := c.Query("appliance_id"); qs != "" {
		applianceID, err = strconv.ParseInt(qs, 10, 64)
		if err != nil || applianceID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'appliance_id' parameter"})
			return
		}
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	events, err := h.services.EventLog.List(ctx, currentUserID(c), service.LogFilter{
		ApplianceID: applianceID,
		From:        from,
		To:          to,
		Status:      status,
		Limit:       limit,
	})
	if err != nil {
		h.respondError(c, err, "events_list_failed",
			"appliance_id", applianceID, "from", from, "to", to, "status", status)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Recent events
// @Description  Notification feed across every visible appliance, newest first.
// @Tags         events
// @Produce      json
// @Param        limit  query     int  false  "Max events (default 20, max 100)"
// @Success      200    {object}  map[string]interface{}  "count, events"
// @Failure      400    {object}  map[string]string
// @Router       /api/v1/events/recent [get]
// @Security     BearerAuth
func (h *Handler) getRecentEvents(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	events, err := h.services.EventLog.Recent(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		h.respondError(c, err, "events_recent_failed", "limit", limit)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Daily usage
// @Description  Per-day power total and on/off counts over every visible appliance.
// @Tags         analytics
// @Produce      json
// @Param        days  query     int  false  "Window in days (default 30, max 365)"
// @Success      200   {object}  map[string]interface{}  "count, usage"
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/analytics/usage [get]
// @Security     BearerAuth
func (h *Handler) getDailyUsage(c *gin.Context) {
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	usage, err := h.services.Analytics.Daily(c.Request.Context(), currentUserID(c), days)
	if err != nil {
		h.respondError(c, err, "analytics_usage_failed", "days", days)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(usage),
		"usage": usage,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	// Try multiple accepted formats, normalizing to UTC.
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
