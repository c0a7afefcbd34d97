package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyRateLimiter stores a token bucket per device.
type KeyRateLimiter struct {
	limiters map[int64]*rate.Limiter
	mu       sync.RWMutex
	r        rate.Limit
	b        int
}

// NewKeyRateLimiter creates a limiter allowing r events per second with burst b per key.
func NewKeyRateLimiter(r rate.Limit, b int) *KeyRateLimiter {
	return &KeyRateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		r:        r,
		b:        b,
	}
}

// Get returns the limiter for key, creating it on first use.
func (l *KeyRateLimiter) Get(key int64) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists = l.limiters[key]; !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow reports whether one more event for key fits in its bucket.
func (l *KeyRateLimiter) Allow(key int64) bool {
	return l.Get(key).Allow()
}

// TelemetryRequest is one power reading pushed by a device.
type TelemetryRequest struct {
	PowerUsage *float64 `json:"power_usage" binding:"required" example:"950.5"`
}

// @Summary      Push device telemetry
// @Description  Authenticated with the device key as a Bearer token. Records a data event without changing the appliance state.
// @Tags         telemetry
// @Accept       json
// @Produce      json
// @Param        id    path      int               true  "Appliance ID"
// @Param        body  body      TelemetryRequest  true  "Reading"
// @Success      202   {object}  models.ApplianceEvent
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /api/v1/devices/{id}/data [post]
func (h *Handler) ingestTelemetry(c *gin.Context) {
	applianceID := c.GetInt64(ctxApplianceID)
	if !h.limiter.Allow(applianceID) {
		if h.log != nil {
			h.log.Warnw("telemetry_rate_limited", "appliance_id", applianceID)
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	var req TelemetryRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	ev, err := h.services.Telemetry.Ingest(c.Request.Context(), applianceID, *req.PowerUsage)
	if err != nil {
		h.respondError(c, err, "telemetry_ingest_failed", "appliance_id", applianceID)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}
