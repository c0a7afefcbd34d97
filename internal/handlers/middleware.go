package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID      = "userId"
	ctxApplianceID = "deviceApplianceId"
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
// It writes a 401 and returns false when the header is missing or malformed.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func (h *Handler) userIdMiddleware(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		return
	}

	userId, err := h.services.ParseToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	// store in Gin context
	c.Set(ctxUserID, userId)
	c.Next()
}

// deviceKeyMiddleware authenticates a device key and checks it belongs to
// the appliance in the path.
func (h *Handler) deviceKeyMiddleware(c *gin.Context) {
	key, ok := bearerToken(c)
	if !ok {
		return
	}
	pathID, ok := parseIDParam(c, "id")
	if !ok {
		c.Abort()
		return
	}

	applianceID, err := h.services.Telemetry.Authenticate(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err, "device_auth_failed", "appliance_id", pathID)
		c.Abort()
		return
	}
	if applianceID != pathID {
		if h.log != nil {
			h.log.Warnw("device_key_mismatch", "appliance_id", pathID, "key_appliance_id", applianceID)
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "device key does not match appliance"})
		return
	}

	c.Set(ctxApplianceID, applianceID)
	c.Next()
}

// currentUserID returns the authenticated user set by userIdMiddleware.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
