package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"smarthome/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidBodyPref = "invalid body: "
	errInvalidID       = "invalid id"
	errNotFound        = "not found"
	errUnavailable     = "temporarily unavailable, retry later"
	errInternal        = "internal error"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if httpCode >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// statusFor maps the service error taxonomy onto HTTP. Not-found bodies are
// generic so they never reveal whether a row exists.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, errNotFound
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable, errUnavailable
	default:
		return http.StatusInternalServerError, errInternal
	}
}

func (h *Handler) respondError(c *gin.Context, err error, logKey string, kv ...interface{}) {
	code, msg := statusFor(err)
	h.logAndJSONError(c, code, msg, logKey, err, kv...)
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled (aborted), true otherwise.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("bad_request_body", "path", c.FullPath(), "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return false
	}
	return true
}

// bindOptionalJSON is bindJSONOrBadRequest for endpoints whose body may be empty.
func (h *Handler) bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return h.bindJSONOrBadRequest(c, dst)
}

// parseIDParam reads a positive integer path parameter and writes a 400 on failure.
func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidID})
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter. Missing means zero.
func queryInt(c *gin.Context, name string) (int, bool) {
	s := c.Query(name)
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + name + "' parameter"})
		return 0, false
	}
	return v, true
}
