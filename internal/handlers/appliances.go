package handlers

import (
	"net/http"

	"smarthome/internal/service"

	"github.com/gin-gonic/gin"
)

const statusOK = "ok"

// RegisterApplianceRequest is the payload for adding an appliance to a home.
type RegisterApplianceRequest struct {
	HomeID     int64          `json:"home_id" binding:"required" example:"1"`
	Name       string         `json:"name" binding:"required" example:"Kitchen kettle"`
	DeviceType string         `json:"device_type,omitempty" example:"kettle"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	PowerUsage *float64       `json:"power_usage,omitempty" example:"1800"`
}

// UpdateApplianceRequest holds optional edits; omitted fields stay unchanged.
type UpdateApplianceRequest struct {
	Name       *string        `json:"name,omitempty"`
	DeviceType *string        `json:"device_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToggleRequest sets an explicit status, or flips the current one when empty.
type ToggleRequest struct {
	Status     string   `json:"status,omitempty" example:"on"`
	PowerUsage *float64 `json:"power_usage,omitempty" example:"1200"`
}

type deleteApplianceRequest struct {
	SecurityPin string `json:"security_pin"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Register appliance
// @Tags         appliances
// @Accept       json
// @Produce      json
// @Param        body  body      RegisterApplianceRequest  true  "Appliance"
// @Success      201   {object}  models.Appliance
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/appliances [post]
// @Security     BearerAuth
func (h *Handler) registerAppliance(c *gin.Context) {
	var req RegisterApplianceRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	a, err := h.services.Appliances.Register(c.Request.Context(), currentUserID(c), service.RegisterApplianceInput{
		HomeID:     req.HomeID,
		Name:       req.Name,
		DeviceType: req.DeviceType,
		Metadata:   req.Metadata,
		PowerUsage: req.PowerUsage,
	})
	if err != nil {
		h.respondError(c, err, "appliance_register_failed", "home_id", req.HomeID)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// @Summary      List appliances of a home
// @Tags         appliances
// @Produce      json
// @Param        id   path      int  true  "Home ID"
// @Success      200  {object}  map[string]interface{}  "count, appliances"
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/homes/{id}/appliances [get]
// @Security     BearerAuth
func (h *Handler) listAppliances(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	list, err := h.services.Appliances.List(c.Request.Context(), currentUserID(c), homeID)
	if err != nil {
		h.respondError(c, err, "appliance_list_failed", "home_id", homeID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      len(list),
		"appliances": list,
	})
}

// @Summary      Get appliance
// @Tags         appliances
// @Produce      json
// @Param        id   path      int  true  "Appliance ID"
// @Success      200  {object}  models.Appliance
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/appliances/{id} [get]
// @Security     BearerAuth
func (h *Handler) getAppliance(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	a, err := h.services.Appliances.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "appliance_get_failed", "appliance_id", id)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Update appliance
// @Tags         appliances
// @Accept       json
// @Produce      json
// @Param        id    path      int                     true  "Appliance ID"
// @Param        body  body      UpdateApplianceRequest  true  "Changes"
// @Success      200   {object}  models.Appliance
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/appliances/{id} [put]
// @Security     BearerAuth
func (h *Handler) updateAppliance(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateApplianceRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	a, err := h.services.Appliances.Update(c.Request.Context(), currentUserID(c), id, service.UpdateApplianceInput{
		Name:       req.Name,
		DeviceType: req.DeviceType,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.respondError(c, err, "appliance_update_failed", "appliance_id", id)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Delete appliance
// @Description  Homes with a security PIN require {"security_pin": "..."} in the body.
// @Tags         appliances
// @Accept       json
// @Param        id   path  int  true  "Appliance ID"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/appliances/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteAppliance(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req deleteApplianceRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	if err := h.services.Appliances.Delete(c.Request.Context(), currentUserID(c), id, req.SecurityPin); err != nil {
		h.respondError(c, err, "appliance_delete_failed", "appliance_id", id)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Toggle appliance
// @Description  Empty status flips the current state. Turning on an appliance that is already on keeps its session start.
// @Tags         appliances
// @Accept       json
// @Produce      json
// @Param        id    path      int            true   "Appliance ID"
// @Param        body  body      ToggleRequest  false  "Target state"
// @Success      200   {object}  models.Appliance
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/appliances/{id}/toggle [post]
// @Security     BearerAuth
func (h *Handler) toggleAppliance(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ToggleRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	a, err := h.services.Appliances.Toggle(c.Request.Context(), currentUserID(c), service.ToggleInput{
		ApplianceID: id,
		Status:      req.Status,
		PowerUsage:  req.PowerUsage,
	})
	if err != nil {
		h.respondError(c, err, "appliance_toggle_failed", "appliance_id", id, "status", req.Status)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary      Effective access on an appliance
// @Tags         appliances
// @Produce      json
// @Param        id   path      int  true  "Appliance ID"
// @Success      200  {object}  service.AccessSummary
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/appliances/{id}/access [get]
// @Security     BearerAuth
func (h *Handler) applianceAccess(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	sum, err := h.services.Appliances.Access(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "appliance_access_failed", "appliance_id", id)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// @Summary      Appliance activity
// @Tags         appliances
// @Produce      json
// @Param        id     path      int  true   "Appliance ID"
// @Param        limit  query     int  false  "Max events (default 20, max 100)"
// @Success      200    {object}  map[string]interface{}  "count, events"
// @Failure      404    {object}  map[string]string
// @Router       /api/v1/appliances/{id}/activity [get]
// @Security     BearerAuth
func (h *Handler) applianceActivity(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	events, err := h.services.Appliances.Activity(c.Request.Context(), currentUserID(c), id, limit)
	if err != nil {
		h.respondError(c, err, "appliance_activity_failed", "appliance_id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// @Summary      Appliance usage stats
// @Tags         analytics
// @Produce      json
// @Param        id    path      int  true   "Appliance ID"
// @Param        days  query     int  false  "Window in days (default 30, max 365)"
// @Success      200   {object}  models.ApplianceStats
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/appliances/{id}/stats [get]
// @Security     BearerAuth
func (h *Handler) applianceStats(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	st, err := h.services.Analytics.ApplianceStats(c.Request.Context(), currentUserID(c), id, days)
	if err != nil {
		h.respondError(c, err, "appliance_stats_failed", "appliance_id", id, "days", days)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Provision device key
// @Description  Returns a new device key once. Any previous key for the appliance stops working.
// @Tags         telemetry
// @Produce      json
// @Param        id   path      int  true  "Appliance ID"
// @Success      201  {object}  service.ProvisionedKey
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/appliances/{id}/device-key [post]
// @Security     BearerAuth
func (h *Handler) provisionDeviceKey(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	key, err := h.services.Telemetry.ProvisionKey(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "device_key_provision_failed", "appliance_id", id)
		return
	}
	if h.log != nil {
		h.log.Infow("device_key_provisioned", "appliance_id", id, "user_id", currentUserID(c))
	}
	c.JSON(http.StatusCreated, key)
}
