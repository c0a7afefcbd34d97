package handlers

import (
	"net/http"

	"smarthome/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateScheduleRequest is an exported model for Swagger docs of the create payload.
type CreateScheduleRequest struct {
	ApplianceID int64 `json:"appliance_id" binding:"required" example:"3"`
	// Action to apply. Allowed: on, off
	Action string `json:"action" binding:"required" example:"on"`
	// Five-field cron expression evaluated in Timezone
	CronExpression string `json:"cron_expression" binding:"required" example:"30 7 * * 1-5"`
	// IANA zone name, UTC when empty
	Timezone string `json:"timezone,omitempty" example:"Europe/Berlin"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// UpdateScheduleRequest holds optional edits; omitted fields stay unchanged.
type UpdateScheduleRequest struct {
	Action         *string `json:"action,omitempty"`
	CronExpression *string `json:"cron_expression,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
}

// @Summary      Create schedule
// @Description  Cron expression and timezone are validated before anything is stored.
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        body  body      CreateScheduleRequest  true  "Schedule"
// @Success      201   {object}  models.Schedule
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/schedules [post]
// @Security     BearerAuth
func (h *Handler) createSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	sch, err := h.services.Schedules.Create(c.Request.Context(), currentUserID(c), service.CreateScheduleInput{
		ApplianceID:    req.ApplianceID,
		Action:         req.Action,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.respondError(c, err, "schedule_create_failed",
			"appliance_id", req.ApplianceID, "cron", req.CronExpression, "timezone", req.Timezone)
		return
	}
	c.JSON(http.StatusCreated, sch)
}

// @Summary      Update schedule
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        id    path      int                    true  "Schedule ID"
// @Param        body  body      UpdateScheduleRequest  true  "Changes"
// @Success      200   {object}  models.Schedule
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/schedules/{id} [put]
// @Security     BearerAuth
func (h *Handler) updateSchedule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateScheduleRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	sch, err := h.services.Schedules.Update(c.Request.Context(), currentUserID(c), id, service.UpdateScheduleInput{
		Action:         req.Action,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.respondError(c, err, "schedule_update_failed", "schedule_id", id)
		return
	}
	c.JSON(http.StatusOK, sch)
}

// @Summary      Delete schedule
// @Tags         schedules
// @Param        id   path  int  true  "Schedule ID"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/schedules/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteSchedule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Schedules.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		h.respondError(c, err, "schedule_delete_failed", "schedule_id", id)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      List schedules of an appliance
// @Tags         schedules
// @Produce      json
// @Param        id   path      int  true  "Appliance ID"
// @Success      200  {object}  map[string]interface{}  "count, schedules"
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/appliances/{id}/schedules [get]
// @Security     BearerAuth
func (h *Handler) listApplianceSchedules(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	list, err := h.services.Schedules.ListForAppliance(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.respondError(c, err, "schedule_list_failed", "appliance_id", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(list),
		"schedules": list,
	})
}

// @Summary      List active schedules
// @Description  Active schedules on every appliance the caller can see.
// @Tags         schedules
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, schedules"
// @Router       /api/v1/schedules/active [get]
// @Security     BearerAuth
func (h *Handler) listActiveSchedules(c *gin.Context) {
	list, err := h.services.Schedules.ListActive(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "schedule_list_active_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(list),
		"schedules": list,
	})
}
