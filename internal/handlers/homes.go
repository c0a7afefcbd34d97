package handlers

import (
	"net/http"

	"smarthome/internal/models"
	"smarthome/internal/service"

	"github.com/gin-gonic/gin"
)

type createHomeRequest struct {
	Name string `json:"name" binding:"required"`
}

// AddMemberRequest identifies the user by id or, when user_id is zero, by username.
type AddMemberRequest struct {
	UserID   int64  `json:"user_id,omitempty" example:"5"`
	Username string `json:"username,omitempty" example:"alice"`
	// Allowed: admin, member, guest. Defaults to member.
	Role string `json:"role,omitempty" example:"member"`
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type securityPinRequest struct {
	Pin string `json:"pin"`
}

// @Summary      Create home
// @Description  The caller becomes the owner.
// @Tags         homes
// @Accept       json
// @Produce      json
// @Param        body  body      createHomeRequest  true  "Home"
// @Success      201   {object}  models.Home
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/homes [post]
// @Security     BearerAuth
func (h *Handler) createHome(c *gin.Context) {
	var req createHomeRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	home, err := h.services.Homes.CreateHome(c.Request.Context(), currentUserID(c), req.Name)
	if err != nil {
		h.respondError(c, err, "home_create_failed", "name", req.Name)
		return
	}
	c.JSON(http.StatusCreated, home)
}

// @Summary      List my homes
// @Tags         homes
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, homes"
// @Router       /api/v1/homes [get]
// @Security     BearerAuth
func (h *Handler) listHomes(c *gin.Context) {
	homes, err := h.services.Homes.ListHomes(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "home_list_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(homes),
		"homes": homes,
	})
}

// @Summary      List home members
// @Tags         homes
// @Produce      json
// @Param        id   path      int  true  "Home ID"
// @Success      200  {object}  map[string]interface{}  "count, members"
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/homes/{id}/members [get]
// @Security     BearerAuth
func (h *Handler) listMembers(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	members, err := h.services.Homes.ListMembers(c.Request.Context(), currentUserID(c), homeID)
	if err != nil {
		h.respondError(c, err, "member_list_failed", "home_id", homeID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(members),
		"members": members,
	})
}

// @Summary      Add home member
// @Tags         homes
// @Accept       json
// @Produce      json
// @Param        id    path      int               true  "Home ID"
// @Param        body  body      AddMemberRequest  true  "Member"
// @Success      201   {object}  models.HomeMember
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/homes/{id}/members [post]
// @Security     BearerAuth
func (h *Handler) addMember(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req AddMemberRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	m, err := h.services.Homes.AddMember(c.Request.Context(), currentUserID(c), homeID, service.AddMemberInput{
		UserID:   req.UserID,
		Username: req.Username,
		Role:     req.Role,
	})
	if err != nil {
		h.respondError(c, err, "member_add_failed", "home_id", homeID, "role", req.Role)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// @Summary      Change member role
// @Tags         homes
// @Accept       json
// @Produce      json
// @Param        id    path      int                true  "Member ID"
// @Param        body  body      updateRoleRequest  true  "Role"
// @Success      200   {object}  models.HomeMember
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/members/{id} [put]
// @Security     BearerAuth
func (h *Handler) updateMemberRole(c *gin.Context) {
	memberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	m, err := h.services.Homes.UpdateMemberRole(c.Request.Context(), currentUserID(c), memberID, req.Role)
	if err != nil {
		h.respondError(c, err, "member_role_failed", "member_id", memberID, "role", req.Role)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary      Remove member
// @Description  Managers remove members; any member may remove themselves except the owner.
// @Tags         homes
// @Param        id   path  int  true  "Member ID"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/members/{id} [delete]
// @Security     BearerAuth
func (h *Handler) removeMember(c *gin.Context) {
	memberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.services.Homes.RemoveMember(c.Request.Context(), currentUserID(c), memberID); err != nil {
		h.respondError(c, err, "member_remove_failed", "member_id", memberID)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      List member permissions
// @Tags         permissions
// @Produce      json
// @Param        id   path      int  true  "Member ID"
// @Success      200  {object}  map[string]interface{}  "count, permissions"
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/members/{id}/permissions [get]
// @Security     BearerAuth
func (h *Handler) listPermissions(c *gin.Context) {
	memberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	perms, err := h.services.Homes.ListPermissions(c.Request.Context(), currentUserID(c), memberID)
	if err != nil {
		h.respondError(c, err, "permission_list_failed", "member_id", memberID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(perms),
		"permissions": perms,
	})
}

// @Summary      Grant appliance permission
// @Description  Replaces any existing grant for the member on the appliance.
// @Tags         permissions
// @Accept       json
// @Produce      json
// @Param        id           path      int                  true  "Member ID"
// @Param        applianceId  path      int                  true  "Appliance ID"
// @Param        body         body      models.Capabilities  true  "Flags"
// @Success      200          {object}  models.Permission
// @Failure      400          {object}  map[string]string
// @Failure      403          {object}  map[string]string
// @Failure      404          {object}  map[string]string
// @Router       /api/v1/members/{id}/permissions/{applianceId} [put]
// @Security     BearerAuth
func (h *Handler) grantPermission(c *gin.Context) {
	memberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	applianceID, ok := parseIDParam(c, "applianceId")
	if !ok {
		return
	}
	var caps models.Capabilities
	if !h.bindJSONOrBadRequest(c, &caps) {
		return
	}
	p, err := h.services.Homes.GrantPermission(c.Request.Context(), currentUserID(c), memberID, applianceID, caps)
	if err != nil {
		h.respondError(c, err, "permission_grant_failed", "member_id", memberID, "appliance_id", applianceID)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Revoke appliance permission
// @Tags         permissions
// @Param        id           path  int  true  "Member ID"
// @Param        applianceId  path  int  true  "Appliance ID"
// @Success      204
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/members/{id}/permissions/{applianceId} [delete]
// @Security     BearerAuth
func (h *Handler) revokePermission(c *gin.Context) {
	memberID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	applianceID, ok := parseIDParam(c, "applianceId")
	if !ok {
		return
	}
	if err := h.services.Homes.RevokePermission(c.Request.Context(), currentUserID(c), memberID, applianceID); err != nil {
		h.respondError(c, err, "permission_revoke_failed", "member_id", memberID, "appliance_id", applianceID)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary      Set security PIN
// @Description  Owner only. 4 to 8 digits; an empty pin clears it.
// @Tags         homes
// @Accept       json
// @Param        id    path  int                 true  "Home ID"
// @Param        body  body  securityPinRequest  true  "PIN"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/homes/{id}/security-pin [put]
// @Security     BearerAuth
func (h *Handler) setSecurityPin(c *gin.Context) {
	homeID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req securityPinRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	if err := h.services.Homes.SetSecurityPin(c.Request.Context(), currentUserID(c), homeID, req.Pin); err != nil {
		// never log the pin itself
		h.respondError(c, err, "security_pin_failed", "home_id", homeID)
		return
	}
	c.Status(http.StatusNoContent)
}
