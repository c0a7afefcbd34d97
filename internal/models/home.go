package models

import "time"

// Member roles.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleGuest  = "guest"
)

type Home struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	OwnerID         int64     `json:"owner_id"`
	SecurityPinHash string    `json:"-"`
	HasSecurityPin  bool      `json:"has_security_pin"` // clients prompt for the PIN before deletes
	CreatedAt       time.Time `json:"created_at"`
}

// HasPin reports whether destructive operations require a security PIN.
func (h Home) HasPin() bool { return h.SecurityPinHash != "" }

type HomeMember struct {
	ID       int64  `json:"id"`
	HomeID   int64  `json:"home_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

// IsManager reports whether the role implicitly holds every capability
// on every appliance of the home.
func (m HomeMember) IsManager() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// Capabilities are the explicit per-appliance grant flags.
type Capabilities struct {
	CanView     bool `json:"can_view"`
	CanControl  bool `json:"can_control"`
	CanSchedule bool `json:"can_schedule"`
}

// Permission grants a member capabilities on one appliance.
type Permission struct {
	ID           int64 `json:"id"`
	HomeMemberID int64 `json:"home_member_id"`
	ApplianceID  int64 `json:"appliance_id"`
	Capabilities
}

// ValidRole reports whether role is one of the known member roles.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}
