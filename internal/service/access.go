package service

import (
	"context"
	"errors"

	"smarthome/internal/models"
	"smarthome/internal/repository"
)

// Capability is something a user may do with an appliance.
type Capability int

const (
	CapView Capability = iota
	CapControl
	CapSchedule
	CapManage // register, edit, delete, provision keys, grant
)

func (c Capability) String() string {
	switch c {
	case CapView:
		return "view"
	case CapControl:
		return "control"
	case CapSchedule:
		return "schedule"
	case CapManage:
		return "manage"
	}
	return "unknown"
}

// Access is the resolved capability set of one user on one appliance.
type Access interface {
	Allows(c Capability) bool
	Member() models.HomeMember
}

// implicitAccess belongs to owners and admins: everything, on every appliance of the home.
type implicitAccess struct {
	member models.HomeMember
}

func (a implicitAccess) Allows(Capability) bool     { return true }
func (a implicitAccess) Member() models.HomeMember { return a.member }

// grantAccess is exactly the explicit grant row; a missing row grants nothing.
// Any granted flag implies the appliance is visible.
type grantAccess struct {
	member models.HomeMember
	caps   models.Capabilities
}

func (a grantAccess) Member() models.HomeMember { return a.member }

func (a grantAccess) Allows(c Capability) bool {
	switch c {
	case CapView:
		return a.caps.CanView || a.caps.CanControl || a.caps.CanSchedule
	case CapControl:
		return a.caps.CanControl
	case CapSchedule:
		return a.caps.CanSchedule
	}
	return false
}

// AccessSummary is the client-facing form of Access.
type AccessSummary struct {
	ApplianceID int64  `json:"appliance_id"`
	Role        string `json:"role"`
	CanView     bool   `json:"can_view"`
	CanControl  bool   `json:"can_control"`
	CanSchedule bool   `json:"can_schedule"`
	CanManage   bool   `json:"can_manage"`
}

func summarize(applianceID int64, a Access) AccessSummary {
	return AccessSummary{
		ApplianceID: applianceID,
		Role:        a.Member().Role,
		CanView:     a.Allows(CapView),
		CanControl:  a.Allows(CapControl),
		CanSchedule: a.Allows(CapSchedule),
		CanManage:   a.Allows(CapManage),
	}
}

type accessResolver struct {
	appliances  repository.ApplianceRepo
	homes       repository.HomeRepo
	permissions repository.PermissionRepo
}

func newAccessResolver(repos *repository.Repository) *accessResolver {
	return &accessResolver{
		appliances:  repos.Appliances,
		homes:       repos.Homes,
		permissions: repos.Permissions,
	}
}

// resolve loads the appliance and the user's access to it. A user who is not
// a member of the appliance's home gets ErrNotFound, same as a missing appliance.
func (r *accessResolver) resolve(ctx context.Context, userID, applianceID int64) (models.Appliance, Access, error) {
	a, err := r.appliances.Get(ctx, applianceID)
	if err != nil {
		return models.Appliance{}, nil, storeErr("appliance", err)
	}
	m, err := r.homes.GetMembership(ctx, a.HomeID, userID)
	if err != nil {
		return models.Appliance{}, nil, storeErr("appliance", err)
	}
	if m.IsManager() {
		return a, implicitAccess{member: m}, nil
	}
	p, err := r.permissions.Get(ctx, m.ID, a.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return a, grantAccess{member: m}, nil
	case err != nil:
		return models.Appliance{}, nil, storeErr("permission", err)
	}
	return a, grantAccess{member: m, caps: p.Capabilities}, nil
}

// require resolves access and checks capability c. Appliances the user cannot
// even view are reported as not found.
func (r *accessResolver) require(ctx context.Context, userID, applianceID int64, c Capability) (models.Appliance, Access, error) {
	a, acc, err := r.resolve(ctx, userID, applianceID)
	if err != nil {
		return models.Appliance{}, nil, err
	}
	if !acc.Allows(CapView) {
		return models.Appliance{}, nil, notFoundf("appliance")
	}
	if !acc.Allows(c) {
		return models.Appliance{}, nil, deniedf("missing %s capability on appliance %d", c, applianceID)
	}
	return a, acc, nil
}

// membership returns the user's membership in a home, or ErrNotFound.
func (r *accessResolver) membership(ctx context.Context, userID, homeID int64) (models.HomeMember, error) {
	m, err := r.homes.GetMembership(ctx, homeID, userID)
	if err != nil {
		return models.HomeMember{}, storeErr("home", err)
	}
	return m, nil
}

// requireManager is membership plus the owner/admin role.
func (r *accessResolver) requireManager(ctx context.Context, userID, homeID int64) (models.HomeMember, error) {
	m, err := r.membership(ctx, userID, homeID)
	if err != nil {
		return models.HomeMember{}, err
	}
	if !m.IsManager() {
		return models.HomeMember{}, deniedf("owner or admin role required in home %d", homeID)
	}
	return m, nil
}
