package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"smarthome/internal/logger"
	"smarthome/internal/models"
	"smarthome/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// HomeService manages homes, their members and per-appliance grants.
type HomeService struct {
	homes       repository.HomeRepo
	permissions repository.PermissionRepo
	users       repository.Authorization
	access      *accessResolver
	log         *logger.Logger
}

func NewHomeService(repos *repository.Repository, log *logger.Logger) *HomeService {
	return &HomeService{
		homes:       repos.Homes,
		permissions: repos.Permissions,
		users:       repos.Auth,
		access:      newAccessResolver(repos),
		log:         log,
	}
}

// CreateHome creates a home owned by the actor.
func (s *HomeService) CreateHome(ctx context.Context, actorID int64, name string) (models.Home, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Home{}, validationf("name is required")
	}
	h, err := s.homes.CreateHome(ctx, name, actorID)
	if err != nil {
		return models.Home{}, storeErr("create home", err)
	}
	return h, nil
}

// ListHomes returns every home the actor belongs to, flagged with whether
// deletes there need the security PIN.
func (s *HomeService) ListHomes(ctx context.Context, actorID int64) ([]models.Home, error) {
	ids, err := s.homes.HomeIDsForUser(ctx, actorID)
	if err != nil {
		return nil, storeErr("list homes", err)
	}
	out := make([]models.Home, 0, len(ids))
	for _, id := range ids {
		h, err := s.homes.GetHome(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr("list homes", err)
		}
		h.HasSecurityPin = h.HasPin()
		out = append(out, h)
	}
	return out, nil
}

func (s *HomeService) ListMembers(ctx context.Context, actorID, homeID int64) ([]models.HomeMember, error) {
	if _, err := s.access.membership(ctx, actorID, homeID); err != nil {
		return nil, err
	}
	members, err := s.homes.ListMembers(ctx, homeID)
	if err != nil {
		return nil, storeErr("list members", err)
	}
	return members, nil
}

// AddMember invites an existing user. Only the owner may add admins.
func (s *HomeService) AddMember(ctx context.Context, actorID, homeID int64, in AddMemberInput) (models.HomeMember, error) {
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = models.RoleMember
	}
	if !models.ValidRole(role) || role == models.RoleOwner {
		return models.HomeMember{}, validationf("role must be admin, member or guest")
	}
	if in.UserID == 0 && strings.TrimSpace(in.Username) == "" {
		return models.HomeMember{}, validationf("user_id or username is required")
	}
	actor, err := s.access.requireManager(ctx, actorID, homeID)
	if err != nil {
		return models.HomeMember{}, err
	}
	if role == models.RoleAdmin && actor.Role != models.RoleOwner {
		return models.HomeMember{}, deniedf("only the owner may add admins")
	}

	userID, err := s.lookupUser(in)
	if err != nil {
		return models.HomeMember{}, err
	}
	if _, err := s.homes.GetMembership(ctx, homeID, userID); err == nil {
		return models.HomeMember{}, validationf("user %d is already a member", userID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return models.HomeMember{}, storeErr("add member", err)
	}

	m, err := s.homes.AddMember(ctx, homeID, userID, role)
	if err != nil {
		return models.HomeMember{}, storeErr("add member", err)
	}
	if s.log != nil {
		s.log.Infow("home_member_added", "home_id", homeID, "user_id", userID, "role", role, "actor_id", actorID)
	}
	return m, nil
}

func (s *HomeService) lookupUser(in AddMemberInput) (int64, error) {
	var (
		u   *models.User
		err error
	)
	if in.UserID != 0 {
		u, err = s.users.GetByID(in.UserID)
	} else {
		u, err = s.users.GetByUsername(strings.TrimSpace(in.Username))
	}
	if err != nil {
		return 0, storeErr("user", err)
	}
	if u == nil {
		return 0, notFoundf("user")
	}
	return u.ID, nil
}

// managedMember loads a member of a home the actor manages. Owners are never
// editable, and only the owner may touch admins.
func (s *HomeService) managedMember(ctx context.Context, actorID, memberID int64) (models.HomeMember, error) {
	target, err := s.homes.GetMember(ctx, memberID)
	if err != nil {
		return models.HomeMember{}, storeErr("member", err)
	}
	actor, err := s.access.requireManager(ctx, actorID, target.HomeID)
	if err != nil {
		return models.HomeMember{}, err
	}
	if target.Role == models.RoleOwner {
		return models.HomeMember{}, deniedf("the home owner cannot be changed")
	}
	if target.Role == models.RoleAdmin && actor.Role != models.RoleOwner {
		return models.HomeMember{}, deniedf("only the owner may change admins")
	}
	return target, nil
}

func (s *HomeService) UpdateMemberRole(ctx context.Context, actorID, memberID int64, role string) (models.HomeMember, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !models.ValidRole(role) || role == models.RoleOwner {
		return models.HomeMember{}, validationf("role must be admin, member or guest")
	}
	target, err := s.managedMember(ctx, actorID, memberID)
	if err != nil {
		return models.HomeMember{}, err
	}
	if role == models.RoleAdmin {
		actor, err := s.access.membership(ctx, actorID, target.HomeID)
		if err != nil {
			return models.HomeMember{}, err
		}
		if actor.Role != models.RoleOwner {
			return models.HomeMember{}, deniedf("only the owner may promote admins")
		}
	}
	if err := s.homes.UpdateMemberRole(ctx, memberID, role); err != nil {
		return models.HomeMember{}, storeErr("update member", err)
	}
	target.Role = role
	return target, nil
}

// RemoveMember removes a member, or lets a non-owner leave a home.
func (s *HomeService) RemoveMember(ctx context.Context, actorID, memberID int64) error {
	target, err := s.homes.GetMember(ctx, memberID)
	if err != nil {
		return storeErr("member", err)
	}
	if target.UserID == actorID {
		if target.Role == models.RoleOwner {
			return deniedf("the home owner cannot leave")
		}
	} else if _, err := s.managedMember(ctx, actorID, memberID); err != nil {
		return err
	}
	if err := s.homes.RemoveMember(ctx, memberID); err != nil {
		return storeErr("remove member", err)
	}
	if s.log != nil {
		s.log.Infow("home_member_removed", "home_id", target.HomeID, "user_id", target.UserID, "actor_id", actorID)
	}
	return nil
}

// grantTarget checks that member and appliance belong to the same home,
// which the actor manages.
func (s *HomeService) grantTarget(ctx context.Context, actorID, memberID, applianceID int64) (models.HomeMember, error) {
	target, err := s.homes.GetMember(ctx, memberID)
	if err != nil {
		return models.HomeMember{}, storeErr("member", err)
	}
	if _, err := s.access.requireManager(ctx, actorID, target.HomeID); err != nil {
		return models.HomeMember{}, err
	}
	a, err := s.access.appliances.Get(ctx, applianceID)
	if err != nil {
		return models.HomeMember{}, storeErr("appliance", err)
	}
	if a.HomeID != target.HomeID {
		return models.HomeMember{}, notFoundf("appliance")
	}
	return target, nil
}

// GrantPermission sets a member's capabilities on one appliance. Grants for
// owners and admins are stored but have no effect.
func (s *HomeService) GrantPermission(ctx context.Context, actorID, memberID, applianceID int64, caps models.Capabilities) (models.Permission, error) {
	if _, err := s.grantTarget(ctx, actorID, memberID, applianceID); err != nil {
		return models.Permission{}, err
	}
	p, err := s.permissions.Upsert(ctx, models.Permission{
		HomeMemberID: memberID,
		ApplianceID:  applianceID,
		Capabilities: caps,
	})
	if err != nil {
		return models.Permission{}, storeErr("grant permission", err)
	}
	return p, nil
}

func (s *HomeService) RevokePermission(ctx context.Context, actorID, memberID, applianceID int64) error {
	if _, err := s.grantTarget(ctx, actorID, memberID, applianceID); err != nil {
		return err
	}
	if err := s.permissions.Delete(ctx, memberID, applianceID); err != nil {
		return storeErr("revoke permission", err)
	}
	return nil
}

// ListPermissions is visible to managers and to the member themself.
func (s *HomeService) ListPermissions(ctx context.Context, actorID, memberID int64) ([]models.Permission, error) {
	target, err := s.homes.GetMember(ctx, memberID)
	if err != nil {
		return nil, storeErr("member", err)
	}
	if target.UserID != actorID {
		if _, err := s.access.requireManager(ctx, actorID, target.HomeID); err != nil {
			return nil, err
		}
	}
	perms, err := s.permissions.ListByMember(ctx, memberID)
	if err != nil {
		return nil, storeErr("list permissions", err)
	}
	return perms, nil
}

// SetSecurityPin sets or, with an empty pin, clears the home's deletion PIN.
func (s *HomeService) SetSecurityPin(ctx context.Context, actorID, homeID int64, pin string) error {
	pin = strings.TrimSpace(pin)
	if pin != "" && !pinPattern.MatchString(pin) {
		return validationf("security pin must be 4 to 8 digits")
	}
	m, err := s.access.membership(ctx, actorID, homeID)
	if err != nil {
		return err
	}
	if m.Role != models.RoleOwner {
		return deniedf("only the owner may set the security pin")
	}
	var hash string
	if pin != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return validationf("hash pin: %v", err)
		}
		hash = string(b)
	}
	if err := s.homes.SetSecurityPin(ctx, homeID, hash); err != nil {
		return storeErr("set security pin", err)
	}
	return nil
}
