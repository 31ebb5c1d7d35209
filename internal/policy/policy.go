// Package policy decides who may invoke which action on which resource.
//
// Every action declares a capability set (the roles that may invoke it at all)
// and, per role, whether the action is ownership-scoped. Authorize evaluates
// the same three steps for every caller:
//
//  1. the identity is present and unexpired, else domain.ErrUnauthenticated;
//  2. its role is in the capability set, else domain.ErrPermissionDenied;
//  3. for an ownership-scoped role, the resource owner resolved for that role
//     equals the subject, else domain.ErrPermissionDenied.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/venuebook/internal/domain"
)

type Action string

const (
	CreateBooking    Action = "booking.create"
	CancelBooking    Action = "booking.cancel"
	ListBookings     Action = "booking.list"
	ViewAvailability Action = "venue.availability"
	CreateVenue      Action = "venue.create"
	ReadVenue        Action = "venue.read"
	UpdateVenue      Action = "venue.update"
	DeleteVenue      Action = "venue.delete"
	ApproveVenue     Action = "venue.approve"
	AssignVenueOwner Action = "venue.assign_owner"
)

// Rule is the declarative policy of one action.
type Rule struct {
	Roles       []domain.Role
	OwnerScoped []domain.Role
}

func (r Rule) allows(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func (r Rule) scoped(role domain.Role) bool {
	for _, s := range r.OwnerScoped {
		if s == role {
			return true
		}
	}
	return false
}

var all = []domain.Role{domain.RoleAdmin, domain.RoleOwner, domain.RoleUser}

// DefaultRules is the policy table of the service.
var DefaultRules = map[Action]Rule{
	CreateBooking: {Roles: []domain.Role{domain.RoleUser}},
	CancelBooking: {
		Roles:       all,
		OwnerScoped: []domain.Role{domain.RoleOwner, domain.RoleUser},
	},
	ListBookings:     {Roles: all},
	ViewAvailability: {Roles: all},
	CreateVenue:      {Roles: []domain.Role{domain.RoleOwner, domain.RoleAdmin}},
	ReadVenue:        {Roles: all},
	UpdateVenue: {
		Roles:       []domain.Role{domain.RoleOwner, domain.RoleAdmin},
		OwnerScoped: []domain.Role{domain.RoleOwner},
	},
	DeleteVenue: {
		Roles:       []domain.Role{domain.RoleOwner, domain.RoleAdmin},
		OwnerScoped: []domain.Role{domain.RoleOwner},
	},
	ApproveVenue:     {Roles: []domain.Role{domain.RoleAdmin}},
	AssignVenueOwner: {Roles: []domain.Role{domain.RoleAdmin}},
}

// OwnerLookup resolves the ID of the user that owns a resource.
type OwnerLookup func(ctx context.Context, resourceID int64) (int64, error)

// Resource identifies the target of an ownership-scoped action. Owners maps a
// role to the lookup that defines ownership from that role's point of view.
type Resource struct {
	ID     int64
	Owners map[domain.Role]OwnerLookup
}

// Guard evaluates actions against a rule table.
type Guard struct {
	rules map[Action]Rule
	now   func() time.Time
}

func NewGuard(rules map[Action]Rule, now func() time.Time) *Guard {
	if rules == nil {
		rules = DefaultRules
	}

	if now == nil {
		now = time.Now
	}

	return &Guard{rules: rules, now: now}
}

// Authenticate checks only the first step: identity is present and unexpired.
func (g *Guard) Authenticate(identity *domain.Identity) error {
	if identity == nil || identity.SubjectID == 0 {
		return domain.ErrUnauthenticated
	}

	if !identity.ExpiresAt.IsZero() && !g.now().Before(identity.ExpiresAt) {
		return fmt.Errorf("%w: credential expired", domain.ErrUnauthenticated)
	}

	return nil
}

// CheckRole runs the first two steps: authentication and the capability set.
// Callers that must validate input before resolving ownership use it to fail
// early, then call Authorize with the resource.
func (g *Guard) CheckRole(identity *domain.Identity, action Action) error {
	if err := g.Authenticate(identity); err != nil {
		return err
	}
	return g.checkRole(identity, action)
}

func (g *Guard) checkRole(identity *domain.Identity, action Action) error {
	rule, ok := g.rules[action]
	if !ok || !rule.allows(identity.Role) {
		return fmt.Errorf("%w: role %q may not %s", domain.ErrPermissionDenied, identity.Role, action)
	}
	return nil
}

// Authorize returns nil when identity may perform action on res. res may be
// nil for actions that are not ownership-scoped.
//
// Returns:
//   - error: domain.ErrUnauthenticated if identity is missing or expired.
//   - error: domain.ErrPermissionDenied if the role or ownership check fails.
//   - error: any error of an owner lookup, such as domain.ErrNotFound.
func (g *Guard) Authorize(ctx context.Context, identity *domain.Identity, action Action, res *Resource) error {
	const op = "policy.Guard.Authorize"

	if err := g.Authenticate(identity); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := g.checkRole(identity, action); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !g.rules[action].scoped(identity.Role) {
		return nil
	}

	if res == nil || res.Owners[identity.Role] == nil {
		return fmt.Errorf("%s: %w: no ownership lookup for %s", op, domain.ErrPermissionDenied, action)
	}

	ownerID, err := res.Owners[identity.Role](ctx, res.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if ownerID != identity.SubjectID {
		return fmt.Errorf("%s: %w: subject does not own resource %d", op, domain.ErrPermissionDenied, res.ID)
	}

	return nil
}
