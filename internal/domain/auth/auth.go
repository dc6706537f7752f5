// Package auth holds caller identity and the role-based access policy that
// services apply at their boundary.
package auth

import (
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/fault"
)

// Role is a user role as stored with the account.
type Role string

const (
	RoleCustomer Role = "CLI"
	RoleAdmin    Role = "T_I"
	RoleManager  Role = "T_II"
	RoleViewer   Role = "T_III"
)

// ErrForbidden is returned when a principal may not perform an action.
var ErrForbidden = fault.New(fault.KindForbidden, "forbidden")

// ParseRole validates a stored role value.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleAdmin, RoleManager, RoleViewer:
		return r, nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// Principal identifies the caller of a service operation.
type Principal struct {
	UserID string
	Role   Role
}

// Action is an operation subject to authorization.
type Action string

const (
	ActionManageCart        Action = "cart:manage"
	ActionCheckout          Action = "order:checkout"
	ActionReadOwnOrders     Action = "order:read_own"
	ActionReadAllOrders     Action = "order:read_all"
	ActionUpdateOrderStatus Action = "order:update_status"
	ActionValidateCoupon    Action = "coupon:validate"
	ActionManageCoupons     Action = "coupon:manage"
)

var policy = map[Action][]Role{
	ActionManageCart:        {RoleCustomer, RoleAdmin},
	ActionCheckout:          {RoleCustomer, RoleAdmin},
	ActionReadOwnOrders:     {RoleCustomer, RoleAdmin, RoleManager, RoleViewer},
	ActionReadAllOrders:     {RoleAdmin, RoleManager, RoleViewer},
	ActionUpdateOrderStatus: {RoleAdmin, RoleManager},
	ActionValidateCoupon:    {RoleCustomer, RoleAdmin, RoleManager},
	ActionManageCoupons:     {RoleAdmin, RoleManager},
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err returns nil for an allowed decision and an ErrForbidden-wrapping error
// otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errors.Wrap(ErrForbidden, d.Reason)
}

// Authorize decides whether p may perform a.
func Authorize(p Principal, a Action) Decision {
	if p.UserID == "" {
		return Decision{Reason: "anonymous caller"}
	}
	roles, ok := policy[a]
	if !ok {
		return Decision{Reason: "unknown action " + string(a)}
	}
	for _, r := range roles {
		if r == p.Role {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: "role " + string(p.Role) + " may not " + string(a)}
}

// AuthorizeOwner decides whether p may read a resource owned by ownerID:
// owners need ActionReadOwnOrders, everyone else ActionReadAllOrders.
func AuthorizeOwner(p Principal, ownerID string) Decision {
	if p.UserID != "" && p.UserID == ownerID {
		return Authorize(p, ActionReadOwnOrders)
	}
	return Authorize(p, ActionReadAllOrders)
}
