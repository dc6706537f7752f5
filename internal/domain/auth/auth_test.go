package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/fault"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		p       Principal
		action  Action
		allowed bool
	}{
		{name: "customer checkout", p: Principal{UserID: "u1", Role: RoleCustomer}, action: ActionCheckout, allowed: true},
		{name: "viewer checkout", p: Principal{UserID: "u1", Role: RoleViewer}, action: ActionCheckout},
		{name: "manager updates status", p: Principal{UserID: "u1", Role: RoleManager}, action: ActionUpdateOrderStatus, allowed: true},
		{name: "customer updates status", p: Principal{UserID: "u1", Role: RoleCustomer}, action: ActionUpdateOrderStatus},
		{name: "admin manages coupons", p: Principal{UserID: "u1", Role: RoleAdmin}, action: ActionManageCoupons, allowed: true},
		{name: "anonymous", p: Principal{Role: RoleAdmin}, action: ActionCheckout},
		{name: "unknown action", p: Principal{UserID: "u1", Role: RoleAdmin}, action: Action("nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.p, tt.action)
			assert.Equal(t, tt.allowed, d.Allowed)
			if tt.allowed {
				assert.NoError(t, d.Err())
				return
			}
			assert.NotEmpty(t, d.Reason)
			require.ErrorIs(t, d.Err(), ErrForbidden)
			assert.Equal(t, fault.KindForbidden, fault.KindOf(d.Err()))
		})
	}
}

func TestAuthorizeOwner(t *testing.T) {
	customer := Principal{UserID: "u1", Role: RoleCustomer}

	assert.True(t, AuthorizeOwner(customer, "u1").Allowed)
	assert.False(t, AuthorizeOwner(customer, "u2").Allowed)
	assert.True(t, AuthorizeOwner(Principal{UserID: "a", Role: RoleViewer}, "u2").Allowed)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("T_II")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, r)

	_, err = ParseRole("ROOT")
	require.Error(t, err)
}
