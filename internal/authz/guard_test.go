package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTenants struct {
	calls int
	next  TenantEvaluator
}

func (c *countingTenants) EvaluateTenant(p *Principal, res ResourceRef, capability Capability) Decision {
	c.calls++
	return c.next.EvaluateTenant(p, res, capability)
}

// adminFlagRoles treats one principal id as admin regardless of its role string.
type adminFlagRoles struct {
	adminID string
}

func (a adminFlagRoles) EvaluateRole(p *Principal, capability Capability) Decision {
	if p != nil && p.ID == a.adminID && capability.MinimumRole == RoleAdmin {
		return Allow
	}
	return PolicyResolver{}.EvaluateRole(p, capability)
}

func TestAuthorizeScenarios(t *testing.T) {
	moderator := RequireRole("stores.view", RoleModerator)
	vendor := NewPrincipal("u-1", "vendor", "store-42")

	tests := []struct {
		name      string
		principal *Principal
		resource  ResourceRef
		want      Decision
	}{
		{"vendor on own store", vendor, TenantResource("store-42"), Allow},
		{"vendor on foreign store", vendor, TenantResource("store-99"), DenyWrongTenant},
		{"customer below minimum", NewPrincipal("u-2", "customer", "store-42"), TenantResource("store-42"), DenyInsufficientRole},
		{"customer on platform resource", NewPrincipal("u-2", "customer"), PlatformResource(), DenyInsufficientRole},
		{"no principal", nil, TenantResource("store-42"), DenyUnauthenticated},
		{"no principal platform", nil, PlatformResource(), DenyUnauthenticated},
		{"super admin bypasses tenant", NewPrincipal("u-3", "super_admin"), TenantResource("store-1"), Allow},
		{"moderator platform operation", NewPrincipal("u-4", "moderator"), PlatformResource(), Allow},
		{"moderator without tenants", NewPrincipal("u-4", "moderator"), TenantResource("store-1"), DenyWrongTenant},
		{"unknown role", NewPrincipal("u-5", "root", "store-42"), TenantResource("store-42"), DenyUnauthenticated},
		{"uppercase admin", NewPrincipal("u-6", "ADMIN"), TenantResource("store-7"), Allow},
	}

	guard := NewGuard()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := guard.Authorize(tc.principal, moderator, tc.resource)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorizeShortCircuitsOnRoleDeny(t *testing.T) {
	tenants := &countingTenants{next: TenantScope{}}
	guard := NewGuard(WithTenantEvaluator(tenants))
	capability := RequireRole("stores.edit", RoleVendor)

	decision, err := guard.Authorize(nil, capability, TenantResource("store-1"))
	require.NoError(t, err)
	assert.Equal(t, DenyUnauthenticated, decision)

	decision, err = guard.Authorize(NewPrincipal("u", "customer", "store-1"), capability, TenantResource("store-1"))
	require.NoError(t, err)
	assert.Equal(t, DenyInsufficientRole, decision)
	assert.Equal(t, 0, tenants.calls)

	decision, err = guard.Authorize(NewPrincipal("u", "vendor", "store-1"), capability, TenantResource("store-1"))
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)
	assert.Equal(t, 1, tenants.calls)
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	guard := NewGuard()
	capability := RequireRole("stores.view", RoleVendor)
	principal := NewPrincipal("u", "vendor", "store-1")
	for _, res := range []ResourceRef{TenantResource("store-1"), TenantResource("store-2"), PlatformResource()} {
		first, err := guard.Authorize(principal, capability, res)
		require.NoError(t, err)
		second, err := guard.Authorize(principal, capability, res)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestAuthorizeMalformedCapability(t *testing.T) {
	guard := NewGuard()
	for _, capability := range []Capability{
		{Name: "missing.minimum"},
		{Name: "bad.minimum", MinimumRole: Role("ADMIN")},
		{MinimumRole: RoleAdmin},
	} {
		decision, err := guard.Authorize(NewPrincipal("u", "super_admin"), capability, PlatformResource())
		assert.ErrorIs(t, err, ErrMalformedCapability)
		assert.Zero(t, decision)
	}
}

func TestEvaluateRoleMatchesAtLeast(t *testing.T) {
	for _, minimum := range Roles() {
		capability := RequireRole("probe", minimum)
		assert.Equal(t, DenyUnauthenticated, EvaluateRole(nil, capability))
		for _, role := range Roles() {
			got := EvaluateRole(NewPrincipal("u", string(role)), capability)
			assert.Equal(t, AtLeast(role, minimum), got == Allow, "%s vs %s", role, minimum)
			if got != Allow {
				assert.Equal(t, DenyInsufficientRole, got)
			}
		}
	}
}

func TestEvaluateTenantAdminOverride(t *testing.T) {
	capability := RequireRole("stores.edit", RoleVendor)
	for _, role := range Roles() {
		p := NewPrincipal("u", string(role), "store-1")
		got := EvaluateTenant(p, TenantResource("store-2"), capability)
		if AtLeast(role, RoleAdmin) {
			assert.Equal(t, Allow, got, role)
		} else {
			assert.Equal(t, DenyWrongTenant, got, role)
		}
		assert.Equal(t, Allow, EvaluateTenant(p, PlatformResource(), capability), role)
		assert.Equal(t, Allow, EvaluateTenant(p, TenantResource("store-1"), capability), role)
	}
}

func TestEvaluateTenantOverrideBeforeOwnership(t *testing.T) {
	scope := TenantScope{Roles: adminFlagRoles{adminID: "flagged"}}
	p := NewPrincipal("flagged", "vendor", "store-1")
	assert.Equal(t, Allow, scope.EvaluateTenant(p, TenantResource("store-9"), RequireRole("x", RoleVendor)))
}

func TestIsAdminOrAbove(t *testing.T) {
	assert.True(t, IsAdminOrAbove(NewPrincipal("u", "admin")))
	assert.True(t, IsAdminOrAbove(NewPrincipal("u", "Super_Admin")))
	assert.False(t, IsAdminOrAbove(NewPrincipal("u", "vendor")))
	assert.False(t, IsAdminOrAbove(nil))
}

func TestPrincipalTenantIDs(t *testing.T) {
	p := NewPrincipal("u", "vendor", "b", "a", "", "b")
	assert.Equal(t, []string{"a", "b"}, p.TenantIDs())
	assert.True(t, p.HasTenant("a"))
	assert.False(t, p.HasTenant(""))
	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.HasTenant("a"))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "deny_wrong_tenant", DenyWrongTenant.String())
	assert.Equal(t, "unknown", Decision(0).String())
	assert.False(t, Decision(0).Allowed())
}
