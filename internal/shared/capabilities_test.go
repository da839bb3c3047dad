package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/internal/authz"
)

func TestCapabilitiesAreDeclaredOnce(t *testing.T) {
	assert.Same(t, Capabilities(), Capabilities())

	for _, name := range []string{
		CapSessionView, CapRolesView, CapCapabilitiesView, CapJobsView,
		CapUsersView, CapUsersAssignRole,
		CapStoresList, CapStoresView, CapStoresEdit, CapStoreMembersView, CapStoreMembersAdd, CapStoreDashboard,
		CapPageAccount, CapPageModeration, CapPageVendor, CapPageAdmin,
	} {
		c, ok := Capabilities().Lookup(name)
		require.True(t, ok, name)
		assert.NoError(t, c.Validate(), name)
		assert.NotEmpty(t, c.Description, name)
	}
}

func TestPageCapabilitiesFollowLandingRoles(t *testing.T) {
	reg := Capabilities()
	assert.Equal(t, authz.RoleCustomer, reg.MustLookup(CapPageAccount).MinimumRole)
	assert.Equal(t, authz.RoleModerator, reg.MustLookup(CapPageModeration).MinimumRole)
	assert.Equal(t, authz.RoleVendor, reg.MustLookup(CapPageVendor).MinimumRole)
	assert.Equal(t, authz.RoleAdmin, reg.MustLookup(CapPageAdmin).MinimumRole)
	assert.Equal(t, authz.RoleSuperAdmin, reg.MustLookup(CapUsersAssignRole).MinimumRole)
}
