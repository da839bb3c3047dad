package shared

import (
	"sync"

	"github.com/marketdesk/marketdesk/internal/authz"
)

// Capability names declared by the HTTP surface.
const (
	CapSessionView = "session.view"
	CapRolesView   = "roles.view"

	CapCapabilitiesView = "capabilities.view"
	CapJobsView         = "jobs.view"

	CapUsersView       = "users.view"
	CapUsersAssignRole = "users.assign_role"

	CapStoresList       = "stores.list"
	CapStoresView       = "stores.view"
	CapStoresEdit       = "stores.edit"
	CapStoreMembersView = "stores.members.view"
	CapStoreMembersAdd  = "stores.members.add"
	CapStoreDashboard   = "stores.dashboard"

	CapPageAccount    = "pages.account"
	CapPageModeration = "pages.moderation"
	CapPageVendor     = "pages.vendor"
	CapPageAdmin      = "pages.admin"
)

// Capabilities returns every capability the application declares. Building
// the registry validates them, so a bad declaration fails at startup. The
// registry is shared and must not be extended by callers.
func Capabilities() *authz.Registry {
	return declared()
}

var declared = sync.OnceValue(func() *authz.Registry {
	return authz.NewRegistry().MustRegister(
		authz.RequireRole(CapSessionView, authz.RoleCustomer).Describe("view own session"),
		authz.RequireRole(CapRolesView, authz.RoleCustomer).Describe("list the role catalog"),

		authz.AdminOrAbove(CapCapabilitiesView).Describe("list declared capabilities"),
		authz.AdminOrAbove(CapJobsView).Describe("inspect background queues"),

		authz.AdminOrAbove(CapUsersView).Describe("list users"),
		authz.RequireRole(CapUsersAssignRole, authz.RoleSuperAdmin).Describe("change a user's role"),

		authz.RequireRole(CapStoresList, authz.RoleVendor).Describe("list visible stores"),
		authz.RequireRole(CapStoresView, authz.RoleVendor).Describe("view a store"),
		authz.RequireRole(CapStoresEdit, authz.RoleVendor).Describe("update a store"),
		authz.RequireRole(CapStoreMembersView, authz.RoleVendor).Describe("list store staff"),
		authz.RequireRole(CapStoreMembersAdd, authz.RoleVendor).Describe("add store staff"),
		authz.RequireRole(CapStoreDashboard, authz.RoleVendor).Describe("store dashboard page"),

		authz.RequireRole(CapPageAccount, authz.RoleCustomer).Describe("account page"),
		authz.RequireRole(CapPageModeration, authz.RoleModerator).Describe("moderation page"),
		authz.RequireRole(CapPageVendor, authz.RoleVendor).Describe("vendor dashboard page"),
		authz.AdminOrAbove(CapPageAdmin).Describe("admin dashboard page"),
	)
})
